package eventbus

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/sirupsen/logrus"
)

type EventHandler interface {
	HandleMessage(*message.Message) error
}

type EventSubscriptionHandler struct {
	router      *message.Router
	subscriber  message.Subscriber
	handlerName string
}

func NewEventBusMessageHandler(handlerName string, topics []string, dlqPub message.Publisher, sub message.Subscriber, lMessaging *logrus.Entry, handler EventHandler) (*EventSubscriptionHandler, error) {
	router, err := NewMessageRouter(lMessaging, dlqPub)
	if err != nil {
		return nil, err
	}

	for idx, topic := range topics {
		router.AddNoPublisherHandler(fmt.Sprintf("%s--%d", handlerName, idx), topic, sub, handler.HandleMessage)
	}

	return &EventSubscriptionHandler{
		router:      router,
		subscriber:  sub,
		handlerName: handlerName,
	}, nil
}

func (s *EventSubscriptionHandler) RunAsync() error {
	errChan := make(chan error)
	go func() {
		err := s.router.Run(context.Background())
		if err != nil {
			errChan <- err
		}

		errChan <- nil
	}()

	select {
	case <-s.router.Running(): // when the router "running" channel closes the router is up
		return nil
	case err := <-errChan:
		return err
	}
}

func (s *EventSubscriptionHandler) Stop() {
	s.router.Close()
}
