package eventbus

import (
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/fleetdirectory/fleet-directory/pkg/config"
	"github.com/sirupsen/logrus"
)

type EventBusEngine interface {
	Subscriber() (message.Subscriber, error)
	Publisher() (message.Publisher, error)
}

type EventBusBuilder func(eventBusProvider string, conf interface{}, serviceID string, logger *logrus.Entry) (EventBusEngine, error)

var engines = map[string]EventBusBuilder{}

func RegisterEventBusEngine(provider string, builder EventBusBuilder) {
	engines[provider] = builder
}

func GetEventBusEngine(provider string, conf interface{}, serviceID string, logger *logrus.Entry) (EventBusEngine, error) {
	if builder, ok := engines[provider]; ok {
		return builder(provider, conf, serviceID, logger)
	}
	return nil, fmt.Errorf("no event bus engine registered for provider '%s'", provider)
}

func NewEventBusPublisher(conf config.EventBusEngine, serviceID string, logger *logrus.Entry) (message.Publisher, error) {
	engine, err := GetEventBusEngine(string(conf.Provider), conf.Config, serviceID, logger)
	if err != nil {
		return nil, err
	}
	return engine.Publisher()
}

func NewEventBusSubscriber(conf config.EventBusEngine, serviceID string, logger *logrus.Entry) (message.Subscriber, error) {
	engine, err := GetEventBusEngine(string(conf.Provider), conf.Config, serviceID, logger)
	if err != nil {
		return nil, err
	}
	return engine.Subscriber()
}
