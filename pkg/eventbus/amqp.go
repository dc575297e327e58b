package eventbus

import (
	"crypto/tls"
	"fmt"
	"net/url"
	"strings"

	"github.com/ThreeDotsLabs/watermill-amqp/v2/pkg/amqp"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/fleetdirectory/fleet-directory/pkg/config"
	"github.com/sirupsen/logrus"
)

func RegisterAmqpEngine() {
	RegisterEventBusEngine("amqp", func(eventBusProvider string, conf interface{}, serviceID string, logger *logrus.Entry) (EventBusEngine, error) {
		return NewAmqpEngine(conf, serviceID, logger)
	})
}

type AmqpEngine struct {
	logger     *logrus.Entry
	config     config.AMQPConnection
	serviceID  string
	subscriber message.Subscriber
	publisher  message.Publisher
}

func NewAmqpEngine(conf interface{}, serviceID string, logger *logrus.Entry) (EventBusEngine, error) {
	localConf, err := config.DecodeStruct[config.AMQPConnection](conf)
	if err != nil {
		logger.Errorf("could not decode AMQP Connection config: %s", err)
		return nil, err
	}
	return &AmqpEngine{
		logger:    logger,
		config:    localConf,
		serviceID: serviceID,
	}, nil
}

func (e *AmqpEngine) Subscriber() (message.Subscriber, error) {
	if e.subscriber == nil {
		subscriber, err := newAMQPSub(e.config, e.serviceID, e.logger)
		if err != nil {
			e.logger.Errorf("could not generate Event Bus Subscriber: %s", err)
			return nil, err
		}
		e.subscriber = subscriber
	}
	return e.subscriber, nil
}

func (e *AmqpEngine) Publisher() (message.Publisher, error) {
	if e.publisher == nil {
		publisher, err := newAMQPPub(e.config, e.serviceID, e.logger)
		if err != nil {
			e.logger.Errorf("could not generate Event Bus Publisher: %s", err)
			return nil, err
		}
		e.publisher = publisher
	}
	return e.publisher, nil
}

func amqpConfig(conf config.AMQPConnection, serviceID string, logger *logrus.Entry) (*amqp.Config, error) {
	userPassUrlPrefix := ""
	if conf.Username != "" {
		userPassUrlPrefix = fmt.Sprintf("%s:%s@", url.PathEscape(conf.Username), url.PathEscape(string(conf.Password)))
	}

	amqpURL := fmt.Sprintf("%s://%s%s:%d", conf.Protocol, userPassUrlPrefix, conf.Hostname, conf.Port)

	amqpCfg := amqp.NewDurablePubSubConfig(amqpURL, amqp.GenerateQueueNameTopicNameWithSuffix(serviceID))

	if conf.Insecure {
		logger.Debugf("tls InsecureSkipVerify set")
		amqpCfg.Connection.TLSConfig = &tls.Config{InsecureSkipVerify: true}
	}

	amqpCfg.Exchange = amqp.ExchangeConfig{
		GenerateName: func(topic string) string {
			if conf.Exchange != "" {
				return conf.Exchange
			}
			return "fleet-events"
		},
		Type:    "topic",
		Durable: true,
	}

	amqpCfg.QueueBind = amqp.QueueBindConfig{
		GenerateRoutingKey: func(topic string) string {
			suf := fmt.Sprintf("_%s", serviceID)
			if strings.Contains(topic, suf) {
				return strings.ReplaceAll(topic, suf, "")
			}
			return topic
		},
	}

	amqpCfg.Publish = amqp.PublishConfig{
		GenerateRoutingKey: func(topic string) string {
			return topic
		},
	}

	return &amqpCfg, nil
}

func newAMQPPub(conf config.AMQPConnection, serviceID string, logger *logrus.Entry) (message.Publisher, error) {
	cfg, err := amqpConfig(conf, serviceID, logger)
	if err != nil {
		return nil, err
	}

	lEventBusPub := NewLoggerAdapter(logger.WithField("subsystem-provider", "AMQP - Publisher"))

	publisher, err := amqp.NewPublisher(*cfg, lEventBusPub)
	if err != nil {
		return nil, fmt.Errorf("could not create publisher: %s", err)
	}

	return publisher, nil
}

func newAMQPSub(conf config.AMQPConnection, serviceID string, logger *logrus.Entry) (message.Subscriber, error) {
	cfg, err := amqpConfig(conf, serviceID, logger)
	if err != nil {
		return nil, err
	}

	lEventBusSub := NewLoggerAdapter(logger.WithField("subsystem-provider", "AMQP - Subscriber"))
	subscriber, err := amqp.NewSubscriber(*cfg, lEventBusSub)
	if err != nil {
		return nil, fmt.Errorf("could not create subscriber: %s", err)
	}

	return subscriber, nil
}
