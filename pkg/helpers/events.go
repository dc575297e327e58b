package helpers

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/cloudevents/sdk-go/v2/event"
	"github.com/fleetdirectory/fleet-directory/pkg/models"
	"github.com/jakehl/goid"
)

type contextKey string

const (
	ContextKeySource       contextKey = "event-source"
	ContextKeyEventType    contextKey = "event-type"
	ContextKeyEventSubject contextKey = "event-subject"
)

func BuildCloudEvent(ctx context.Context, payload interface{}) event.Event {
	event := cloudevents.NewEvent()

	event.SetSpecVersion("1.0")
	event.SetTime(time.Now())
	event.SetID(goid.NewV4UUID().String())
	event.SetData(cloudevents.ApplicationJSON, payload)

	eventSource, ok := ctx.Value(ContextKeySource).(string)
	if ok {
		event.SetSource(fmt.Sprintf("source://%s", eventSource))
	} else {
		event.SetSource("source://unknown")
	}

	eventType, ok := ctx.Value(ContextKeyEventType).(string)
	if ok {
		event.SetType(eventType)
	} else if typedEventType, ok := ctx.Value(ContextKeyEventType).(models.EventType); ok {
		event.SetType(string(typedEventType))
	}

	eventSubject, ok := ctx.Value(ContextKeyEventSubject).(string)
	if ok {
		event.SetSubject(eventSubject)
	}

	if tenant := TenantFromContext(ctx); tenant != "" {
		event.SetExtension("tenantid", tenant)
	}

	return event
}

func ParseCloudEvent(msg []byte) (*event.Event, error) {
	var event cloudevents.Event
	err := json.Unmarshal(msg, &event)
	if err != nil {
		return nil, err
	}

	return &event, nil
}

func GetEventBody[E any](cloudEvent *event.Event) (*E, error) {
	var elem *E
	if cloudEvent == nil {
		return nil, fmt.Errorf("cloud event is null")
	}

	if cloudEvent.Data() == nil {
		return nil, fmt.Errorf("cloud event data is null")
	}

	eventDataBytes := cloudEvent.Data()
	err := json.Unmarshal(eventDataBytes, &elem)
	return elem, err
}
