// Package messaging publishes domain events and outbound email requests to
// Amazon EventBridge.
package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge/types"
	"go.uber.org/zap"

	"github.com/newtheatre/lumina/internal/domain"
	appErrors "github.com/newtheatre/lumina/pkg/errors"
)

// PutEvents accepts at most this many entries per call.
const maxBatchSize = 10

// Publisher delivers domain events.
type Publisher interface {
	Publish(ctx context.Context, events ...domain.Event) error
}

// EventBridgeAPI is the subset of the EventBridge client used here.
type EventBridgeAPI interface {
	PutEvents(ctx context.Context, params *eventbridge.PutEventsInput, optFns ...func(*eventbridge.Options)) (*eventbridge.PutEventsOutput, error)
}

var _ EventBridgeAPI = (*eventbridge.Client)(nil)

// EventRecorder counts publish attempts per event type.
type EventRecorder interface {
	RecordEvent(eventType string, err error)
}

type EventBridgePublisher struct {
	client   EventBridgeAPI
	bus      string
	source   string
	timeout  time.Duration
	recorder EventRecorder
	logger   *zap.Logger
}

// NewEventBridgePublisher returns a publisher for bus. recorder may be nil.
func NewEventBridgePublisher(client EventBridgeAPI, bus, source string, timeout time.Duration, recorder EventRecorder, logger *zap.Logger) *EventBridgePublisher {
	if bus == "" {
		bus = "default"
	}
	if source == "" {
		source = "lumina"
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &EventBridgePublisher{
		client:   client,
		bus:      bus,
		source:   source,
		timeout:  timeout,
		recorder: recorder,
		logger:   logger.Named("eventbridge"),
	}
}

func (p *EventBridgePublisher) Publish(ctx context.Context, events ...domain.Event) error {
	for start := 0; start < len(events); start += maxBatchSize {
		end := min(start+maxBatchSize, len(events))
		if err := p.publishBatch(ctx, events[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (p *EventBridgePublisher) publishBatch(ctx context.Context, events []domain.Event) (err error) {
	defer func() {
		if p.recorder == nil {
			return
		}
		for _, e := range events {
			p.recorder.RecordEvent(e.Type, err)
		}
	}()

	entries := make([]types.PutEventsRequestEntry, 0, len(events))
	for _, e := range events {
		detail, err := json.Marshal(e)
		if err != nil {
			return appErrors.NewInternal("marshal event "+e.Type, err)
		}
		entries = append(entries, types.PutEventsRequestEntry{
			EventBusName: aws.String(p.bus),
			Source:       aws.String(p.source),
			DetailType:   aws.String(e.Type),
			Detail:       aws.String(string(detail)),
			Resources:    []string{},
			Time:         aws.Time(e.Timestamp),
		})
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	out, err := p.client.PutEvents(ctx, &eventbridge.PutEventsInput{Entries: entries})
	if err != nil {
		p.logger.Warn("PutEvents failed", zap.Int("events", len(entries)), zap.Error(err))
		return appErrors.NewUnavailable("publish events", err)
	}
	if out.FailedEntryCount > 0 {
		for i, entry := range out.Entries {
			if entry.ErrorCode != nil {
				p.logger.Warn("Event rejected",
					zap.String("event_type", events[i].Type),
					zap.String("event_id", events[i].ID),
					zap.String("code", aws.ToString(entry.ErrorCode)),
					zap.String("message", aws.ToString(entry.ErrorMessage)))
			}
		}
		return appErrors.NewUnavailable(fmt.Sprintf("%d of %d events rejected", out.FailedEntryCount, len(entries)), nil)
	}

	p.logger.Debug("Events published", zap.Int("events", len(entries)))
	return nil
}

// LogPublisher writes events to the log instead of a bus.
type LogPublisher struct {
	logger *zap.Logger
}

func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	return &LogPublisher{logger: logger.Named("events")}
}

func (p *LogPublisher) Publish(_ context.Context, events ...domain.Event) error {
	for _, e := range events {
		p.logger.Info("Event",
			zap.String("event_type", e.Type),
			zap.String("event_id", e.ID),
			zap.String("subject", e.Subject),
			zap.Any("data", e.Data))
	}
	return nil
}
