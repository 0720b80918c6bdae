package events

import (
	"context"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/IrishJohn1973/tenderned-scraper/pkg/kafka"
	"github.com/IrishJohn1973/tenderned-scraper/pkg/models"
)

const (
	EventOrganizationMerged = "organization.merged"
	EventFeedCompleted      = "feed.completed"
)

// OrganizationMergedEvent is emitted after an aggregate's deltas land in a
// master organization.
type OrganizationMergedEvent struct {
	IdentityKey string    `json:"identity_key"`
	MasterOrgID string    `json:"master_org_id"`
	MatchMethod string    `json:"match_method"`
	Timestamp   time.Time `json:"timestamp"`
}

// FeedCompletedEvent is emitted once per orchestrated feed run.
type FeedCompletedEvent struct {
	Result    models.FeedResult `json:"result"`
	Timestamp time.Time         `json:"timestamp"`
}

// Emitter publishes pipeline events. Emission is best-effort: the feed has
// already committed when events go out, so publish failures are logged but
// never fail the run.
type Emitter interface {
	OrganizationMerged(ctx context.Context, identityKey, masterOrgID, matchMethod string)
	FeedCompleted(ctx context.Context, result models.FeedResult)
}

type kafkaEmitter struct {
	producer *kafka.Producer
	logger   ectologger.Logger
}

// NewKafkaEmitter creates an Emitter backed by a Kafka producer.
func NewKafkaEmitter(producer *kafka.Producer, logger ectologger.Logger) Emitter {
	return &kafkaEmitter{producer: producer, logger: logger}
}

func (e *kafkaEmitter) OrganizationMerged(ctx context.Context, identityKey, masterOrgID, matchMethod string) {
	event := OrganizationMergedEvent{
		IdentityKey: identityKey,
		MasterOrgID: masterOrgID,
		MatchMethod: matchMethod,
		Timestamp:   time.Now().UTC(),
	}
	if err := e.producer.Publish(ctx, EventOrganizationMerged, masterOrgID, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"identity_key": identityKey}).Warn("Failed to emit organization merged event")
	}
}

func (e *kafkaEmitter) FeedCompleted(ctx context.Context, result models.FeedResult) {
	event := FeedCompletedEvent{
		Result:    result,
		Timestamp: time.Now().UTC(),
	}
	if err := e.producer.Publish(ctx, EventFeedCompleted, EventFeedCompleted, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).Warn("Failed to emit feed completed event")
	}
}

type noopEmitter struct{}

// NewNoopEmitter returns an Emitter that drops everything. Used when Kafka
// is disabled.
func NewNoopEmitter() Emitter {
	return noopEmitter{}
}

func (noopEmitter) OrganizationMerged(ctx context.Context, identityKey, masterOrgID, matchMethod string) {
}
func (noopEmitter) FeedCompleted(ctx context.Context, result models.FeedResult) {}
