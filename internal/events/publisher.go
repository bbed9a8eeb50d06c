// Package events publishes sync run events to NATS JetStream.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/sirupsen/logrus"

	"quantity-sync-service/internal/models"
)

const (
	// StreamName is the JetStream stream holding inventory sync events
	StreamName = "INVENTORY_SYNC_EVENTS"
	// SubjectRunCompleted is published once per finished sync run
	SubjectRunCompleted = "inventory.sync.completed"
)

// RunCompletedEvent is the payload of SubjectRunCompleted
type RunCompletedEvent struct {
	EventType     string           `json:"eventType"`
	StoreID       string           `json:"storeId"`
	Timestamp     time.Time        `json:"timestamp"`
	RunID         string           `json:"runId"`
	FileName      string           `json:"fileName"`
	Mode          models.SyncMode  `json:"mode"`
	Status        models.RunStatus `json:"status"`
	TotalRecords  int              `json:"totalRecords"`
	Applied       int              `json:"applied"`
	Missing       int              `json:"missing"`
	FailedBatches int              `json:"failedBatches"`
	Error         string           `json:"error,omitempty"`
}

// NewRunCompletedEvent builds the event for a finished run
func NewRunCompletedEvent(run *models.SyncRun) RunCompletedEvent {
	ts := time.Now().UTC()
	if run.CompletedAt != nil {
		ts = run.CompletedAt.UTC()
	}
	return RunCompletedEvent{
		EventType:     SubjectRunCompleted,
		StoreID:       run.StoreID,
		Timestamp:     ts,
		RunID:         run.ID.String(),
		FileName:      run.FileName,
		Mode:          run.Mode,
		Status:        run.Status,
		TotalRecords:  run.TotalRecords,
		Applied:       run.Applied,
		Missing:       run.Missing,
		FailedBatches: run.FailedBatches,
		Error:         run.ErrorMessage,
	}
}

// Publisher sends run events to JetStream
type Publisher struct {
	nc  *nats.Conn
	js  jetstream.JetStream
	log *logrus.Entry
}

// NewPublisher connects to NATS and ensures the event stream exists
func NewPublisher(ctx context.Context, natsURL string, log *logrus.Entry) (*Publisher, error) {
	nc, err := nats.Connect(natsURL,
		nats.Name("quantity-sync-service"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.WithField("url", nc.ConnectedUrl()).Info("NATS reconnected")
		}),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.WithError(err).Warn("NATS disconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.WithError(err).Error("NATS error")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      StreamName,
		Subjects:  []string{"inventory.sync.>"},
		Retention: jetstream.LimitsPolicy,
		MaxAge:    7 * 24 * time.Hour,
		Storage:   jetstream.FileStorage,
	})
	if err != nil {
		log.WithError(err).Warn("Failed to ensure sync event stream")
	}

	return &Publisher{nc: nc, js: js, log: log}, nil
}

// PublishRunCompleted publishes the outcome of a run. A nil publisher is a
// no-op.
func (p *Publisher) PublishRunCompleted(ctx context.Context, run *models.SyncRun) error {
	if p == nil || p.js == nil {
		return nil
	}

	data, err := json.Marshal(NewRunCompletedEvent(run))
	if err != nil {
		return fmt.Errorf("failed to encode run event: %w", err)
	}

	ack, err := p.js.Publish(ctx, SubjectRunCompleted, data, jetstream.WithMsgID(run.ID.String()))
	if err != nil {
		return fmt.Errorf("failed to publish run event: %w", err)
	}
	p.log.WithFields(logrus.Fields{
		"run_id": run.ID.String(),
		"stream": ack.Stream,
		"seq":    ack.Sequence,
	}).Debug("Run event published")
	return nil
}

// Close drains the connection
func (p *Publisher) Close() {
	if p == nil || p.nc == nil {
		return
	}
	if err := p.nc.Drain(); err != nil {
		p.nc.Close()
	}
}
