package events

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"compliance-case-service/internal/engine"
	"compliance-case-service/internal/logging"
	"compliance-case-service/internal/models"
)

// Config holds the consumer's connection settings.
type Config struct {
	Broker  string
	Topic   string
	GroupID string
}

// alertEvent is the wire format detection systems publish when a scenario
// fires. alert_id is set when the producer already created the row; otherwise
// the consumer creates it. Downstream automations may instead name a
// lifecycle action to apply to an existing alert.
type alertEvent struct {
	AlertID    int64          `json:"alert_id"`
	CustomerID string         `json:"customer_id"`
	Type       string         `json:"type"`
	Scenario   string         `json:"scenario"`
	Severity   string         `json:"severity"`
	Details    map[string]any `json:"details"`

	Action string         `json:"action,omitempty"`
	Params map[string]any `json:"params,omitempty"`
}

// Consumer reads alert-created events and feeds them to the lifecycle engine.
type Consumer struct {
	reader *kafka.Reader
	disp   *engine.Dispatcher
	logger *logging.Logger
}

// NewConsumer builds a consumer in the given consumer group.
func NewConsumer(cfg Config, disp *engine.Dispatcher, logger *logging.Logger) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  []string{cfg.Broker},
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	return &Consumer{reader: r, disp: disp, logger: logger}
}

// Run consumes until ctx is cancelled. Offsets are committed only after the
// dispatcher has handled the message; a transient failure (retry budget
// exhausted during an outage) leaves the offset uncommitted so the event is
// redelivered. Malformed payloads and business rejections are committed past,
// since replaying them can never succeed.
func (c *Consumer) Run(ctx context.Context) error {
	c.logger.Info("kafka consumer started")
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		if err := c.handleMessage(ctx, msg.Value); err != nil {
			c.logger.Errorf("handle message at offset %d failed: %v", msg.Offset, err)
			if engine.IsTransient(err) {
				continue
			}
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			c.logger.Errorf("commit offset %d failed: %v", msg.Offset, err)
		}
	}
}

// handleMessage decodes one event and dispatches it with the system identity
// as actor. Events without an action name run the init path. Malformed
// payloads are dropped with a log line, never retried.
func (c *Consumer) handleMessage(ctx context.Context, value []byte) error {
	var ev alertEvent
	if err := json.Unmarshal(value, &ev); err != nil {
		c.logger.Errorf("malformed alert event: %v", err)
		return nil
	}

	if ev.Action != "" && ev.Action != "init" {
		if ev.AlertID == 0 {
			c.logger.Errorf("action event %q carries no alert_id, dropping", ev.Action)
			return nil
		}
		action, err := engine.DecodeAlertAction(ev.Action, ev.Params)
		if err != nil {
			c.logger.Errorf("malformed action event %q: %v", ev.Action, err)
			return nil
		}
		res := c.disp.Dispatch(ctx, engine.Request{
			EntityID:  ev.AlertID,
			Action:    action,
			ActorID:   models.SystemUserID,
			ActorRole: models.RoleSystem,
		})
		if !res.Success {
			return res.Err
		}
		c.logger.Infof("alert %d: %s applied from event", ev.AlertID, res.Action)
		return nil
	}

	if ev.AlertID == 0 && ev.Scenario == "" {
		c.logger.Error("alert event carries neither alert_id nor scenario, dropping")
		return nil
	}

	action := engine.InitAlert{}
	if ev.AlertID == 0 {
		create := models.AlertCreate{
			Type:     ev.Type,
			Scenario: ev.Scenario,
			Severity: ev.Severity,
			Details:  ev.Details,
		}
		if ev.CustomerID != "" {
			id, err := uuid.Parse(ev.CustomerID)
			if err != nil {
				c.logger.Errorf("alert event has invalid customer_id %q, dropping", ev.CustomerID)
				return nil
			}
			create.CustomerID = &id
		}
		action.Create = &create
	}

	res := c.disp.Dispatch(ctx, engine.Request{
		EntityID:  ev.AlertID,
		Action:    action,
		ActorID:   models.SystemUserID,
		ActorRole: models.RoleSystem,
	})
	if !res.Success {
		return res.Err
	}
	c.logger.Infof("alert %d initialized from event", res.EntityID)
	return nil
}

// Close releases the underlying reader.
func (c *Consumer) Close() error {
	return c.reader.Close()
}
