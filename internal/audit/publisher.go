// Package audit streams finalized automation runs to kafka.
//
// The stream is the reconciliation aid for partial automation: steps commit
// their effects independently, the run records downstream consumers read
// from the topic are the authoritative trail of what was applied.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/simplesurance/stagecoord/internal/logfields"
	"github.com/simplesurance/stagecoord/internal/workflow"
)

const loggerName = "audit"

const defWriteTimeout = 10 * time.Second

// Publisher writes one message per finalized run, keyed by delivery id so
// that runs of the same delivery land in the same partition.
type Publisher struct {
	writer *kafka.Writer
	logger *zap.Logger
}

func NewPublisher(brokers []string, topic string) (*Publisher, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("at least one broker is required")
	}

	if topic == "" {
		return nil, fmt.Errorf("topic must not be empty")
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		WriteTimeout: defWriteTimeout,
		BatchTimeout: 10 * time.Millisecond,
	}

	return &Publisher{
		writer: writer,
		logger: zap.L().Named(loggerName),
	}, nil
}

type outcomeRecord struct {
	Step    string `json:"step"`
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Target  string `json:"target,omitempty"`
}

type runRecord struct {
	ID           string          `json:"id"`
	Workflow     string          `json:"workflow"`
	DeliveryID   string          `json:"delivery_id"`
	EventType    string          `json:"event_type"`
	Action       string          `json:"action,omitempty"`
	Status       string          `json:"status"`
	Outcomes     []outcomeRecord `json:"outcomes,omitempty"`
	ResponseBody string          `json:"response_body,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	FinalizedAt  time.Time       `json:"finalized_at"`
}

// Publish writes the run to the topic.
func (p *Publisher) Publish(ctx context.Context, run *workflow.AutomationRun) error {
	record := runRecord{
		ID:           run.ID,
		Workflow:     run.Workflow,
		DeliveryID:   run.DeliveryID,
		EventType:    run.EventType,
		Action:       run.Action,
		Status:       string(run.Status),
		ResponseBody: run.ResponseBody,
		CreatedAt:    run.CreatedAt,
		FinalizedAt:  run.FinalizedAt,
	}

	for _, outcome := range run.Outcomes {
		record.Outcomes = append(record.Outcomes, outcomeRecord{
			Step:    outcome.Step,
			Status:  string(outcome.Status),
			Message: outcome.Message,
			Target:  outcome.Target,
		})
	}

	value, err := json.Marshal(&record)
	if err != nil {
		return fmt.Errorf("marshalling run record failed: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(run.DeliveryID),
		Value: value,
		Time:  run.FinalizedAt,
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("writing run record failed: %w", err)
	}

	p.logger.Debug("run published",
		logfields.Event("audit_run_published"),
		logfields.Run(run.ID),
		logfields.DeliveryID(run.DeliveryID),
	)

	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}
