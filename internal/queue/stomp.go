// Package queue consumes ingestion triggers from an ActiveMQ Artemis
// broker over STOMP and settles each message against the pipeline
// outcome: ack on success, dead-letter then ack on terminal failure.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-stomp/stomp/v3"
	"github.com/google/uuid"

	"github.com/gestordocs/ingestor/internal/config"
	"github.com/gestordocs/ingestor/internal/core"
	"github.com/gestordocs/ingestor/internal/metrics"
	"github.com/gestordocs/ingestor/internal/models"
	"github.com/gestordocs/ingestor/internal/pipeline"
)

// ingestionMessage is the wire form of a trigger. Field names follow
// the publishing system's contract.
type ingestionMessage struct {
	DocumentUUID string `json:"documento_uuid"`
	IsPublic     *bool  `json:"is_public"`
	Metadata     struct {
		Title        string `json:"titulo"`
		Description  string `json:"descripcion"`
		DocumentType string `json:"tipo_documento"`
	} `json:"metadatos"`
	AreaPublicIDs []string `json:"areas_public_ids"`
}

// Consumer subscribes with client-individual acknowledgement so each
// message settles independently of its neighbours on the same
// subscription.
type Consumer struct {
	cfg          *config.Config
	orchestrator *pipeline.Orchestrator
	metrics      *metrics.Metrics
	logger       *slog.Logger
}

func NewConsumer(cfg *config.Config, orch *pipeline.Orchestrator, m *metrics.Metrics) *Consumer {
	return &Consumer{
		cfg:          cfg,
		orchestrator: orch,
		metrics:      m,
		logger:       slog.Default().With("component", "queue.stomp"),
	}
}

// Run consumes until ctx is cancelled. Broker connection loss is
// retried with backoff; unsettled messages return to the queue when
// the connection drops.
func (c *Consumer) Run(ctx context.Context) error {
	reconnectWait := time.Second
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := c.consumeOnce(ctx)
		if err == nil || errors.Is(err, context.Canceled) {
			return ctx.Err()
		}

		c.logger.Error("broker connection lost, reconnecting", "err", err, "wait", reconnectWait)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(reconnectWait):
		}
		if reconnectWait < 30*time.Second {
			reconnectWait *= 2
		}
	}
}

func (c *Consumer) consumeOnce(ctx context.Context) error {
	conn, err := stomp.Dial("tcp", c.cfg.BrokerAddr,
		stomp.ConnOpt.Login(c.cfg.BrokerUser, c.cfg.BrokerPass),
		stomp.ConnOpt.Host(c.cfg.BrokerVHost),
		stomp.ConnOpt.HeartBeat(10*time.Second, 10*time.Second),
	)
	if err != nil {
		return fmt.Errorf("dial broker %s: %w", c.cfg.BrokerAddr, err)
	}
	defer conn.Disconnect()

	sub, err := conn.Subscribe(c.cfg.Queue, stomp.AckClientIndividual)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", c.cfg.Queue, err)
	}
	defer sub.Unsubscribe()

	c.logger.Info("consuming", "queue", c.cfg.Queue, "broker", c.cfg.BrokerAddr)

	for {
		select {
		case <-ctx.Done():
			// Unsettled deliveries are redelivered after disconnect.
			return ctx.Err()
		case msg, ok := <-sub.C:
			if !ok {
				return fmt.Errorf("subscription channel closed")
			}
			if msg.Err != nil {
				return fmt.Errorf("receive: %w", msg.Err)
			}
			if err := c.dispatch(ctx, conn, msg); err != nil {
				return err
			}
		}
	}
}

// dispatch validates the message and hands it to the worker pool. The
// settle callback runs on the worker goroutine once the pipeline
// reaches a terminal state.
func (c *Consumer) dispatch(ctx context.Context, conn *stomp.Conn, msg *stomp.Message) error {
	// Deliveries carry no broker-side id usable for log correlation, so
	// mint one here and thread it through the settle path.
	deliveryID := uuid.NewString()

	req, err := parseMessage(msg.Body)
	if err != nil {
		c.logger.Warn("rejecting malformed message", "delivery_id", deliveryID, "err", err)
		c.deadLetter(conn, msg.Body, core.Reason(err))
		return c.ack(conn, msg)
	}

	c.logger.Info("message received", "delivery_id", deliveryID, "document_id", req.DocumentID)
	return c.orchestrator.Submit(ctx, req, func(out pipeline.Outcome) {
		if out.Completed {
			if err := c.ack(conn, msg); err != nil {
				c.logger.Error("ack failed", "delivery_id", deliveryID, "document_id", req.DocumentID, "err", err)
			}
			return
		}
		if ctx.Err() != nil && (errors.Is(out.Err, context.Canceled) || errors.Is(out.Err, context.DeadlineExceeded)) {
			// Shutdown, not a document fault. Leave the message
			// unsettled so the broker redelivers it.
			return
		}
		c.deadLetter(conn, msg.Body, out.Reason)
		if err := c.ack(conn, msg); err != nil {
			c.logger.Error("ack after dead-letter failed", "delivery_id", deliveryID, "document_id", req.DocumentID, "err", err)
		}
	})
}

func (c *Consumer) ack(conn *stomp.Conn, msg *stomp.Message) error {
	return conn.Ack(msg)
}

// deadLetter forwards the original payload with the failure class in a
// header. Publish failures are logged and swallowed: the original is
// still acked, matching at-most-once delivery to the dead queue over
// blocking the subscription.
func (c *Consumer) deadLetter(conn *stomp.Conn, body []byte, reason string) {
	err := conn.Send(c.cfg.DeadLetterQueue, "application/json", body,
		stomp.SendOpt.Header("failure-reason", reason),
	)
	if err != nil {
		c.logger.Error("dead-letter publish failed", "queue", c.cfg.DeadLetterQueue, "reason", reason, "err", err)
		return
	}
	c.metrics.DeadLettered.WithLabelValues(reason).Inc()
	c.logger.Warn("message dead-lettered", "queue", c.cfg.DeadLetterQueue, "reason", reason)
}

// parseMessage validates the wire form. Only documento_uuid and
// is_public are mandatory; missing metadata fields default to empty and
// a private document may carry an empty area set (nobody but admins
// sees it until areas are assigned).
func parseMessage(body []byte) (models.IngestionRequest, error) {
	var msg ingestionMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return models.IngestionRequest{}, fmt.Errorf("%w: malformed payload: %v", core.ErrValidation, err)
	}
	if msg.DocumentUUID == "" {
		return models.IngestionRequest{}, fmt.Errorf("%w: documento_uuid is required", core.ErrValidation)
	}
	if msg.IsPublic == nil {
		return models.IngestionRequest{}, fmt.Errorf("%w: is_public is required", core.ErrValidation)
	}

	return models.IngestionRequest{
		DocumentID: msg.DocumentUUID,
		IsPublic:   *msg.IsPublic,
		Metadata: models.RequestMetadata{
			Title:        msg.Metadata.Title,
			Description:  msg.Metadata.Description,
			DocumentType: msg.Metadata.DocumentType,
		},
		AreaIDs: msg.AreaPublicIDs,
	}, nil
}
