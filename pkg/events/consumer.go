package events

import (
	"context"
	"encoding/json"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/universexyz/marketplace-orderbook/pkg/engine"
	"github.com/universexyz/marketplace-orderbook/pkg/order"
)

// Consumer ingests indexer events from a Kafka topic as an alternative to
// the internal HTTP endpoints. A malformed or failing message is logged and
// committed anyway; the indexer's events are idempotent, so replays on the
// HTTP path can fill any gap.
type Consumer struct {
	reader *kafka.Reader
	engine *engine.Engine
	log    *zap.SugaredLogger
}

// envelope is one indexer message. Type selects which payload is set.
type envelope struct {
	Type     string               `json:"type"` // "match" | "cancel" | "transfer"
	Matches  []order.MatchEvent   `json:"matches,omitempty"`
	Cancels  []order.CancelEvent  `json:"cancels,omitempty"`
	Transfer *order.TransferEvent `json:"transfer,omitempty"`
}

func NewConsumer(brokers []string, topic, groupID string, eng *engine.Engine, log *zap.SugaredLogger) *Consumer {
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:  brokers,
			Topic:    topic,
			GroupID:  groupID,
			MinBytes: 1,
			MaxBytes: 10e6,
		}),
		engine: eng,
		log:    log,
	}
}

// Run consumes until ctx is done.
func (c *Consumer) Run(ctx context.Context) error {
	defer c.reader.Close()
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		c.handle(msg.Value)
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			c.log.Warnw("kafka_commit_failed", "err", err)
		}
	}
}

func (c *Consumer) handle(value []byte) {
	var env envelope
	if err := json.Unmarshal(value, &env); err != nil {
		c.log.Warnw("kafka_message_malformed", "err", err)
		return
	}
	switch env.Type {
	case "match":
		outcomes := c.engine.MatchOrders(env.Matches)
		c.log.Infow("kafka_match_processed", "events", len(env.Matches), "outcomes", outcomes)
	case "cancel":
		outcomes := c.engine.CancelOrders(env.Cancels)
		c.log.Infow("kafka_cancel_processed", "events", len(env.Cancels), "outcomes", outcomes)
	case "transfer":
		if env.Transfer == nil {
			return
		}
		if err := c.engine.StaleOrder(*env.Transfer); err != nil {
			c.log.Warnw("kafka_transfer_failed", "err", err)
		}
	default:
		c.log.Warnw("kafka_message_unknown_type", "type", env.Type)
	}
}
