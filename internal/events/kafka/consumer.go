package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"github.com/levelbot/levelbot/internal/models"
	"github.com/levelbot/levelbot/internal/progression"
	"github.com/levelbot/levelbot/internal/voice"
)

const (
	TypeMessage       = "message"
	TypeVoiceState    = "voice_state"
	TypeVoiceSnapshot = "voice_snapshot"
)

var ErrMalformedEvent = errors.New("malformed chat event")

// Envelope is one inbound chat gateway event.
type Envelope struct {
	Type    string                  `json:"type"`
	Message *models.MessageEvent    `json:"message,omitempty"`
	Voice   *models.VoiceStateEvent `json:"voice,omitempty"`
	Present []voice.Presence        `json:"present,omitempty"`
}

// Decode parses and validates an envelope.
func Decode(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	switch env.Type {
	case TypeMessage:
		if env.Message == nil || env.Message.AuthorID == "" {
			return Envelope{}, fmt.Errorf("%w: message without author", ErrMalformedEvent)
		}
	case TypeVoiceState:
		if env.Voice == nil || env.Voice.UserID == "" {
			return Envelope{}, fmt.Errorf("%w: voice state without user", ErrMalformedEvent)
		}
	case TypeVoiceSnapshot:
	default:
		return Envelope{}, fmt.Errorf("%w: unknown type %q", ErrMalformedEvent, env.Type)
	}
	return env, nil
}

// Handler receives decoded chat events.
type Handler interface {
	HandleMessage(ctx context.Context, ev models.MessageEvent) (progression.Result, error)
	HandleVoiceState(ctx context.Context, ev models.VoiceStateEvent) (voice.Transition, error)
	HandleVoiceSnapshot(ctx context.Context, present []voice.Presence) error
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer feeds chat events from a topic into a Handler, one at a time and
// in partition order.
type Consumer struct {
	reader  messageReader
	handler Handler
	log     *logrus.Logger
}

func NewConsumer(brokers []string, topic, groupID string, handler Handler, log *logrus.Logger) *Consumer {
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:  brokers,
			Topic:    topic,
			GroupID:  groupID,
			MinBytes: 1,
			MaxBytes: 1 << 20,
		}),
		handler: handler,
		log:     log,
	}
}

// Run consumes until ctx is cancelled. Every fetched message is committed
// after it is handled, including ones that were skipped or failed, so a bad
// event cannot stall the partition.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("fetch chat event: %w", err)
		}

		c.handle(ctx, msg)

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("commit chat event: %w", err)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, msg kafka.Message) {
	fields := logrus.Fields{
		"partition": msg.Partition,
		"offset":    msg.Offset,
	}

	env, err := Decode(msg.Value)
	if err != nil {
		c.log.WithFields(fields).WithError(err).Warn("skipping chat event")
		return
	}
	fields["type"] = env.Type

	switch env.Type {
	case TypeMessage:
		_, err = c.handler.HandleMessage(ctx, *env.Message)
	case TypeVoiceState:
		_, err = c.handler.HandleVoiceState(ctx, *env.Voice)
	case TypeVoiceSnapshot:
		err = c.handler.HandleVoiceSnapshot(ctx, env.Present)
	}
	if err != nil {
		c.log.WithFields(fields).WithError(err).Error("failed to handle chat event")
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
