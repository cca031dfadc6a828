// Glucobar - Personal Glucose Monitoring Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/glucobar

package events

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/goccy/go-json"

	"github.com/tomtom215/glucobar/internal/logging"
	"github.com/tomtom215/glucobar/internal/models"
)

// TopicRefresh carries JSON-encoded models.RefreshResult values.
const TopicRefresh = "glucobar.refresh"

// Metadata keys set on refresh messages.
const (
	MetadataState     = "state"
	MetadataErrorKind = "error_kind"
)

// ErrBusClosed is returned when publishing after Close.
var ErrBusClosed = errors.New("event bus closed")

// Bus is the in-process publisher and subscriber for refresh results.
type Bus struct {
	pubsub *gochannel.GoChannel
	logger watermill.LoggerAdapter

	mu     sync.RWMutex
	closed bool
}

// NewBus creates a bus backed by Watermill's gochannel Pub/Sub. Publishing
// waits for subscribers to acknowledge, so results arrive in publish order.
func NewBus(logger watermill.LoggerAdapter) *Bus {
	if logger == nil {
		logger = watermill.NopLogger{}
	}
	cfg := gochannel.Config{
		OutputChannelBuffer:            64,
		BlockPublishUntilSubscriberAck: true,
	}
	return &Bus{
		pubsub: gochannel.NewGoChannel(cfg, logger),
		logger: logger,
	}
}

// NewLoggerAdapter routes Watermill's logs through the process zerolog logger.
func NewLoggerAdapter() watermill.LoggerAdapter {
	return watermill.NewSlogLogger(logging.NewSlogLogger())
}

// PublishRefresh encodes and publishes a refresh result. The correlation id
// from ctx, when present, is attached to the message.
func (b *Bus) PublishRefresh(ctx context.Context, result models.RefreshResult) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrBusClosed
	}

	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode refresh result: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set(MetadataState, string(result.State))
	if result.ErrorKind != "" {
		msg.Metadata.Set(MetadataErrorKind, result.ErrorKind)
	}
	if id := logging.CorrelationIDFromContext(ctx); id != "" {
		middleware.SetCorrelationID(id, msg)
	}

	if err := b.pubsub.Publish(TopicRefresh, msg); err != nil {
		return fmt.Errorf("publish %s: %w", TopicRefresh, err)
	}
	return nil
}

// Subscriber exposes the bus to a Watermill router. A router closes its
// subscriber when it stops; the returned value ignores that so the bus
// survives router restarts. Close the bus itself with Bus.Close.
func (b *Bus) Subscriber() message.Subscriber {
	return sharedSubscriber{b.pubsub}
}

type sharedSubscriber struct {
	message.Subscriber
}

func (sharedSubscriber) Close() error { return nil }

// Subscribe returns a raw message channel for topic. Callers must Ack each
// message.
func (b *Bus) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	return b.pubsub.Subscribe(ctx, topic)
}

// Close stops the bus. Subsequent publishes fail with ErrBusClosed.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	return b.pubsub.Close()
}

// DecodeRefresh parses a refresh message payload.
func DecodeRefresh(msg *message.Message) (models.RefreshResult, error) {
	var result models.RefreshResult
	if err := json.Unmarshal(msg.Payload, &result); err != nil {
		return models.RefreshResult{}, fmt.Errorf("decode refresh message %s: %w", msg.UUID, err)
	}
	return result, nil
}
