// Package queue carries build messages from webhook intake to the build
// worker. Delivery is at-least-once: a message stays in flight until Ack, and
// Nack or a crashed consumer puts it back. Consumers must tolerate duplicates;
// the build status guard in the catalog makes reprocessing harmless.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nutshimit/mashin-registry/internal/db/models"
)

// ErrNoMessage is returned by Receive when nothing arrived before the block
// timeout. Callers simply poll again.
var ErrNoMessage = errors.New("no message available")

// ErrClosed is returned after Close.
var ErrClosed = errors.New("queue closed")

// Producer enqueues builds.
type Producer interface {
	Enqueue(ctx context.Context, build *models.Build) error
}

// Consumer receives builds for processing.
type Consumer interface {
	Receive(ctx context.Context) (*Delivery, error)
	Ack(ctx context.Context, d *Delivery) error
	Nack(ctx context.Context, d *Delivery) error
}

// Queue is a producer and consumer over the same backend.
type Queue interface {
	Producer
	Consumer
	Len(ctx context.Context) (int64, error)
	Close() error
}

// Delivery is one received message. payload is the exact encoded form so the
// backend can find the in-flight copy again on Ack.
type Delivery struct {
	Build   models.Build
	payload string
}

// Encode serialises a build as a queue message.
func Encode(build *models.Build) (string, error) {
	b, err := json.Marshal(build)
	if err != nil {
		return "", fmt.Errorf("failed to encode build message: %w", err)
	}
	return string(b), nil
}

// Decode parses a queue message. Messages without a build id are rejected.
func Decode(payload string) (*Delivery, error) {
	var build models.Build
	if err := json.Unmarshal([]byte(payload), &build); err != nil {
		return nil, fmt.Errorf("failed to decode build message: %w", err)
	}
	if build.ID == "" {
		return nil, fmt.Errorf("failed to decode build message: missing id")
	}
	return &Delivery{Build: build, payload: payload}, nil
}
