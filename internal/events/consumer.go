package events

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

// ErrUnprocessable marks an envelope that can never be handled. The consumer
// logs it and commits past it instead of retrying.
var ErrUnprocessable = errors.New("unprocessable event")

// Handler returns nil only when the envelope was processed and its offset may be committed.
type Handler func(ctx context.Context, env Envelope) error

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Consumer struct {
	r         messageReader
	workers   int
	retryBase time.Duration
	retryMax  time.Duration
}

func NewConsumer(brokers []string, group string, topics []string, workers int) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		GroupID:        group,
		GroupTopics:    topics,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0,
	})
	return newConsumer(r, workers)
}

func newConsumer(r messageReader, workers int) *Consumer {
	if workers <= 0 {
		workers = 1
	}
	return &Consumer{r: r, workers: workers, retryBase: 200 * time.Millisecond, retryMax: 10 * time.Second}
}

// Start reads until ctx is cancelled, fanning messages out to a worker pool.
// Offsets are committed per message after the handler succeeds.
func (c *Consumer) Start(ctx context.Context, h Handler) error {
	defer c.r.Close()

	jobs := make(chan kafka.Message, 256)
	var wg sync.WaitGroup
	for i := 0; i < c.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for m := range jobs {
				c.handle(ctx, h, m)
			}
		}()
	}
	defer wg.Wait()
	defer close(jobs)

	for {
		m, err := c.r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		select {
		case jobs <- m:
		case <-ctx.Done():
			return nil
		}
	}
}

// handle runs h until it succeeds, backing off between attempts. A later
// commit on the same partition would cover this offset, so the worker never
// moves on while the message is unhandled. It gives up without committing
// only when ctx is cancelled; the message is then redelivered to the group.
func (c *Consumer) handle(ctx context.Context, h Handler, m kafka.Message) {
	var env Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		log.Printf("[events] WARN: skipping undecodable message topic=%s offset=%d: %v", m.Topic, m.Offset, err)
		c.commit(ctx, m)
		return
	}

	wait := c.retryBase
	for attempt := 1; ; attempt++ {
		err := h(ctx, env)
		if err == nil {
			c.commit(ctx, m)
			return
		}
		if errors.Is(err, ErrUnprocessable) {
			log.Printf("[events] WARN: dropping event=%s id=%s: %v", env.EventType, env.EventID, err)
			c.commit(ctx, m)
			return
		}
		log.Printf("[events] WARN: handler failed event=%s id=%s attempt=%d: %v", env.EventType, env.EventID, attempt, err)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		wait *= 2
		if wait > c.retryMax {
			wait = c.retryMax
		}
	}
}

func (c *Consumer) commit(ctx context.Context, m kafka.Message) {
	if err := c.r.CommitMessages(ctx, m); err != nil && ctx.Err() == nil {
		log.Printf("[events] WARN: commit offset=%d: %v", m.Offset, err)
	}
}
