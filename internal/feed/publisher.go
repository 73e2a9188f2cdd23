package feed

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/occurrence-highlighter/internal/group"
	"github.com/Adithya-Monish-Kumar-K/occurrence-highlighter/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/occurrence-highlighter/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/occurrence-highlighter/pkg/resilience"
)

// Producer is the part of kafka.Producer the publisher uses.
type Producer interface {
	Publish(ctx context.Context, event kafka.Event) error
}

// SummaryPublisher forwards group summaries to Kafka from a background
// goroutine. Publish never blocks; summaries are dropped when the buffer is
// full.
type SummaryPublisher struct {
	producer Producer
	retry    resilience.RetryConfig
	ch       chan group.Summary
	logger   *slog.Logger
	done     chan struct{}

	mu     sync.RWMutex
	closed bool
}

func NewSummaryPublisher(producer Producer, bufferSize int) *SummaryPublisher {
	if bufferSize <= 0 {
		bufferSize = 1024
	}
	return &SummaryPublisher{
		producer: producer,
		retry:    resilience.RetryConfig{MaxAttempts: 3, InitialDelay: 50 * time.Millisecond, MaxDelay: time.Second},
		ch:       make(chan group.Summary, bufferSize),
		logger:   logger.WithComponent("summary-publisher"),
		done:     make(chan struct{}),
	}
}

// Start launches the forwarding goroutine. When ctx is done the buffered
// summaries are flushed before it exits.
func (p *SummaryPublisher) Start(ctx context.Context) {
	go func() {
		defer close(p.done)
		for {
			select {
			case s, ok := <-p.ch:
				if !ok {
					return
				}
				p.send(ctx, s)
			case <-ctx.Done():
				p.drain()
				return
			}
		}
	}()
	p.logger.Info("summary publisher started", "buffer_size", cap(p.ch))
}

func (p *SummaryPublisher) Publish(s group.Summary) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return
	}
	select {
	case p.ch <- s:
	default:
		p.logger.Warn("summary dropped (buffer full)", "group_id", s.GroupID)
	}
}

func (p *SummaryPublisher) send(ctx context.Context, s group.Summary) {
	event := kafka.Event{
		Key:   "group-" + strconv.Itoa(s.GroupID),
		Type:  TypeSummary,
		Value: s,
	}
	err := resilience.Retry(ctx, "publish summary", p.retry, func(ctx context.Context) error {
		return p.producer.Publish(ctx, event)
	})
	if err != nil {
		p.logger.Error("failed to publish summary", "group_id", s.GroupID, "error", err)
	}
}

func (p *SummaryPublisher) drain() {
	for {
		select {
		case s, ok := <-p.ch:
			if !ok {
				return
			}
			p.send(context.Background(), s)
		default:
			return
		}
	}
}

// Close stops accepting summaries and waits for the buffer to flush.
// Summaries published afterwards are discarded.
func (p *SummaryPublisher) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.ch)
	p.mu.Unlock()
	<-p.done
}
