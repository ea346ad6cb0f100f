package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/fyrsmithlabs/taskd/internal/tasks"
	"github.com/nats-io/nats.go"
)

// NATSPublisher publishes events as JSON to <prefix>.<subject>.
type NATSPublisher struct {
	nc     *nats.Conn
	prefix string
	owned  bool
	now    func() time.Time
}

var _ Publisher = (*NATSPublisher)(nil)

// Connect dials url and returns a publisher that owns the connection.
func Connect(url, prefix string, opts ...nats.Option) (*NATSPublisher, error) {
	opts = append([]nats.Option{
		nats.Name("taskd"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(5),
		nats.ReconnectWait(time.Second),
	}, opts...)
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", url, err)
	}
	p := NewNATSPublisher(nc, prefix)
	p.owned = true
	return p, nil
}

// NewNATSPublisher publishes on an existing connection. Close does not
// close nc.
func NewNATSPublisher(nc *nats.Conn, prefix string) *NATSPublisher {
	prefix = strings.TrimSuffix(prefix, ".")
	if prefix == "" {
		prefix = "taskd"
	}
	return &NATSPublisher{nc: nc, prefix: prefix, now: time.Now}
}

// Subject returns the full subject for a relative one.
func (p *NATSPublisher) Subject(rel string) string {
	return p.prefix + "." + rel
}

func (p *NATSPublisher) TaskCreated(ctx context.Context, t *tasks.Task) error {
	return p.publish(ctx, SubjectTaskCreated, Envelope{Task: t})
}

func (p *NATSPublisher) PendingCreated(ctx context.Context, pt *tasks.PendingTask) error {
	return p.publish(ctx, SubjectPendingCreated, Envelope{Pending: pt})
}

func (p *NATSPublisher) PendingApproved(ctx context.Context, pt *tasks.PendingTask, t *tasks.Task) error {
	return p.publish(ctx, SubjectPendingApproved, Envelope{Pending: pt, Task: t})
}

func (p *NATSPublisher) PendingRejected(ctx context.Context, pt *tasks.PendingTask) error {
	return p.publish(ctx, SubjectPendingRejected, Envelope{Pending: pt})
}

func (p *NATSPublisher) ExtractionCompleted(ctx context.Context, s ExtractionSummary) error {
	return p.publish(ctx, SubjectExtractionCompleted, Envelope{Extraction: &s})
}

func (p *NATSPublisher) publish(ctx context.Context, rel string, env Envelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	env.Type = rel
	env.OccurredAt = p.now().UTC()

	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", rel, err)
	}
	if err := p.nc.Publish(p.Subject(rel), data); err != nil {
		return fmt.Errorf("publish %s event: %w", rel, err)
	}
	return nil
}

// Close flushes pending messages and closes the connection if the
// publisher opened it.
func (p *NATSPublisher) Close() error {
	if !p.owned {
		return nil
	}
	err := p.nc.FlushTimeout(2 * time.Second)
	p.nc.Close()
	if err != nil && err != nats.ErrConnectionClosed {
		return fmt.Errorf("flush NATS connection: %w", err)
	}
	return nil
}
