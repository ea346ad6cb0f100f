package extraction

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/fyrsmithlabs/taskd/internal/extraction"

// Metrics holds the extraction counters. A nil *Metrics records nothing.
type Metrics struct {
	runs       metric.Int64Counter
	retries    metric.Int64Counter
	candidates metric.Int64Counter
}

// NewMetrics registers the counters on meter, or the global meter when nil.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	if meter == nil {
		meter = otel.Meter(instrumentationName)
	}

	m := &Metrics{}
	var err error

	m.runs, err = meter.Int64Counter(
		"taskd.extraction.runs_total",
		metric.WithDescription("Extraction runs by outcome (success, empty, invalid, busy, exhausted, failed, cancelled)"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		return nil, err
	}

	m.retries, err = meter.Int64Counter(
		"taskd.extraction.retries_total",
		metric.WithDescription("Provider attempts retried after a transient failure"),
		metric.WithUnit("{retry}"),
	)
	if err != nil {
		return nil, err
	}

	m.candidates, err = meter.Int64Counter(
		"taskd.extraction.candidates_total",
		metric.WithDescription("Candidate tasks by triage decision"),
		metric.WithUnit("{candidate}"),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}

func (m *Metrics) run(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.runs.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func (m *Metrics) retry(ctx context.Context) {
	if m == nil {
		return
	}
	m.retries.Add(ctx, 1)
}

func (m *Metrics) candidate(ctx context.Context, d Decision) {
	if m == nil {
		return
	}
	m.candidates.Add(ctx, 1, metric.WithAttributes(attribute.String("decision", string(d))))
}
