package telemetry

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/satyaki-up/issueboard/internal/issues"
)

const storeScopeName = "github.com/satyaki-up/issueboard/store"

// InstrumentedStore decorates an issues.Store with a span, an operation
// counter and a duration histogram per call.
type InstrumentedStore struct {
	inner  issues.Store
	tracer trace.Tracer
	ops    metric.Int64Counter
	dur    metric.Float64Histogram
	errs   metric.Int64Counter
}

var _ issues.Store = (*InstrumentedStore)(nil)

// WrapStore returns s unchanged when telemetry is disabled.
func WrapStore(s issues.Store) issues.Store {
	if !Enabled() {
		return s
	}
	return newInstrumentedStore(s, Tracer(storeScopeName), Meter(storeScopeName))
}

func newInstrumentedStore(s issues.Store, tracer trace.Tracer, m metric.Meter) *InstrumentedStore {
	ops, _ := m.Int64Counter("board.store.operations",
		metric.WithDescription("Store operations executed"),
	)
	dur, _ := m.Float64Histogram("board.store.operation.duration",
		metric.WithDescription("Store operation duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	errs, _ := m.Int64Counter("board.store.errors",
		metric.WithDescription("Store operations that failed, excluding not-found"),
	)
	return &InstrumentedStore{inner: s, tracer: tracer, ops: ops, dur: dur, errs: errs}
}

func (s *InstrumentedStore) op(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span, time.Time) {
	all := append([]attribute.KeyValue{attribute.String("db.operation", name)}, attrs...)
	ctx, span := s.tracer.Start(ctx, "store."+name,
		trace.WithAttributes(all...),
		trace.WithSpanKind(trace.SpanKindClient),
	)
	s.ops.Add(ctx, 1, metric.WithAttributes(attribute.String("db.operation", name)))
	return ctx, span, time.Now()
}

func (s *InstrumentedStore) done(ctx context.Context, span trace.Span, name string, start time.Time, err error) {
	attrs := metric.WithAttributes(attribute.String("db.operation", name))
	s.dur.Record(ctx, float64(time.Since(start).Milliseconds()), attrs)
	if err != nil && !errors.Is(err, issues.ErrNotFound) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.errs.Add(ctx, 1, attrs)
	}
	span.End()
}

func (s *InstrumentedStore) Put(ctx context.Context, issue issues.Issue) (string, error) {
	ctx, span, t := s.op(ctx, "Put", attribute.String("board.priority", string(issue.Priority)))
	id, err := s.inner.Put(ctx, issue)
	span.SetAttributes(attribute.String("board.issue_id", id))
	s.done(ctx, span, "Put", t, err)
	return id, err
}

func (s *InstrumentedStore) Patch(ctx context.Context, id string, p issues.Patch) error {
	attrs := []attribute.KeyValue{attribute.String("board.issue_id", id)}
	if p.Status != nil {
		attrs = append(attrs, attribute.String("board.status", string(*p.Status)))
	}
	ctx, span, t := s.op(ctx, "Patch", attrs...)
	err := s.inner.Patch(ctx, id, p)
	s.done(ctx, span, "Patch", t, err)
	return err
}

func (s *InstrumentedStore) Remove(ctx context.Context, id string) error {
	ctx, span, t := s.op(ctx, "Remove", attribute.String("board.issue_id", id))
	err := s.inner.Remove(ctx, id)
	s.done(ctx, span, "Remove", t, err)
	return err
}

func (s *InstrumentedStore) Get(ctx context.Context, id string) (*issues.Issue, error) {
	ctx, span, t := s.op(ctx, "Get", attribute.String("board.issue_id", id))
	v, err := s.inner.Get(ctx, id)
	s.done(ctx, span, "Get", t, err)
	return v, err
}

func (s *InstrumentedStore) List(ctx context.Context) (issues.Snapshot, error) {
	ctx, span, t := s.op(ctx, "List")
	v, err := s.inner.List(ctx)
	span.SetAttributes(attribute.Int("board.issue_count", len(v.Issues)), attribute.Int64("board.version", int64(v.Version)))
	s.done(ctx, span, "List", t, err)
	return v, err
}

// Subscribe is not traced.
func (s *InstrumentedStore) Subscribe(fn func(issues.Snapshot)) (func(), error) {
	return s.inner.Subscribe(fn)
}
