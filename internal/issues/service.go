package issues

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationScope = "github.com/satyaki-up/issueboard/internal/issues"

type Service struct {
	store  Store
	now    func() time.Time
	logger *slog.Logger
	tracer trace.Tracer

	created    metric.Int64Counter
	warnings   metric.Int64Counter
	moved      metric.Int64Counter
	violations metric.Int64Counter
	deleted    metric.Int64Counter
}

type ServiceOption func(*Service)

func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

func WithLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithTracer(t trace.Tracer) ServiceOption {
	return func(s *Service) { s.tracer = t }
}

func WithMeter(m metric.Meter) ServiceOption {
	return func(s *Service) { s.initInstruments(m) }
}

func NewService(store Store, opts ...ServiceOption) *Service {
	s := &Service{
		store:  store,
		now:    time.Now,
		logger: slog.Default(),
		tracer: otel.Tracer(instrumentationScope),
	}
	s.initInstruments(otel.Meter(instrumentationScope))
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) initInstruments(m metric.Meter) {
	// Creation only fails on malformed names.
	s.created, _ = m.Int64Counter("board.issues.created")
	s.warnings, _ = m.Int64Counter("board.issues.duplicate_warnings")
	s.moved, _ = m.Int64Counter("board.issues.transitions")
	s.violations, _ = m.Int64Counter("board.issues.workflow_violations")
	s.deleted, _ = m.Int64Counter("board.issues.deleted")
}

// CreateResult is either a created issue or the list of similar active
// issues that must be confirmed before anything is written.
type CreateResult struct {
	ID      string
	Issue   *Issue
	Similar []Issue
}

func (r *CreateResult) NeedsConfirmation() bool {
	return r != nil && r.ID == "" && len(r.Similar) > 0
}

func (s *Service) Create(ctx context.Context, in NewIssue, overrideDuplicateWarning bool) (res *CreateResult, err error) {
	ctx, span := s.tracer.Start(ctx, "issues.Create",
		trace.WithAttributes(attribute.Bool("board.override", overrideDuplicateWarning)))
	defer func() { endSpan(span, err) }()

	issue, err := s.prepare(in)
	if err != nil {
		return nil, err
	}

	current, err := s.store.List(ctx)
	if err != nil {
		return nil, storeErr("list", err)
	}
	similar := FindSimilar(in.Title, ActiveIssues(current.Issues))
	if len(similar) > 0 && !overrideDuplicateWarning {
		s.warnings.Add(ctx, 1)
		s.logger.Debug("duplicate warning", "title", issue.Title, "matches", len(similar))
		return &CreateResult{Similar: similar}, nil
	}

	id, err := s.store.Put(ctx, issue)
	if err != nil {
		return nil, storeErr("put", err)
	}
	issue.ID = id
	s.created.Add(ctx, 1)
	s.logger.Info("issue created", "id", id, "priority", string(issue.Priority), "assigned_to", issue.AssignedTo, "override", overrideDuplicateWarning && len(similar) > 0)
	return &CreateResult{ID: id, Issue: &issue}, nil
}

func (s *Service) prepare(in NewIssue) (Issue, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return Issue{}, fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	createdBy := strings.TrimSpace(in.CreatedBy)
	if createdBy == "" {
		return Issue{}, fmt.Errorf("%w: created-by identity is required", ErrInvalidInput)
	}
	priority := in.Priority
	if priority == "" {
		priority = PriorityMedium
	}
	if !IsValidPriority(priority) {
		return Issue{}, fmt.Errorf("%w: unknown priority %q", ErrInvalidInput, priority)
	}
	assignedTo := strings.TrimSpace(in.AssignedTo)
	if assignedTo == "" {
		assignedTo = createdBy
	}
	return Issue{
		Title:       title,
		Description: in.Description,
		Priority:    priority,
		Status:      StatusOpen,
		AssignedTo:  assignedTo,
		CreatedBy:   createdBy,
		CreatedAt:   s.now().UTC().Truncate(time.Millisecond),
	}, nil
}

func (s *Service) UpdateStatus(ctx context.Context, id string, to Status) (err error) {
	ctx, span := s.tracer.Start(ctx, "issues.UpdateStatus",
		trace.WithAttributes(attribute.String("board.issue_id", id), attribute.String("board.to", string(to))))
	defer func() { endSpan(span, err) }()

	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidInput)
	}
	if !IsValidStatus(to) {
		return fmt.Errorf("%w: unknown target status %q", ErrInvalidInput, to)
	}

	current, err := s.store.Get(ctx, id)
	if err != nil {
		return storeErr("get", err)
	}
	if current.Status == to {
		return nil
	}
	if err := TransitionError(current.Status, to); err != nil {
		s.violations.Add(ctx, 1)
		return err
	}

	if err := s.store.Patch(ctx, id, Patch{Status: &to}); err != nil {
		return storeErr("patch", err)
	}
	s.moved.Add(ctx, 1, metric.WithAttributes(
		attribute.String("from", string(current.Status)),
		attribute.String("to", string(to)),
	))
	s.logger.Info("issue moved", "id", id, "from", string(current.Status), "to", string(to))
	return nil
}

func (s *Service) Delete(ctx context.Context, id string) (err error) {
	ctx, span := s.tracer.Start(ctx, "issues.Delete", trace.WithAttributes(attribute.String("board.issue_id", id)))
	defer func() { endSpan(span, err) }()

	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidInput)
	}
	if err := s.store.Remove(ctx, id); err != nil {
		return storeErr("remove", err)
	}
	s.deleted.Add(ctx, 1)
	s.logger.Info("issue deleted", "id", id)
	return nil
}

func (s *Service) Get(ctx context.Context, id string) (*Issue, error) {
	is, err := s.store.Get(ctx, strings.TrimSpace(id))
	if err != nil {
		return nil, storeErr("get", err)
	}
	return is, nil
}

func (s *Service) List(ctx context.Context, f Filter) (Snapshot, error) {
	snap, err := s.store.List(ctx)
	if err != nil {
		return Snapshot{}, storeErr("list", err)
	}
	return snap.Filter(f), nil
}

func endSpan(span trace.Span, err error) {
	switch {
	case err == nil:
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrWorkflowViolation), errors.Is(err, ErrNotFound):
		span.SetAttributes(attribute.String("board.rejected", err.Error()))
	default:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
