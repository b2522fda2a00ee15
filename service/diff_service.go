package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/c360/flowdiff/catalog"
	"github.com/c360/flowdiff/diff"
	"github.com/c360/flowdiff/errors"
	"github.com/c360/flowdiff/flow"
	"github.com/c360/flowdiff/flowstore"
	"github.com/c360/flowdiff/pkg/retry"
	"github.com/c360/flowdiff/validation"
)

// CatalogSource supplies the current component catalog. *catalog.Provider
// implements it.
type CatalogSource interface {
	Catalog(ctx context.Context) (catalog.Map, error)
}

// DiffService runs fetch, apply and write-back for flows in a store. Calls
// for the same flow id are serialized in-process; writers in other
// processes are detected by the store's version check and retried.
type DiffService struct {
	store     flowstore.Store
	catalogs  CatalogSource
	engine    *diff.Engine
	validator *validation.Validator
	defaults  diff.Options
	attempts  int
	locks     *flowLocks
	tracer    trace.Tracer
	logger    *slog.Logger
	newID     func() string
}

// Option configures a DiffService
type Option func(*DiffService)

// WithLogger sets the service logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *DiffService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithEngine replaces the default diff engine
func WithEngine(engine *diff.Engine) Option {
	return func(s *DiffService) {
		if engine != nil {
			s.engine = engine
		}
	}
}

// WithDefaults sets the options used when a request does not override them
func WithDefaults(opts diff.Options) Option {
	return func(s *DiffService) { s.defaults = opts }
}

// WithRetryAttempts bounds how often a diff is re-run after a version conflict
func WithRetryAttempts(n int) Option {
	return func(s *DiffService) {
		if n > 0 {
			s.attempts = n
		}
	}
}

// WithTracer sets the tracer; the global provider is used otherwise
func WithTracer(tracer trace.Tracer) Option {
	return func(s *DiffService) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

// NewDiffService creates a service over store and catalogs
func NewDiffService(store flowstore.Store, catalogs CatalogSource, opts ...Option) (*DiffService, error) {
	if store == nil {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: store is required", errors.ErrMissingConfig),
			"DiffService", "NewDiffService", "check dependencies")
	}
	if catalogs == nil {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: catalog source is required", errors.ErrMissingConfig),
			"DiffService", "NewDiffService", "check dependencies")
	}

	s := &DiffService{
		store:    store,
		catalogs: catalogs,
		defaults: diff.DefaultOptions(),
		attempts: 3,
		locks:    newFlowLocks(),
		tracer:   otel.Tracer("github.com/c360/flowdiff/service"),
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		newID:    func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.engine == nil {
		engine, err := diff.NewEngine(diff.WithLogger(s.logger))
		if err != nil {
			return nil, err
		}
		s.engine = engine
	}
	if s.validator == nil {
		s.validator = validation.NewValidator(s.logger)
	}
	return s, nil
}

// Defaults returns the diff options applied when a request sets none
func (s *DiffService) Defaults() diff.Options {
	return s.defaults
}

func (s *DiffService) start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "DiffService."+name, trace.WithAttributes(attrs...))
}

func fail(span trace.Span, err error) error {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

// Catalog returns the current component catalog
func (s *DiffService) Catalog(ctx context.Context) (catalog.Map, error) {
	ctx, span := s.start(ctx, "Catalog")
	defer span.End()

	cat, err := s.catalogs.Catalog(ctx)
	if err != nil {
		return nil, fail(span, err)
	}
	span.SetAttributes(attribute.Int("catalog.components", len(cat)))
	return cat, nil
}

// Create stores a new flow, generating an id when doc has none
func (s *DiffService) Create(ctx context.Context, doc *flow.Document) (*flow.Document, error) {
	if doc == nil {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: flow cannot be nil", errors.ErrMalformedFlow),
			"DiffService", "Create", "check flow")
	}
	doc = doc.Clone()
	if doc.ID == "" {
		doc.ID = s.newID()
	}
	if doc.Nodes == nil {
		doc.Nodes = []flow.Node{}
	}
	if doc.Edges == nil {
		doc.Edges = []flow.Edge{}
	}

	ctx, span := s.start(ctx, "Create", attribute.String("flow.id", doc.ID))
	defer span.End()

	if err := s.store.Create(ctx, doc); err != nil {
		return nil, fail(span, err)
	}
	s.logger.Info("Flow created", "flow_id", doc.ID, "nodes", len(doc.Nodes), "edges", len(doc.Edges))
	return doc, nil
}

// Get returns a stored flow
func (s *DiffService) Get(ctx context.Context, id string) (*flow.Document, error) {
	ctx, span := s.start(ctx, "Get", attribute.String("flow.id", id))
	defer span.End()

	doc, err := s.store.Get(ctx, id)
	return doc, fail(span, err)
}

// List returns every stored flow
func (s *DiffService) List(ctx context.Context) ([]*flow.Document, error) {
	ctx, span := s.start(ctx, "List")
	defer span.End()

	docs, err := s.store.List(ctx)
	if err != nil {
		return nil, fail(span, err)
	}
	span.SetAttributes(attribute.Int("flow.count", len(docs)))
	return docs, nil
}

// Replace overwrites a stored flow. doc.Version must be the stored version.
func (s *DiffService) Replace(ctx context.Context, id string, doc *flow.Document) (*flow.Document, error) {
	if doc == nil {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: flow cannot be nil", errors.ErrMalformedFlow),
			"DiffService", "Replace", "check flow")
	}
	if doc.ID != "" && doc.ID != id {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: flow id mismatch: %q vs %q", errors.ErrMalformedFlow, id, doc.ID),
			"DiffService", "Replace", "check flow")
	}

	ctx, span := s.start(ctx, "Replace", attribute.String("flow.id", id), attribute.Int64("flow.version", doc.Version))
	defer span.End()

	unlock := s.locks.lock(id)
	defer unlock()

	doc = doc.Clone()
	doc.ID = id
	if err := s.store.Update(ctx, doc); err != nil {
		return nil, fail(span, err)
	}
	s.logger.Info("Flow replaced", "flow_id", id, "version", doc.Version)
	return doc, nil
}

// Delete removes a stored flow
func (s *DiffService) Delete(ctx context.Context, id string) error {
	ctx, span := s.start(ctx, "Delete", attribute.String("flow.id", id))
	defer span.End()

	unlock := s.locks.lock(id)
	defer unlock()

	if err := s.store.Delete(ctx, id); err != nil {
		return fail(span, err)
	}
	s.logger.Info("Flow deleted", "flow_id", id)
	return nil
}

// ApplyDiff fetches flow id, applies ops and writes the result back when the
// batch succeeds. A rejected batch is returned as an unsuccessful Result
// with a nil error; errors are reserved for store and catalog failures. With
// dryRun the result is computed but never written.
func (s *DiffService) ApplyDiff(ctx context.Context, id string, ops []diff.Operation, opts diff.Options, dryRun bool) (*diff.Result, error) {
	ctx, span := s.start(ctx, "ApplyDiff",
		attribute.String("flow.id", id),
		attribute.Int("diff.operations", len(ops)),
		attribute.Bool("diff.dry_run", dryRun),
	)
	defer span.End()

	unlock := s.locks.lock(id)
	defer unlock()

	cfg := retry.Conflict(s.attempts)
	cfg.Retryable = errors.IsConflict
	cfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		s.logger.Warn("Flow changed during diff, retrying",
			"flow_id", id, "attempt", attempt, "delay", delay, "error", err)
		span.AddEvent("retry", trace.WithAttributes(attribute.Int("attempt", attempt)))
	}

	result, err := retry.DoWithResult(ctx, cfg, func() (*diff.Result, error) {
		return s.applyOnce(ctx, id, ops, opts, dryRun)
	})
	if err != nil {
		return nil, fail(span, err)
	}

	span.SetAttributes(
		attribute.Bool("diff.success", result.Success),
		attribute.Bool("diff.rolled_back", result.RolledBack),
		attribute.Int("diff.applied", result.OperationsApplied),
	)
	if !result.Success {
		span.SetStatus(codes.Error, "diff rejected")
	}
	return result, nil
}

func (s *DiffService) applyOnce(ctx context.Context, id string, ops []diff.Operation, opts diff.Options, dryRun bool) (*diff.Result, error) {
	doc, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	cat, err := s.catalogs.Catalog(ctx)
	if err != nil {
		return nil, err
	}

	result := s.engine.Apply(doc, ops, cat, opts)
	if !result.Success {
		s.logger.Info("Diff not applied",
			"flow_id", id, "errors", len(result.Errors), "rolled_back", result.RolledBack)
		return result, nil
	}
	if dryRun {
		return result, nil
	}

	next := result.Flow
	next.ID, next.Version = doc.ID, doc.Version
	if err := s.store.Update(ctx, next); err != nil {
		return nil, err
	}
	s.logger.Info("Diff applied",
		"flow_id", id, "operations", result.OperationsApplied, "version", next.Version)
	return result, nil
}

// Validate checks a stored flow against the current catalog
func (s *DiffService) Validate(ctx context.Context, id string) (*validation.Result, error) {
	ctx, span := s.start(ctx, "Validate", attribute.String("flow.id", id))
	defer span.End()

	doc, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, fail(span, err)
	}
	return s.validate(ctx, span, doc)
}

// ValidateDocument checks an unsaved flow against the current catalog
func (s *DiffService) ValidateDocument(ctx context.Context, doc *flow.Document) (*validation.Result, error) {
	ctx, span := s.start(ctx, "ValidateDocument")
	defer span.End()

	if doc == nil {
		return nil, fail(span, errors.WrapInvalid(fmt.Errorf("%w: flow cannot be nil", errors.ErrMalformedFlow),
			"DiffService", "ValidateDocument", "check flow"))
	}
	return s.validate(ctx, span, doc)
}

func (s *DiffService) validate(ctx context.Context, span trace.Span, doc *flow.Document) (*validation.Result, error) {
	cat, err := s.catalogs.Catalog(ctx)
	if err != nil {
		return nil, fail(span, err)
	}
	result := s.validator.Validate(doc, cat)
	span.SetAttributes(
		attribute.Bool("validation.valid", result.Valid),
		attribute.Int("validation.issues", len(result.Issues)),
	)
	return result, nil
}
