package diff

import (
	"io"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/c360/flowdiff/catalog"
	"github.com/c360/flowdiff/flow"
	"github.com/c360/flowdiff/metric"
	"github.com/c360/flowdiff/validation"
)

// Rollback reasons
const (
	reasonOperation  = "operation"
	reasonValidation = "validation"
)

// Options control how a batch is applied
type Options struct {
	// ValidateAfter runs catalog validation on the result and rolls the
	// batch back when it reports errors.
	ValidateAfter bool `json:"validateAfter"`
	// ContinueOnError keeps applying after a failed operation. The result
	// is then unsuccessful and carries the partially updated document.
	ContinueOnError bool `json:"continueOnError"`
}

// DefaultOptions returns options with post-validation enabled
func DefaultOptions() Options {
	return Options{ValidateAfter: true}
}

// Engine applies operation batches to flow documents. It holds no per-flow
// state and is safe for concurrent use.
type Engine struct {
	logger    *slog.Logger
	registry  *metric.MetricsRegistry
	metrics   *engineMetrics
	validator *validation.Validator
	structs   *validator.Validate
}

// Option configures an Engine
type Option func(*Engine)

// WithLogger sets the engine logger
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithMetrics enables Prometheus metrics on registry
func WithMetrics(registry *metric.MetricsRegistry) Option {
	return func(e *Engine) {
		e.registry = registry
	}
}

// NewEngine creates an engine. It fails only when metrics cannot be registered.
func NewEngine(opts ...Option) (*Engine, error) {
	e := &Engine{
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		structs: newStructValidator(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.validator = validation.NewValidator(e.logger)

	if e.registry != nil {
		m, err := newEngineMetrics(e.registry)
		if err != nil {
			return nil, err
		}
		e.metrics = m
	}
	return e, nil
}

var defaultEngine, _ = NewEngine()

// Apply applies ops to doc with a default engine
func Apply(doc *flow.Document, ops []Operation, cat catalog.Catalog, opts Options) *Result {
	return defaultEngine.Apply(doc, ops, cat, opts)
}

// Apply runs ops against a copy of doc and never modifies doc. The batch
// passes through four phases: structural checks, expansion of bulk and
// simplified operations, pre-validation against a shadow of the document,
// and application. Each input operation applies atomically. Unless
// ContinueOnError is set, the first failure rolls the whole batch back and
// the result carries the unchanged input.
func (e *Engine) Apply(doc *flow.Document, ops []Operation, cat catalog.Catalog, opts Options) *Result {
	start := time.Now()
	result := &Result{
		Applied:  []int{},
		Failed:   []int{},
		Errors:   []Issue{},
		Warnings: []Issue{},
	}
	snapshot := doc.Clone()
	reason := ""
	defer func() {
		e.metrics.recordBatch(ops, result, reason, time.Since(start))
	}()

	reject := func() *Result {
		result.Flow = snapshot
		result.Skipped = indexes(0, len(ops))
		e.logger.Debug("Diff rejected", "operations", len(ops), "errors", len(result.Errors))
		return result
	}

	if doc == nil || doc.Nodes == nil {
		result.Errors = append(result.Errors, Issue{
			Index:   -1,
			Class:   ClassStructural,
			Code:    CodeMissingNodes,
			Message: "flow document has no nodes array",
		})
		return reject()
	}

	for i, op := range ops {
		if err := e.checkStructure(op); err != nil {
			result.Errors = append(result.Errors, err.issue(i, kindOf(op)))
		}
	}
	if len(result.Errors) > 0 {
		return reject()
	}

	steps, warnings := normalize(ops, cat)
	result.Warnings = append(result.Warnings, warnings...)

	sh := newShadow(doc, cat)
	for _, st := range steps {
		found, err := sh.check(st)
		result.Warnings = append(result.Warnings, found...)
		if err != nil {
			result.Errors = append(result.Errors, err.issue(st.index, st.kind))
		}
	}
	if len(result.Errors) > 0 {
		return reject()
	}

	working := doc.Clone()
	next := 0
	for i := range ops {
		candidate := working.Clone()
		var opWarnings []Issue
		var failure *opError
		for ; next < len(steps) && steps[next].index == i; next++ {
			found, err := applyStep(candidate, cat, steps[next])
			opWarnings = append(opWarnings, found...)
			if err != nil {
				failure = err
				for next < len(steps) && steps[next].index == i {
					next++
				}
				break
			}
		}

		if failure != nil {
			result.Errors = append(result.Errors, failure.issue(i, ops[i].Kind()))
			result.Failed = append(result.Failed, i)
			if opts.ContinueOnError {
				continue
			}
			reason = reasonOperation
			result.Flow = snapshot
			result.Applied = []int{}
			result.Skipped = indexes(i+1, len(ops))
			result.RolledBack = true
			e.logger.Debug("Diff rolled back", "index", i, "kind", ops[i].Kind(), "error", failure.msg)
			return result
		}

		working = candidate
		result.Applied = append(result.Applied, i)
		result.Warnings = append(result.Warnings, opWarnings...)
	}
	result.OperationsApplied = len(result.Applied)

	if len(result.Failed) > 0 {
		result.Flow = working
		return result
	}

	if opts.ValidateAfter {
		vr := e.validator.Validate(working, cat)
		result.Validation = vr
		errs, found := fromValidation(vr.Issues)
		result.Warnings = mergeWarnings(result.Warnings, found)
		if len(errs) > 0 {
			reason = reasonValidation
			result.Errors = append(result.Errors, errs...)
			result.Flow = snapshot
			result.Applied = []int{}
			result.OperationsApplied = 0
			result.RolledBack = true
			e.logger.Debug("Diff failed post-validation", "errors", len(errs))
			return result
		}
	}

	result.Success = true
	result.Flow = working
	e.logger.Debug("Diff applied", "operations", len(ops), "warnings", len(result.Warnings))
	return result
}

func indexes(from, to int) []int {
	if from >= to {
		return nil
	}
	out := make([]int, 0, to-from)
	for i := from; i < to; i++ {
		out = append(out, i)
	}
	return out
}
