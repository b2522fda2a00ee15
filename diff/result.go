package diff

import (
	"fmt"

	"github.com/c360/flowdiff/errors"
	"github.com/c360/flowdiff/flow"
	"github.com/c360/flowdiff/validation"
)

// Class is the error taxonomy of diff issues
type Class string

// Issue classes. Structural issues abort before anything runs, reference
// issues fail the operation, semantic issues fail post-validation, and
// advisory issues never block.
const (
	ClassStructural Class = "structural"
	ClassReference  Class = "reference"
	ClassSemantic   Class = "semantic"
	ClassAdvisory   Class = "advisory"
)

// Issue codes raised by the engine. Post-validation issues keep the
// validation package codes.
const (
	CodeInvalidOperation = "invalid_operation"
	CodeMissingNodes     = "missing_nodes"
	CodeNodeExists       = "node_exists"
	CodeNodeNotFound     = "node_not_found"
	CodeUnknownComponent = "unknown_component"
	CodeHasConnections   = "has_connections"
	CodeInvalidUpdate    = "invalid_update"
	CodeEdgeExists       = "edge_exists"
	CodeEdgeNotFound     = "edge_not_found"
	CodeSelfLoop         = "self_loop"
	CodeNoteExists       = "note_exists"
	CodeUnknownParameter = "unknown_parameter"
	CodeMergeAnomaly     = "merge_anomaly"
)

// Issue is one error or warning produced while applying a batch. Index is
// the position of the offending operation in the input, or -1 for issues
// about the resulting document.
type Issue struct {
	Index        int    `json:"index"`
	Kind         Kind   `json:"kind,omitempty"`
	Class        Class  `json:"class"`
	Code         string `json:"code"`
	NodeID       string `json:"nodeId,omitempty"`
	EdgeID       string `json:"edgeId,omitempty"`
	Field        string `json:"field,omitempty"`
	Message      string `json:"message"`
	SuggestedFix string `json:"suggestedFix,omitempty"`
}

// Result of applying a batch. Flow is the new document on success and the
// untouched input on rollback. Applied and Failed hold input positions;
// Skipped holds operations never attempted because the batch stopped.
type Result struct {
	Success           bool               `json:"success"`
	Flow              *flow.Document     `json:"flow"`
	OperationsApplied int                `json:"operationsApplied"`
	Applied           []int              `json:"applied"`
	Failed            []int              `json:"failed"`
	Skipped           []int              `json:"skipped,omitempty"`
	Errors            []Issue            `json:"errors"`
	Warnings          []Issue            `json:"warnings"`
	Validation        *validation.Result `json:"validation,omitempty"`
	RolledBack        bool               `json:"rolledBack"`
}

// Err returns nil for a successful result and otherwise an invalid-class
// error wrapping ErrDiffRejected that summarizes the first error.
func (r *Result) Err() error {
	if r.Success {
		return nil
	}
	msg := "diff was not applied"
	if len(r.Errors) > 0 {
		msg = r.Errors[0].Message
		if len(r.Errors) > 1 {
			msg = fmt.Sprintf("%s (and %d more)", msg, len(r.Errors)-1)
		}
	}
	return errors.WrapInvalid(fmt.Errorf("%w: %s", errors.ErrDiffRejected, msg),
		"diff", "Apply", "apply operations")
}

// opError is returned by pre-validation and operation handlers
type opError struct {
	class  Class
	code   string
	nodeID string
	edgeID string
	field  string
	msg    string
	fix    string
}

func (e *opError) Error() string {
	return e.msg
}

func (e *opError) withFix(format string, args ...any) *opError {
	e.fix = fmt.Sprintf(format, args...)
	return e
}

func (e *opError) issue(index int, kind Kind) Issue {
	return Issue{
		Index:        index,
		Kind:         kind,
		Class:        e.class,
		Code:         e.code,
		NodeID:       e.nodeID,
		EdgeID:       e.edgeID,
		Field:        e.field,
		Message:      e.msg,
		SuggestedFix: e.fix,
	}
}

func referenceError(code, nodeID, format string, args ...any) *opError {
	return &opError{class: ClassReference, code: code, nodeID: nodeID, msg: fmt.Sprintf(format, args...)}
}

func structuralError(format string, args ...any) *opError {
	return &opError{class: ClassStructural, code: CodeInvalidOperation, msg: fmt.Sprintf(format, args...)}
}

func advisory(index int, kind Kind, code, nodeID, field, format string, args ...any) Issue {
	return Issue{
		Index:   index,
		Kind:    kind,
		Class:   ClassAdvisory,
		Code:    code,
		NodeID:  nodeID,
		Field:   field,
		Message: fmt.Sprintf(format, args...),
	}
}

// fromValidation converts post-validation issues
func fromValidation(issues []validation.Issue) (errs, warnings []Issue) {
	for _, vi := range issues {
		issue := Issue{
			Index:        -1,
			Code:         vi.Code,
			NodeID:       vi.NodeID,
			EdgeID:       vi.EdgeID,
			Field:        vi.Field,
			Message:      vi.Message,
			SuggestedFix: vi.SuggestedFix,
		}
		if vi.Severity == validation.SeverityError {
			issue.Class = ClassSemantic
			errs = append(errs, issue)
		} else {
			issue.Class = ClassAdvisory
			warnings = append(warnings, issue)
		}
	}
	return errs, warnings
}

// mergeWarnings appends found to existing, dropping any issue whose node,
// field and code an operation-level warning already reported.
func mergeWarnings(existing, found []Issue) []Issue {
	type key struct{ node, field, code string }
	seen := make(map[key]bool, len(existing))
	for _, w := range existing {
		seen[key{w.NodeID, w.Field, w.Code}] = true
	}
	for _, w := range found {
		k := key{w.NodeID, w.Field, w.Code}
		if seen[k] {
			continue
		}
		seen[k] = true
		existing = append(existing, w)
	}
	return existing
}
