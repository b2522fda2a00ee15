package validation

// Severity of a validation issue
type Severity string

// Severities
const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue codes
const (
	CodeMissingNodes      = "missing_nodes"
	CodeEmptyName         = "empty_name"
	CodeMissingNodeID     = "missing_node_id"
	CodeDuplicateNodeID   = "duplicate_node_id"
	CodeUnknownComponent  = "unknown_component"
	CodeMissingParameters = "missing_parameters"
	CodeMissingRequired   = "missing_required_parameter"
	CodeUnsetCredential   = "unset_credential"
	CodeUnknownParameter  = "unknown_parameter"
	CodeTypeMismatch      = "type_mismatch"
	CodeInvalidPosition   = "invalid_position"
	CodeMissingSource     = "missing_source"
	CodeMissingTarget     = "missing_target"
	CodeSelfLoop          = "self_loop"
	CodeDuplicateEdge     = "duplicate_edge"
	CodeHandleMismatch    = "handle_mismatch"
	CodeOrphanedNode      = "orphaned_node"
	CodeMissingNoteID     = "missing_note_id"
)

// Issue is one problem found in a flow document. Issues are derived fresh from
// a document and catalog and never persisted.
type Issue struct {
	Severity     Severity `json:"severity"`
	Code         string   `json:"code"`
	NodeID       string   `json:"nodeId,omitempty"`
	EdgeID       string   `json:"edgeId,omitempty"`
	Field        string   `json:"field,omitempty"`
	Message      string   `json:"message"`
	SuggestedFix string   `json:"suggestedFix,omitempty"`
}

// Summary counts what was validated and what was found
type Summary struct {
	Nodes           int `json:"nodes"`
	Edges           int `json:"edges"`
	Notes           int `json:"notes"`
	Errors          int `json:"errors"`
	Warnings        int `json:"warnings"`
	ConnectedGroups int `json:"connectedGroups"`
}

// Result of validating a flow document. Valid is true when no issue has error severity.
type Result struct {
	Valid   bool    `json:"valid"`
	Issues  []Issue `json:"issues"`
	Summary Summary `json:"summary"`
}

// Errors returns the error-severity issues in order
func (r *Result) Errors() []Issue {
	return r.filter(SeverityError)
}

// Warnings returns the warning-severity issues in order
func (r *Result) Warnings() []Issue {
	return r.filter(SeverityWarning)
}

func (r *Result) filter(sev Severity) []Issue {
	var out []Issue
	for _, issue := range r.Issues {
		if issue.Severity == sev {
			out = append(out, issue)
		}
	}
	return out
}

func (r *Result) add(issue Issue) {
	r.Issues = append(r.Issues, issue)
	if issue.Severity == SeverityError {
		r.Summary.Errors++
	} else {
		r.Summary.Warnings++
	}
}

func (r *Result) addError(code string, issue Issue) {
	issue.Severity = SeverityError
	issue.Code = code
	r.add(issue)
}

func (r *Result) addWarning(code string, issue Issue) {
	issue.Severity = SeverityWarning
	issue.Code = code
	r.add(issue)
}
