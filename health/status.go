package health

import (
	"regexp"
	"strings"
	"time"
)

// Health states reported in Status.Status.
const (
	StateHealthy   = "healthy"
	StateDegraded  = "degraded"
	StateUnhealthy = "unhealthy"
)

var (
	urlRegex        = regexp.MustCompile(`(?:https?|nats|redis|wss?)://[^\s]+`)
	unixPathRegex   = regexp.MustCompile(`/[a-zA-Z0-9/_.-]+`)
	ipAddrRegex     = regexp.MustCompile(`\b\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}\b`)
	portRegex       = regexp.MustCompile(`:\d{2,5}\b`)
	credentialRegex = regexp.MustCompile(`(?i)(password|token|secret|credential)[^a-zA-Z]*[:=][^,\s}]+`)
)

// Status is the health of one dependency or of the whole process
type Status struct {
	Component   string        `json:"component"`
	Healthy     bool          `json:"healthy"`
	Status      string        `json:"status"`
	Message     string        `json:"message"`
	Timestamp   time.Time     `json:"timestamp"`
	Latency     time.Duration `json:"latency_ns,omitempty"`
	SubStatuses []Status      `json:"sub_statuses,omitempty"`
}

// IsHealthy returns true if the status is healthy
func (s Status) IsHealthy() bool { return s.Status == StateHealthy }

// IsDegraded returns true if the status is degraded
func (s Status) IsDegraded() bool { return s.Status == StateDegraded }

// IsUnhealthy returns true if the status is unhealthy
func (s Status) IsUnhealthy() bool { return s.Status == StateUnhealthy }

// WithSubStatus returns a copy with sub appended.
func (s Status) WithSubStatus(sub Status) Status {
	subs := make([]Status, len(s.SubStatuses), len(s.SubStatuses)+1)
	copy(subs, s.SubStatuses)
	s.SubStatuses = append(subs, sub)
	return s
}

// FromError builds the status of a single probe. A nil err is healthy; a
// non-nil err is unhealthy, or degraded when optional is set.
func FromError(component string, err error, optional bool) Status {
	switch {
	case err == nil:
		return NewHealthy(component, "ok")
	case optional:
		return NewDegraded(component, sanitizeErrorMessage(err.Error()))
	default:
		return NewUnhealthy(component, sanitizeErrorMessage(err.Error()))
	}
}

// sanitizeErrorMessage strips URLs, file paths, IP addresses, ports and
// credential assignments from a probe error.
func sanitizeErrorMessage(msg string) string {
	if msg == "" {
		return ""
	}
	out := urlRegex.ReplaceAllString(msg, "[URL]")
	out = unixPathRegex.ReplaceAllString(out, "[PATH]")
	out = ipAddrRegex.ReplaceAllString(out, "[IP]")
	out = portRegex.ReplaceAllString(out, "[PORT]")

	lower := strings.ToLower(out)
	if strings.Contains(lower, "password") || strings.Contains(lower, "token") ||
		strings.Contains(lower, "secret") || strings.Contains(lower, "credential") {
		out = credentialRegex.ReplaceAllString(out, "[REDACTED]")
	}
	return out
}
