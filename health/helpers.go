package health

import "time"

// NewHealthy creates a healthy status
func NewHealthy(component, message string) Status {
	return newStatus(component, StateHealthy, message)
}

// NewUnhealthy creates an unhealthy status
func NewUnhealthy(component, message string) Status {
	return newStatus(component, StateUnhealthy, message)
}

// NewDegraded creates a degraded status
func NewDegraded(component, message string) Status {
	return newStatus(component, StateDegraded, message)
}

func newStatus(component, state, message string) Status {
	return Status{
		Component: component,
		Healthy:   state == StateHealthy,
		Status:    state,
		Message:   message,
		Timestamp: time.Now().UTC(),
	}
}

// Aggregate folds sub-statuses into one. Any unhealthy sub-status makes the
// aggregate unhealthy; otherwise any degraded one makes it degraded.
func Aggregate(component string, subs []Status) Status {
	if len(subs) == 0 {
		return NewHealthy(component, "no dependencies to check")
	}

	var unhealthy, degraded bool
	for _, sub := range subs {
		switch {
		case sub.IsUnhealthy():
			unhealthy = true
		case sub.IsDegraded():
			degraded = true
		}
	}

	var status Status
	switch {
	case unhealthy:
		status = NewUnhealthy(component, "one or more dependencies are unhealthy")
	case degraded:
		status = NewDegraded(component, "one or more dependencies are degraded")
	default:
		status = NewHealthy(component, "all dependencies are healthy")
	}
	status.SubStatuses = make([]Status, len(subs))
	copy(status.SubStatuses, subs)
	return status
}
