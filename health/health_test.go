package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAggregate(t *testing.T) {
	tests := []struct {
		name string
		subs []Status
		want string
	}{
		{"empty", nil, StateHealthy},
		{"all healthy", []Status{NewHealthy("a", ""), NewHealthy("b", "")}, StateHealthy},
		{"degraded", []Status{NewHealthy("a", ""), NewDegraded("b", "")}, StateDegraded},
		{"unhealthy wins", []Status{NewDegraded("a", ""), NewUnhealthy("b", "")}, StateUnhealthy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Aggregate("flowdiffd", tt.subs)
			assert.Equal(t, tt.want, got.Status)
			assert.Equal(t, tt.want == StateHealthy, got.Healthy)
			assert.Len(t, got.SubStatuses, len(tt.subs))
		})
	}
}

func TestWithSubStatus_DoesNotShare(t *testing.T) {
	base := NewHealthy("root", "").WithSubStatus(NewHealthy("a", ""))
	x := base.WithSubStatus(NewHealthy("x", ""))
	y := base.WithSubStatus(NewHealthy("y", ""))
	assert.Equal(t, "x", x.SubStatuses[1].Component)
	assert.Equal(t, "y", y.SubStatuses[1].Component)
	assert.Len(t, base.SubStatuses, 1)
}

func TestFromError(t *testing.T) {
	assert.True(t, FromError("store", nil, false).IsHealthy())
	assert.True(t, FromError("nats", errors.New("down"), true).IsDegraded())

	st := FromError("store", errors.New("dial tcp 10.0.0.5:6379: connection refused"), false)
	assert.True(t, st.IsUnhealthy())
	assert.NotContains(t, st.Message, "10.0.0.5")
	assert.NotContains(t, st.Message, "6379")
}

func TestSanitizeErrorMessage(t *testing.T) {
	tests := []struct {
		in      string
		hidden  string
		contain string
	}{
		{"connect nats://user:pw@host:4222 failed", "nats://", "[URL]"},
		{"open /etc/flowdiff/catalog.yaml: no such file", "/etc/flowdiff", "[PATH]"},
		{"auth failed password=hunter2", "hunter2", "[REDACTED]"},
		{"redis://cache:6379 timeout", "redis://", "[URL]"},
	}
	for _, tt := range tests {
		got := sanitizeErrorMessage(tt.in)
		assert.NotContains(t, got, tt.hidden)
		assert.Contains(t, got, tt.contain)
	}
	assert.Empty(t, sanitizeErrorMessage(""))
}

func TestChecker_Run(t *testing.T) {
	c := NewChecker("flowdiffd", time.Second)
	c.Add("store", func(context.Context) error { return nil })
	c.AddOptional("nats", func(context.Context) error { return errors.New("reconnecting") })

	st := c.Run(context.Background())
	assert.True(t, st.IsDegraded())
	require.Len(t, st.SubStatuses, 2)
	assert.Equal(t, "store", st.SubStatuses[0].Component)
	assert.Equal(t, "nats", st.SubStatuses[1].Component)

	c.Add("catalog", func(context.Context) error { return errors.New("missing") })
	assert.True(t, c.Run(context.Background()).IsUnhealthy())
}

func TestChecker_Timeout(t *testing.T) {
	c := NewChecker("flowdiffd", 20*time.Millisecond)
	c.Add("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	st := c.Run(context.Background())
	assert.True(t, st.IsUnhealthy())
	assert.Contains(t, st.SubStatuses[0].Message, "deadline")
}

func TestChecker_Empty(t *testing.T) {
	st := NewChecker("flowdiffd", 0).Run(context.Background())
	assert.True(t, st.IsHealthy())
	assert.Empty(t, st.SubStatuses)
}
