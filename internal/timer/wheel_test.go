package timer_test

import (
	"testing"
	"time"

	"github.com/AdguardTeam/dhclient-go/internal/timer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWheel_scheduleFire(t *testing.T) {
	w := timer.New()

	base := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)

	var fired []string
	w.Schedule(base.Add(2*time.Second), nil, func(time.Time) { fired = append(fired, "b") })
	w.Schedule(base.Add(1*time.Second), nil, func(time.Time) { fired = append(fired, "a") })
	w.Schedule(base.Add(3*time.Second), nil, func(time.Time) { fired = append(fired, "c") })

	next, ok := w.Next()
	require.True(t, ok)
	assert.Equal(t, base.Add(1*time.Second), next)

	w.Fire(base.Add(2500 * time.Millisecond))
	assert.Equal(t, []string{"a", "b"}, fired)
	assert.Equal(t, 1, w.Len())

	w.Fire(base.Add(10 * time.Second))
	assert.Equal(t, []string{"a", "b", "c"}, fired)
	assert.Equal(t, 0, w.Len())
}

func TestWheel_rescheduleSameKeyReplaces(t *testing.T) {
	w := timer.New()
	base := time.Now()

	var fired int
	key := "client1/send_request"

	w.Schedule(base.Add(time.Second), key, func(time.Time) { fired++ })
	w.Schedule(base.Add(2*time.Second), key, func(time.Time) { fired++ })

	assert.Equal(t, 1, w.Len())

	w.Fire(base.Add(10 * time.Second))
	assert.Equal(t, 1, fired)
}

func TestWheel_cancelKey(t *testing.T) {
	w := timer.New()
	base := time.Now()

	key := "client1/state_bound"
	called := false
	w.Schedule(base.Add(time.Second), key, func(time.Time) { called = true })
	w.CancelKey(key)

	w.Fire(base.Add(10 * time.Second))
	assert.False(t, called)
	assert.Equal(t, 0, w.Len())
}

func TestWheel_cancelHandle(t *testing.T) {
	w := timer.New()
	base := time.Now()

	called := false
	h := w.Schedule(base.Add(time.Second), nil, func(time.Time) { called = true })
	w.Cancel(h)

	w.Fire(base.Add(10 * time.Second))
	assert.False(t, called)
}
