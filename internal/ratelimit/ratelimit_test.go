package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDisabledAllowsEverything(t *testing.T) {
	l := New(nil)
	for i := 0; i < 100; i++ {
		assert.True(t, l.Allow("client"))
	}
	assert.Equal(t, 0, l.Clients())
}

func TestBurstThenReject(t *testing.T) {
	l := New(&Config{Enabled: true, RequestsPerMinute: 1, Burst: 3})
	defer l.Stop()

	for i := 0; i < 3; i++ {
		assert.True(t, l.Allow("10.0.0.1"), "request %d", i)
	}
	assert.False(t, l.Allow("10.0.0.1"))

	// Other clients have their own bucket
	assert.True(t, l.Allow("10.0.0.2"))
}

func TestBurstDefaultsToRate(t *testing.T) {
	l := New(&Config{Enabled: true, RequestsPerMinute: 2})
	defer l.Stop()

	assert.True(t, l.Allow("c"))
	assert.True(t, l.Allow("c"))
	assert.False(t, l.Allow("c"))
}

func TestCleanupDropsIdleClients(t *testing.T) {
	l := New(&Config{Enabled: true, RequestsPerMinute: 60, MaxIdle: time.Minute})
	defer l.Stop()

	l.Allow("a")
	l.Allow("b")
	assert.Equal(t, 2, l.Clients())

	l.cleanup(time.Now().Add(2 * time.Minute))
	assert.Equal(t, 0, l.Clients())
}

func TestStopIsIdempotent(t *testing.T) {
	l := New(&Config{Enabled: true, RequestsPerMinute: 60})
	l.Stop()
	l.Stop()
}
