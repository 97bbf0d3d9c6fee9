package ratelimit

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdmit_BurstThenReject(t *testing.T) {
	// Given a client with a capacity-3 bucket and a slow refill
	l := New(Config{PerMinute: 1, Burst: 3})

	// When it issues 5 requests back to back
	admitted := 0
	for i := 0; i < 5; i++ {
		if l.Admit("client-a") {
			admitted++
		}
	}

	// Then exactly the burst capacity is admitted
	assert.Equal(t, 3, admitted)
	assert.Equal(t, uint64(2), l.Rejected())
}

func TestAdmit_RefillEventuallyAdmitsAgain(t *testing.T) {
	// 6000/minute = 100 tokens per second.
	l := New(Config{PerMinute: 6000, Burst: 1})

	require.True(t, l.Admit("client-a"))
	assert.False(t, l.Admit("client-a"))

	// One token refills within ~10ms at this rate.
	assert.Eventually(t, func() bool {
		return l.Admit("client-a")
	}, time.Second, 5*time.Millisecond)
}

func TestAdmit_DistinctClientsHaveIndependentBudgets(t *testing.T) {
	l := New(Config{PerMinute: 1, Burst: 1})

	require.True(t, l.Admit("client-a"))
	assert.False(t, l.Admit("client-a"))

	// A different identity still has a full bucket.
	assert.True(t, l.Admit("client-b"))
	assert.Equal(t, 2, l.ClientCount())
}

func TestAdmit_ConcurrentCallersSameIdentity(t *testing.T) {
	const burst = 10
	const callers = 50

	l := New(Config{PerMinute: 1, Burst: burst})

	var admitted atomic.Int64
	var wg sync.WaitGroup
	wg.Add(callers)
	for i := 0; i < callers; i++ {
		go func() {
			defer wg.Done()
			if l.Admit("shared") {
				admitted.Add(1)
			}
		}()
	}
	wg.Wait()

	// Token accounting must hold exactly under concurrency.
	assert.Equal(t, int64(burst), admitted.Load())
}

func TestAdmit_ConcurrentDistinctIdentities(t *testing.T) {
	l := New(Config{PerMinute: 60, Burst: 60})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				l.Admit(fmt.Sprintf("client-%d", i))
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 20, l.ClientCount())
}

func TestReap_RemovesIdleBudgetsOnly(t *testing.T) {
	l := New(Config{PerMinute: 60, Burst: 60, IdleAfter: 10 * time.Minute})

	now := time.Now()
	l.now = func() time.Time { return now }

	l.Admit("idle-client")

	// Time passes; one client comes back.
	now = now.Add(11 * time.Minute)
	l.Admit("active-client")

	reaped := l.Reap()
	assert.Equal(t, 1, reaped)
	assert.Equal(t, 1, l.ClientCount())

	// The reaped client gets a fresh full bucket on return.
	assert.True(t, l.Admit("idle-client"))
}

func TestReap_NothingToReap(t *testing.T) {
	l := New(Config{})
	l.Admit("client-a")
	assert.Zero(t, l.Reap())
	assert.Equal(t, 1, l.ClientCount())
}

func TestConfig_Defaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	assert.Equal(t, DefaultPerMinute, cfg.PerMinute)
	assert.Equal(t, DefaultBurst, cfg.Burst)
	assert.Equal(t, DefaultIdleAfter, cfg.IdleAfter)
	assert.Equal(t, DefaultIdleAfter/2, cfg.ReapInterval)
}
