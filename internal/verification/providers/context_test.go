package providers

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"stampgate/pkg/testutil"
)

type countingObserver struct {
	mu     sync.Mutex
	hits   map[string]int
	misses map[string]int
}

func newCountingObserver() *countingObserver {
	return &countingObserver{hits: map[string]int{}, misses: map[string]int{}}
}

func (o *countingObserver) CacheHit(system string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.hits[system]++
}

func (o *countingObserver) CacheMiss(system string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.misses[system]++
}

type ContextSuite struct {
	suite.Suite
	pc       *Context
	observer *countingObserver
}

func TestContextSuite(t *testing.T) {
	suite.Run(t, new(ContextSuite))
}

func (s *ContextSuite) SetupTest() {
	s.observer = newCountingObserver()
	s.pc = NewContext(WithCacheObserver(s.observer))
}

func (s *ContextSuite) TestConcurrentCallersShareOneExchange() {
	const callers = 32
	var calls atomic.Int32
	release := make(chan struct{})

	fetch := func(context.Context) (string, error) {
		calls.Add(1)
		<-release
		return "token-abc", nil
	}

	go func() {
		// Give every caller time to park on the in-flight entry.
		time.Sleep(20 * time.Millisecond)
		close(release)
	}()

	values, errs := testutil.CollectConcurrent(callers, func(int) (string, error) {
		return ExchangeOrFetch(context.Background(), s.pc, "github", "code-1", fetch)
	})

	s.Equal(int32(1), calls.Load())
	for i := range values {
		s.NoError(errs[i])
		s.Equal("token-abc", values[i])
	}
	s.Equal(1, s.observer.misses["github"])
	s.Equal(callers-1, s.observer.hits["github"])
}

func (s *ContextSuite) TestFailureIsCachedForContextLifetime() {
	var calls atomic.Int32
	boom := NewProviderError(ErrorUnauthorized, "github", "bad verification code", nil)

	fetch := func(context.Context) (string, error) {
		calls.Add(1)
		return "", boom
	}

	_, errs := testutil.CollectConcurrent(8, func(int) (string, error) {
		return ExchangeOrFetch(context.Background(), s.pc, "github", "code-1", fetch)
	})
	for _, err := range errs {
		s.ErrorIs(err, boom)
	}

	// A later, sequential caller also sees the cached failure.
	_, err := ExchangeOrFetch(context.Background(), s.pc, "github", "code-1", fetch)
	s.ErrorIs(err, boom)
	s.Equal(int32(1), calls.Load())
}

func (s *ContextSuite) TestKeysAreScopedBySystem() {
	var calls atomic.Int32
	fetch := func(context.Context) (int, error) {
		return int(calls.Add(1)), nil
	}

	a, err := ExchangeOrFetch(context.Background(), s.pc, "github", "k", fetch)
	s.Require().NoError(err)
	b, err := ExchangeOrFetch(context.Background(), s.pc, "facebook", "k", fetch)
	s.Require().NoError(err)

	s.NotEqual(a, b)
	s.Equal(2, s.pc.Len())
}

func (s *ContextSuite) TestPanicInFetchBecomesCachedError() {
	fetch := func(context.Context) (string, error) {
		panic("adapter exploded")
	}

	_, err := ExchangeOrFetch(context.Background(), s.pc, "staking", "k", fetch)
	s.Require().Error(err)
	s.Contains(err.Error(), "adapter exploded")

	_, err = ExchangeOrFetch(context.Background(), s.pc, "staking", "k", func(context.Context) (string, error) {
		return "never", nil
	})
	s.Error(err)
}

func (s *ContextSuite) TestCancelledWaiterLeavesEntryInFlight() {
	release := make(chan struct{})
	started := make(chan struct{})

	var owner sync.WaitGroup
	owner.Add(1)
	go func() {
		defer owner.Done()
		v, err := ExchangeOrFetch(context.Background(), s.pc, "github", "code", func(context.Context) (string, error) {
			close(started)
			<-release
			return "token", nil
		})
		s.NoError(err)
		s.Equal("token", v)
	}()
	<-started

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := ExchangeOrFetch(ctx, s.pc, "github", "code", func(context.Context) (string, error) {
		s.Fail("waiter must not fetch")
		return "", nil
	})
	s.ErrorIs(err, context.Canceled)

	close(release)
	owner.Wait()

	v, err := ExchangeOrFetch(context.Background(), s.pc, "github", "code", func(context.Context) (string, error) {
		s.Fail("completed entry must be reused")
		return "", nil
	})
	s.NoError(err)
	s.Equal("token", v)
}

func TestExchangeOrFetch_TypeMismatch(t *testing.T) {
	pc := NewContext()
	_, err := ExchangeOrFetch(context.Background(), pc, "github", "k", func(context.Context) (string, error) {
		return "token", nil
	})
	require.NoError(t, err)

	_, err = ExchangeOrFetch(context.Background(), pc, "github", "k", func(context.Context) (int, error) {
		return 1, nil
	})
	require.Error(t, err)
	assert.Equal(t, ErrorInternal, GetCategory(err))
}

func TestExchangeOrFetch_NilContextFetchesDirectly(t *testing.T) {
	var calls int
	fetch := func(context.Context) (string, error) {
		calls++
		return "v", nil
	}
	for i := 0; i < 2; i++ {
		v, err := ExchangeOrFetch(context.Background(), nil, "github", "k", fetch)
		require.NoError(t, err)
		assert.Equal(t, "v", v)
	}
	assert.Equal(t, 2, calls)
}

func TestHashKey(t *testing.T) {
	assert.Equal(t, HashKey("a", "b"), HashKey("a", "b"))
	assert.NotEqual(t, HashKey("ab", ""), HashKey("a", "b"))
	assert.Len(t, HashKey("secret-code"), 64)
	assert.NotContains(t, HashKey("secret-code"), "secret")
}
