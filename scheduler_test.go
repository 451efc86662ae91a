package reconcile

import (
	"context"
	"errors"
	"math/rand/v2"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
)

func echoClient() *ScriptedClient {
	return NewScriptedClient(func(_ context.Context, c ScriptedCall) (*Completion, error) {
		time.Sleep(time.Duration(rand.IntN(5)) * time.Millisecond)
		return TextCompletion(`{"echo":"` + c.Input + `"}`)
	})
}

func numberedRequests(n int) []ExtractionRequest {
	reqs := make([]ExtractionRequest, n)
	for i := range reqs {
		reqs[i] = NewExtractionRequest(strconv.Itoa(i), "extract", 0)
		reqs[i].RecordIndex = i
	}
	return reqs
}

func newTestScheduler(t *testing.T, client CompletionClient, optFns ...func(*Options)) *Scheduler {
	t.Helper()
	base := []func(*Options){WithLogger(zap.NewNop()), WithRetry(0, time.Millisecond)}
	s, err := NewScheduler(client, append(base, optFns...)...)
	require.NoError(t, err)
	return s
}

func TestNewScheduler_NilClient(t *testing.T) {
	s, err := NewScheduler(nil)
	assert.Nil(t, s)
	assert.ErrorIs(t, err, ErrNoClient)

	var zero *Scheduler
	_, err = zero.RunBatch(context.Background(), numberedRequests(1))
	assert.ErrorIs(t, err, ErrNoClient)
}

func TestNewScheduler_TypedNilClient(t *testing.T) {
	tests := []struct {
		name   string
		client CompletionClient
	}{
		{"genai", (*GenAIClient)(nil)},
		{"anthropic", (*AnthropicClient)(nil)},
		{"scripted", (*ScriptedClient)(nil)},
		{"func", CompletionFunc(nil)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewScheduler(tt.client)
			assert.Nil(t, s)
			assert.ErrorIs(t, err, ErrNoClient)

			e, err := NewRetryingExecutor(tt.client)
			assert.Nil(t, e)
			assert.ErrorIs(t, err, ErrNoClient)

			x, err := NewExtractor(tt.client)
			assert.Nil(t, x)
			assert.ErrorIs(t, err, ErrNoClient)
		})
	}
}

func TestRunBatch_PreservesOrder(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	s := newTestScheduler(t, echoClient(), WithConcurrency(4))
	reqs := numberedRequests(40)

	results, err := s.RunBatch(context.Background(), reqs)
	require.NoError(t, err)
	require.Len(t, results, len(reqs))

	for i, r := range results {
		require.True(t, r.Success, "slot %d: %s", i, r.Error)
		v, _ := r.Data.Get("echo")
		assert.Equal(t, strconv.Itoa(i), v.AsString())
		assert.Equal(t, i, r.RecordIndex)
	}
	assert.Equal(t, 40, results.Succeeded())
}

func TestRunBatch_Empty(t *testing.T) {
	s := newTestScheduler(t, echoClient())
	results, err := s.RunBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestRunBatch_PoolLargerThanBatch(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	s := newTestScheduler(t, echoClient(), WithConcurrency(64))
	results, err := s.RunBatch(context.Background(), numberedRequests(3))
	require.NoError(t, err)
	assert.Equal(t, 3, results.Succeeded())
}

func TestRunBatch_BoundsConcurrency(t *testing.T) {
	var inFlight, peak atomic.Int32
	client := NewScriptedClient(func(context.Context, ScriptedCall) (*Completion, error) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(3 * time.Millisecond)
		inFlight.Add(-1)
		return TextCompletion(`{}`)
	})
	s := newTestScheduler(t, client, WithConcurrency(3))

	_, err := s.RunBatch(context.Background(), numberedRequests(20))
	require.NoError(t, err)
	assert.LessOrEqual(t, peak.Load(), int32(3))
}

func TestRunBatch_FailureStaysInSlot(t *testing.T) {
	client := NewScriptedClient(func(_ context.Context, c ScriptedCall) (*Completion, error) {
		if c.Input == "2" {
			return nil, errors.New("bad record")
		}
		return TextCompletion(`{"ok":true}`)
	})
	s := newTestScheduler(t, client)

	results, err := s.RunBatch(context.Background(), numberedRequests(5))
	require.NoError(t, err)

	assert.False(t, results[2].Success)
	assert.Contains(t, results[2].Error, "bad record")
	assert.Equal(t, 4, results.Succeeded())
	assert.EqualValues(t, 1, s.Stats().FailedRequests)
}

func TestRunBatch_PanicBecomesFailedSlot(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	client := CompletionFunc(func(_ context.Context, _, input string) (*Completion, error) {
		if input == "1" {
			panic("worker exploded")
		}
		return TextCompletion(`{}`)
	})
	s := newTestScheduler(t, client)

	results, err := s.RunBatch(context.Background(), numberedRequests(3))
	require.NoError(t, err)

	assert.True(t, results[0].Success)
	assert.False(t, results[1].Success)
	assert.ErrorIs(t, results[1].Cause(), ErrWorkerPanic)
	assert.Contains(t, results[1].Error, "worker exploded")
	assert.True(t, results[2].Success)
}

func TestRunBatch_ProgressIsMonotonic(t *testing.T) {
	var (
		mu   sync.Mutex
		seen []int
	)
	s := newTestScheduler(t, echoClient(), WithConcurrency(8), WithProgress(func(completed, total int) {
		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, 25, total)
		seen = append(seen, completed)
	}))

	_, err := s.RunBatch(context.Background(), numberedRequests(25))
	require.NoError(t, err)

	require.Len(t, seen, 25)
	for i, c := range seen {
		assert.Equal(t, i+1, c)
	}
}

func TestRunBatch_PerCallOptions(t *testing.T) {
	var attempts atomic.Int32
	s := newTestScheduler(t, echoClient())

	_, err := s.RunBatch(context.Background(), numberedRequests(6),
		WithOnAttempt(func(ExtractionAttempt) { attempts.Add(1) }),
	)
	require.NoError(t, err)
	assert.EqualValues(t, 6, attempts.Load())
}

func TestRunBatch_CancelledContext(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	client := failingClient(NewTransientError(errors.New("unavailable"), 503))
	s := newTestScheduler(t, client, WithRetry(3, time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	results, err := s.RunBatch(ctx, numberedRequests(4))
	require.NoError(t, err)
	assert.Equal(t, 0, results.Succeeded())
	for _, r := range results {
		assert.NotEmpty(t, r.Error)
	}
}
