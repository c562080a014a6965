package executor

import (
	"sync"
	"testing"
	"time"

	"github.com/joeycumines/logiface"
	"github.com/stretchr/testify/require"
)

// testEvent is a minimal logiface.Event that records its fields.
type testEvent struct {
	logiface.UnimplementedEvent
	fields map[string]any
	level  logiface.Level
}

func (e *testEvent) Level() logiface.Level { return e.level }

func (e *testEvent) AddField(key string, val any) { e.fields[key] = val }

// logRecorder captures events written by a test logger.
type logRecorder struct {
	events []*testEvent
	mu     sync.Mutex
}

func newTestLogger() (*logiface.Logger[logiface.Event], *logRecorder) {
	rec := &logRecorder{}
	logger := logiface.New[*testEvent](
		logiface.WithEventFactory[*testEvent](logiface.NewEventFactoryFunc(func(level logiface.Level) *testEvent {
			return &testEvent{level: level, fields: make(map[string]any)}
		})),
		logiface.WithWriter[*testEvent](logiface.NewWriterFunc(func(event *testEvent) error {
			rec.mu.Lock()
			rec.events = append(rec.events, event)
			rec.mu.Unlock()
			return nil
		})),
		logiface.WithLevel[*testEvent](logiface.LevelDebug),
	)
	return logger.Logger(), rec
}

// find returns the events with the given message.
func (r *logRecorder) find(msg string) []*testEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*testEvent
	for _, e := range r.events {
		if e.fields["msg"] == msg {
			out = append(out, e)
		}
	}
	return out
}

func (r *logRecorder) count(msg string) int {
	return len(r.find(msg))
}

// newTestExecutor creates an executor that is shut down, and awaited, when
// the test ends.
func newTestExecutor(t *testing.T, opts ...Option) *Executor {
	t.Helper()
	x, err := New(append([]Option{WithName(t.Name())}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() {
		x.Shutdown()
		if ok, err := x.AwaitTermination(5 * time.Second); err != nil || !ok {
			t.Errorf("executor did not terminate: %v", err)
		}
	})
	return x
}

// await waits for f, failing the test on timeout.
func await[T any](t *testing.T, f Future[T]) (T, error) {
	t.Helper()
	select {
	case <-f.Done():
		return f.Result()
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for future")
		var zero T
		return zero, nil
	}
}

// run executes fn on x and waits for it.
func run(t *testing.T, x *Executor, fn func()) {
	t.Helper()
	_, err := await(t, Submit(x, func() (struct{}, error) {
		fn()
		return struct{}{}, nil
	}))
	require.NoError(t, err)
}

// waitFor polls cond until it is true, failing the test after timeout.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before timeout")
		}
		time.Sleep(time.Millisecond)
	}
}
