package executor

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultLogger_capturedAtConstruction(t *testing.T) {
	old := DefaultLogger()
	require.NotNil(t, old)
	logger, rec := newTestLogger()
	SetDefaultLogger(logger)
	x, err := New(WithName(t.Name()))
	SetDefaultLogger(old)
	require.NoError(t, err)
	t.Cleanup(x.Shutdown)

	assert.Same(t, logger, x.Logger())
	_, err = await(t, Submit(x, func() (int, error) { panic("logged") }))
	assert.ErrorAs(t, err, new(PanicError))
	assert.Equal(t, 1, rec.count("executor: recovered panic"))
}

func TestWithLogger_nilDisablesLogging(t *testing.T) {
	x := newTestExecutor(t, WithLogger(nil))
	assert.Nil(t, x.Logger())
	_, err := await(t, Submit(x, func() (int, error) { panic("silent") }))
	assert.ErrorAs(t, err, new(PanicError))
}

func TestPanicLogger(t *testing.T) {
	logger, rec := newTestLogger()
	p := newPanicLogger(logger, "name", map[time.Duration]int{time.Hour: 1})
	cause := errors.New("cause")
	p.log("a", cause)
	p.log("a", cause)
	p.log("b", cause)

	events := rec.find("executor: recovered panic")
	require.Len(t, events, 2)
	assert.Equal(t, "name", events[0].fields["executor"])
	assert.Equal(t, "a", events[0].fields["category"])
	assert.Equal(t, "b", events[1].fields["category"])
	assert.Same(t, cause, events[0].fields["err"])
}

func TestPanicLogger_unlimited(t *testing.T) {
	logger, rec := newTestLogger()
	p := newPanicLogger(logger, "name", nil)
	for range 100 {
		p.log("a", errors.New("cause"))
	}
	assert.Equal(t, 100, rec.count("executor: recovered panic"))
}

func TestLoggerFor(t *testing.T) {
	logger, _ := newTestLogger()
	x := newTestExecutor(t, WithLogger(logger))
	assert.Same(t, logger, loggerFor(x))
	g := newTestGroup(t, 1)
	assert.Same(t, DefaultLogger(), loggerFor(g))
}
