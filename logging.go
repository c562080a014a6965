package executor

import (
	"os"
	"sync/atomic"
	"time"

	"github.com/joeycumines/go-catrate"
	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
)

var defaultLogger atomic.Pointer[logiface.Logger[logiface.Event]]

func init() {
	SetDefaultLogger(stumpy.L.New(
		stumpy.L.WithStumpy(stumpy.WithWriter(os.Stderr)),
		stumpy.L.WithLevel(logiface.LevelWarning),
	).Logger())
}

// DefaultLogger returns the logger used by executors created without
// WithLogger. Unless replaced, it writes JSON lines to stderr, at warning
// level and above.
func DefaultLogger() *logiface.Logger[logiface.Event] {
	return defaultLogger.Load()
}

// SetDefaultLogger replaces the logger returned by DefaultLogger. A nil
// logger disables logging. Executors capture the default at construction.
func SetDefaultLogger(logger *logiface.Logger[logiface.Event]) {
	defaultLogger.Store(logger)
}

// defaultPanicLogRates allows bursts of panic logs per category, while
// keeping a hot panicking task from flooding the output.
var defaultPanicLogRates = map[time.Duration]int{
	time.Second: 10,
	time.Minute: 100,
}

// loggerSource is implemented by event executors that carry a logger.
type loggerSource interface {
	Logger() *logiface.Logger[logiface.Event]
}

func loggerFor(ex EventExecutor) *logiface.Logger[logiface.Event] {
	if s, ok := ex.(loggerSource); ok {
		return s.Logger()
	}
	return DefaultLogger()
}

// panicLogger logs recovered panics, rate limited per category.
type panicLogger struct {
	logger  *logiface.Logger[logiface.Event]
	limiter *catrate.Limiter
	name    string
}

func newPanicLogger(logger *logiface.Logger[logiface.Event], name string, rates map[time.Duration]int) *panicLogger {
	p := &panicLogger{logger: logger, name: name}
	if len(rates) != 0 {
		p.limiter = catrate.NewLimiter(rates)
	}
	return p
}

// log writes err at error level unless the category is over its rate.
func (p *panicLogger) log(category string, err error) {
	if p.limiter != nil {
		if _, ok := p.limiter.Allow(category); !ok {
			return
		}
	}
	p.logger.Err().
		Str("executor", p.name).
		Str("category", category).
		Err(err).
		Log("executor: recovered panic")
}
