package bootstrap

import (
	"errors"
	"net"
	"sync"
	"time"

	executor "github.com/joeycumines/go-executor"
)

var (
	// ErrAlreadyRegistered is returned by Register if the resource is
	// already attached to an executor.
	ErrAlreadyRegistered = errors.New("bootstrap: resource already registered")

	// ErrNotRegistered is returned by Bind and Connect if called before the
	// resource was registered.
	ErrNotRegistered = errors.New("bootstrap: resource not registered")

	// ErrClosed is returned by operations on a closed resource.
	ErrClosed = errors.New("bootstrap: resource closed")

	// ErrNotOnWorker is returned by Bind and Connect if called from a
	// goroutine other than the registered executor's worker.
	ErrNotOnWorker = errors.New("bootstrap: not called on the worker")
)

// Resource is anything that is attached to an executor, then bound or
// connected on that executor's worker.
type Resource interface {
	executor.Registrant
	// Bind starts accepting on addr. Called on the worker.
	Bind(addr string) error
	// Connect connects to addr. Called on the worker.
	Connect(addr string) error
	// Close releases the resource. It may be called from any goroutine,
	// more than once.
	Close() error
}

// NetResource is a Resource backed by a net.Listener (Bind) or a net.Conn
// (Connect).
type NetResource struct {
	executor *executor.Executor
	listener net.Listener
	conn     net.Conn
	network  string
	timeout  time.Duration
	mu       sync.Mutex
	closed   bool
}

var _ Resource = (*NetResource)(nil)

// NewNetResource returns a NetResource for network, e.g. "tcp". A positive
// dialTimeout bounds Connect.
func NewNetResource(network string, dialTimeout time.Duration) *NetResource {
	return &NetResource{network: network, timeout: dialTimeout}
}

// Register implements executor.Registrant.
func (r *NetResource) Register(x *executor.Executor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch {
	case r.closed:
		return ErrClosed
	case r.executor != nil:
		return ErrAlreadyRegistered
	}
	r.executor = x
	return nil
}

// Executor returns the executor the resource is registered with, or nil.
func (r *NetResource) Executor() *executor.Executor {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.executor
}

func (r *NetResource) Bind(addr string) error {
	if err := r.check(); err != nil {
		return err
	}
	l, err := net.Listen(r.network, addr)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		_ = l.Close()
		return ErrClosed
	}
	r.listener = l
	return nil
}

func (r *NetResource) Connect(addr string) error {
	if err := r.check(); err != nil {
		return err
	}
	c, err := (&net.Dialer{Timeout: r.timeout}).Dial(r.network, addr)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		_ = c.Close()
		return ErrClosed
	}
	r.conn = c
	return nil
}

func (r *NetResource) check() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch {
	case r.closed:
		return ErrClosed
	case r.executor == nil:
		return ErrNotRegistered
	case !r.executor.InEventLoop():
		return ErrNotOnWorker
	}
	return nil
}

// Listener returns the listener, if bound.
func (r *NetResource) Listener() net.Listener {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.listener
}

// Conn returns the connection, if connected.
func (r *NetResource) Conn() net.Conn {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.conn
}

// Close closes the listener and connection, if any.
func (r *NetResource) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	l, c := r.listener, r.conn
	r.mu.Unlock()

	var errs []error
	if l != nil {
		errs = append(errs, l.Close())
	}
	if c != nil {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}
