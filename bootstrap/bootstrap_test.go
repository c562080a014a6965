package bootstrap

import (
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	executor "github.com/joeycumines/go-executor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGroup(t *testing.T, n int) *executor.Group {
	t.Helper()
	g, err := executor.NewGroup(n, executor.WithName(t.Name()))
	require.NoError(t, err)
	t.Cleanup(func() {
		g.Shutdown()
		if ok, err := g.AwaitTermination(5 * time.Second); err != nil || !ok {
			t.Errorf("group did not terminate: %v", err)
		}
	})
	return g
}

// fakeResource records calls, failing where configured.
type fakeResource struct {
	registerErr error
	bindErr     error
	registered  atomic.Pointer[executor.Executor]
	boundOn     atomic.Pointer[executor.Executor]
	closed      atomic.Int32
}

func (r *fakeResource) Register(x *executor.Executor) error {
	if r.registerErr != nil {
		return r.registerErr
	}
	r.registered.Store(x)
	return nil
}

func (r *fakeResource) Bind(string) error {
	if r.bindErr != nil {
		return r.bindErr
	}
	r.boundOn.Store(executor.CurrentExecutor())
	return nil
}

func (r *fakeResource) Connect(addr string) error { return r.Bind(addr) }

func (r *fakeResource) Close() error {
	r.closed.Add(1)
	return nil
}

func factoryOf(r Resource) Factory {
	return func() (Resource, error) { return r, nil }
}

func TestNew_invalid(t *testing.T) {
	g := newTestGroup(t, 1)
	_, err := New(nil, factoryOf(&fakeResource{}))
	assert.Error(t, err)
	_, err = New(g, nil)
	assert.Error(t, err)
	_, err = New(g, factoryOf(&fakeResource{}), WithFallback(nil))
	assert.Error(t, err)
}

func TestBootstrap_Bind(t *testing.T) {
	g := newTestGroup(t, 2)
	r := &fakeResource{}
	b, err := New(g, factoryOf(r))
	require.NoError(t, err)

	res, err := await(t, b.Bind("addr"))
	require.NoError(t, err)
	assert.Same(t, r, res)
	x := r.registered.Load()
	require.NotNil(t, x)
	assert.Contains(t, g.Executors(), x)
	assert.Same(t, x, r.boundOn.Load())
	assert.Zero(t, r.closed.Load())
}

func TestBootstrap_registrationFailureClosesResource(t *testing.T) {
	g := newTestGroup(t, 1)
	cause := errors.New("register")
	r := &fakeResource{registerErr: cause}
	b, err := New(g, factoryOf(r), WithLogger(nil))
	require.NoError(t, err)

	_, err = await(t, b.Connect("addr"))
	var re *executor.RegistrationError
	require.ErrorAs(t, err, &re)
	assert.ErrorIs(t, err, cause)
	assert.Nil(t, r.boundOn.Load())
	waitClosed(t, r)
}

func TestBootstrap_bindFailureClosesResource(t *testing.T) {
	g := newTestGroup(t, 1)
	cause := errors.New("in use")
	r := &fakeResource{bindErr: cause}
	b, err := New(g, factoryOf(r), WithLogger(nil))
	require.NoError(t, err)

	_, err = await(t, b.Bind("addr"))
	assert.ErrorIs(t, err, cause)
	assert.NotErrorAs(t, err, new(*executor.RegistrationError))
	waitClosed(t, r)
}

func TestBootstrap_factoryFailure(t *testing.T) {
	g := newTestGroup(t, 1)
	cause := errors.New("factory")
	b, err := New(g, func() (Resource, error) { return nil, cause })
	require.NoError(t, err)

	r, reg := b.Register()
	assert.Nil(t, r)
	assert.ErrorIs(t, reg.Err(), cause)

	_, err = await(t, b.Bind("addr"))
	assert.ErrorIs(t, err, cause)
	assert.ErrorAs(t, err, new(*executor.RegistrationError))
}

func TestBootstrap_initializer(t *testing.T) {
	g := newTestGroup(t, 1)
	r := &fakeResource{}
	var initOn atomic.Pointer[executor.Executor]
	b, err := New(g, factoryOf(r), WithInitializer(func(x *executor.Executor, res Resource) error {
		assert.Same(t, r, res)
		initOn.Store(executor.CurrentExecutor())
		return nil
	}))
	require.NoError(t, err)

	res, reg := b.Register()
	x, err := await(t, reg)
	require.NoError(t, err)
	assert.Same(t, r, res)
	assert.Same(t, x, initOn.Load())
}

func TestBootstrap_initializerFailure(t *testing.T) {
	g := newTestGroup(t, 1)
	r := &fakeResource{}
	cause := errors.New("init")
	b, err := New(g, factoryOf(r),
		WithLogger(nil),
		WithInitializer(func(*executor.Executor, Resource) error { return cause }),
	)
	require.NoError(t, err)

	_, err = await(t, b.Bind("addr"))
	assert.ErrorIs(t, err, cause)
	assert.ErrorAs(t, err, new(*executor.RegistrationError))
	assert.Nil(t, r.boundOn.Load())
	waitClosed(t, r)
}

func TestBootstrap_netResource(t *testing.T) {
	g := newTestGroup(t, 2)
	factory := func() (Resource, error) { return NewNetResource("tcp", time.Second), nil }

	server, err := New(g, factory)
	require.NoError(t, err)
	res, err := await(t, server.Bind("127.0.0.1:0"))
	require.NoError(t, err)
	listener := res.(*NetResource).Listener()
	require.NotNil(t, listener)
	defer res.Close()

	accepted := make(chan []byte, 1)
	go func() {
		c, err := listener.Accept()
		if err != nil {
			accepted <- nil
			return
		}
		defer c.Close()
		b, _ := io.ReadAll(c)
		accepted <- b
	}()

	client, err := New(g, factory)
	require.NoError(t, err)
	res, err = await(t, client.Connect(listener.Addr().String()))
	require.NoError(t, err)
	conn := res.(*NetResource).Conn()
	require.NotNil(t, conn)
	_, err = conn.Write([]byte("hello"))
	require.NoError(t, err)
	require.NoError(t, res.Close())
	assert.NoError(t, res.Close())

	assert.Equal(t, []byte("hello"), <-accepted)
}

func TestBootstrap_netResourceConnectRefused(t *testing.T) {
	g := newTestGroup(t, 1)
	r := NewNetResource("tcp", time.Second)
	b, err := New(g, factoryOf(r), WithLogger(nil))
	require.NoError(t, err)

	// bind then release a port, so nothing is listening on it
	pb, err := New(g, factoryOf(NewNetResource("tcp", 0)))
	require.NoError(t, err)
	res, err := await(t, pb.Bind("127.0.0.1:0"))
	require.NoError(t, err)
	addr := res.(*NetResource).Listener().Addr().String()
	require.NoError(t, res.Close())

	_, err = await(t, b.Connect(addr))
	assert.Error(t, err)
	assert.ErrorIs(t, r.Connect(addr), ErrClosed)
}

func TestNetResource_requiresRegistration(t *testing.T) {
	r := NewNetResource("tcp", 0)
	assert.ErrorIs(t, r.Bind("127.0.0.1:0"), ErrNotRegistered)

	x := newTestExecutor(t)
	require.NoError(t, r.Register(x))
	assert.ErrorIs(t, r.Register(x), ErrAlreadyRegistered)
	assert.Same(t, x, r.Executor())
	assert.ErrorIs(t, r.Bind("127.0.0.1:0"), ErrNotOnWorker)

	require.NoError(t, r.Close())
	assert.ErrorIs(t, r.Register(x), ErrClosed)
}

func waitClosed(t *testing.T, r *fakeResource) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for r.closed.Load() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("resource not closed")
		}
		time.Sleep(time.Millisecond)
	}
}
