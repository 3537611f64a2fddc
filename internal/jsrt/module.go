// SPDX-License-Identifier: MPL-2.0

package jsrt

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/eventloop"
	"github.com/dop251/goja_nodejs/require"
)

var errModuleClosed = errors.New("module is closed")

type (
	// ModuleKey identifies one execution of a bundle.
	ModuleKey struct {
		Path       string
		Generation uint64
	}

	// Module is an executed bundle: its runtime, its event loop and its
	// exports object. A Module is safe for use by one goroutine at a time;
	// calls are serialized.
	//
	// The event loop only runs inside Import and Settle, and only until the
	// promises they wait for have settled. Timers left behind (an interval a
	// loader never clears, for instance) stay queued until the next Settle
	// or until Close discards them.
	Module struct {
		key    ModuleKey
		loop   *eventloop.EventLoop
		vm     *goja.Runtime
		cancel context.CancelFunc

		mu      sync.Mutex
		closed  bool
		exports *goja.Object
		keys    []string
	}
)

func (k ModuleKey) String() string {
	return fmt.Sprintf("%s#%d", k.Path, k.Generation)
}

func newModule(key ModuleKey, registry *require.Registry) *Module {
	loop := eventloop.NewEventLoop(
		eventloop.WithRegistry(registry),
		eventloop.EnableConsole(true),
	)
	m := &Module{key: key, loop: loop}
	// Nothing is scheduled yet, so this returns at once.
	loop.Run(func(vm *goja.Runtime) { m.vm = vm })
	return m
}

// Key returns the module's cache key.
func (m *Module) Key() ModuleKey { return m.key }

// Keys returns the export names in Object.keys order.
func (m *Module) Keys() []string { return slices.Clone(m.keys) }

// Run calls fn on the module's runtime. Timers and I/O callbacks scheduled
// by fn run during the next Settle. If ctx is cancelled while JavaScript is
// running, the runtime is interrupted.
func (m *Module) Run(ctx context.Context, fn func(vm *goja.Runtime, exports *goja.Object) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	var fnErr error
	if err := m.interruptible(ctx, func() { fnErr = fn(m.vm, m.exports) }); err != nil {
		return err
	}
	return scriptError(fnErr)
}

// Settle runs the event loop until every exported promise has settled, the
// loop runs out of work or ctx is done. Promises still pending afterwards
// report ErrPromiseUnsettled through Await.
func (m *Module) Settle(ctx context.Context) error {
	return m.drive(ctx, func(*goja.Runtime) ([]*goja.Promise, error) {
		var pending []*goja.Promise
		for _, key := range m.keys {
			if p, ok := promiseOf(m.exports.Get(key)); ok {
				pending = append(pending, p)
			}
		}
		return pending, nil
	})
}

// Close discards the module's timers and aborts its in-flight requests.
// Exports stay readable through Run.
func (m *Module) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	if m.cancel != nil {
		m.cancel()
	}
	m.loop.Terminate()
}

// drive calls fn inside the event loop, then keeps the loop running until
// the promises fn returns have settled, the loop runs out of work or ctx is
// done.
func (m *Module) drive(ctx context.Context, fn func(vm *goja.Runtime) ([]*goja.Promise, error)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	if m.closed {
		return errModuleClosed
	}

	var fnErr error
	err := m.interruptible(ctx, func() {
		m.loop.Run(func(vm *goja.Runtime) {
			promises, err := fn(vm)
			if err != nil || ctx.Err() != nil {
				fnErr = err
				m.loop.StopNoWait()
				return
			}
			m.stopWhenSettled(vm, promises)
		})
	})
	if err != nil {
		return err
	}
	return scriptError(fnErr)
}

// stopWhenSettled stops the loop once every promise has settled. It must
// run on the loop.
func (m *Module) stopWhenSettled(vm *goja.Runtime, promises []*goja.Promise) {
	pending := 0
	onSettled := vm.ToValue(func(goja.FunctionCall) goja.Value {
		pending--
		if pending == 0 {
			m.loop.StopNoWait()
		}
		return goja.Undefined()
	})

	for _, p := range promises {
		if p.State() != goja.PromiseStatePending {
			continue
		}
		obj := vm.ToValue(p).ToObject(vm)
		then, ok := goja.AssertFunction(obj.Get("then"))
		if !ok {
			continue
		}
		pending++
		if _, err := then(obj, onSettled, onSettled); err != nil {
			pending--
		}
	}
	if pending == 0 {
		m.loop.StopNoWait()
	}
}

// interruptible runs fn. If ctx is done first, the runtime is interrupted
// and a running loop is told to stop.
func (m *Module) interruptible(ctx context.Context, fn func()) error {
	fired := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		defer close(fired)
		m.vm.Interrupt(context.Cause(ctx))
		m.loop.StopNoWait()
	})

	fn()
	if stop() {
		return nil
	}
	<-fired
	m.vm.ClearInterrupt()
	return fmt.Errorf("execution interrupted: %w", context.Cause(ctx))
}

func (m *Module) setExports(v goja.Value) error {
	exports, ok := v.(*goja.Object)
	if !ok {
		return fmt.Errorf("module.exports is %s, not an object", v.String())
	}
	m.exports = exports
	m.keys = exports.Keys()
	return nil
}

// settleNamespace adopts the value of a bundle that exported a promise of
// its namespace.
func (m *Module) settleNamespace(p *goja.Promise) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch p.State() {
	case goja.PromiseStateFulfilled:
		return m.setExports(p.Result())
	case goja.PromiseStateRejected:
		return thrown(p.Result())
	default:
		return fmt.Errorf("%w: module evaluation is still waiting on top-level await", ErrPromiseUnsettled)
	}
}

func promiseOf(v goja.Value) (*goja.Promise, bool) {
	obj, ok := v.(*goja.Object)
	if !ok {
		return nil, false
	}
	p, ok := obj.Export().(*goja.Promise)
	return p, ok
}

// Await returns the settled value of v. Values that are not promises are
// returned unchanged with isPromise false. Call it from inside Run after
// Settle.
func Await(v goja.Value) (value goja.Value, isPromise bool, err error) {
	p, ok := promiseOf(v)
	if !ok {
		return v, false, nil
	}

	switch p.State() {
	case goja.PromiseStateFulfilled:
		return p.Result(), true, nil
	case goja.PromiseStateRejected:
		return nil, true, fmt.Errorf("%w: %s", ErrPromiseRejected, describe(p.Result()))
	default:
		return nil, true, ErrPromiseUnsettled
	}
}
