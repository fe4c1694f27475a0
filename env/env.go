// Package env ties the heap, symbol table and process scheduler together
// into a single runtime instance and exposes the public API surface of
// spec.md §6: cell construction, interning, GC, scheduling, message
// passing, continuations and exceptions, all as methods on *Env.
//
// Grounded on original_source/src/muse.c's muse_init_env/muse_destroy_env
// (parameter table, main-process bootstrap, current-environment global)
// and the teacher's ambient conventions for logging/config (see
// SPEC_FULL.md §A).
package env

import (
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"sync/atomic"

	"github.com/sxrt/sxrt/cont"
	"github.com/sxrt/sxrt/except"
	"github.com/sxrt/sxrt/heap"
	"github.com/sxrt/sxrt/mailbox"
	"github.com/sxrt/sxrt/process"
	"github.com/sxrt/sxrt/symtab"
)

type Ref = heap.Ref

// Parameters is the Go struct form of spec.md §6's enumerated runtime
// parameters, with the original's defaults (muse_init_env's
// k_default_parameter_values).
type Parameters struct {
	HeapSize          int
	GrowHeapThreshold int
	StackSize         int
	MaxSymbols        int
	DiscardDoc        bool
	PrettyPrint       bool
	TabSize           int
	DefaultAttention  int
}

// DefaultParameters returns spec.md §6's documented defaults.
func DefaultParameters() Parameters {
	return Parameters{
		HeapSize:          65536,
		GrowHeapThreshold: 80,
		StackSize:         4096,
		MaxSymbols:        4096,
		DiscardDoc:        false,
		PrettyPrint:       true,
		TabSize:           4,
		DefaultAttention:  10,
	}
}

// Env is one complete runtime instance.
type Env struct {
	Params Parameters

	Heap    *heap.Heap
	Symbols *symtab.Table
	Sched   *process.Scheduler
	Mail    *mailbox.Mailbox

	logger *log.Logger

	mainProcess *process.Frame
}

// compositeRoots implements heap.RootSet by delegating to both the
// symbol table and the process ring — the heap package deliberately
// knows about neither, per its own doc comment.
type compositeRoots struct {
	st    *symtab.Table
	sched *process.Scheduler
}

func (c compositeRoots) MarkRoots(h *heap.Heap) {
	c.st.MarkRoots(h)
	c.sched.MarkRoots(h)
}

// Init constructs a new runtime instance, wires every package together,
// and creates + mailbox-inits + primes the main process, then marks it
// RUNNING on the caller's goroutine, mirroring muse_init_env's bootstrap
// sequence (spec.md §6).
func Init(params Parameters) (*Env, error) {
	if params.HeapSize <= 0 {
		d := DefaultParameters()
		params.HeapSize, params.GrowHeapThreshold = d.HeapSize, d.GrowHeapThreshold
		params.StackSize, params.MaxSymbols = d.StackSize, d.MaxSymbols
		params.TabSize, params.DefaultAttention = d.TabSize, d.DefaultAttention
		params.PrettyPrint = d.PrettyPrint
	}

	e := &Env{
		Params: params,
		logger: log.New(os.Stderr, "sxrt: ", log.LstdFlags),
	}

	e.Heap = heap.New(params.HeapSize, params.GrowHeapThreshold)
	e.Symbols = symtab.New(e.Heap, params.MaxSymbols)
	e.Sched = process.NewScheduler(e.Heap, params.DefaultAttention, params.StackSize, params.MaxSymbols)
	e.Mail = mailbox.New(e.Heap, e.Symbols, e.Sched)

	e.Heap.SetActiveStack(e.Sched)
	e.Heap.SetRootSet(compositeRoots{st: e.Symbols, sched: e.Sched})
	e.Symbols.SetActiveProcess(e.Sched)
	e.Symbols.SetProcessRegistry(e.Sched)

	main, err := e.Sched.CreateProcess(params.DefaultAttention, func(Ref) (Ref, error) {
		<-make(chan struct{}) // never invoked: the main process runs on the caller's goroutine, not through Scheduler.Run
		return heap.NIL, nil
	}, true)
	if err != nil {
		return nil, fmt.Errorf("env: failed to create main process: %w", err)
	}
	if err := e.Mail.Init(main); err != nil {
		return nil, fmt.Errorf("env: failed to init main process mailbox: %w", err)
	}
	if err := e.Sched.PrimeProcess(main); err != nil {
		return nil, fmt.Errorf("env: failed to prime main process: %w", err)
	}
	main.State = process.Running
	e.mainProcess = main

	if err := e.Symbols.InitBuiltins(); err != nil {
		return nil, fmt.Errorf("env: failed to init builtin symbols: %w", err)
	}

	return e, nil
}

// Destroy releases e's reference to the current-environment global if e
// is currently installed there. Cells, the heap arena and every process
// are ordinary Go-GC'd memory, so unlike muse_destroy_env there is
// nothing else to free explicitly; Destroy exists so embedders following
// the original's init/destroy pairing have a real call to make.
func (e *Env) Destroy() {
	currentMu.Lock()
	defer currentMu.Unlock()
	if v := currentEnv.Load(); v != nil && v.(*Env) == e {
		currentEnv.Store((*Env)(nil))
	}
}

// SetLogger installs a custom diagnostic logger, replacing the default
// stderr logger (SPEC_FULL.md §A.1).
func (e *Env) SetLogger(l *log.Logger) { e.logger = l }

// Logger returns the environment's diagnostic logger.
func (e *Env) Logger() *log.Logger { return e.logger }

// --- current-environment global, mirroring muse_set_current_env/_env() ---

var (
	currentMu  sync.Mutex
	currentEnv atomic.Value // holds *Env
)

// SetCurrent installs e as the process-wide current environment (the
// original's muse_set_current_env). Most embedders only ever have one
// Env and never need this; it exists for ports of code that used the
// original's implicit _env() thread-local.
func SetCurrent(e *Env) {
	currentMu.Lock()
	defer currentMu.Unlock()
	currentEnv.Store(e)
}

// Current returns the environment installed by SetCurrent, or nil.
func Current() *Env {
	v := currentEnv.Load()
	if v == nil {
		return nil
	}
	return v.(*Env)
}

// --- cell construction (spec.md §6) ---

func (e *Env) Cons(head, tail Ref) (Ref, error) { return e.Heap.Cons(head, tail) }
func (e *Env) MkInt(v int64) (Ref, error) { return e.Heap.MkInt(v) }
func (e *Env) MkFloat(v float64) (Ref, error) { return e.Heap.MkFloat(v) }
func (e *Env) MkLambda(formals, body Ref) (Ref, error) { return e.Heap.MkLambda(formals, body) }

// MkText allocates a TEXT cell directly from a UTF-16 buffer.
func (e *Env) MkText(buf []uint16) (Ref, error) { return e.Heap.MkTextFrom(buf) }

// MkTextUTF8 allocates a TEXT cell by transcoding a UTF-8 Go string
// (spec.md §6's mk_text_utf8), via symtab's x/text-backed encoder.
func (e *Env) MkTextUTF8(s string) (Ref, error) { return e.Symbols.MkTextUTF8(s) }

func (e *Env) MkNativeFn(fn func(args Ref) (Ref, error), ctx interface{}) (Ref, error) {
	return e.Heap.MkNativeFn(fn, ctx)
}

func (e *Env) MkDestructor(fn func(args Ref) (Ref, error), ctx interface{}, destroy func()) (Ref, error) {
	return e.Heap.MkDestructor(fn, ctx, destroy)
}

func (e *Env) MkAnonSymbol() (Ref, error) { return e.Symbols.MkAnonSymbol() }

func (e *Env) MkFunctionalObject(t *heap.ObjectType, initData interface{}) (Ref, error) {
	return e.Heap.MkFunctionalObject(t, initData)
}

// --- stack protocol (spec.md §6/§4.3) ---

func (e *Env) StackPos() int { return e.Heap.ActivePos() }
func (e *Env) StackUnwind(pos int) { e.Heap.ActiveUnwind(pos) }
func (e *Env) StackPush(r Ref) { e.Sched.Push(r) }

// --- symbols ---

func (e *Env) Intern(name string) (Ref, error) { return e.Symbols.Intern(name) }

func (e *Env) BuiltinSymbol(b symtab.Builtin) Ref { return e.Symbols.BuiltinSymbol(b) }

// --- GC ---

func (e *Env) Mark(r Ref) { e.Heap.Mark(r) }

func (e *Env) GC(requested int) error {
	if err := e.Heap.GC(requested); err != nil {
		e.logger.Printf("gc failed to grow heap: %v", err)
		return err
	}
	return nil
}

// --- processes ---

var errNilThunk = errors.New("env: CreateProcess requires a non-nil thunk")

// CreateProcess allocates, mailbox-inits and primes a new process
// running thunk with the given attention budget (0 uses the
// environment's default), mirroring create_process +
// init_process_mailbox + prime_process (spec.md §4.4).
func (e *Env) CreateProcess(attention int, thunk process.ThunkFunc) (*process.Frame, error) {
	if thunk == nil {
		return nil, errNilThunk
	}
	p, err := e.Sched.CreateProcess(attention, thunk, false)
	if err != nil {
		return nil, err
	}
	if err := e.Mail.Init(p); err != nil {
		return nil, err
	}
	if err := e.Sched.PrimeProcess(p); err != nil {
		return nil, err
	}
	return p, nil
}

func (e *Env) SwitchTo(p *process.Frame) error { return e.Sched.SwitchTo(p) }

func (e *Env) Yield(spentAttention int) error { return e.Sched.Yield(spentAttention) }

func (e *Env) Kill(p *process.Frame) error { return e.Sched.Kill(p) }

func (e *Env) EnterAtomic() { e.Sched.EnterAtomic() }
func (e *Env) LeaveAtomic() { e.Sched.LeaveAtomic() }

// MainProcess returns the environment's main process frame.
func (e *Env) MainProcess() *process.Frame { return e.mainProcess }

// --- messaging ---

func (e *Env) Send(target *process.Frame, args Ref) (Ref, error) {
	return e.Mail.Send(target, args)
}

func (e *Env) Receive(p *process.Frame, matchers []func(Ref) bool, timeoutUs int64) (int, Ref, bool) {
	return e.Mail.Receive(p, matchers, microsToDuration(timeoutUs))
}

// --- continuations and exceptions ---

func (e *Env) CallCC(proc func(k Ref) (Ref, error)) (Ref, error) {
	return cont.CallCC(e.Heap, e.Sched, proc)
}

func (e *Env) Try(handlers []except.Handler, body func() (Ref, error)) (Ref, error) {
	return except.Try(e.Heap, e.Sched, e.Symbols, handlers, body)
}

func (e *Env) Raise(args Ref) (Ref, error) {
	result, err := except.Raise(e.Heap, e.Sched, e.Symbols, args)
	if err != nil {
		e.logger.Printf("unhandled exception: %v", err)
	}
	return result, err
}
