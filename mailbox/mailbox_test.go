package mailbox

import (
	"testing"
	"time"

	"github.com/sxrt/sxrt/heap"
	"github.com/sxrt/sxrt/process"
	"github.com/sxrt/sxrt/symtab"
)

func newTestRig(t *testing.T) (*heap.Heap, *symtab.Table, *process.Scheduler, *Mailbox, *process.Frame) {
	t.Helper()
	h := heap.New(256, 80)
	st := symtab.New(h, 16)
	sched := process.NewScheduler(h, 10, 256, 8)
	h.SetActiveStack(sched)
	st.SetActiveProcess(sched)
	st.SetProcessRegistry(sched)
	if err := st.InitBuiltins(); err != nil {
		t.Fatal(err)
	}
	m := New(h, st, sched)

	main, err := sched.CreateProcess(10, func(heap.Ref) (heap.Ref, error) { return heap.NIL, nil }, true)
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Init(main); err != nil {
		t.Fatal(err)
	}
	if err := sched.PrimeProcess(main); err != nil {
		t.Fatal(err)
	}
	main.State = process.Running
	return h, st, sched, m, main
}

func TestInitInstallsPIDAsMailboxHead(t *testing.T) {
	h, _, _, _, main := newTestRig(t)
	pid := main.PID(h)
	if pid == heap.NIL {
		t.Fatal("PID was not installed")
	}
	if _, ok := h.NativeFnOf(pid); !ok {
		t.Error("PID is not a NATIVEFN cell")
	}
}

func TestSendAppendsMessageInFIFOOrder(t *testing.T) {
	h, _, sched, m, main := newTestRig(t)

	target, err := sched.CreateProcess(10, func(heap.Ref) (heap.Ref, error) { return heap.NIL, nil }, false)
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Init(target); err != nil {
		t.Fatal(err)
	}
	if err := sched.PrimeProcess(target); err != nil {
		t.Fatal(err)
	}

	one, _ := h.MkInt(1)
	two, _ := h.MkInt(2)
	argsA, _ := h.Cons(one, heap.NIL)
	argsB, _ := h.Cons(two, heap.NIL)

	if _, err := m.Send(target, argsA); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Send(target, argsB); err != nil {
		t.Fatal(err)
	}

	first := h.Tail(target.Mailbox)
	if first == heap.NIL {
		t.Fatal("no messages queued")
	}
	firstMsg := h.Head(first)
	// Each message is (sender-pid . args); args' head is the value sent.
	if h.IntValue(h.Head(h.Tail(firstMsg))) != 1 {
		t.Errorf("first queued message is not the first one sent")
	}

	second := h.Tail(first)
	if second == heap.NIL {
		t.Fatal("second message missing")
	}
	secondMsg := h.Head(second)
	if h.IntValue(h.Head(h.Tail(secondMsg))) != 2 {
		t.Errorf("second queued message is not the second one sent")
	}

	_ = main // keep main referenced; sender PID comes from sched.Current()
}

func TestSendToDeadProcessIsDropped(t *testing.T) {
	h, _, sched, m, _ := newTestRig(t)

	target, err := sched.CreateProcess(10, func(heap.Ref) (heap.Ref, error) { return heap.NIL, nil }, false)
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Init(target); err != nil {
		t.Fatal(err)
	}
	if err := sched.PrimeProcess(target); err != nil {
		t.Fatal(err)
	}
	target.State = process.Dead

	one, _ := h.MkInt(1)
	args, _ := h.Cons(one, heap.NIL)
	result, err := m.Send(target, args)
	if err != nil {
		t.Fatal(err)
	}
	if result != heap.NIL {
		t.Errorf("Send to a DEAD process returned %v, want NIL", result)
	}
	if h.Tail(target.Mailbox) != heap.NIL {
		t.Error("message was queued for a DEAD process")
	}
}

func TestReceiveMatchesQueuedMessage(t *testing.T) {
	h, _, sched, m, main := newTestRig(t)

	val, _ := h.MkInt(9)
	args, _ := h.Cons(val, heap.NIL)
	if _, err := m.Send(main, args); err != nil {
		t.Fatal(err)
	}

	matcher := func(msg heap.Ref) bool { return true }
	idx, msg, ok := m.Receive(main, []func(heap.Ref) bool{matcher}, -1)
	if !ok {
		t.Fatal("Receive did not match the queued message")
	}
	if idx != 0 {
		t.Errorf("matched index = %d, want 0", idx)
	}
	if h.IntValue(h.Head(h.Tail(msg))) != 9 {
		t.Errorf("received message payload mismatch")
	}
	_ = sched
}

func TestReceiveTimesOutWhenNothingMatches(t *testing.T) {
	_, _, _, m, main := newTestRig(t)

	matcher := func(heap.Ref) bool { return false }
	start := time.Now()
	_, _, ok := m.Receive(main, []func(heap.Ref) bool{matcher}, 20*time.Millisecond)
	if ok {
		t.Error("Receive matched with no pending message")
	}
	if time.Since(start) < 15*time.Millisecond {
		t.Error("Receive returned before its timeout elapsed")
	}
}
