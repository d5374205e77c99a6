//go:build linux

package dispatch

import (
	"errors"
	"os"
	"runtime"
	"syscall"
	"testing"
	"time"
	"weak"

	"go.uber.org/goleak"
	"golang.org/x/sys/unix"

	"github.com/godyy/gtimer/kernel"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m, goleak.IgnoreAnyFunction("os/signal.loop"))
}

type testTarget struct {
	chSignal chan syscall.Signal
}

func newTestTarget() *testTarget {
	return &testTarget{chSignal: make(chan syscall.Signal, 1)}
}

func deliverTestTarget(target *testTarget, sig syscall.Signal) {
	select {
	case target.chSignal <- sig:
	default:
	}
}

func newTestRegistry(t *testing.T) *Registry[testTarget] {
	t.Helper()
	r := NewRegistry(deliverTestTarget, WithLogger(createStdLogger(true)))
	t.Cleanup(r.Close)
	return r
}

func TestRegistryDeliver(t *testing.T) {
	r := newTestRegistry(t)
	sig := syscall.Signal(kernel.SigRTMax)

	target := newTestTarget()
	ref := weak.Make(target)
	if err := r.Register(sig, ref); err != nil {
		t.Fatalf("Register: %v", err)
	}

	if err := unix.Kill(os.Getpid(), sig); err != nil {
		t.Fatalf("Kill: %v", err)
	}

	select {
	case got := <-target.chSignal:
		if got != sig {
			t.Fatalf("delivered %v, want %v", got, sig)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("signal not delivered")
	}

	if n := r.Delivered(); n != 1 {
		t.Fatalf("Delivered() = %d", n)
	}
	if !r.Unregister(sig, ref) {
		t.Fatal("Unregister returned false")
	}
	if r.Len() != 0 {
		t.Fatalf("Len() = %d after Unregister", r.Len())
	}
	runtime.KeepAlive(target)
}

func TestRegistryRegisterConflict(t *testing.T) {
	r := newTestRegistry(t)
	sig := syscall.Signal(kernel.SigRTMax - 1)

	first, second := newTestTarget(), newTestTarget()
	if err := r.Register(sig, weak.Make(first)); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := r.Register(sig, weak.Make(second)); !errors.Is(err, ErrSignalInUse) {
		t.Fatalf("second Register: %v", err)
	}

	got, ok := r.Lookup(sig)
	if !ok || got != first {
		t.Fatalf("Lookup() = %p, %v, want %p", got, ok, first)
	}

	if r.Unregister(sig, weak.Make(second)) {
		t.Fatal("Unregister with foreign ref returned true")
	}
	if !r.Unregister(sig, weak.Make(first)) {
		t.Fatal("Unregister returned false")
	}
	if err := r.Register(sig, weak.Make(second)); err != nil {
		t.Fatalf("Register after Unregister: %v", err)
	}
	runtime.KeepAlive(first)
	runtime.KeepAlive(second)
}

func TestRegistryInvalidSignal(t *testing.T) {
	r := newTestRegistry(t)
	target := newTestTarget()

	for _, sig := range []syscall.Signal{syscall.SIGINT, kernel.SigRTMin - 1, kernel.SigRTMax + 1} {
		if err := r.Register(sig, weak.Make(target)); !errors.Is(err, ErrInvalidSignal) {
			t.Errorf("Register(%v) = %v", sig, err)
		}
	}
}

func TestRegistryUnexpectedSignal(t *testing.T) {
	r := newTestRegistry(t)

	r.dispatch(syscall.Signal(kernel.SigRTMax - 2))

	if n := r.Dropped(); n != 1 {
		t.Fatalf("Dropped() = %d", n)
	}
	if n := r.Delivered(); n != 0 {
		t.Fatalf("Delivered() = %d", n)
	}
}

func TestRegistryCollectedTarget(t *testing.T) {
	r := newTestRegistry(t)
	sig := syscall.Signal(kernel.SigRTMax - 3)

	ref := weak.Make(newTestTarget())
	for i := 0; i < 10 && ref.Value() != nil; i++ {
		runtime.GC()
	}
	if ref.Value() != nil {
		t.Skip("target not collected")
	}

	if err := r.Register(sig, ref); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if got, ok := r.Lookup(sig); !ok || got != nil {
		t.Fatalf("Lookup() = %p, %v", got, ok)
	}

	r.dispatch(sig)

	if n := r.Dropped(); n != 1 {
		t.Fatalf("Dropped() = %d", n)
	}
	if n := r.Delivered(); n != 0 {
		t.Fatalf("Delivered() = %d", n)
	}
}

func TestRegistryUnregisterWaitsForDelivery(t *testing.T) {
	sig := syscall.Signal(kernel.SigRTMax - 4)
	entered := make(chan struct{})
	release := make(chan struct{})

	r := NewRegistry(func(*testTarget, syscall.Signal) {
		close(entered)
		<-release
	})
	t.Cleanup(r.Close)

	target := newTestTarget()
	ref := weak.Make(target)
	if err := r.Register(sig, ref); err != nil {
		t.Fatalf("Register: %v", err)
	}

	go r.dispatch(sig)
	<-entered

	unregistered := make(chan bool)
	go func() { unregistered <- r.Unregister(sig, ref) }()

	select {
	case <-unregistered:
		t.Fatal("Unregister returned during delivery")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	if !<-unregistered {
		t.Fatal("Unregister returned false")
	}
	runtime.KeepAlive(target)
}

func TestRegistryClose(t *testing.T) {
	r := NewRegistry(deliverTestTarget)
	sig := syscall.Signal(kernel.SigRTMax - 5)

	target := newTestTarget()
	if err := r.Register(sig, weak.Make(target)); err != nil {
		t.Fatalf("Register: %v", err)
	}

	r.Close()
	r.Close()

	if r.Len() != 0 {
		t.Fatalf("Len() = %d after Close", r.Len())
	}
	if err := r.Register(sig, weak.Make(target)); !errors.Is(err, ErrClosed) {
		t.Fatalf("Register after Close: %v", err)
	}
}
