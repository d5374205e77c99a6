//go:build linux

package kernel

import (
	"errors"
	"os"
	"os/signal"
	"syscall"
	"testing"
	"time"
)

func createTestHandle(t *testing.T, sig syscall.Signal) (*Handle, chan os.Signal) {
	t.Helper()

	// 必须先接管信号, 否则实时信号的默认行为会终止进程.
	ch := make(chan os.Signal, 16)
	signal.Notify(ch, sig)
	t.Cleanup(func() {
		signal.Stop(ch)
		signal.Ignore(sig)
	})

	h, err := Create(ClockMonotonic, sig)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	t.Cleanup(func() { _ = h.Delete() })

	return h, ch
}

func TestHandleArmDisarm(t *testing.T) {
	h, _ := createTestHandle(t, SigRTMax)

	if h.Signal() != SigRTMax {
		t.Fatalf("Signal() = %v", h.Signal())
	}

	remaining, err := h.Remaining()
	if err != nil {
		t.Fatalf("Remaining: %v", err)
	}
	if remaining != 0 {
		t.Fatalf("new handle armed, remaining %v", remaining)
	}

	if err := h.Arm(time.Hour, time.Hour); err != nil {
		t.Fatalf("Arm: %v", err)
	}
	remaining, err = h.Remaining()
	if err != nil {
		t.Fatalf("Remaining: %v", err)
	}
	if remaining <= 0 || remaining > time.Hour {
		t.Fatalf("remaining %v not in (0, 1h]", remaining)
	}

	if err := h.Disarm(); err != nil {
		t.Fatalf("Disarm: %v", err)
	}
	if remaining, _ = h.Remaining(); remaining != 0 {
		t.Fatalf("disarmed handle remaining %v", remaining)
	}
}

func TestHandleDeliversSignal(t *testing.T) {
	h, ch := createTestHandle(t, SigRTMax-1)

	if err := h.Arm(20*time.Millisecond, 0); err != nil {
		t.Fatalf("Arm: %v", err)
	}

	select {
	case sig := <-ch:
		if sig != syscall.Signal(SigRTMax-1) {
			t.Fatalf("received %v", sig)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("signal not delivered")
	}

	if remaining, _ := h.Remaining(); remaining != 0 {
		t.Fatalf("single-shot handle still armed, remaining %v", remaining)
	}
	if n, err := h.Overrun(); err != nil || n != 0 {
		t.Fatalf("Overrun() = %d, %v", n, err)
	}
}

func TestHandleDelete(t *testing.T) {
	h, _ := createTestHandle(t, SigRTMax-2)

	if err := h.Delete(); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := h.Delete(); err != nil {
		t.Fatalf("second Delete: %v", err)
	}

	if err := h.Arm(time.Second, 0); !errors.Is(err, ErrDeleted) {
		t.Fatalf("Arm after Delete: %v", err)
	}
	if _, err := h.Remaining(); !errors.Is(err, ErrDeleted) {
		t.Fatalf("Remaining after Delete: %v", err)
	}
}

func TestCreateInvalidSignal(t *testing.T) {
	if _, err := Create(ClockMonotonic, syscall.Signal(1000)); err == nil {
		t.Fatal("Create with invalid signal succeeded")
	}
}

func TestValidSignal(t *testing.T) {
	for sig, want := range map[int]bool{
		1:        false,
		33:       false,
		SigRTMin: true,
		50:       true,
		SigRTMax: true,
		65:       false,
	} {
		if got := ValidSignal(sig); got != want {
			t.Errorf("ValidSignal(%d) = %v, want %v", sig, got, want)
		}
	}
}
