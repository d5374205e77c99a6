//go:build !linux

package kernel

import (
	"syscall"
	"time"
)

// 非 linux 平台没有可用的实时信号区间.
const (
	SigRTMin = 1
	SigRTMax = 0
)

const (
	ClockRealtime  Clock = 0
	ClockMonotonic Clock = 1
	ClockBoottime  Clock = 7
)

// Handle 内核定时器句柄. 当前平台不可创建.
type Handle struct {
	sig syscall.Signal
}

// Create 当前平台始终返回 ErrUnsupported.
func Create(_ Clock, _ syscall.Signal) (*Handle, error) {
	return nil, ErrUnsupported
}

func (h *Handle) Signal() syscall.Signal { return h.sig }

func (h *Handle) Arm(_, _ time.Duration) error { return ErrUnsupported }

func (h *Handle) Disarm() error { return ErrUnsupported }

func (h *Handle) Remaining() (time.Duration, error) { return 0, ErrUnsupported }

func (h *Handle) Overrun() (int, error) { return 0, ErrUnsupported }

func (h *Handle) Delete() error { return nil }
