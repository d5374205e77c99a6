//go:build linux

package kernel

import (
	"os"
	"sync"
	"syscall"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

const (
	// SigRTMin 可用的最小实时信号. 32 和 33 被 C 库线程实现保留.
	SigRTMin = 34

	// SigRTMax 可用的最大实时信号.
	SigRTMax = 64
)

const (
	ClockRealtime  Clock = unix.CLOCK_REALTIME  // 系统实时时钟.
	ClockMonotonic Clock = unix.CLOCK_MONOTONIC // 单调时钟.
	ClockBoottime  Clock = unix.CLOCK_BOOTTIME  // 包含休眠时间的单调时钟.
)

const (
	sigevSignal  = 0  // SIGEV_SIGNAL.
	sigevMaxSize = 64 // 内核 struct sigevent 大小.
)

// sigevent 对应内核 struct sigevent 的布局.
type sigevent struct {
	value  uintptr // sigval.
	signo  int32
	notify int32
	_      [sigevMaxSize - unsafe.Sizeof(uintptr(0)) - 8]byte
}

// Handle 内核定时器句柄.
// 创建后处于未启动状态, 只能删除一次.
type Handle struct {
	mutex   sync.Mutex
	id      int32          // 内核定时器ID.
	sig     syscall.Signal // 到期时投递的信号.
	deleted bool           // 是否已删除.
}

// Create 创建绑定信号 sig 的内核定时器, 创建后未启动.
func Create(clock Clock, sig syscall.Signal) (*Handle, error) {
	sev := sigevent{
		signo:  int32(sig),
		notify: sigevSignal,
	}

	var id int32
	_, _, errno := unix.Syscall(
		unix.SYS_TIMER_CREATE,
		uintptr(clock),
		uintptr(unsafe.Pointer(&sev)),
		uintptr(unsafe.Pointer(&id)),
	)
	if errno != 0 {
		return nil, os.NewSyscallError("timer_create", errno)
	}

	return &Handle{id: id, sig: sig}, nil
}

// Signal 到期时投递的信号.
func (h *Handle) Signal() syscall.Signal { return h.sig }

// settime 调用 timer_settime.
func (h *Handle) settime(spec *unix.ItimerSpec) error {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if h.deleted {
		return ErrDeleted
	}

	_, _, errno := unix.Syscall6(
		unix.SYS_TIMER_SETTIME,
		uintptr(h.id),
		0,
		uintptr(unsafe.Pointer(spec)),
		0, 0, 0,
	)
	if errno != 0 {
		return os.NewSyscallError("timer_settime", errno)
	}
	return nil
}

// Arm 启动定时器. value 为首次到期延迟, interval 为之后的周期, 为 0 时只到期一次.
// value 为 0 等同于 Disarm.
func (h *Handle) Arm(value, interval time.Duration) error {
	return h.settime(&unix.ItimerSpec{
		Value:    unix.NsecToTimespec(value.Nanoseconds()),
		Interval: unix.NsecToTimespec(interval.Nanoseconds()),
	})
}

// Disarm 停止定时器.
func (h *Handle) Disarm() error {
	return h.settime(&unix.ItimerSpec{})
}

// Remaining 距离下次到期的剩余时间. 未启动时返回 0.
func (h *Handle) Remaining() (time.Duration, error) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if h.deleted {
		return 0, ErrDeleted
	}

	var spec unix.ItimerSpec
	_, _, errno := unix.Syscall(
		unix.SYS_TIMER_GETTIME,
		uintptr(h.id),
		uintptr(unsafe.Pointer(&spec)),
		0,
	)
	if errno != 0 {
		return 0, os.NewSyscallError("timer_gettime", errno)
	}
	return time.Duration(unix.TimespecToNsec(spec.Value)), nil
}

// Overrun 最近一次投递的信号之后额外到期的次数.
func (h *Handle) Overrun() (int, error) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if h.deleted {
		return 0, ErrDeleted
	}

	n, _, errno := unix.Syscall(unix.SYS_TIMER_GETOVERRUN, uintptr(h.id), 0, 0)
	if errno != 0 {
		return 0, os.NewSyscallError("timer_getoverrun", errno)
	}
	return int(n), nil
}

// Delete 删除内核定时器. 重复调用无副作用.
func (h *Handle) Delete() error {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if h.deleted {
		return nil
	}

	h.deleted = true
	_, _, errno := unix.Syscall(unix.SYS_TIMER_DELETE, uintptr(h.id), 0, 0)
	if errno != 0 {
		return os.NewSyscallError("timer_delete", errno)
	}
	return nil
}
