// Package kernel 封装 POSIX 间隔定时器 (timer_create 系列系统调用).
// 定时器到期时由内核向当前进程投递绑定的实时信号.
package kernel

import "errors"

// ErrUnsupported 当前平台不支持 POSIX 定时器.
var ErrUnsupported = errors.New("kernel: posix timers are not supported on this platform")

// ErrDeleted 定时器已删除.
var ErrDeleted = errors.New("kernel: timer deleted")

// Clock 定时器使用的时钟.
type Clock int32

// ValidSignal 判断 sig 是否位于可用的实时信号区间.
func ValidSignal(sig int) bool {
	return SigRTMin <= sig && sig <= SigRTMax
}
