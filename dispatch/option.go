package dispatch

import (
	"syscall"

	"github.com/godyy/glog"
)

const defaultBufferSize = 64

// optionSet 选项集合.
type optionSet struct {
	logger     glog.Logger    // 日志工具.
	minSignal  syscall.Signal // 允许注册的最小信号.
	maxSignal  syscall.Signal // 允许注册的最大信号.
	bufferSize int            // 信号 chan 容量.
}

// Option 选项.
type Option func(*optionSet)

// WithLogger 日志工具选项.
func WithLogger(logger glog.Logger) Option {
	return func(opts *optionSet) {
		opts.logger = logger
	}
}

// WithSignalRange 允许注册的信号区间选项, 默认为实时信号区间.
func WithSignalRange(lo, hi syscall.Signal) Option {
	return func(opts *optionSet) {
		opts.minSignal = lo
		opts.maxSignal = hi
	}
}

// WithBufferSize 信号 chan 容量选项.
func WithBufferSize(size int) Option {
	return func(opts *optionSet) {
		if size > 0 {
			opts.bufferSize = size
		}
	}
}
