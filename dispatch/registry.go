// Package dispatch 实现进程内的信号分发表.
//
// 内核定时器到期后以实时信号通知进程, Go 运行时将信号转发到 Registry 的
// 信号 chan, 路由协程据此找到注册在该信号上的目标并投递. 用户回调不会在
// 信号处理上下文中执行.
package dispatch

import (
	"errors"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"weak"

	"github.com/godyy/glog"
	"github.com/godyy/gtimer/errcode"
	"github.com/godyy/gtimer/kernel"
)

// ErrInvalidSignal 信号不在允许的区间内.
var ErrInvalidSignal = errors.New("dispatch: signal out of range")

// ErrSignalInUse 信号已被注册.
var ErrSignalInUse = errors.New("dispatch: signal already registered")

// ErrClosed Registry 已关闭.
var ErrClosed = errors.New("dispatch: registry closed")

// DeliverFunc 投递函数. 在路由协程中调用, 不可阻塞.
type DeliverFunc[T any] func(target *T, sig syscall.Signal)

// Registry 信号到目标的分发表.
// 表项只持有目标的弱引用, 不影响目标的回收.
type Registry[T any] struct {
	deliver  DeliverFunc[T] // 投递函数.
	opts     optionSet      // 选项.
	logger   glog.Logger    // 日志工具.
	chSignal chan os.Signal // 信号 chan.

	mutex   sync.RWMutex                      // RWMutex for following.
	entries map[syscall.Signal]weak.Pointer[T] // 注册表.
	started bool                              // 路由协程是否已启动.
	closed  bool                              // 是否已关闭.

	delivered atomic.Uint64 // 已投递次数.
	dropped   atomic.Uint64 // 已丢弃次数.
}

// NewRegistry 构造 Registry.
func NewRegistry[T any](deliver DeliverFunc[T], options ...Option) *Registry[T] {
	if deliver == nil {
		panic("dispatch: deliver func is nil")
	}

	opts := optionSet{
		minSignal:  kernel.SigRTMin,
		maxSignal:  kernel.SigRTMax,
		bufferSize: defaultBufferSize,
	}
	for _, opt := range options {
		opt(&opts)
	}

	r := &Registry[T]{
		deliver:  deliver,
		opts:     opts,
		chSignal: make(chan os.Signal, opts.bufferSize),
		entries:  make(map[syscall.Signal]weak.Pointer[T]),
	}

	if opts.logger != nil {
		r.logger = opts.logger.Named("dispatch")
	} else {
		r.logger = createStdLogger(false).Named("dispatch")
	}

	return r
}

// Register 将 ref 注册到信号 sig.
// 表项先于信号接管发布, 路由协程不会看到未完成的表项.
func (r *Registry[T]) Register(sig syscall.Signal, ref weak.Pointer[T]) error {
	if sig < r.opts.minSignal || sig > r.opts.maxSignal {
		return ErrInvalidSignal
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.closed {
		return ErrClosed
	}

	if _, exists := r.entries[sig]; exists {
		return ErrSignalInUse
	}

	r.entries[sig] = ref
	if !r.started {
		r.started = true
		go route(r.chSignal, r.dispatch)
	}
	signal.Notify(r.chSignal, sig)

	r.logger.DebugFields("registered", lfdSignal(sig))

	return nil
}

// Unregister 移除信号 sig 上的 ref. 表项不属于 ref 时返回 false.
// 返回后不会再有针对 ref 的投递.
func (r *Registry[T]) Unregister(sig syscall.Signal, ref weak.Pointer[T]) bool {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if cur, exists := r.entries[sig]; !exists || cur != ref {
		return false
	}

	// 忽略而不是恢复默认行为: 实时信号的默认行为是终止进程,
	// 已在途的到期信号必须被丢弃.
	signal.Ignore(sig)
	delete(r.entries, sig)

	r.logger.DebugFields("unregistered", lfdSignal(sig))

	return true
}

// Lookup 查询信号 sig 上注册的目标. 目标已回收时返回 nil, true.
func (r *Registry[T]) Lookup(sig syscall.Signal) (*T, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	ref, exists := r.entries[sig]
	if !exists {
		return nil, false
	}
	return ref.Value(), true
}

// Len 注册表项数量.
func (r *Registry[T]) Len() int {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return len(r.entries)
}

// Delivered 已投递的信号数量.
func (r *Registry[T]) Delivered() uint64 { return r.delivered.Load() }

// Dropped 已丢弃的信号数量.
func (r *Registry[T]) Dropped() uint64 { return r.dropped.Load() }

// Close 关闭 Registry, 忽略所有已注册的信号并结束路由协程.
func (r *Registry[T]) Close() {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.closed {
		return
	}
	r.closed = true

	for sig := range r.entries {
		signal.Ignore(sig)
		delete(r.entries, sig)
	}

	// Stop 返回后 chSignal 不会再收到信号, 可以安全关闭.
	signal.Stop(r.chSignal)
	close(r.chSignal)
}

// dispatch 将信号路由到注册的目标.
// 持有读锁直至投递完成, Unregister 因此会等待在途的投递.
func (r *Registry[T]) dispatch(s os.Signal) {
	sig, ok := s.(syscall.Signal)
	if !ok {
		r.drop(s, errcode.SignalHandlerUnexpectedSignal)
		return
	}

	r.mutex.RLock()
	defer r.mutex.RUnlock()

	ref, exists := r.entries[sig]
	if !exists {
		r.drop(sig, errcode.SignalHandlerUnexpectedSignal)
		return
	}

	target := ref.Value()
	if target == nil {
		r.drop(sig, errcode.SignalHandlerTimerNullPointer)
		return
	}

	r.delivered.Add(1)
	r.deliver(target, sig)
}

// drop 丢弃信号并记录警告.
func (r *Registry[T]) drop(sig os.Signal, code errcode.Code) {
	r.dropped.Add(1)
	r.logger.WarnFields("signal dropped", lfdSignal(sig), lfdCode(code), lfdReason(code))
}

// route 路由协程主循环, chSignal 关闭后退出.
func route(chSignal <-chan os.Signal, dispatch func(os.Signal)) {
	for sig := range chSignal {
		dispatch(sig)
	}
}
