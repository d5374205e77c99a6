// Package gtimer 封装 POSIX 间隔定时器.
//
// 每个 Timer 独占一个内核定时器, 到期时内核向进程投递绑定的实时信号,
// 进程内的信号分发表将信号路由回对应的 Timer, 再由 Timer 的回调协程调用
// 用户回调. 同一个信号同时只能被一个 Timer 使用.
//
// Timer 的生命周期操作有两种形式: Start 等返回 error, 警告以 errcode.Code
// 返回, 严重错误以 *errcode.Error 返回; TryStart 等只返回错误码.
package gtimer

import (
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"syscall"
	"time"
	"weak"

	"github.com/godyy/glog"
	"github.com/godyy/gtimer/dispatch"
	"github.com/godyy/gtimer/errcode"
	"github.com/godyy/gtimer/kernel"
	pkgerrors "github.com/pkg/errors"
	"github.com/qmuntal/stateless"
)

// Timer POSIX 间隔定时器.
//
// Timer 只持有内部实现的指针, 分发表与回调协程引用的都是内部实现或 Timer
// 的弱引用. Timer 未 Close 即被回收时, 内核资源在回收时释放.
type Timer struct {
	impl *timerImpl
}

// timerImpl Timer 内部实现.
type timerImpl struct {
	cfg    Config              // 配置.
	period time.Duration       // 定时周期.
	handle *kernel.Handle      // 内核定时器.
	ref    weak.Pointer[Timer] // 注册到分发表的弱引用.
	logger glog.Logger         // 日志工具.

	mutex     sync.Mutex               // Mutex for following.
	fsm       *stateless.StateMachine // 状态机.
	remaining time.Duration            // 挂起时保存的剩余时间.
	closed    bool                     // 是否已关闭.

	chExpired   chan struct{} // 到期通知.
	chClosed    chan struct{} // 关闭 chan.
	expirations atomic.Uint64 // 已触发回调的次数.
	coalesced   atomic.Uint64 // 合并的到期通知次数.
}

// New 构造 Timer. 构造后内核定时器未启动, 状态为 StateIdle.
func New(cfg *Config, options ...Option) (*Timer, error) {
	if err := cfg.init(); err != nil {
		return nil, err
	}

	var optSet optionSet
	for _, opt := range options {
		opt(&optSet)
	}

	ti := &timerImpl{
		cfg:       *cfg,
		period:    cfg.Period(),
		chExpired: make(chan struct{}, 1),
		chClosed:  make(chan struct{}),
	}
	ti.initLogger(optSet.logger)
	ti.fsm = ti.newFSM()

	handle, err := kernel.Create(ti.cfg.Clock, ti.cfg.Signal)
	if err != nil {
		ti.logger.ErrorFields("create kernel timer", lfdError(err))
		return nil, errcode.New(errcode.PosixTimerCreation, "new", pkgerrors.WithMessage(err, "create kernel timer"))
	}
	ti.handle = handle

	t := &Timer{impl: ti}
	ti.ref = weak.Make(t)

	if err := registry().Register(ti.cfg.Signal, ti.ref); err != nil {
		_ = handle.Delete()
		ti.logger.ErrorFields("register signal", lfdError(err))
		err = pkgerrors.WithMessagef(err, "register signal %d", ti.cfg.Signal)
		if errors.Is(err, dispatch.ErrSignalInUse) {
			return nil, errcode.New(errcode.SignalAlreadyRegistered, "new", err)
		}
		return nil, errcode.New(errcode.SignalHandlerRegistration, "new", err)
	}

	go ti.loop()
	runtime.AddCleanup(t, func(ti *timerImpl) { _ = ti.close() }, ti)

	ti.logger.Debug("created")

	return t, nil
}

// initLogger 初始化日志工具.
func (ti *timerImpl) initLogger(logger glog.Logger) {
	if logger == nil {
		logger = createStdLogger(false)
	}
	ti.logger = logger.Named("gtimer").WithFields(
		lfdSignal(ti.cfg.Signal),
		lfdPeriod(ti.period),
		lfdSingleShot(ti.cfg.SingleShot),
	)
}

// Start 启动定时器. 仅在 StateIdle 或 StateStopped 下合法.
func (t *Timer) Start() error { return t.impl.start() }

// Reset 以完整周期重新启动定时器, 丢弃已流逝的时间. 任意状态下合法.
func (t *Timer) Reset() error { return t.impl.reset() }

// Suspend 挂起定时器并保存剩余时间. 仅在 StateRunning 下合法.
func (t *Timer) Suspend() error { return t.impl.suspend() }

// Resume 以挂起时保存的剩余时间作为首次延迟恢复定时器. 仅在 StateSuspended 下合法.
func (t *Timer) Resume() error { return t.impl.resume() }

// Stop 停止定时器并丢弃保存的剩余时间. 仅在 StateRunning 或 StateSuspended 下合法.
func (t *Timer) Stop() error { return t.impl.stop() }

// TryStart 同 Start, 只返回错误码.
func (t *Timer) TryStart() errcode.Code { return errcode.Of(t.Start()) }

// TryReset 同 Reset, 只返回错误码.
func (t *Timer) TryReset() errcode.Code { return errcode.Of(t.Reset()) }

// TrySuspend 同 Suspend, 只返回错误码.
func (t *Timer) TrySuspend() errcode.Code { return errcode.Of(t.Suspend()) }

// TryResume 同 Resume, 只返回错误码.
func (t *Timer) TryResume() errcode.Code { return errcode.Of(t.Resume()) }

// TryStop 同 Stop, 只返回错误码.
func (t *Timer) TryStop() errcode.Code { return errcode.Of(t.Stop()) }

// Close 停止并释放定时器. 所有释放步骤都会执行, 返回合并后的错误.
// 重复调用返回 nil.
//
// Close 返回后不会再有回调开始执行, 但已在执行中的回调可能尚未返回.
func (t *Timer) Close() error { return t.impl.close() }

// State 当前状态.
func (t *Timer) State() State {
	t.impl.mutex.Lock()
	defer t.impl.mutex.Unlock()
	return t.impl.state()
}

// Signal 到期通知使用的信号.
func (t *Timer) Signal() syscall.Signal { return t.impl.cfg.Signal }

// Period 定时周期.
func (t *Timer) Period() time.Duration { return t.impl.period }

// SingleShot 是否为单次定时器.
func (t *Timer) SingleShot() bool { return t.impl.cfg.SingleShot }

// Expirations 已触发回调的次数.
func (t *Timer) Expirations() uint64 { return t.impl.expirations.Load() }

// Coalesced 因回调未及时处理而合并的到期通知次数.
func (t *Timer) Coalesced() uint64 { return t.impl.coalesced.Load() }

// Remaining 距离下次到期的剩余时间. 挂起时返回保存的剩余时间.
func (t *Timer) Remaining() (time.Duration, error) {
	ti := t.impl
	ti.mutex.Lock()
	defer ti.mutex.Unlock()

	if ti.closed {
		return 0, errcode.TimerClosed
	}

	switch ti.state() {
	case StateRunning:
		remaining, err := ti.handle.Remaining()
		if err != nil {
			return 0, errcode.New(errcode.PosixTimerGettime, "remaining", err)
		}
		return remaining, nil
	case StateSuspended:
		return ti.remaining, nil
	default:
		return 0, nil
	}
}

// state 当前状态. 调用方需持有 mutex.
func (ti *timerImpl) state() State {
	return ti.fsm.MustState().(State)
}

// canFire 判断当前状态下 trigger 是否合法. 调用方需持有 mutex.
func (ti *timerImpl) canFire(trigger string) bool {
	ok, err := ti.fsm.CanFire(trigger)
	return ok && err == nil
}

// fire 触发状态迁移. 调用方需持有 mutex, 且已通过 canFire 检查.
func (ti *timerImpl) fire(op, trigger string) error {
	if err := ti.fsm.Fire(trigger); err != nil {
		ti.logger.ErrorFields("fire "+trigger, lfdState(ti.state()), lfdError(err))
		return errcode.New(errcode.UnknownError, op, err)
	}
	return nil
}

// warn 记录并返回警告.
func (ti *timerImpl) warn(op string, code errcode.Code) error {
	ti.logger.WarnFields(op+": "+code.Error(), lfdState(ti.state()), lfdCode(code))
	return code
}

// interval 启动内核定时器时使用的周期. 单次定时器为 0.
func (ti *timerImpl) interval() time.Duration {
	if ti.cfg.SingleShot {
		return 0
	}
	return ti.period
}

// arm 以首次延迟 value 启动内核定时器.
func (ti *timerImpl) arm(op string, value time.Duration) error {
	if err := ti.handle.Arm(value, ti.interval()); err != nil {
		ti.logger.ErrorFields(op+": arm kernel timer", lfdError(err))
		return errcode.New(errcode.PosixTimerSettime, op, err)
	}
	return nil
}

// disarm 停止内核定时器.
func (ti *timerImpl) disarm(op string) error {
	if err := ti.handle.Disarm(); err != nil {
		ti.logger.ErrorFields(op+": disarm kernel timer", lfdError(err))
		return errcode.New(errcode.PosixTimerSettime, op, err)
	}
	return nil
}

func (ti *timerImpl) start() error {
	ti.mutex.Lock()
	defer ti.mutex.Unlock()

	if ti.closed {
		return errcode.TimerClosed
	}

	if !ti.canFire(trigStart) {
		return ti.warn("start", errcode.StartAlreadyStarted)
	}

	if err := ti.arm("start", ti.period); err != nil {
		return err
	}

	return ti.fire("start", trigStart)
}

func (ti *timerImpl) reset() error {
	ti.mutex.Lock()
	defer ti.mutex.Unlock()

	if ti.closed {
		return errcode.TimerClosed
	}

	// timer_settime 会覆盖原有设置, 无需先停止.
	if err := ti.arm("reset", ti.period); err != nil {
		return err
	}
	ti.remaining = 0

	return ti.fire("reset", trigReset)
}

func (ti *timerImpl) suspend() error {
	ti.mutex.Lock()
	defer ti.mutex.Unlock()

	if ti.closed {
		return errcode.TimerClosed
	}

	if !ti.canFire(trigSuspend) {
		return ti.warn("suspend", errcode.SuspendWhileNotRunning)
	}

	remaining, err := ti.handle.Remaining()
	if err != nil {
		ti.logger.ErrorFields("suspend: query kernel timer", lfdError(err))
		return errcode.New(errcode.PosixTimerGettime, "suspend", err)
	}

	if err := ti.disarm("suspend"); err != nil {
		return err
	}

	// 剩余时间为 0 说明恰好到期, 恢复时立即到期.
	if remaining <= 0 {
		remaining = time.Nanosecond
	}
	ti.remaining = remaining

	ti.logger.DebugFields("suspended", lfdRemaining(remaining))

	return ti.fire("suspend", trigSuspend)
}

func (ti *timerImpl) resume() error {
	ti.mutex.Lock()
	defer ti.mutex.Unlock()

	if ti.closed {
		return errcode.TimerClosed
	}

	if !ti.canFire(trigResume) {
		return ti.warn("resume", errcode.ResumeAlreadyRunning)
	}

	if err := ti.arm("resume", ti.remaining); err != nil {
		return err
	}
	ti.remaining = 0

	return ti.fire("resume", trigResume)
}

func (ti *timerImpl) stop() error {
	ti.mutex.Lock()
	defer ti.mutex.Unlock()

	if ti.closed {
		return errcode.TimerClosed
	}

	if !ti.canFire(trigStop) {
		return ti.warn("stop", errcode.StopWhileNotRunning)
	}

	if ti.state() == StateRunning {
		if err := ti.disarm("stop"); err != nil {
			return err
		}
	}
	ti.remaining = 0

	return ti.fire("stop", trigStop)
}

// close 释放定时器. 先从分发表移除再删除内核定时器.
func (ti *timerImpl) close() error {
	ti.mutex.Lock()
	defer ti.mutex.Unlock()

	if ti.closed {
		return nil
	}
	ti.closed = true

	var errs []error

	if ti.state() == StateRunning {
		if err := ti.handle.Disarm(); err != nil {
			errs = append(errs, errcode.New(errcode.PosixTimerSettime, "close", err))
		}
	}

	if !registry().Unregister(ti.cfg.Signal, ti.ref) {
		ti.logger.WarnFields("close: registry entry not found")
	}

	if err := ti.handle.Delete(); err != nil {
		errs = append(errs, errcode.New(errcode.UnknownError, "close", pkgerrors.WithMessage(err, "delete kernel timer")))
	}

	close(ti.chClosed)

	err := errors.Join(errs...)
	if err != nil {
		ti.logger.ErrorFields("closed", lfdError(err))
	} else {
		ti.logger.Debug("closed")
	}

	return err
}

// notify 投递到期通知. 在分发表路由协程中调用, 不阻塞.
// 未处理的通知只保留一个, 其余计为合并.
func (ti *timerImpl) notify() {
	select {
	case ti.chExpired <- struct{}{}:
	default:
		ti.coalesced.Add(1)
	}
}

// loop 回调协程主循环.
func (ti *timerImpl) loop() {
	for {
		select {
		case <-ti.chExpired:
			ti.expire()
		case <-ti.chClosed:
			return
		}
	}
}

// expire 处理一次到期通知.
func (ti *timerImpl) expire() {
	cb, ok := ti.acceptExpiration()
	if !ok {
		return
	}

	ti.expirations.Add(1)
	if cb != nil {
		cb(ti.cfg.Data)
	}
}

// acceptExpiration 检查到期通知是否有效并完成单次定时器的状态迁移.
func (ti *timerImpl) acceptExpiration() (Callback, bool) {
	ti.mutex.Lock()
	defer ti.mutex.Unlock()

	if ti.closed || ti.state() != StateRunning {
		ti.logger.DebugFields("stale expiration dropped", lfdState(ti.state()))
		return nil, false
	}

	if n, err := ti.handle.Overrun(); err == nil && n > 0 {
		ti.logger.DebugFields("kernel timer overrun", lfdOverrun(n))
	}

	if ti.cfg.SingleShot {
		// 内核定时器仍在运行, 说明这是上一次启动遗留的通知.
		if remaining, err := ti.handle.Remaining(); err == nil && remaining > 0 {
			ti.logger.DebugFields("stale expiration dropped", lfdRemaining(remaining))
			return nil, false
		}
		if err := ti.fire("expire", trigExpire); err != nil {
			return nil, false
		}
	}

	return ti.cfg.Callback, true
}
