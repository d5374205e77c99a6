package gtimer

import (
	"context"

	"github.com/qmuntal/stateless"
)

// State 定时器状态.
type State int

const (
	StateIdle      State = iota // 已创建, 从未启动.
	StateRunning                // 运行中, 内核定时器已启动.
	StateSuspended              // 已挂起, 保存了剩余时间.
	StateStopped                // 已停止.
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateSuspended:
		return "suspended"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// 状态机触发器.
const (
	trigStart   = "start"
	trigReset   = "reset"
	trigSuspend = "suspend"
	trigResume  = "resume"
	trigStop    = "stop"
	trigExpire  = "expire" // 单次定时器到期.
)

// newFSM 构造定时器状态机.
// 状态机只负责合法性检查与状态记录, 内核操作在触发前完成.
func (ti *timerImpl) newFSM() *stateless.StateMachine {
	fsm := stateless.NewStateMachineWithMode(StateIdle, stateless.FiringImmediate)

	fsm.Configure(StateIdle).
		Permit(trigStart, StateRunning).
		Permit(trigReset, StateRunning)

	fsm.Configure(StateRunning).
		PermitReentry(trigReset).
		Permit(trigSuspend, StateSuspended).
		Permit(trigStop, StateStopped).
		Permit(trigExpire, StateStopped)

	fsm.Configure(StateSuspended).
		Permit(trigResume, StateRunning).
		Permit(trigReset, StateRunning).
		Permit(trigStop, StateStopped)

	fsm.Configure(StateStopped).
		Permit(trigStart, StateRunning).
		Permit(trigReset, StateRunning)

	fsm.OnTransitioned(func(_ context.Context, tr stateless.Transition) {
		ti.logger.DebugFields("transitioned",
			lfdFrom(tr.Source.(State)),
			lfdState(tr.Destination.(State)),
			lfdTrigger(tr.Trigger.(string)),
		)
	})

	return fsm
}
