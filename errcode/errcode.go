package errcode

import (
	"errors"
	"fmt"
	"sync"
)

// Code 定时器错误码.
// 负数为严重错误，正数为警告.
type Code int

// OK 无错误.
const OK Code = 0

const (
	// 严重错误, 新增错误时继续向负数方向递减.

	TimerClosed               Code = -9 // 定时器已关闭.
	InvalidPeriod             Code = -8 // 定时周期非法.
	SignalAlreadyRegistered   Code = -7 // 信号已被其它定时器占用.
	PosixTimerCreation        Code = -6 // timer_create 调用失败.
	MemcpyFailed              Code = -5 // 数据拷贝失败, 仅为兼容保留.
	PosixTimerGettime         Code = -4 // timer_gettime 调用失败.
	PosixTimerSettime         Code = -3 // timer_settime 调用失败.
	SignalHandlerRegistration Code = -2 // 信号处理注册失败.
	UnknownError              Code = -1 // 未知错误.

	// 警告, 新增警告时继续向正数方向递增.

	SignalHandlerTimerNullPointer Code = 1 // 信号处理时定时器引用为空.
	SignalHandlerUnexpectedSignal Code = 2 // 信号处理时收到未注册的信号.
	StartAlreadyStarted           Code = 3 // 启动已在运行的定时器.
	ResumeAlreadyRunning          Code = 4 // 恢复未挂起的定时器.
	StopWhileNotRunning           Code = 5 // 停止未运行的定时器.
	SuspendWhileNotRunning        Code = 6 // 挂起未运行的定时器.
)

// CategoryName 错误域名称.
const CategoryName = "posixcpp-timer"

const unknownMessage = "unknown error"

// ErrorCategory 错误域, 负责错误码到消息的映射.
// 通过 Category 获取进程内唯一实例.
type ErrorCategory struct {
	messages map[Code]string
}

// Category 返回错误域单例. 首次调用时初始化, 之后只读.
var Category = sync.OnceValue(func() *ErrorCategory {
	return &ErrorCategory{
		messages: map[Code]string{
			TimerClosed:                   "an attempt to use closed timer",
			InvalidPeriod:                 "timer period must be greater than zero",
			SignalAlreadyRegistered:       "signal is already bound to another timer",
			PosixTimerCreation:            "POSIX timer_create has failed",
			MemcpyFailed:                  "std::memcpy has failed",
			PosixTimerGettime:             "POSIX timer_gettime has failed",
			PosixTimerSettime:             "POSIX timer_settime has failed",
			SignalHandlerRegistration:     "SYSTEM sigaction has failed",
			UnknownError:                  unknownMessage,
			SignalHandlerTimerNullPointer: "signal_handler timer pointer is null",
			SignalHandlerUnexpectedSignal: "signal_handler unexpected signal",
			StartAlreadyStarted:           "an attempt to start already running timer",
			ResumeAlreadyRunning:          "an attempt to resume already running timer",
			StopWhileNotRunning:           "an attempt to stop already stopped timer",
			SuspendWhileNotRunning:        "an attempt to stop already stopped timer",
		},
	}
})

// Name 错误域名称.
func (c *ErrorCategory) Name() string { return CategoryName }

// Message 返回错误码 code 对应的消息. 未知错误码返回 "unknown error".
func (c *ErrorCategory) Message(code int) string {
	if msg, ok := c.messages[Code(code)]; ok {
		return msg
	}
	return unknownMessage
}

// known 错误码是否已定义.
func (c *ErrorCategory) known(code Code) bool {
	_, ok := c.messages[code]
	return ok
}

// Error 实现 error.
func (c Code) Error() string {
	return Category().Message(int(c))
}

// IsWarning 是否为警告.
func (c Code) IsWarning() bool {
	return c > 0 && Category().known(c)
}

// IsCritical 是否为严重错误.
func (c Code) IsCritical() bool {
	return c < 0 && Category().known(c)
}

// Error 携带操作名与底层原因的错误.
type Error struct {
	Code Code   // 错误码.
	Op   string // 失败的操作.
	Err  error  // 底层原因, 可为空.
}

// New 构造 *Error.
func New(code Code, op string, cause error) *Error {
	return &Error{Code: code, Op: op, Err: cause}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s: %s", CategoryName, e.Op, e.Code.Error())
	}
	return fmt.Sprintf("%s: %s: %s: %v", CategoryName, e.Op, e.Code.Error(), e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is 与同错误码的 Code 相等.
func (e *Error) Is(target error) bool {
	c, ok := target.(Code)
	return ok && c == e.Code
}

// Of 提取 err 的错误码. nil 返回 OK, 无法识别的错误返回 UnknownError.
func Of(err error) Code {
	if err == nil {
		return OK
	}

	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}

	var c Code
	if errors.As(err, &c) {
		return c
	}

	return UnknownError
}

// IsWarning 判断 err 是否为警告.
func IsWarning(err error) bool {
	return err != nil && Of(err).IsWarning()
}
