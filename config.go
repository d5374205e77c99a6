package gtimer

import (
	"errors"
	"math"
	"syscall"
	"time"

	"github.com/godyy/gtimer/errcode"
	"github.com/godyy/gtimer/kernel"
)

// Callback 定时器回调函数. data 为 Config.Data.
type Callback func(data any)

// Config 定时器配置. 构造定时器后不可修改.
type Config struct {
	// PeriodSec 定时周期的秒数部分.
	PeriodSec int64

	// PeriodNsec 定时周期的纳秒部分.
	// 周期 = PeriodSec * 10^9 + PeriodNsec 纳秒, 必须大于 0.
	PeriodNsec int64

	// Callback 到期回调, 可为空.
	Callback Callback

	// Data 透传给 Callback 的用户数据, 定时器不持有其所有权.
	Data any

	// SingleShot 为 true 时定时器只到期一次, 之后自动停止.
	SingleShot bool

	// Signal 内核投递到期通知使用的实时信号. 为 0 时使用 kernel.SigRTMax.
	Signal syscall.Signal

	// Clock 内核定时器时钟, 默认 kernel.ClockRealtime.
	Clock kernel.Clock
}

func (c *Config) init() error {
	if c == nil {
		return errors.New("Config nil")
	}

	if c.PeriodSec < 0 || c.PeriodNsec < 0 {
		return errcode.New(errcode.InvalidPeriod, "new", errors.New("Config.PeriodSec and Config.PeriodNsec must >= 0"))
	}

	if c.PeriodSec > (math.MaxInt64-c.PeriodNsec)/int64(time.Second) {
		return errcode.New(errcode.InvalidPeriod, "new", errors.New("Config period overflow"))
	}

	if c.Period() <= 0 {
		return errcode.New(errcode.InvalidPeriod, "new", errors.New("Config period must > 0"))
	}

	if c.Signal == 0 {
		c.Signal = kernel.SigRTMax
	}

	return nil
}

// Period 定时周期.
func (c *Config) Period() time.Duration {
	return time.Duration(c.PeriodSec)*time.Second + time.Duration(c.PeriodNsec)
}
