package gtimer

import (
	"syscall"
	"time"

	"github.com/godyy/glog"
	"github.com/godyy/gtimer/errcode"
	"go.uber.org/zap"
)

// createStdLogger 创建标准输出 logger. debug 为 true 时输出调试日志, 否则只输出警告及以上.
func createStdLogger(debug bool) glog.Logger {
	level := glog.WarnLevel
	if debug {
		level = glog.DebugLevel
	}
	return glog.NewLogger(&glog.Config{
		Level:        level,
		EnableCaller: true,
		CallerSkip:   0,
		Development:  true,
		Cores:        []glog.CoreConfig{glog.NewStdCoreConfig()},
	})
}

func lfdError(err error) zap.Field {
	return zap.NamedError("error", err)
}

func lfdSignal(sig syscall.Signal) zap.Field {
	return zap.Int("signal", int(sig))
}

func lfdPeriod(period time.Duration) zap.Field {
	return zap.Duration("period", period)
}

func lfdSingleShot(singleShot bool) zap.Field {
	return zap.Bool("singleShot", singleShot)
}

func lfdState(state State) zap.Field {
	return zap.Stringer("state", state)
}

func lfdFrom(state State) zap.Field {
	return zap.Stringer("from", state)
}

func lfdTrigger(trigger string) zap.Field {
	return zap.String("trigger", trigger)
}

func lfdCode(code errcode.Code) zap.Field {
	return zap.Int("code", int(code))
}

func lfdRemaining(remaining time.Duration) zap.Field {
	return zap.Duration("remaining", remaining)
}

func lfdOverrun(n int) zap.Field {
	return zap.Int("overrun", n)
}
