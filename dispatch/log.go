package dispatch

import (
	"os"

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

func lfdSignal(sig os.Signal) zap.Field {
	return zap.Stringer("signal", sig)
}

func lfdCode(code errcode.Code) zap.Field {
	return zap.Int("code", int(code))
}

func lfdReason(code errcode.Code) zap.Field {
	return zap.String("reason", code.Error())
}
