package gtimer

import (
	"sync"
	"syscall"

	"github.com/godyy/gtimer/dispatch"
)

// registry 进程内唯一的信号分发表.
var registry = sync.OnceValue(func() *dispatch.Registry[Timer] {
	return dispatch.NewRegistry(deliverExpiration)
})

// deliverExpiration 将到期通知投递给定时器.
func deliverExpiration(t *Timer, _ syscall.Signal) {
	t.impl.notify()
}
