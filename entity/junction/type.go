package junction

import (
	"github.com/sirupsen/logrus"
	"github.com/tsinghua-fib-lab/greenwave/entity"
	"github.com/tsinghua-fib-lab/greenwave/entity/junction/trafficlight"
)

var log = logrus.WithField("module", "junction")

// 依赖倒置，表达junction对预到达调度实现的接口需求

type IActivationScheduler interface {
	// 计算激活方式与延迟（不启动定时器）
	Decide(etaS float64) (entity.ActivationStatus, float64, error)
	// 调度一次激活，SCHEDULED时启动延迟通知
	Schedule(req trafficlight.Request) (trafficlight.Activation, error)
	Cancel(vehicleID string) int // 取消车辆的延迟通知（空字符串表示全部）
	CancelAll() int              // 取消所有延迟通知
	Pending() int                // 尚未触发的延迟通知数量
}
