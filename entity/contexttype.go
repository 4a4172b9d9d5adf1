package entity

import (
	"github.com/tsinghua-fib-lab/greenwave/clock"
	"github.com/tsinghua-fib-lab/greenwave/utils/config"
)

type ITaskContext interface {
	Clock() clock.Clock
	RuntimeConfig() *config.RuntimeConfig
	Ready() bool
	Router() IRouter
	JunctionManager() IJunctionManager
	VehicleManager() IVehicleManager
	Bridge() IBridge
	Publisher() IPublisher
}
