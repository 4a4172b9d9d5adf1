package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/samber/lo"
)

const (
	DefaultListen           = ":51102"
	DefaultProximityM       = 500
	DefaultTTIS             = 20
	DefaultVelocityWindow   = 5
	DefaultWorkers          = 4
	DefaultImmediateETAS    = 20
	DefaultLeadTimeS        = 10
	DefaultBridgeTimeout    = 5 * time.Second
	DefaultSubscriberBuffer = 64
	DefaultSimulateSpeedMS  = 15
	DefaultSimulateInterval = time.Second
	DefaultSimulateVehicle  = "sim-ambulance"

	EngineDijkstra = "dijkstra"
	EngineCH       = "ch"
)

var (
	ErrNoIntersections = errors.New("no managed intersections configured")
)

// RuntimeConfig 运行时配置
// 功能：存储补齐缺省值并校验后的配置
type RuntimeConfig struct {
	All Config   // 全部配置
	C   Corridor // 走廊引擎配置
	S   Signal   // 信控配置
}

// NewRuntimeConfig 根据配置初始化运行时配置
// 功能：补齐缺省值并进行范围校验
// 参数：config-原始配置对象
// 返回：运行时配置与错误信息
// 算法说明：
// 1. 未填写的阈值使用缺省值（500m / 20s / 窗口5 / 4个工作协程）
// 2. 数值必须为正，路由引擎必须为dijkstra或ch
// 3. 未指定缺省路口时使用第一个受控路口
func NewRuntimeConfig(config Config) (*RuntimeConfig, error) {
	if config.Listen == "" {
		config.Listen = DefaultListen
	}
	c := &config.Corridor
	if c.ProximityM == 0 {
		c.ProximityM = DefaultProximityM
	}
	if c.TTIS == 0 {
		c.TTIS = DefaultTTIS
	}
	if c.VelocityWindow == 0 {
		c.VelocityWindow = DefaultVelocityWindow
	}
	if c.Workers == 0 {
		c.Workers = DefaultWorkers
	}
	if c.ProximityM < 0 || c.TTIS < 0 {
		return nil, fmt.Errorf("corridor thresholds must be positive, got proximity_m=%v tti_s=%v", c.ProximityM, c.TTIS)
	}
	if c.VelocityWindow < 1 || c.Workers < 1 {
		return nil, fmt.Errorf("corridor velocity_window and workers must be >= 1, got %d and %d", c.VelocityWindow, c.Workers)
	}

	// 信控时间参数允许显式配置为0，只有缺省时才使用默认值
	s := &config.Signal
	if s.ImmediateETAS == nil {
		s.ImmediateETAS = lo.ToPtr(float64(DefaultImmediateETAS))
	}
	if s.LeadTimeS == nil {
		s.LeadTimeS = lo.ToPtr(float64(DefaultLeadTimeS))
	}
	if *s.ImmediateETAS < 0 || *s.LeadTimeS < 0 {
		return nil, fmt.Errorf("signal timing must not be negative, got immediate_eta_s=%v lead_time_s=%v", *s.ImmediateETAS, *s.LeadTimeS)
	}
	if *s.LeadTimeS > *s.ImmediateETAS {
		// 否则SCHEDULED的延迟可能小于0
		return nil, fmt.Errorf("signal lead_time_s %v must not exceed immediate_eta_s %v", *s.LeadTimeS, *s.ImmediateETAS)
	}
	if s.PrimaryIntersection == "" && len(s.Intersections) > 0 {
		s.PrimaryIntersection = s.Intersections[0].ID
	}

	switch config.Routing.Engine {
	case "":
		config.Routing.Engine = EngineDijkstra
	case EngineDijkstra, EngineCH:
	default:
		return nil, fmt.Errorf("unknown routing engine %q (dijkstra|ch)", config.Routing.Engine)
	}

	if config.Bridge.Timeout == 0 {
		config.Bridge.Timeout = DefaultBridgeTimeout
	}
	if config.Event.SubscriberBuffer == 0 {
		config.Event.SubscriberBuffer = DefaultSubscriberBuffer
	}
	if config.Simulate.SpeedMS == 0 {
		config.Simulate.SpeedMS = DefaultSimulateSpeedMS
	}
	if config.Simulate.Interval == 0 {
		config.Simulate.Interval = DefaultSimulateInterval
	}
	if config.Simulate.Interval < time.Second {
		// 遥测时间戳精度为秒
		return nil, fmt.Errorf("simulate interval must be at least 1s, got %v", config.Simulate.Interval)
	}
	if config.Simulate.SpeedMS < 0 || config.Simulate.NoiseM < 0 {
		return nil, fmt.Errorf("simulate speed_ms and noise_m must not be negative")
	}
	if config.Simulate.DropRate < 0 || config.Simulate.DropRate >= 1 {
		return nil, fmt.Errorf("simulate drop_rate must be in [0,1), got %v", config.Simulate.DropRate)
	}
	if config.Simulate.VehicleID == "" {
		config.Simulate.VehicleID = DefaultSimulateVehicle
	}

	return &RuntimeConfig{
		All: config,
		C:   config.Corridor,
		S:   config.Signal,
	}, nil
}
