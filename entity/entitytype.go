package entity

import (
	"fmt"
	"math"
	"strings"
)

// Direction 路口进口方向（闭合枚举）
// 功能：表示四路路口的四个信号灯头方向
// 说明：只有North/East/South/West四个合法值，用于信控分配的穷举检查
type Direction int8

const (
	North Direction = iota // 北
	East                   // 东
	South                  // 南
	West                   // 西
)

// Directions 按固定顺序列出所有方向
var Directions = [...]Direction{North, East, South, West}

// Valid 判断方向是否为合法枚举值
func (d Direction) Valid() bool {
	return d >= North && d <= West
}

func (d Direction) String() string {
	switch d {
	case North:
		return "N"
	case East:
		return "E"
	case South:
		return "S"
	case West:
		return "W"
	default:
		return fmt.Sprintf("Direction(%d)", int8(d))
	}
}

// Opposite 获取对向方向
func (d Direction) Opposite() Direction {
	return (d + 2) % 4
}

// Perpendicular 获取两个垂直方向
// 功能：返回与当前方向垂直的两个方向（顺时针顺序）
// 说明：默认冲突组即为垂直方向集合
func (d Direction) Perpendicular() [2]Direction {
	return [2]Direction{(d + 1) % 4, (d + 3) % 4}
}

// IsPerpendicular 判断两个方向是否垂直
func (d Direction) IsPerpendicular(other Direction) bool {
	return d.Valid() && other.Valid() && d != other && d.Opposite() != other
}

// ParseDirection 解析方向字符串
// 功能：将N/S/E/W解析为Direction枚举
// 参数：s-方向字符串
// 返回：方向枚举与错误信息，非法输入返回ErrValidation
func ParseDirection(s string) (Direction, error) {
	switch strings.TrimSpace(s) {
	case "N":
		return North, nil
	case "E":
		return East, nil
	case "S":
		return South, nil
	case "W":
		return West, nil
	default:
		return 0, fmt.Errorf("%w: invalid direction %q (must be one of N|S|E|W)", ErrValidation, s)
	}
}

func (d Direction) MarshalText() ([]byte, error) {
	if !d.Valid() {
		return nil, fmt.Errorf("%w: invalid direction %d", ErrValidation, int8(d))
	}
	return []byte(d.String()), nil
}

func (d *Direction) UnmarshalText(b []byte) error {
	v, err := ParseDirection(string(b))
	if err != nil {
		return err
	}
	*d = v
	return nil
}

// NormalizeBearing 将方位角归一化到[0,360)
func NormalizeBearing(bearing float64) float64 {
	b := math.Mod(bearing, 360)
	if b < 0 {
		b += 360
	}
	// -1e-15 % 360 + 360 == 360
	if b >= 360 {
		b = 0
	}
	return b
}

// DirectionFromBearing 根据方位角确定进口方向
// 功能：将车辆指向路口的罗盘方位角映射为四个基本方向之一
// 参数：bearing-方位角（度，任意范围）
// 返回：方向
// 算法说明：以基本方向为中心的90°扇区
//   - [315,360)∪[0,45) -> N
//   - [45,135) -> E
//   - [135,225) -> S
//   - [225,315) -> W
func DirectionFromBearing(bearing float64) Direction {
	b := NormalizeBearing(bearing)
	switch {
	case b >= 315 || b < 45:
		return North
	case b < 135:
		return East
	case b < 225:
		return South
	default:
		return West
	}
}

// LightState 信号灯状态（闭合枚举）
type LightState int8

const (
	Red     LightState = iota // 普通红灯：当前不轮到该方向
	Green                     // 绿灯：优先通行方向
	HardRed                   // 强制红灯：安全锁定，显式解除前不得被其他流程覆盖
)

func (s LightState) String() string {
	switch s {
	case Red:
		return "RED"
	case Green:
		return "GREEN"
	case HardRed:
		return "HARD_RED"
	default:
		return fmt.Sprintf("LightState(%d)", int8(s))
	}
}

func (s LightState) MarshalText() ([]byte, error) {
	switch s {
	case Red, Green, HardRed:
		return []byte(s.String()), nil
	default:
		return nil, fmt.Errorf("%w: invalid light state %d", ErrValidation, int8(s))
	}
}

func (s *LightState) UnmarshalText(b []byte) error {
	switch string(b) {
	case "RED":
		*s = Red
	case "GREEN":
		*s = Green
	case "HARD_RED":
		*s = HardRed
	default:
		return fmt.Errorf("%w: invalid light state %q", ErrValidation, string(b))
	}
	return nil
}

// RoadNode 路网节点，加载后不可变
// 说明：Tag非空表示该节点为信控路口，可作为触发目标；空Tag为形状点
type RoadNode struct {
	ID  int64   `json:"id"`
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
	Tag string  `json:"tag,omitempty"`
}

// IsIntersection 判断节点是否为信控路口
func (n RoadNode) IsIntersection() bool {
	return n.Tag != ""
}

// RoadEdge 路网边，无论原始方向一律按双向处理
type RoadEdge struct {
	Source       int64   `json:"source"`
	Target       int64   `json:"target"`
	LengthMeters float64 `json:"length"`
}

// Route 路径规划结果
// 功能：存储一次路径规划的完整结果，创建后不可变，新路径整体替换旧路径
type Route struct {
	Waypoints           []RoadNode // 完整途经点序列
	Cumulative          []float64  // 每个途经点处的累计距离（米），与Waypoints等长
	Intersections       []RoadNode // 途经点中Tag非空的子序列（保持路径顺序）
	TotalDistanceMeters float64    // 总距离（米）
}

// Telemetry 车辆位置采样
type Telemetry struct {
	VehicleID string  `json:"id"`
	Lat       float64 `json:"lat"`
	Lon       float64 `json:"lon"`
	Timestamp int64   `json:"timestamp"` // Unix秒
}

// VehicleKey 鉴权使用的车辆ID
func (t Telemetry) VehicleKey() string { return t.VehicleID }

// SignalState 单方向信号状态
type SignalState struct {
	Direction Direction  `json:"direction"`
	State     LightState `json:"state"`
	Note      string     `json:"note"`
}

// ActivationStatus 优先请求激活方式
type ActivationStatus string

const (
	Immediate ActivationStatus = "IMMEDIATE"
	Scheduled ActivationStatus = "SCHEDULED"
)

// PriorityRequest 信号优先请求（机器边界字段名必须精确一致）
type PriorityRequest struct {
	AmbulanceID          string   `json:"ambulance_id"`
	SignalID             string   `json:"signal_id"`
	EstimatedArrivalTime *float64 `json:"estimated_arrival_time"`
	IntersectionID       string   `json:"intersection_id,omitempty"`
}

// VehicleKey 鉴权使用的车辆ID
func (r PriorityRequest) VehicleKey() string { return r.AmbulanceID }

// PriorityResult 信号优先响应
type PriorityResult struct {
	Status         ActivationStatus `json:"status"`
	DelaySeconds   float64          `json:"delay_seconds"`
	ActivationTime string           `json:"activation_time"`
	IntersectionID string           `json:"intersection_id"`
	Signals        []SignalState    `json:"signals"`
}

// EventType 广播事件类型
type EventType string

const (
	EventTelemetry    EventType = "telemetry"
	EventTrigger      EventType = "trigger"
	EventBridgeError  EventType = "bridge_error"
	EventSignalUpdate EventType = "signal_update"
	EventActivation   EventType = "activation"
	EventRouteReplace EventType = "route_replaced"
)
