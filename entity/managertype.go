package entity

import (
	"context"
	"net/http"

	"connectrpc.com/connect"
	"github.com/paulmach/orb"
)

// Manager依赖倒置

// entity/road/graph.go的依赖倒置
type IRoadGraph interface {
	// 输入节点ID，查找节点
	Node(id int64) (RoadNode, bool)
	// 将任意坐标吸附到最近的路网节点
	NearestNode(lat, lon float64) (RoadNode, error)
	// 邻接边（双向）
	Neighbors(id int64) []Arc

	NumNodes() int
	NumEdges() int
}

// Arc 邻接表中的一条出边
type Arc struct {
	To     int64
	Length float64
}

// entity/route/router.go的依赖倒置
type IRouter interface {
	Ready() bool // 路网是否加载完成

	// 单段最短路
	FindRoute(src, dst int64) (*Route, error)
	// 多段路径（按节点ID序列逐段求解后拼接）
	FindMultiLeg(nodeIDs []int64) (*Route, error)
	// 多段路径（坐标先吸附到路网）
	FindWaypoints(points []orb.Point) (*Route, error)
}

// entity/vehicle/manager.go的依赖倒置
type IVehicleManager interface {
	Register(mux *http.ServeMux, opts ...connect.HandlerOption) // 注册RPC服务

	SetRoute(r *Route) // 整体替换当前路径的路口序列
	ClearRoute()       // 清除当前路径，回到兜底目标
	// 处理一次位置采样
	ProcessTelemetry(ctx context.Context, t Telemetry) (*TelemetryDigest, error)
	// 重置车辆状态
	ResetVehicle(ctx context.Context, vehicleID string) error

	Close()
}

// entity/junction/junction.go的依赖倒置
type IJunction interface {
	ID() string
	Position() orb.Point
	ConflictGroup(d Direction) []Direction
}

// entity/junction/manager.go的依赖倒置
type IJunctionManager interface {
	Register(mux *http.ServeMux, opts ...connect.HandlerOption) // 注册RPC服务

	// 输入路口ID，查找路口，如果不存在则返回error
	GetOrError(id string) (IJunction, error)
	// 所有受控路口
	List() []IJunction
	// 缺省路口ID
	PrimaryID() string

	// 立即应用优先覆盖
	Override(id string, target Direction) ([]SignalState, error)
	// 解除覆盖（包括HARD_RED锁定）
	Clear(id string) ([]SignalState, error)
	// 当前信号快照
	Snapshot(id string) ([]SignalState, error)
	// 信号优先请求（含预到达调度）
	RequestPriority(ctx context.Context, req PriorityRequest) (*PriorityResult, error)
	// 取消车辆尚未触发的延迟激活通知
	CancelActivations(vehicleID string) int

	Close()
}

// entity/bridge/bridge.go的依赖倒置
type IBridge interface {
	ResolveAndRequest(
		ctx context.Context,
		vehicleID string,
		vehiclePos, intersectionPos orb.Point,
		ttiS float64,
	) (*PriorityResult, error)
}

// entity/event/hub.go的依赖倒置
type IPublisher interface {
	Publish(t EventType, payload any)
}

// PendingTarget 最近的待触发路口
type PendingTarget struct {
	ID        string   `json:"id"`
	Lat       float64  `json:"lat"`
	Lon       float64  `json:"lon"`
	DistanceM float64  `json:"distance_m"`
	TTIS      *float64 `json:"tti_s"` // nil表示无穷大
}

// TelemetryDigest 每次采样产出的遥测摘要，无论是否触发都会广播
type TelemetryDigest struct {
	VehicleID     string         `json:"id"`
	Lat           float64        `json:"lat"`
	Lon           float64        `json:"lon"`
	Timestamp     int64          `json:"timestamp"`
	RawSpeed      float64        `json:"raw_speed"`
	SmoothedSpeed float64        `json:"smoothed_speed"`
	Next          *PendingTarget `json:"next_intersection,omitempty"`
	Triggered     int            `json:"triggered"`
	Remaining     int            `json:"remaining"`
	Fired         []string       `json:"fired,omitempty"`
	Fallback      bool           `json:"fallback,omitempty"`
}

// TriggerEvent 路口触发事件
type TriggerEvent struct {
	VehicleID      string  `json:"vehicle_id"`
	IntersectionID string  `json:"intersection_id"`
	Lat            float64 `json:"lat"`
	Lon            float64 `json:"lon"`
	DistanceM      float64 `json:"distance_m"`
	TTIS           float64 `json:"tti_s"`
	Timestamp      int64   `json:"timestamp"`
}
