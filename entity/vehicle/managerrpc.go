package vehicle

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"connectrpc.com/connect"
	"github.com/paulmach/orb"
	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/greenwave/entity"
	"github.com/tsinghua-fib-lab/greenwave/entity/route"
	"github.com/tsinghua-fib-lab/greenwave/utils/rpc"
)

const (
	CorridorServiceName = "greenwave.corridor.v1.CorridorService"

	TelemetryProcedure    = "/" + CorridorServiceName + "/Telemetry"
	SetRouteProcedure     = "/" + CorridorServiceName + "/SetRoute"
	ClearRouteProcedure   = "/" + CorridorServiceName + "/ClearRoute"
	ResetVehicleProcedure = "/" + CorridorServiceName + "/ResetVehicle"
)

// LatLon 请求中的坐标
type LatLon struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

func (p LatLon) point() orb.Point {
	return orb.Point{p.Lon, p.Lat}
}

// SetRouteRequest 设置路径请求，start/end与waypoints二选一
type SetRouteRequest struct {
	Start     *LatLon  `json:"start,omitempty"`
	End       *LatLon  `json:"end,omitempty"`
	Waypoints []LatLon `json:"waypoints,omitempty"`
}

// RouteIntersection 路径上的路口
type RouteIntersection struct {
	ID        string  `json:"id"`
	Lat       float64 `json:"lat"`
	Lon       float64 `json:"lon"`
	Tag       string  `json:"tag"`
	DistanceM float64 `json:"distance_m"` // 距起点的路径距离
}

type SetRouteResponse struct {
	TotalDistanceM float64             `json:"total_distance_m"`
	Waypoints      []entity.RoadNode   `json:"waypoints"`
	Geometry       json.RawMessage     `json:"geometry"`
	Intersections  []RouteIntersection `json:"intersections"`
}

type ResetVehicleRequest struct {
	ID string `json:"id"`
}

type Empty struct{}

// Register 将车辆管理器注册为CorridorService
// 参数：mux-HTTP路由，opts-处理器选项（拦截器等）
func (m *Manager) Register(mux *http.ServeMux, opts ...connect.HandlerOption) {
	opts = rpc.HandlerOptions(opts...)
	mux.Handle(TelemetryProcedure, connect.NewUnaryHandler(TelemetryProcedure, m.Telemetry, opts...))
	mux.Handle(SetRouteProcedure, connect.NewUnaryHandler(SetRouteProcedure, m.SetRouteRPC, opts...))
	mux.Handle(ClearRouteProcedure, connect.NewUnaryHandler(ClearRouteProcedure, m.ClearRouteRPC, opts...))
	mux.Handle(ResetVehicleProcedure, connect.NewUnaryHandler(ResetVehicleProcedure, m.ResetVehicleRPC, opts...))
}

// Telemetry RPC接口：上报车辆位置
// 说明：路网加载期间返回Unavailable，字段非法返回InvalidArgument
func (m *Manager) Telemetry(
	ctx context.Context, in *connect.Request[entity.Telemetry],
) (*connect.Response[entity.TelemetryDigest], error) {
	digest, err := m.ProcessTelemetry(ctx, *in.Msg)
	if err != nil {
		return nil, rpc.ToConnectError(err)
	}
	return connect.NewResponse(digest), nil
}

// SetRouteRPC RPC接口：规划并替换当前路径
// 功能：将起终点或途经点吸附到路网后规划路径，成功后整体替换被跟踪的路口序列
// 参数：ctx-上下文，in-起终点或途经点序列
// 返回：路径总距离、途经点、GeoJSON几何与路口列表
// 说明：规划失败时不修改当前路径
func (m *Manager) SetRouteRPC(
	ctx context.Context, in *connect.Request[SetRouteRequest],
) (*connect.Response[SetRouteResponse], error) {
	req := in.Msg
	var points []orb.Point
	switch {
	case len(req.Waypoints) > 0:
		if req.Start != nil || req.End != nil {
			return nil, rpc.ToConnectError(fmt.Errorf("%w: start/end and waypoints are mutually exclusive", entity.ErrValidation))
		}
		points = lo.Map(req.Waypoints, func(p LatLon, _ int) orb.Point { return p.point() })
	case req.Start != nil && req.End != nil:
		points = []orb.Point{req.Start.point(), req.End.point()}
	default:
		return nil, rpc.ToConnectError(fmt.Errorf("%w: either start and end or waypoints are required", entity.ErrValidation))
	}
	r, err := m.ctx.Router().FindWaypoints(points)
	if err != nil {
		if route.IsNoRoute(err) {
			log.Warnf("route rejected, waypoints %v are not connected: %v", points, err)
		}
		return nil, rpc.ToConnectError(err)
	}
	geometry, err := route.Geometry(r)
	if err != nil {
		return nil, rpc.ToConnectError(fmt.Errorf("%w: %v", entity.ErrInternal, err))
	}
	m.SetRoute(r)

	// 路口按首次经过处计算距离
	cumulative := make(map[int64]float64, len(r.Intersections))
	for i, w := range r.Waypoints {
		if _, ok := cumulative[w.ID]; !ok {
			cumulative[w.ID] = r.Cumulative[i]
		}
	}
	return connect.NewResponse(&SetRouteResponse{
		TotalDistanceM: r.TotalDistanceMeters,
		Waypoints:      r.Waypoints,
		Geometry:       geometry,
		Intersections: lo.Map(r.Intersections, func(n entity.RoadNode, _ int) RouteIntersection {
			return RouteIntersection{
				ID:        route.IntersectionID(n),
				Lat:       n.Lat,
				Lon:       n.Lon,
				Tag:       n.Tag,
				DistanceM: cumulative[n.ID],
			}
		}),
	}), nil
}

// ClearRouteRPC RPC接口：清除当前路径
func (m *Manager) ClearRouteRPC(
	ctx context.Context, in *connect.Request[Empty],
) (*connect.Response[Empty], error) {
	m.ClearRoute()
	return connect.NewResponse(&Empty{}), nil
}

// ResetVehicleRPC RPC接口：重置车辆速度历史
func (m *Manager) ResetVehicleRPC(
	ctx context.Context, in *connect.Request[ResetVehicleRequest],
) (*connect.Response[Empty], error) {
	if err := m.ResetVehicle(ctx, in.Msg.ID); err != nil {
		return nil, rpc.ToConnectError(err)
	}
	return connect.NewResponse(&Empty{}), nil
}
