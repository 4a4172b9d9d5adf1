package junction

import (
	"context"
	"errors"
	"net/http"

	"connectrpc.com/connect"
	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/greenwave/entity"
	"github.com/tsinghua-fib-lab/greenwave/utils/rpc"
)

const (
	SignalServiceName = "greenwave.signal.v1.SignalService"

	RequestPriorityProcedure = "/" + SignalServiceName + "/RequestPriority"
	GetIntersectionProcedure = "/" + SignalServiceName + "/GetIntersection"
	ClearOverrideProcedure   = "/" + SignalServiceName + "/ClearOverride"
)

type IntersectionRequest struct {
	ID string `json:"id"`
}

type IntersectionResponse struct {
	ID             string               `json:"id"`
	Lat            float64              `json:"lat"`
	Lon            float64              `json:"lon"`
	Primary        bool                 `json:"primary"`
	ConflictGroups map[string][]string  `json:"conflict_groups,omitempty"`
	Signals        []entity.SignalState `json:"signals"`
}

// Register 将Junction管理器注册为SignalService
// 参数：mux-HTTP路由，opts-处理器选项（拦截器等）
func (m *JunctionManager) Register(mux *http.ServeMux, opts ...connect.HandlerOption) {
	opts = rpc.HandlerOptions(opts...)
	mux.Handle(RequestPriorityProcedure, connect.NewUnaryHandler(RequestPriorityProcedure, m.RequestPriorityRPC, opts...))
	mux.Handle(GetIntersectionProcedure, connect.NewUnaryHandler(GetIntersectionProcedure, m.GetIntersection, opts...))
	mux.Handle(ClearOverrideProcedure, connect.NewUnaryHandler(ClearOverrideProcedure, m.ClearOverride, opts...))
}

// signalError 信控接口的错误映射
// 说明：未知路口与字段非法都是调用方错误（400），内部错误只返回消息不返回快照
func signalError(err error) error {
	switch {
	case errors.Is(err, entity.ErrValidation), errors.Is(err, entity.ErrNotFound):
		return connect.NewError(connect.CodeInvalidArgument, err)
	default:
		return connect.NewError(connect.CodeInternal, err)
	}
}

// RequestPriorityRPC RPC接口：信号优先请求
// 功能：处理救护车的信号优先请求，返回激活方式与信号快照
// 参数：ctx-上下文，in-{ambulance_id, signal_id, estimated_arrival_time, intersection_id?}
// 返回：{status, delay_seconds, activation_time, intersection_id, signals}
func (m *JunctionManager) RequestPriorityRPC(
	ctx context.Context, in *connect.Request[entity.PriorityRequest],
) (*connect.Response[entity.PriorityResult], error) {
	res, err := m.RequestPriority(ctx, *in.Msg)
	if err != nil {
		return nil, signalError(err)
	}
	return connect.NewResponse(res), nil
}

// GetIntersection RPC接口：获取路口配置与当前信号快照
func (m *JunctionManager) GetIntersection(
	ctx context.Context, in *connect.Request[IntersectionRequest],
) (*connect.Response[IntersectionResponse], error) {
	id := in.Msg.ID
	if id == "" {
		id = m.primary
	}
	j, err := m.GetOrError(id)
	if err != nil {
		return nil, signalError(err)
	}
	snapshot, err := m.Snapshot(id)
	if err != nil {
		return nil, signalError(err)
	}
	groups := make(map[string][]string, len(entity.Directions))
	for _, d := range entity.Directions {
		groups[d.String()] = lo.Map(j.ConflictGroup(d), func(c entity.Direction, _ int) string { return c.String() })
	}
	pos := j.Position()
	return connect.NewResponse(&IntersectionResponse{
		ID:             id,
		Lat:            pos.Lat(),
		Lon:            pos.Lon(),
		Primary:        id == m.primary,
		ConflictGroups: groups,
		Signals:        snapshot,
	}), nil
}

// ClearOverride RPC接口：解除路口的优先覆盖与HARD_RED锁定
func (m *JunctionManager) ClearOverride(
	ctx context.Context, in *connect.Request[IntersectionRequest],
) (*connect.Response[IntersectionResponse], error) {
	id := in.Msg.ID
	if id == "" {
		id = m.primary
	}
	snapshot, err := m.Clear(id)
	if err != nil {
		return nil, signalError(err)
	}
	return connect.NewResponse(&IntersectionResponse{
		ID:      id,
		Primary: id == m.primary,
		Signals: snapshot,
	}), nil
}
