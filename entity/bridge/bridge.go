package bridge

import (
	"context"
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/tsinghua-fib-lab/greenwave/entity"
)

var ErrNoManagedIntersection = fmt.Errorf("%w: no managed intersection configured", entity.ErrBridge)

// etaEpsilon 取整前扣除的浮点误差，与触发判定的边界容差一致
const etaEpsilon = 1e-9

// PriorityClient 信号优先请求的下游
type PriorityClient interface {
	RequestPriority(ctx context.Context, req entity.PriorityRequest) (*entity.PriorityResult, error)
}

// IntersectionSource 受控路口列表
type IntersectionSource interface {
	List() []entity.IJunction
}

// Bridge 走廊触发到信控请求的桥接
// 功能：把路网上的触发路口解析为受控路口与进口方向，转发信号优先请求
type Bridge struct {
	source IntersectionSource
	client PriorityClient
}

// New 创建桥接
// 参数：source-受控路口列表，client-信号优先请求下游
func New(source IntersectionSource, client PriorityClient) *Bridge {
	return &Bridge{source: source, client: client}
}

// Nearest 最近的受控路口
// 功能：对受控路口做穷举线性扫描，按球面距离取最近者
// 说明：受控路口数量很少，不需要空间索引
func Nearest(junctions []entity.IJunction, p orb.Point) (entity.IJunction, float64, bool) {
	var (
		best entity.IJunction
		dist = math.Inf(1)
	)
	for _, j := range junctions {
		if d := geo.DistanceHaversine(p, j.Position()); d < dist {
			best, dist = j, d
		}
	}
	return best, dist, best != nil
}

// ApproachDirection 车辆驶向路口的进口方向
// 功能：由车辆指向路口的方位角确定信号灯头方向
func ApproachDirection(vehiclePos, intersectionPos orb.Point) entity.Direction {
	return entity.DirectionFromBearing(entity.NormalizeBearing(geo.Bearing(vehiclePos, intersectionPos)))
}

// ResolveAndRequest 解析受控路口与方向并请求信号优先
// 参数：ctx-上下文，vehicleID-车辆ID，vehiclePos-车辆位置，intersectionPos-触发路口位置，ttiS-预计到达时间（秒）
// 返回：信号优先响应与错误信息
// 算法说明：
// 1. 以触发路口位置查找最近的受控路口
// 2. 车辆到触发路口的方位角映射为进口方向
// 3. 到达时间向上取整后转发（先扣除浮点误差，恰好20s的样本转发20而不是21）
//
// 说明：所有失败都包装为ErrBridge，调用方只记录不回滚触发
func (b *Bridge) ResolveAndRequest(
	ctx context.Context,
	vehicleID string,
	vehiclePos, intersectionPos orb.Point,
	ttiS float64,
) (*entity.PriorityResult, error) {
	j, dist, ok := Nearest(b.source.List(), intersectionPos)
	if !ok {
		return nil, ErrNoManagedIntersection
	}
	if math.IsNaN(ttiS) || math.IsInf(ttiS, 0) || ttiS < 0 {
		return nil, fmt.Errorf("%w: invalid time to intersection %v", entity.ErrBridge, ttiS)
	}
	dir := ApproachDirection(vehiclePos, intersectionPos)
	eta := math.Max(0, math.Ceil(ttiS-etaEpsilon))
	log.Debugf("vehicle %s resolved to intersection %s (%.1fm away) from %v, eta %.0fs",
		vehicleID, j.ID(), dist, dir, eta)

	res, err := b.client.RequestPriority(ctx, entity.PriorityRequest{
		AmbulanceID:          vehicleID,
		SignalID:             dir.String(),
		EstimatedArrivalTime: &eta,
		IntersectionID:       j.ID(),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: priority request for %s at %s: %v", entity.ErrBridge, vehicleID, j.ID(), err)
	}
	return res, nil
}
