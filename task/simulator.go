package task

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/paulmach/orb"
	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/greenwave/entity"
	"github.com/tsinghua-fib-lab/greenwave/utils/config"
	"github.com/tsinghua-fib-lab/greenwave/utils/randengine"
)

// Simulator 行驶模拟器
// 功能：让一辆虚拟车辆以恒定速度沿当前路径行驶，按固定间隔上报带噪声的位置
// 说明：不需要现场设备即可驱动完整的走廊触发流程
type Simulator struct {
	ctx       entity.ITaskContext
	cfg       config.Simulate
	generator *randengine.Engine
}

// NewSimulator 创建行驶模拟器
func NewSimulator(ctx entity.ITaskContext) *Simulator {
	cfg := ctx.RuntimeConfig().All.Simulate
	return &Simulator{
		ctx:       ctx,
		cfg:       cfg,
		generator: randengine.New(cfg.Seed),
	}
}

// Samples 生成沿路径行驶的位置采样
// 功能：纯函数，按路径累计距离线性插值
// 参数：r-路径，startTS-首个采样的Unix秒
// 返回：从起点到终点的位置采样序列（终点总是最后一个采样）
func (s *Simulator) Samples(r *entity.Route, startTS int64) []entity.Telemetry {
	step := s.cfg.SpeedMS * s.cfg.Interval.Seconds()
	dt := int64(math.Round(s.cfg.Interval.Seconds()))
	res := make([]entity.Telemetry, 0)
	if len(r.Waypoints) == 0 || step <= 0 {
		return res
	}
	k := int64(0)
	emit := func(p orb.Point) {
		p = s.generator.Jitter(p, s.cfg.NoiseM)
		res = append(res, entity.Telemetry{
			VehicleID: s.cfg.VehicleID,
			Lat:       p.Lat(),
			Lon:       p.Lon(),
			Timestamp: startTS + k*dt,
		})
		k++
	}
	seg := 0
	for d := 0.0; d < r.TotalDistanceMeters; d += step {
		for seg+1 < len(r.Waypoints)-1 && r.Cumulative[seg+1] <= d {
			seg++
		}
		emit(interpolate(r, seg, d))
	}
	last := lo.Must(lo.Last(r.Waypoints))
	emit(orb.Point{last.Lon, last.Lat})
	return res
}

func interpolate(r *entity.Route, seg int, d float64) orb.Point {
	a := r.Waypoints[seg]
	if seg+1 >= len(r.Waypoints) {
		return orb.Point{a.Lon, a.Lat}
	}
	b := r.Waypoints[seg+1]
	length := r.Cumulative[seg+1] - r.Cumulative[seg]
	f := 0.0
	if length > 0 {
		f = math.Min(1, (d-r.Cumulative[seg])/length)
	}
	return orb.Point{a.Lon + (b.Lon-a.Lon)*f, a.Lat + (b.Lat-a.Lat)*f}
}

// Run 规划模拟路线并按间隔上报
// 功能：等待路网就绪，按配置途经点规划路径并设为当前路径，然后逐个上报采样
// 参数：c-上下文，取消后停止
// 返回：错误信息，正常行驶到终点返回nil
func (s *Simulator) Run(c context.Context) error {
	if len(s.cfg.Waypoints) < 2 {
		return fmt.Errorf("%w: simulate.waypoints needs at least 2 points", entity.ErrValidation)
	}
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	for !s.ctx.Ready() {
		select {
		case <-c.Done():
			return nil
		case <-ticker.C:
		}
	}
	r, err := s.ctx.Router().FindWaypoints(lo.Map(s.cfg.Waypoints, func(p config.Point, _ int) orb.Point {
		return orb.Point{p.Lon, p.Lat}
	}))
	if err != nil {
		return err
	}
	s.ctx.VehicleManager().SetRoute(r)
	samples := s.Samples(r, s.ctx.Clock().Now().Unix())
	log.Infof("simulating %s over %.0fm with %d samples", s.cfg.VehicleID, r.TotalDistanceMeters, len(samples))

	for _, t := range samples {
		if s.dropped() {
			log.Debugf("simulated sample %d lost", t.Timestamp)
		} else if digest, err := s.ctx.VehicleManager().ProcessTelemetry(c, t); err != nil {
			log.Warnf("simulated telemetry rejected: %v", err)
		} else if len(digest.Fired) > 0 {
			log.Infof("simulated vehicle fired %v", digest.Fired)
		}
		select {
		case <-c.Done():
			return nil
		case <-ticker.C:
		}
	}
	log.Infof("simulated vehicle %s arrived", s.cfg.VehicleID)
	return nil
}

// dropped 本次采样是否丢失
func (s *Simulator) dropped() bool {
	return s.cfg.DropRate > 0 && s.generator.PTrueSafe(s.cfg.DropRate)
}
