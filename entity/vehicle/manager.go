package vehicle

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"sync"

	"github.com/paulmach/orb"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
	"github.com/tsinghua-fib-lab/greenwave/entity"
	"github.com/tsinghua-fib-lab/greenwave/entity/road"
	"github.com/tsinghua-fib-lab/greenwave/entity/route"
	"github.com/tsinghua-fib-lab/greenwave/utils/config"
)

var (
	ErrInvalidTelemetry = fmt.Errorf("%w: invalid telemetry", entity.ErrValidation)
	ErrClosed           = fmt.Errorf("%w: corridor engine is shutting down", entity.ErrNotReady)
)

// TrackedIntersection 当前路径上被跟踪的路口
// 说明：状态只有PENDING -> TRIGGERED一种转移，Triggered一旦为true不再回退
type TrackedIntersection struct {
	ID          string
	Node        entity.RoadNode
	Triggered   bool
	TriggeredBy string // 触发车辆
	TriggeredAt int64  // 触发时的采样时间戳
}

func (t *TrackedIntersection) position() orb.Point {
	return road.Position(t.Node)
}

// firedTrigger 本次采样触发的路口（锁外处理）
type firedTrigger struct {
	target entity.RoadNode
	event  entity.TriggerEvent
}

// Manager 走廊编排器（车辆管理器）
// 功能：持有每辆车的跟踪状态与当前路径的路口序列，处理位置采样并在满足条件时触发信控
// 说明：
//   - 车辆状态按车辆ID哈希分区到固定的工作协程，同一辆车的采样串行处理，无需加锁
//   - 路口序列被所有车辆共享，通过mtx保护，触发标记在锁内完成保证每个路口只触发一次
//   - 信控桥接调用在后台协程中执行，失败只记录日志与广播，不回滚触发标记也不阻塞采样处理
type Manager struct {
	ctx entity.ITaskContext
	cfg config.Corridor

	mtx      sync.Mutex
	targets  []*TrackedIntersection
	fallback bool // 当前是否处于兜底目标模式

	workers  []*worker
	workerWg sync.WaitGroup
	bridgeWg sync.WaitGroup // 进行中的桥接调用

	done      chan struct{}
	closeOnce sync.Once
}

// NewManager 创建车辆管理器并启动工作协程
// 参数：ctx-任务上下文
// 返回：车辆管理器
// 说明：初始处于兜底目标模式（未配置兜底目标时没有任何可触发目标）
func NewManager(ctx entity.ITaskContext) *Manager {
	cfg := ctx.RuntimeConfig().C
	m := &Manager{
		ctx:     ctx,
		cfg:     cfg,
		workers: make([]*worker, cfg.Workers),
		done:    make(chan struct{}),
	}
	m.targets = m.fallbackTargets()
	m.fallback = true
	for i := range m.workers {
		m.workers[i] = newWorker(m, i)
		m.workerWg.Add(1)
		go func(w *worker) {
			defer m.workerWg.Done()
			w.run()
		}(m.workers[i])
	}
	return m
}

func (m *Manager) fallbackTargets() []*TrackedIntersection {
	f := m.cfg.Fallback
	if f == nil {
		return nil
	}
	return []*TrackedIntersection{{
		ID:   f.ID,
		Node: entity.RoadNode{ID: -1, Lat: f.Lat, Lon: f.Lon, Tag: "fallback"},
	}}
}

// SetRoute 整体替换当前路径的路口序列
// 功能：新任务完全取代旧任务，所有路口从PENDING开始，旧路径的触发状态不可能残留
// 参数：r-新路径
func (m *Manager) SetRoute(r *entity.Route) {
	targets := lo.Map(r.Intersections, func(n entity.RoadNode, _ int) *TrackedIntersection {
		return &TrackedIntersection{ID: route.IntersectionID(n), Node: n}
	})
	m.mtx.Lock()
	old := m.targets
	m.targets = targets
	m.fallback = false
	m.mtx.Unlock()

	log.Infof("route replaced: %d waypoints, %d intersections, %.1fm",
		len(r.Waypoints), len(targets), r.TotalDistanceMeters)
	m.ctx.Publisher().Publish(entity.EventRouteReplace, map[string]any{
		"total_distance_m": r.TotalDistanceMeters,
		"waypoints":        len(r.Waypoints),
		"intersections":    lo.Map(targets, func(t *TrackedIntersection, _ int) string { return t.ID }),
	})
	m.cancelStaleActivations(old)
}

// ClearRoute 清除当前路径，回到兜底目标
func (m *Manager) ClearRoute() {
	m.mtx.Lock()
	old := m.targets
	m.targets = m.fallbackTargets()
	m.fallback = true
	m.mtx.Unlock()

	log.Info("route cleared, back to fallback target")
	m.ctx.Publisher().Publish(entity.EventRouteReplace, map[string]any{
		"total_distance_m": 0.0,
		"waypoints":        0,
		"intersections":    []string{},
	})
	m.cancelStaleActivations(old)
}

// cancelStaleActivations 取消被替换路径上触发车辆尚未到期的延迟激活
// 说明：只影响在旧路径上触发过路口的车辆，其他车辆的激活不受影响
func (m *Manager) cancelStaleActivations(old []*TrackedIntersection) {
	if !m.ctx.RuntimeConfig().S.CancelStaleActivations {
		return
	}
	vehicles := lo.Uniq(lo.FilterMap(old, func(t *TrackedIntersection, _ int) (string, bool) {
		return t.TriggeredBy, t.Triggered && t.TriggeredBy != ""
	}))
	n := 0
	for _, v := range vehicles {
		n += m.ctx.JunctionManager().CancelActivations(v)
	}
	if n > 0 {
		log.Infof("cancelled %d stale scheduled activations of %v", n, vehicles)
	}
}

// Tracked 当前路口序列的副本
func (m *Manager) Tracked() []TrackedIntersection {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	return lo.Map(m.targets, func(t *TrackedIntersection, _ int) TrackedIntersection { return *t })
}

// ProcessTelemetry 处理一次位置采样
// 功能：更新车辆速度估计，对所有待触发路口评估TTI，首次同时满足距离与时间条件时触发
// 参数：ctx-上下文，t-位置采样
// 返回：遥测摘要与错误信息
// 算法说明：
// 1. 校验字段，路网未加载时返回ErrNotReady
// 2. 根据车辆ID路由到所属工作协程，避免同一车辆的采样并发处理
// 3. 工作协程内：获取或创建车辆状态，计算瞬时速度并平滑
// 4. 对所有未触发路口评估，满足条件的标记为已触发、广播触发事件并异步调用信控桥接
// 5. 无论是否触发都广播遥测摘要
func (m *Manager) ProcessTelemetry(ctx context.Context, t entity.Telemetry) (*entity.TelemetryDigest, error) {
	if err := validateTelemetry(t); err != nil {
		return nil, err
	}
	if !m.ctx.Ready() {
		return nil, fmt.Errorf("%w: road graph is still loading", entity.ErrNotReady)
	}
	res, err := m.submit(ctx, job{kind: jobTelemetry, telemetry: t})
	if err != nil {
		return nil, err
	}
	return res.digest, nil
}

// ResetVehicle 重置车辆的位置历史与速度窗口
func (m *Manager) ResetVehicle(ctx context.Context, vehicleID string) error {
	if vehicleID == "" {
		return fmt.Errorf("%w: missing vehicle id", ErrInvalidTelemetry)
	}
	_, err := m.submit(ctx, job{kind: jobReset, telemetry: entity.Telemetry{VehicleID: vehicleID}})
	return err
}

func (m *Manager) submit(ctx context.Context, j job) (jobResult, error) {
	j.result = make(chan jobResult, 1)
	w := m.workers[partition(j.telemetry.VehicleID, len(m.workers))]
	select {
	case w.jobs <- j:
	case <-m.done:
		return jobResult{}, ErrClosed
	case <-ctx.Done():
		return jobResult{}, ctx.Err()
	}
	select {
	case res := <-j.result:
		return res, nil
	case <-m.done:
		return jobResult{}, ErrClosed
	case <-ctx.Done():
		return jobResult{}, ctx.Err()
	}
}

// partition 车辆ID到工作协程的映射（FNV-1a）
func partition(vehicleID string, n int) int {
	h := fnv.New32a()
	h.Write([]byte(vehicleID))
	return int(h.Sum32() % uint32(n))
}

func validateTelemetry(t entity.Telemetry) error {
	switch {
	case t.VehicleID == "":
		return fmt.Errorf("%w: missing vehicle id", ErrInvalidTelemetry)
	case math.IsNaN(t.Lat) || t.Lat < -90 || t.Lat > 90:
		return fmt.Errorf("%w: lat %v out of range", ErrInvalidTelemetry, t.Lat)
	case math.IsNaN(t.Lon) || t.Lon < -180 || t.Lon > 180:
		return fmt.Errorf("%w: lon %v out of range", ErrInvalidTelemetry, t.Lon)
	case t.Timestamp < 0:
		return fmt.Errorf("%w: negative timestamp %d", ErrInvalidTelemetry, t.Timestamp)
	}
	return nil
}

// evaluate 对当前路口序列评估并完成触发标记
// 说明：在路口锁内完成，触发后续处理（广播、桥接）在锁外进行
func (m *Manager) evaluate(t entity.Telemetry, pos orb.Point, speed float64, digest *entity.TelemetryDigest) []firedTrigger {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	digest.Fallback = m.fallback
	fired := make([]firedTrigger, 0)
	var (
		next     *TrackedIntersection
		nextEval Evaluation
	)
	for _, target := range m.targets {
		if target.Triggered {
			continue
		}
		ev := Evaluate(pos, target.position(), speed, m.cfg.ProximityM, m.cfg.TTIS)
		if ev.ShouldTrigger {
			target.Triggered = true
			target.TriggeredBy = t.VehicleID
			target.TriggeredAt = t.Timestamp
			fired = append(fired, firedTrigger{
				target: target.Node,
				event: entity.TriggerEvent{
					VehicleID:      t.VehicleID,
					IntersectionID: target.ID,
					Lat:            target.Node.Lat,
					Lon:            target.Node.Lon,
					DistanceM:      ev.DistanceM,
					TTIS:           ev.TTIS,
					Timestamp:      t.Timestamp,
				},
			})
			continue
		}
		if next == nil || ev.DistanceM < nextEval.DistanceM {
			next, nextEval = target, ev
		}
	}
	digest.Triggered = lo.CountBy(m.targets, func(t *TrackedIntersection) bool { return t.Triggered })
	digest.Remaining = len(m.targets) - digest.Triggered
	if next != nil {
		digest.Next = &entity.PendingTarget{
			ID:        next.ID,
			Lat:       next.Node.Lat,
			Lon:       next.Node.Lon,
			DistanceM: nextEval.DistanceM,
			TTIS:      nextEval.TTIPtr(),
		}
	}
	digest.Fired = lo.Map(fired, func(f firedTrigger, _ int) string { return f.event.IntersectionID })
	return fired
}

// handleTrigger 广播触发事件并异步调用信控桥接
func (m *Manager) handleTrigger(f firedTrigger, vehiclePos orb.Point) {
	ev := f.event
	log.WithFields(logrus.Fields{
		"vehicle":      ev.VehicleID,
		"intersection": ev.IntersectionID,
		"distance_m":   ev.DistanceM,
		"tti_s":        ev.TTIS,
	}).Info("corridor trigger")
	m.ctx.Publisher().Publish(entity.EventTrigger, ev)

	m.bridgeWg.Add(1)
	go func() {
		defer m.bridgeWg.Done()
		res, err := m.ctx.Bridge().ResolveAndRequest(
			context.Background(), ev.VehicleID, vehiclePos, road.Position(f.target), ev.TTIS,
		)
		if err != nil {
			log.WithFields(logrus.Fields{
				"vehicle":      ev.VehicleID,
				"intersection": ev.IntersectionID,
			}).Warnf("signal bridge failed: %v", err)
			m.ctx.Publisher().Publish(entity.EventBridgeError, map[string]any{
				"vehicle_id":      ev.VehicleID,
				"intersection_id": ev.IntersectionID,
				"error":           err.Error(),
			})
			return
		}
		log.WithFields(logrus.Fields{
			"vehicle":      ev.VehicleID,
			"intersection": res.IntersectionID,
			"status":       res.Status,
		}).Infof("signal priority granted, delay %.0fs", res.DelaySeconds)
	}()
}

// Wait 等待所有进行中的桥接调用完成
func (m *Manager) Wait() {
	m.bridgeWg.Wait()
}

// Close 停止工作协程并等待桥接调用完成
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		close(m.done)
		m.workerWg.Wait()
		m.bridgeWg.Wait()
	})
}
