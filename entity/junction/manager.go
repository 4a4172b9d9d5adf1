package junction

import (
	"context"
	"fmt"
	"sync"

	"git.fiblab.net/general/common/v2/parallel"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
	"github.com/tsinghua-fib-lab/greenwave/entity"
	"github.com/tsinghua-fib-lab/greenwave/entity/junction/trafficlight"
	"github.com/tsinghua-fib-lab/greenwave/utils/config"
)

// Junction管理器
// 功能：持有所有受控路口及其权威信号快照，是信号互锁的唯一写入方
type JunctionManager struct {
	ctx entity.ITaskContext

	data      map[string]*Junction
	junctions []*Junction
	primary   string

	mtx       sync.RWMutex
	snapshots map[string][]entity.SignalState

	scheduler IActivationScheduler
}

// NewManager 创建Junction管理器实例
// 功能：初始化Junction管理器与预到达调度器
// 参数：ctx-任务上下文
// 返回：新创建的Junction管理器实例
func NewManager(ctx entity.ITaskContext) *JunctionManager {
	m := &JunctionManager{
		ctx:       ctx,
		data:      make(map[string]*Junction),
		junctions: make([]*Junction, 0),
		snapshots: make(map[string][]entity.SignalState),
	}
	s := ctx.RuntimeConfig().S
	m.scheduler = trafficlight.NewScheduler(ctx.Clock(), *s.ImmediateETAS, *s.LeadTimeS, m.onActivate)
	return m
}

type initResult struct {
	j   *Junction
	err error
}

// Init 初始化所有受控路口
// 功能：根据配置创建路口并校验冲突组，建立ID索引，所有路口初始为RED
// 参数：cfgs-路口配置列表，primary-缺省路口ID
// 返回：错误信息，任意路口配置非法则整体失败
// 说明：使用并行处理提高初始化效率
func (m *JunctionManager) Init(cfgs []config.Intersection, primary string) error {
	if len(cfgs) == 0 {
		return config.ErrNoIntersections
	}
	results := parallel.GoMap(cfgs, func(c config.Intersection) initResult {
		j, err := newJunction(c)
		return initResult{j: j, err: err}
	})
	junctions := make([]*Junction, 0, len(results))
	data := make(map[string]*Junction, len(results))
	for _, r := range results {
		if r.err != nil {
			return r.err
		}
		if _, ok := data[r.j.id]; ok {
			return fmt.Errorf("%w: duplicate intersection id %s", ErrConflictGroup, r.j.id)
		}
		data[r.j.id] = r.j
		junctions = append(junctions, r.j)
	}
	if primary == "" {
		primary = junctions[0].id
	}
	if _, ok := data[primary]; !ok {
		return fmt.Errorf("primary intersection %s is not configured", primary)
	}

	m.mtx.Lock()
	defer m.mtx.Unlock()
	m.junctions = junctions
	m.data = data
	m.primary = primary
	m.snapshots = lo.SliceToMap(junctions, func(j *Junction) (string, []entity.SignalState) {
		return j.id, lo.Map(entity.Directions[:], func(d entity.Direction, _ int) entity.SignalState {
			return entity.SignalState{Direction: d, State: entity.Red, Note: NoteIdle}
		})
	})
	log.Infof("%d managed intersections loaded, primary %s", len(junctions), primary)
	return nil
}

// GetOrError 根据ID获取Junction实例（带错误处理）
// 功能：通过Junction ID查找对应的Junction对象，如果不存在则返回ErrUnknownJunction
func (m *JunctionManager) GetOrError(id string) (entity.IJunction, error) {
	if junction, ok := m.data[id]; !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownJunction, id)
	} else {
		return junction, nil
	}
}

// List 所有受控路口（配置顺序）
func (m *JunctionManager) List() []entity.IJunction {
	return lo.Map(m.junctions, func(j *Junction, _ int) entity.IJunction { return j })
}

// PrimaryID 缺省路口ID
func (m *JunctionManager) PrimaryID() string {
	return m.primary
}

// Override 立即应用优先覆盖
// 功能：计算新快照并整体替换路口的权威信号状态，广播signal_update
// 参数：id-路口ID，target-优先方向
// 返回：新快照与错误信息
func (m *JunctionManager) Override(id string, target entity.Direction) ([]entity.SignalState, error) {
	j, err := m.GetOrError(id)
	if err != nil {
		return nil, err
	}
	snapshot, err := ApplyOverride(target, j)
	if err != nil {
		return nil, err
	}
	m.store(id, snapshot)
	m.ctx.Publisher().Publish(entity.EventSignalUpdate, map[string]any{
		"intersection_id": id,
		"direction":       target,
		"signals":         snapshot,
	})
	return snapshot, nil
}

// Clear 解除覆盖
// 功能：显式解除HARD_RED锁定，所有方向回到普通红灯
func (m *JunctionManager) Clear(id string) ([]entity.SignalState, error) {
	if _, err := m.GetOrError(id); err != nil {
		return nil, err
	}
	snapshot := released()
	m.store(id, snapshot)
	log.Infof("override released at %s", id)
	m.ctx.Publisher().Publish(entity.EventSignalUpdate, map[string]any{
		"intersection_id": id,
		"signals":         snapshot,
	})
	return snapshot, nil
}

// Snapshot 当前信号快照的副本
func (m *JunctionManager) Snapshot(id string) ([]entity.SignalState, error) {
	if _, err := m.GetOrError(id); err != nil {
		return nil, err
	}
	m.mtx.RLock()
	defer m.mtx.RUnlock()
	return append([]entity.SignalState(nil), m.snapshots[id]...), nil
}

func (m *JunctionManager) store(id string, snapshot []entity.SignalState) {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	m.snapshots[id] = snapshot
}

// RequestPriority 信号优先请求
// 功能：校验请求，立即计算并应用信号互锁，再由预到达调度器决定激活方式
// 参数：ctx-上下文，req-优先请求
// 返回：激活方式、延迟、激活时刻与信号快照
// 算法说明：
// 1. 校验ambulance_id、signal_id（N|S|E|W）、estimated_arrival_time（非负数）
// 2. 未指定intersection_id时使用缺省路口，未知路口为校验错误
// 3. 同步完成信号互锁并写入权威快照
// 4. SCHEDULED时启动延迟通知定时器，到期后广播activation
func (m *JunctionManager) RequestPriority(ctx context.Context, req entity.PriorityRequest) (*entity.PriorityResult, error) {
	if req.AmbulanceID == "" {
		return nil, fmt.Errorf("%w: missing ambulance_id", entity.ErrValidation)
	}
	dir, err := entity.ParseDirection(req.SignalID)
	if err != nil {
		return nil, err
	}
	if req.EstimatedArrivalTime == nil {
		return nil, fmt.Errorf("%w: missing estimated_arrival_time", entity.ErrValidation)
	}
	eta := *req.EstimatedArrivalTime
	if _, _, err := m.scheduler.Decide(eta); err != nil {
		return nil, err
	}
	id := req.IntersectionID
	if id == "" {
		id = m.primary
	}
	snapshot, err := m.Override(id, dir)
	if err != nil {
		return nil, err
	}
	activation, err := m.scheduler.Schedule(trafficlight.Request{
		VehicleID:      req.AmbulanceID,
		IntersectionID: id,
		Direction:      dir,
		ETAS:           eta,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", entity.ErrInternal, err)
	}
	log.WithFields(logrus.Fields{
		"vehicle":      req.AmbulanceID,
		"intersection": id,
		"direction":    dir.String(),
		"eta_s":        eta,
	}).Infof("priority %s, delay %.0fs", activation.Status, activation.DelaySeconds)
	return &entity.PriorityResult{
		Status:         activation.Status,
		DelaySeconds:   activation.DelaySeconds,
		ActivationTime: activation.ActivationTime(),
		IntersectionID: id,
		Signals:        snapshot,
	}, nil
}

func (m *JunctionManager) onActivate(req trafficlight.Request, a trafficlight.Activation) {
	m.ctx.Publisher().Publish(entity.EventActivation, map[string]any{
		"vehicle_id":      req.VehicleID,
		"intersection_id": req.IntersectionID,
		"direction":       req.Direction,
		"activation_time": a.ActivationTime(),
	})
}

// CancelActivations 取消车辆尚未触发的延迟激活通知
// 参数：vehicleID-车辆ID，空字符串表示全部
func (m *JunctionManager) CancelActivations(vehicleID string) int {
	return m.scheduler.Cancel(vehicleID)
}

// PendingActivations 尚未触发的延迟激活通知数量
func (m *JunctionManager) PendingActivations() int {
	return m.scheduler.Pending()
}

// Close 取消所有延迟通知
func (m *JunctionManager) Close() {
	if n := m.scheduler.CancelAll(); n > 0 {
		log.Infof("dropped %d pending activations on shutdown", n)
	}
}
