package trafficlight

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/greenwave/clock"
	"github.com/tsinghua-fib-lab/greenwave/entity"
)

var ErrInvalidETA = fmt.Errorf("%w: estimated arrival time must be a non-negative number", entity.ErrValidation)

// Request 调度请求
type Request struct {
	VehicleID      string
	IntersectionID string
	Direction      entity.Direction
	ETAS           float64 // 预计到达时间（秒）
}

// Activation 调度结果
type Activation struct {
	Status       entity.ActivationStatus
	DelaySeconds float64
	At           time.Time // 激活时刻
}

// ActivationTime ISO-8601格式的激活时刻
func (a Activation) ActivationTime() string {
	return a.At.UTC().Format(time.RFC3339Nano)
}

type timerKey struct {
	vehicleID      string
	intersectionID string
}

type pendingTimer struct {
	seq   uint64
	timer clock.Timer
}

// Scheduler 预到达调度器
// 功能：根据预计到达时间决定立即激活或延迟激活
// 说明：
//   - 信号分配在调度时同步完成，延迟激活只影响通知何时发出，不影响信号状态何时改变
//   - 延迟通知的定时器按(车辆, 路口)索引，同一键的新请求替换旧定时器
type Scheduler struct {
	clock         clock.Clock
	immediateETAS float64
	leadTimeS     float64
	onActivate    func(Request, Activation)

	mtx    sync.Mutex
	seq    uint64
	timers map[timerKey]pendingTimer
}

// NewScheduler 创建预到达调度器
// 参数：c-时钟，immediateETAS-立即激活阈值（秒），leadTimeS-提前量（秒），onActivate-延迟激活触发时的回调
func NewScheduler(c clock.Clock, immediateETAS, leadTimeS float64, onActivate func(Request, Activation)) *Scheduler {
	if onActivate == nil {
		onActivate = func(Request, Activation) {}
	}
	return &Scheduler{
		clock:         c,
		immediateETAS: immediateETAS,
		leadTimeS:     leadTimeS,
		onActivate:    onActivate,
		timers:        make(map[timerKey]pendingTimer),
	}
}

// Decide 计算激活方式与延迟
// 功能：纯策略函数
// 算法说明：
//   - eta <= immediateETAS：IMMEDIATE，延迟0，已经没有可用的时间余量
//   - 否则：SCHEDULED，延迟 eta - leadTimeS，提前量用于让横向车流清空
func (s *Scheduler) Decide(etaS float64) (entity.ActivationStatus, float64, error) {
	if math.IsNaN(etaS) || math.IsInf(etaS, 0) || etaS < 0 {
		return "", 0, fmt.Errorf("%w, got %v", ErrInvalidETA, etaS)
	}
	if etaS <= s.immediateETAS {
		return entity.Immediate, 0, nil
	}
	return entity.Scheduled, etaS - s.leadTimeS, nil
}

// Schedule 调度一次激活
// 参数：req-调度请求
// 返回：调度结果与错误信息
// 说明：SCHEDULED时启动定时器，到期后调用onActivate
func (s *Scheduler) Schedule(req Request) (Activation, error) {
	status, delay, err := s.Decide(req.ETAS)
	if err != nil {
		return Activation{}, err
	}
	d := time.Duration(delay * float64(time.Second))
	a := Activation{
		Status:       status,
		DelaySeconds: delay,
		At:           s.clock.Now().Add(d),
	}
	if status != entity.Scheduled {
		return a, nil
	}

	key := timerKey{vehicleID: req.VehicleID, intersectionID: req.IntersectionID}
	s.mtx.Lock()
	defer s.mtx.Unlock()
	if old, ok := s.timers[key]; ok {
		old.timer.Stop()
		log.Debugf("replaced pending activation for vehicle %s at %s", req.VehicleID, req.IntersectionID)
	}
	s.seq++
	seq := s.seq
	t := s.clock.AfterFunc(d, func() {
		s.mtx.Lock()
		if cur, ok := s.timers[key]; !ok || cur.seq != seq {
			s.mtx.Unlock()
			return
		}
		delete(s.timers, key)
		s.mtx.Unlock()
		log.Infof("scheduled activation fired: vehicle %s at %s direction %v", req.VehicleID, req.IntersectionID, req.Direction)
		s.onActivate(req, a)
	})
	s.timers[key] = pendingTimer{seq: seq, timer: t}
	return a, nil
}

// Cancel 取消车辆尚未触发的延迟激活
// 参数：vehicleID-车辆ID，空字符串表示全部车辆
// 返回：取消的数量
func (s *Scheduler) Cancel(vehicleID string) int {
	if vehicleID == "" {
		return s.CancelAll()
	}
	s.mtx.Lock()
	defer s.mtx.Unlock()
	keys := lo.Filter(lo.Keys(s.timers), func(k timerKey, _ int) bool { return k.vehicleID == vehicleID })
	for _, k := range keys {
		s.timers[k].timer.Stop()
		delete(s.timers, k)
	}
	return len(keys)
}

// CancelAll 取消所有尚未触发的延迟激活
func (s *Scheduler) CancelAll() int {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	n := len(s.timers)
	for _, t := range s.timers {
		t.timer.Stop()
	}
	s.timers = make(map[timerKey]pendingTimer)
	return n
}

// Pending 尚未触发的延迟激活数量
func (s *Scheduler) Pending() int {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return len(s.timers)
}
