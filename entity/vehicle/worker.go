package vehicle

import (
	"github.com/paulmach/orb"
	"github.com/tsinghua-fib-lab/greenwave/entity"
)

type jobKind int

const (
	jobTelemetry jobKind = iota
	jobReset
)

type job struct {
	kind      jobKind
	telemetry entity.Telemetry
	result    chan jobResult
}

type jobResult struct {
	digest *entity.TelemetryDigest
}

// trackState 单车跟踪状态
type trackState struct {
	hasLast  bool
	last     orb.Point
	lastTS   int64
	rawSpeed float64
	smoother *Smoother
}

// worker 车辆分区的工作协程
// 说明：states只被本协程访问
type worker struct {
	m      *Manager
	index  int
	jobs   chan job
	states map[string]*trackState
}

func newWorker(m *Manager, index int) *worker {
	return &worker{
		m:      m,
		index:  index,
		jobs:   make(chan job),
		states: make(map[string]*trackState),
	}
}

func (w *worker) run() {
	for {
		select {
		case j := <-w.jobs:
			switch j.kind {
			case jobTelemetry:
				j.result <- jobResult{digest: w.process(j.telemetry)}
			case jobReset:
				delete(w.states, j.telemetry.VehicleID)
				log.Debugf("vehicle %s reset on worker %d", j.telemetry.VehicleID, w.index)
				j.result <- jobResult{}
			}
		case <-w.m.done:
			return
		}
	}
}

// process 处理单次采样
func (w *worker) process(t entity.Telemetry) *entity.TelemetryDigest {
	s, ok := w.states[t.VehicleID]
	if !ok {
		s = &trackState{smoother: NewSmoother(w.m.cfg.VelocityWindow)}
		w.states[t.VehicleID] = s
		log.Debugf("vehicle %s tracked on worker %d", t.VehicleID, w.index)
	}
	pos := orb.Point{t.Lon, t.Lat}
	if s.hasLast {
		s.rawSpeed = RawSpeed(s.last, pos, float64(t.Timestamp-s.lastTS))
		s.smoother.Push(s.rawSpeed)
	}
	s.hasLast, s.last, s.lastTS = true, pos, t.Timestamp

	digest := &entity.TelemetryDigest{
		VehicleID:     t.VehicleID,
		Lat:           t.Lat,
		Lon:           t.Lon,
		Timestamp:     t.Timestamp,
		RawSpeed:      s.rawSpeed,
		SmoothedSpeed: s.smoother.Value(),
	}
	fired := w.m.evaluate(t, pos, s.smoother.Value(), digest)
	for _, f := range fired {
		w.m.handleTrigger(f, pos)
	}
	w.m.ctx.Publisher().Publish(entity.EventTelemetry, digest)
	return digest
}
