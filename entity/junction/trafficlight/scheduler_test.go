package trafficlight_test

import (
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsinghua-fib-lab/greenwave/clock"
	"github.com/tsinghua-fib-lab/greenwave/entity"
	"github.com/tsinghua-fib-lab/greenwave/entity/junction/trafficlight"
)

var start = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

type recorder struct {
	mtx   sync.Mutex
	fired []trafficlight.Request
}

func (r *recorder) onActivate(req trafficlight.Request, _ trafficlight.Activation) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	r.fired = append(r.fired, req)
}

func (r *recorder) count() int {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	return len(r.fired)
}

func newScheduler() (*trafficlight.Scheduler, *clock.Manual, *recorder) {
	c := clock.NewManual(start)
	rec := &recorder{}
	return trafficlight.NewScheduler(c, 20, 10, rec.onActivate), c, rec
}

func TestScheduleImmediate(t *testing.T) {
	s, c, rec := newScheduler()
	a, err := s.Schedule(trafficlight.Request{VehicleID: "amb-1", IntersectionID: "I1", Direction: entity.North, ETAS: 15})
	require.NoError(t, err)
	assert.Equal(t, entity.Immediate, a.Status)
	assert.Equal(t, 0.0, a.DelaySeconds)
	assert.Equal(t, "2026-03-01T08:00:00Z", a.ActivationTime())
	assert.Equal(t, 0, c.Pending())
	assert.Equal(t, 0, rec.count())
}

func TestScheduleBoundaryIsImmediate(t *testing.T) {
	s, _, _ := newScheduler()
	a, err := s.Schedule(trafficlight.Request{ETAS: 20})
	require.NoError(t, err)
	assert.Equal(t, entity.Immediate, a.Status)
}

func TestScheduleDeferred(t *testing.T) {
	s, c, rec := newScheduler()
	req := trafficlight.Request{VehicleID: "amb-1", IntersectionID: "I1", Direction: entity.East, ETAS: 30}
	a, err := s.Schedule(req)
	require.NoError(t, err)
	assert.Equal(t, entity.Scheduled, a.Status)
	assert.Equal(t, 20.0, a.DelaySeconds)
	assert.Equal(t, "2026-03-01T08:00:20Z", a.ActivationTime())
	assert.Equal(t, 1, s.Pending())

	c.Advance(19 * time.Second)
	assert.Equal(t, 0, rec.count())
	c.Advance(time.Second)
	require.Equal(t, 1, rec.count())
	assert.Equal(t, req, rec.fired[0])
	assert.Equal(t, 0, s.Pending())
}

func TestScheduleReplacesSameKey(t *testing.T) {
	s, c, rec := newScheduler()
	_, err := s.Schedule(trafficlight.Request{VehicleID: "amb-1", IntersectionID: "I1", ETAS: 30})
	require.NoError(t, err)
	_, err = s.Schedule(trafficlight.Request{VehicleID: "amb-1", IntersectionID: "I1", ETAS: 40})
	require.NoError(t, err)
	assert.Equal(t, 1, s.Pending())

	c.Advance(20 * time.Second)
	assert.Equal(t, 0, rec.count())
	c.Advance(10 * time.Second)
	assert.Equal(t, 1, rec.count())
}

func TestCancel(t *testing.T) {
	s, c, rec := newScheduler()
	for _, r := range []trafficlight.Request{
		{VehicleID: "amb-1", IntersectionID: "I1", ETAS: 30},
		{VehicleID: "amb-1", IntersectionID: "I2", ETAS: 60},
		{VehicleID: "amb-2", IntersectionID: "I1", ETAS: 30},
	} {
		_, err := s.Schedule(r)
		require.NoError(t, err)
	}
	assert.Equal(t, 2, s.Cancel("amb-1"))
	assert.Equal(t, 1, s.Pending())

	c.Advance(time.Minute)
	require.Equal(t, 1, rec.count())
	assert.Equal(t, "amb-2", rec.fired[0].VehicleID)

	_, err := s.Schedule(trafficlight.Request{VehicleID: "amb-3", IntersectionID: "I1", ETAS: 30})
	require.NoError(t, err)
	assert.Equal(t, 1, s.Cancel(""))
	c.Advance(time.Minute)
	assert.Equal(t, 1, rec.count())
}

func TestInvalidETA(t *testing.T) {
	s, _, _ := newScheduler()
	for _, eta := range []float64{-1, math.NaN(), math.Inf(1)} {
		_, err := s.Schedule(trafficlight.Request{ETAS: eta})
		assert.ErrorIs(t, err, trafficlight.ErrInvalidETA)
		assert.ErrorIs(t, err, entity.ErrValidation)
	}
}
