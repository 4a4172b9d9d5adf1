package randengine_test

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/stretchr/testify/assert"
	"github.com/tsinghua-fib-lab/greenwave/utils/randengine"
)

func TestJitterDeterministic(t *testing.T) {
	p := orb.Point{116.4, 39.9}
	a, b := randengine.New(42), randengine.New(42)
	for i := 0; i < 10; i++ {
		assert.Equal(t, a.Jitter(p, 5), b.Jitter(p, 5))
	}
}

func TestJitterMagnitude(t *testing.T) {
	p := orb.Point{116.4, 39.9}
	e := randengine.New(7)
	assert.Equal(t, p, e.Jitter(p, 0))

	total := 0.0
	const n = 2000
	for i := 0; i < n; i++ {
		total += geo.DistanceHaversine(p, e.Jitter(p, 10))
	}
	// 二维高斯的平均偏移为 sigma*sqrt(pi/2) ≈ 12.5m
	assert.InDelta(t, 12.5, total/n, 1.5)
}
