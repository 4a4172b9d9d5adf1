package vehicle

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSmootherWindow(t *testing.T) {
	s := NewSmoother(5)
	assert.Equal(t, 0.0, s.Value())

	// 预热期间对已有样本求平均
	assert.Equal(t, 10.0, s.Push(10))
	assert.Equal(t, 15.0, s.Push(20))
	for _, v := range []float64{30, 40, 50} {
		s.Push(v)
	}
	assert.Equal(t, 5, s.Len())
	assert.InDelta(t, 30, s.Value(), 1e-9)

	// 最旧样本被移出
	assert.InDelta(t, 40, s.Push(60), 1e-9)
	assert.Equal(t, 5, s.Len())

	s.Reset()
	assert.Equal(t, 0, s.Len())
	assert.Equal(t, 0.0, s.Value())
}

func TestSmootherDefaultSize(t *testing.T) {
	s := NewSmoother(0)
	for i := 0; i < 10; i++ {
		s.Push(float64(i))
	}
	assert.Equal(t, DefaultWindow, s.Len())
	assert.InDelta(t, 7, s.Value(), 1e-9)
}
