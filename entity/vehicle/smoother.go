package vehicle

import (
	"github.com/tsinghua-fib-lab/greenwave/utils/container"
	"gonum.org/v1/gonum/stat"
)

// DefaultWindow 缺省速度平滑窗口
const DefaultWindow = 5

// Smoother 单车速度平滑器
// 功能：对瞬时速度做固定窗口滑动平均，降低GPS噪声导致的误触发
// 说明：每辆车独立持有一个实例，不加锁，由所属工作协程串行访问
type Smoother struct {
	window *container.Window[float64]
	value  float64
}

// NewSmoother 创建窗口大小为size的平滑器
func NewSmoother(size int) *Smoother {
	if size < 1 {
		size = DefaultWindow
	}
	return &Smoother{window: container.NewWindow[float64](size)}
}

// Push 加入一个瞬时速度样本
// 返回：当前窗口内所有样本的算术平均（预热期间样本数少于窗口大小）
func (s *Smoother) Push(raw float64) float64 {
	s.window.Push(raw)
	s.value = stat.Mean(s.window.Values(), nil)
	return s.value
}

// Value 当前平滑速度，无样本时为0
func (s *Smoother) Value() float64 {
	return s.value
}

// Len 当前样本数
func (s *Smoother) Len() int {
	return s.window.Len()
}

// Reset 清空样本
func (s *Smoother) Reset() {
	s.window.Reset()
	s.value = 0
}
