// 随机数引擎，包装了golang.org/x/exp/rand，为行驶模拟器提供可复现的GPS噪声
package randengine

import (
	"flag"
	"math"
	"sync"

	"github.com/paulmach/orb"
	"golang.org/x/exp/rand"
)

var (
	seedOffset = flag.Uint64("rand.seed_offset", 0, "seed offset") // 种子偏移量，用于调整随机数生成
)

// 每纬度对应的米数（球面近似）
const metersPerDegree = orb.EarthRadius * math.Pi / 180

// Engine 随机数引擎
// 功能：线程安全的随机数生成，同一种子生成相同的序列
type Engine struct {
	*rand.Rand            // 底层随机数生成器
	mtx        sync.Mutex // 互斥锁，用于线程安全操作
}

// New 创建随机数引擎
// 参数：seed-随机数种子
// 说明：种子偏移量允许在不修改配置的情况下调整随机数序列
func New(seed uint64) *Engine {
	return &Engine{Rand: rand.New(rand.NewSource(seed + *seedOffset))}
}

// PTrueSafe 以指定概率返回true（线程安全）
func (e *Engine) PTrueSafe(p float64) bool {
	e.mtx.Lock()
	defer e.mtx.Unlock()
	return e.Float64() < p
}

// NormFloat64Safe 标准正态分布随机数（线程安全）
func (e *Engine) NormFloat64Safe() float64 {
	e.mtx.Lock()
	defer e.mtx.Unlock()
	return e.NormFloat64()
}

// Jitter 给坐标叠加GPS噪声
// 功能：在东西、南北方向分别叠加标准差为sigmaM米的高斯噪声
// 参数：p-原始坐标（X为经度），sigmaM-噪声标准差（米）
// 返回：叠加噪声后的坐标
// 说明：sigmaM不大于0时原样返回
func (e *Engine) Jitter(p orb.Point, sigmaM float64) orb.Point {
	if sigmaM <= 0 {
		return p
	}
	dn, de := e.NormFloat64Safe()*sigmaM, e.NormFloat64Safe()*sigmaM
	lat := p.Lat() + dn/metersPerDegree
	lon := p.Lon() + de/(metersPerDegree*math.Cos(p.Lat()*math.Pi/180))
	return orb.Point{lon, lat}
}
