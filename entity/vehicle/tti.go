package vehicle

import (
	"math"

	"git.fiblab.net/general/common/v2/mathutil"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
)

// boundaryEpsilon 吸收浮点误差，使恰好处于阈值上的样本满足条件
const boundaryEpsilon = 1e-9

// Evaluation TTI评估结果
type Evaluation struct {
	DistanceM     float64 // 球面距离（米）
	TTIS          float64 // 预计到达时间（秒），速度不大于0时为无穷大
	ShouldTrigger bool
}

// Infinite 到达时间是否为无穷大
func (e Evaluation) Infinite() bool {
	return math.IsInf(e.TTIS, 1) || e.TTIS >= mathutil.INF
}

// TTIPtr 用于JSON输出的到达时间，无穷大时为nil
func (e Evaluation) TTIPtr() *float64 {
	if e.Infinite() {
		return nil
	}
	v := e.TTIS
	return &v
}

// Evaluate 计算到目标的距离与预计到达时间
// 功能：纯函数，判断是否同时满足距离阈值与时间阈值
// 参数：pos-车辆位置，target-目标位置，speed-平滑速度（m/s），proximityM-距离阈值，ttiS-时间阈值
// 返回：评估结果
// 说明：
//   - 距离为大圆距离，跨数公里的走廊需要考虑地球曲率
//   - 静止或刚出现的车辆速度为0，到达时间为无穷大，不会因时间条件触发
//   - 距离近但速度慢、或速度快但距离远都不触发，两项必须同时满足
func Evaluate(pos, target orb.Point, speed, proximityM, ttiS float64) Evaluation {
	d := geo.DistanceHaversine(pos, target)
	tti := mathutil.INF
	if speed > 0 {
		tti = d / speed
	}
	return Evaluation{
		DistanceM:     d,
		TTIS:          tti,
		ShouldTrigger: d <= proximityM+boundaryEpsilon && tti <= ttiS+boundaryEpsilon,
	}
}

// RawSpeed 两次采样之间的瞬时速度
// 说明：时间间隔不大于0时视为零位移，既不为负也不除零
func RawSpeed(prev, cur orb.Point, elapsedS float64) float64 {
	if elapsedS <= 0 {
		return 0
	}
	return geo.DistanceHaversine(prev, cur) / elapsedS
}
