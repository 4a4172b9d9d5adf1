package junction

import (
	"fmt"

	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/greenwave/entity"
)

// 信号状态说明
const (
	NotePriority = "emergency vehicle priority"
	NoteLockout  = "conflict lockout"
	NoteHold     = "not in priority phase"
	NoteReleased = "released"
	NoteIdle     = "idle"
)

// ApplyOverride 计算优先通行时的信号分配
// 功能：纯函数，给定目标方向计算路口四个方向的完整信号快照
// 参数：target-优先方向，j-路口
// 返回：按N/E/S/W顺序的信号快照与错误信息
// 算法说明：
//   - 目标方向 -> GREEN
//   - 目标方向冲突组中的方向 -> HARD_RED（安全锁定，显式解除前不得被覆盖）
//   - 其余方向 -> RED
//
// 说明：快照每次整体重新计算，不在旧快照上增量修改
func ApplyOverride(target entity.Direction, j entity.IJunction) ([]entity.SignalState, error) {
	if !target.Valid() {
		return nil, fmt.Errorf("%w %d", ErrInvalidDirection, int8(target))
	}
	group := j.ConflictGroup(target)
	snapshot := make([]entity.SignalState, 0, len(entity.Directions))
	for _, d := range entity.Directions {
		switch {
		case d == target:
			snapshot = append(snapshot, entity.SignalState{Direction: d, State: entity.Green, Note: NotePriority})
		case lo.Contains(group, d):
			snapshot = append(snapshot, entity.SignalState{Direction: d, State: entity.HardRed, Note: NoteLockout})
		default:
			snapshot = append(snapshot, entity.SignalState{Direction: d, State: entity.Red, Note: NoteHold})
		}
	}
	if err := checkInterlock(target, group, snapshot); err != nil {
		return nil, err
	}
	return snapshot, nil
}

// checkInterlock 校验互斥不变量：恰好一个GREEN，冲突组全部HARD_RED
func checkInterlock(target entity.Direction, group []entity.Direction, snapshot []entity.SignalState) error {
	greens := lo.CountBy(snapshot, func(s entity.SignalState) bool { return s.State == entity.Green })
	hardReds := lo.CountBy(snapshot, func(s entity.SignalState) bool { return s.State == entity.HardRed })
	if greens != 1 || hardReds != len(group) {
		return fmt.Errorf("%w: interlock violated for %v (green=%d hard_red=%d)", entity.ErrInternal, target, greens, hardReds)
	}
	return nil
}

// released 解除锁定后的快照，全部为普通红灯
func released() []entity.SignalState {
	return lo.Map(entity.Directions[:], func(d entity.Direction, _ int) entity.SignalState {
		return entity.SignalState{Direction: d, State: entity.Red, Note: NoteReleased}
	})
}
