package junction

import (
	"errors"
	"fmt"
	"sort"

	"github.com/paulmach/orb"
	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/greenwave/entity"
	"github.com/tsinghua-fib-lab/greenwave/utils/config"
)

var (
	ErrUnknownJunction  = fmt.Errorf("%w: unknown intersection", entity.ErrNotFound)
	ErrInvalidDirection = fmt.Errorf("%w: invalid direction", entity.ErrValidation)
	ErrConflictGroup    = errors.New("invalid conflict group")
)

// Junction 受控路口
// 功能：存储路口位置与四个方向的冲突组，运行时只读
// 说明：冲突组在创建时完成校验，之后不再变化
type Junction struct {
	id       string
	lat, lon float64

	conflictGroups [4][]entity.Direction // 下标为Direction
}

// newJunction 根据配置创建路口
// 功能：解析并校验冲突组配置，未配置的方向使用两个垂直方向作为缺省冲突组
// 参数：c-路口配置
// 返回：路口与错误信息
// 算法说明：
// 1. 方向必须是N/S/E/W之一，且不能包含自身
// 2. 冲突组只能包含垂直方向（对向车流可以同时通行）
// 3. 冲突关系必须对称：A在B的冲突组中当且仅当B在A的冲突组中
func newJunction(c config.Intersection) (*Junction, error) {
	if c.ID == "" {
		return nil, fmt.Errorf("%w: intersection without id", ErrConflictGroup)
	}
	if c.Lat < -90 || c.Lat > 90 || c.Lon < -180 || c.Lon > 180 {
		return nil, fmt.Errorf("intersection %s: coordinate (%v, %v) out of range", c.ID, c.Lat, c.Lon)
	}
	j := &Junction{id: c.ID, lat: c.Lat, lon: c.Lon}
	for _, d := range entity.Directions {
		p := d.Perpendicular()
		j.conflictGroups[d] = []entity.Direction{min(p[0], p[1]), max(p[0], p[1])}
	}
	for key, members := range c.ConflictGroups {
		d, err := entity.ParseDirection(key)
		if err != nil {
			return nil, fmt.Errorf("intersection %s: %w", c.ID, err)
		}
		group := make([]entity.Direction, 0, len(members))
		for _, s := range members {
			m, err := entity.ParseDirection(s)
			if err != nil {
				return nil, fmt.Errorf("intersection %s: %w", c.ID, err)
			}
			if m == d {
				return nil, fmt.Errorf("%w: intersection %s direction %v lists itself", ErrConflictGroup, c.ID, d)
			}
			if !d.IsPerpendicular(m) {
				return nil, fmt.Errorf("%w: intersection %s direction %v lists non-perpendicular %v", ErrConflictGroup, c.ID, d, m)
			}
			group = append(group, m)
		}
		group = lo.Uniq(group)
		sort.Slice(group, func(a, b int) bool { return group[a] < group[b] })
		j.conflictGroups[d] = group
	}
	for _, d := range entity.Directions {
		for _, m := range j.conflictGroups[d] {
			if !lo.Contains(j.conflictGroups[m], d) {
				return nil, fmt.Errorf("%w: intersection %s is asymmetric, %v conflicts with %v but not the reverse", ErrConflictGroup, c.ID, d, m)
			}
		}
	}
	return j, nil
}

// ID 获取路口ID
func (j *Junction) ID() string {
	return j.id
}

// Position 获取路口位置（X为经度）
func (j *Junction) Position() orb.Point {
	return orb.Point{j.lon, j.lat}
}

// ConflictGroup 获取方向的冲突组
// 说明：非法方向返回nil
func (j *Junction) ConflictGroup(d entity.Direction) []entity.Direction {
	if !d.Valid() {
		return nil
	}
	return j.conflictGroups[d]
}
