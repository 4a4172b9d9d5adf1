package route

import (
	"github.com/tsinghua-fib-lab/greenwave/entity"
	"github.com/tsinghua-fib-lab/greenwave/utils/container"
)

// dijkstraEngine 基于二叉堆的Dijkstra
type dijkstraEngine struct {
	graph entity.IRoadGraph
}

// shortestPath 单源最短路
// 算法说明：
// 1. 边权为非负路段长度
// 2. 只有严格更短时才松弛，距离相同时保留先发现的前驱
// 3. 已有距离但不在堆中的节点已确定最短距离，不再松弛
// 4. 终点出堆即停止
func (e *dijkstraEngine) shortestPath(src, dst int64) ([]int64, float64, bool) {
	dist := map[int64]float64{src: 0}
	prev := make(map[int64]int64)
	pq := container.NewPriorityQueue[int64]()
	pq.HeapPush(src, 0)
	for pq.Len() > 0 {
		u, d := pq.HeapPop()
		if u == dst {
			break
		}
		for _, a := range e.graph.Neighbors(u) {
			if _, seen := dist[a.To]; seen && !pq.Contains(a.To) {
				continue
			}
			nd := d + a.Length
			if old, ok := dist[a.To]; !ok || nd < old {
				dist[a.To] = nd
				prev[a.To] = u
				pq.HeapPush(a.To, nd)
			}
		}
	}
	total, ok := dist[dst]
	if !ok {
		return nil, 0, false
	}
	path := []int64{dst}
	for cur := dst; cur != src; {
		cur = prev[cur]
		path = append(path, cur)
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path, total, true
}
