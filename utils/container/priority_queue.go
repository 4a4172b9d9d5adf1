package container

import "container/heap"

// item 优先队列中单个元素
type item[K comparable] struct {
	Key      K       // 元素的键
	Priority float64 // 优先级（越小越优先）
	seq      uint64  // 入队序号，优先级相同时先入队者先出
	index    int     // 项在堆中的索引，由heap.Interface方法维护
}

// entries 实现heap.Interface
type entries[K comparable] []*item[K]

func (e entries[K]) Len() int { return len(e) }

func (e entries[K]) Less(i, j int) bool {
	if e[i].Priority == e[j].Priority {
		return e[i].seq < e[j].seq
	}
	return e[i].Priority < e[j].Priority
}

func (e entries[K]) Swap(i, j int) {
	e[i], e[j] = e[j], e[i]
	e[i].index = i
	e[j].index = j
}

func (e *entries[K]) Push(x any) {
	it := x.(*item[K])
	it.index = len(*e)
	*e = append(*e, it)
}

func (e *entries[K]) Pop() any {
	old := *e
	n := len(old)
	it := old[n-1]
	old[n-1] = nil // 避免内存泄漏
	it.index = -1
	*e = old[:n-1]
	return it
}

// PriorityQueue 支持按键降低优先级的最小堆
// 功能：提供Dijkstra所需的decrease-key操作，每个键在队列中至多出现一次
// 说明：优先级相同时按入队（或最近一次降低优先级）的先后顺序出队
type PriorityQueue[K comparable] struct {
	queue entries[K]
	items map[K]*item[K]
	seq   uint64
}

// NewPriorityQueue 创建优先队列
func NewPriorityQueue[K comparable]() *PriorityQueue[K] {
	return &PriorityQueue[K]{
		queue: make(entries[K], 0),
		items: make(map[K]*item[K]),
	}
}

// Len 获取当前队列长度
func (q *PriorityQueue[K]) Len() int {
	return len(q.queue)
}

// Contains 判断键是否在队列中
func (q *PriorityQueue[K]) Contains(key K) bool {
	_, ok := q.items[key]
	return ok
}

// HeapPush 加入元素或降低已有元素的优先级
// 功能：键不存在时入队；键已存在且新优先级更小时更新并上浮
// 参数：key-元素键，priority-元素优先级
// 返回：true表示队列发生了变化
func (q *PriorityQueue[K]) HeapPush(key K, priority float64) bool {
	q.seq++
	if it, ok := q.items[key]; ok {
		if priority >= it.Priority {
			return false
		}
		it.Priority = priority
		it.seq = q.seq
		heap.Fix(&q.queue, it.index)
		return true
	}
	it := &item[K]{Key: key, Priority: priority, seq: q.seq}
	heap.Push(&q.queue, it)
	q.items[key] = it
	return true
}

// HeapPop 弹出优先级最高（数值最小）的元素
func (q *PriorityQueue[K]) HeapPop() (key K, priority float64) {
	it := heap.Pop(&q.queue).(*item[K])
	delete(q.items, it.Key)
	return it.Key, it.Priority
}
