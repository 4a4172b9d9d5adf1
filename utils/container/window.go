package container

// Window 固定容量的先进先出窗口（环形缓冲区）
// 功能：保存最近的cap个元素，满时新元素挤出最旧元素
type Window[T any] struct {
	buf   []T
	start int // 最旧元素位置
	n     int // 当前元素数
}

// NewWindow 创建容量为capacity的窗口，capacity<1时按1处理
func NewWindow[T any](capacity int) *Window[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Window[T]{buf: make([]T, capacity)}
}

func (w *Window[T]) Len() int { return w.n }

func (w *Window[T]) Cap() int { return len(w.buf) }

// Push 加入元素
// 返回：被挤出的元素，以及是否发生了挤出
func (w *Window[T]) Push(v T) (evicted T, ok bool) {
	if w.n < len(w.buf) {
		w.buf[(w.start+w.n)%len(w.buf)] = v
		w.n++
		return evicted, false
	}
	evicted = w.buf[w.start]
	w.buf[w.start] = v
	w.start = (w.start + 1) % len(w.buf)
	return evicted, true
}

// Values 按从旧到新的顺序返回元素副本
func (w *Window[T]) Values() []T {
	out := make([]T, w.n)
	for i := 0; i < w.n; i++ {
		out[i] = w.buf[(w.start+i)%len(w.buf)]
	}
	return out
}

// Reset 清空窗口
func (w *Window[T]) Reset() {
	var zero T
	for i := range w.buf {
		w.buf[i] = zero
	}
	w.start, w.n = 0, 0
}
