package event

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/greenwave/clock"
	"github.com/tsinghua-fib-lab/greenwave/entity"
)

// Event 广播事件
type Event struct {
	ID      string           `json:"id"`
	Type    entity.EventType `json:"type"`
	Time    time.Time        `json:"time"`
	Payload any              `json:"payload"`
}

type subscriber struct {
	ch    chan Event
	types map[entity.EventType]struct{} // 空表示全部类型
}

func (s *subscriber) wants(t entity.EventType) bool {
	if len(s.types) == 0 {
		return true
	}
	_, ok := s.types[t]
	return ok
}

// Hub 事件广播中心
// 功能：将遥测摘要、触发与信控事件广播给所有订阅者
// 说明：至多一次投递，订阅者缓冲区满时直接丢弃该事件，不重放也不持久化，发布方永不阻塞
type Hub struct {
	clock  clock.Clock
	buffer int

	mtx    sync.RWMutex
	next   uint64
	subs   map[uint64]*subscriber
	closed bool

	published atomic.Uint64
	dropped   atomic.Uint64
}

// NewHub 创建广播中心
// 参数：c-时钟，buffer-每个订阅者的缓冲区大小
func NewHub(c clock.Clock, buffer int) *Hub {
	if buffer < 1 {
		buffer = 1
	}
	return &Hub{
		clock:  c,
		buffer: buffer,
		subs:   make(map[uint64]*subscriber),
	}
}

// Publish 广播一个事件
func (h *Hub) Publish(t entity.EventType, payload any) {
	ev := Event{
		ID:      uuid.NewString(),
		Type:    t,
		Time:    h.clock.Now(),
		Payload: payload,
	}
	h.published.Add(1)

	h.mtx.RLock()
	defer h.mtx.RUnlock()
	if h.closed {
		return
	}
	for id, s := range h.subs {
		if !s.wants(t) {
			continue
		}
		select {
		case s.ch <- ev:
		default:
			h.dropped.Add(1)
			log.Debugf("subscriber %d is slow, dropped %s event", id, t)
		}
	}
}

// Subscribe 订阅事件
// 参数：types-关心的事件类型，为空表示全部
// 返回：事件通道与取消订阅函数（可重复调用）
func (h *Hub) Subscribe(types ...entity.EventType) (<-chan Event, func()) {
	s := &subscriber{
		ch:    make(chan Event, h.buffer),
		types: lo.SliceToMap(types, func(t entity.EventType) (entity.EventType, struct{}) { return t, struct{}{} }),
	}
	h.mtx.Lock()
	defer h.mtx.Unlock()
	if h.closed {
		close(s.ch)
		return s.ch, func() {}
	}
	h.next++
	id := h.next
	h.subs[id] = s
	log.Debugf("subscriber %d joined", id)

	var once sync.Once
	return s.ch, func() {
		once.Do(func() {
			h.mtx.Lock()
			defer h.mtx.Unlock()
			if _, ok := h.subs[id]; ok {
				delete(h.subs, id)
				close(s.ch)
			}
		})
	}
}

// Subscribers 当前订阅者数量
func (h *Hub) Subscribers() int {
	h.mtx.RLock()
	defer h.mtx.RUnlock()
	return len(h.subs)
}

// Stats 已发布与已丢弃的事件数
func (h *Hub) Stats() (published, dropped uint64) {
	return h.published.Load(), h.dropped.Load()
}

// Close 关闭所有订阅，之后的发布被忽略
func (h *Hub) Close() {
	h.mtx.Lock()
	defer h.mtx.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, s := range h.subs {
		close(s.ch)
		delete(h.subs, id)
	}
}
