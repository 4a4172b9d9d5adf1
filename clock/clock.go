package clock

import (
	"sort"
	"sync"
	"time"
)

// Clock 时钟接口
// 功能：为延迟激活定时器和时间戳提供统一的时间来源
// 说明：生产环境使用Real，测试使用Manual以获得确定性
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer 可停止的定时器
type Timer interface {
	// Stop 停止定时器，返回true表示在触发前成功停止
	Stop() bool
}

// Real 系统时钟
type Real struct{}

// New 创建系统时钟
func New() Real {
	return Real{}
}

func (Real) Now() time.Time {
	return time.Now()
}

func (Real) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// manualTimer 手动时钟的定时器
type manualTimer struct {
	c       *Manual
	seq     int
	at      time.Time
	f       func()
	stopped bool
	fired   bool
}

func (t *manualTimer) Stop() bool {
	t.c.mtx.Lock()
	defer t.c.mtx.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// Manual 手动推进的时钟
// 功能：时间只在调用Advance时前进，到期的定时器在Advance中按到期时间顺序同步执行
type Manual struct {
	mtx    sync.Mutex
	now    time.Time
	seq    int
	timers []*manualTimer
}

// NewManual 创建指定起始时间的手动时钟
func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

func (c *Manual) Now() time.Time {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	return c.now
}

func (c *Manual) AfterFunc(d time.Duration, f func()) Timer {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	c.seq++
	t := &manualTimer{c: c, seq: c.seq, at: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

// Pending 尚未触发且未停止的定时器数量
func (c *Manual) Pending() int {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

// Advance 推进时钟
// 功能：将时间前进d，并执行所有到期的定时器
// 参数：d-推进时长
// 说明：回调在锁外执行，回调中可以再次注册定时器
func (c *Manual) Advance(d time.Duration) {
	c.mtx.Lock()
	c.now = c.now.Add(d)
	due := make([]*manualTimer, 0)
	rest := c.timers[:0]
	for _, t := range c.timers {
		switch {
		case t.stopped || t.fired:
		case !t.at.After(c.now):
			t.fired = true
			due = append(due, t)
		default:
			rest = append(rest, t)
		}
	}
	c.timers = rest
	c.mtx.Unlock()

	sort.SliceStable(due, func(i, j int) bool {
		if due[i].at.Equal(due[j].at) {
			return due[i].seq < due[j].seq
		}
		return due[i].at.Before(due[j].at)
	})
	for _, t := range due {
		t.f()
	}
}
