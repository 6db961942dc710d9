// Package balancer считает нагрузку на аккаунты и выбирает наименее загруженный.
package balancer

import (
	"fmt"
	"sync/atomic"
)

// Counter: счётчик активных потоков одного аккаунта. Используется только
// как относительный сигнал нагрузки, а не как жёсткий лимит.
type Counter struct {
	n atomic.Int64
}

func (c *Counter) Inc() { c.n.Add(1) }

func (c *Counter) Dec() {
	// не уходим в минус даже при лишнем Dec
	for {
		v := c.n.Load()
		if v <= 0 || c.n.CompareAndSwap(v, v-1) {
			return
		}
	}
}

func (c *Counter) Value() int64 { return c.n.Load() }

// Load: нагрузка одного аккаунта.
type Load struct {
	Name  string
	Value int64
}

type Balancer struct {
	names    []string
	counters []*Counter
}

// New создаёт балансировщик на n аккаунтов с именами bot1..botN.
func New(n int) *Balancer {
	b := &Balancer{
		names:    make([]string, n),
		counters: make([]*Counter, n),
	}
	for i := range n {
		b.names[i] = fmt.Sprintf("bot%d", i+1)
		b.counters[i] = &Counter{}
	}
	return b
}

func (b *Balancer) Len() int { return len(b.counters) }

func (b *Balancer) Counter(i int) *Counter { return b.counters[i] }

func (b *Balancer) Name(i int) string { return b.names[i] }

// Pick возвращает индекс аккаунта с наименьшей нагрузкой; при равенстве
// побеждает аккаунт с меньшим индексом.
func (b *Balancer) Pick() int {
	best := 0
	for i := 1; i < len(b.counters); i++ {
		if b.counters[i].Value() < b.counters[best].Value() {
			best = i
		}
	}
	return best
}

// Loads возвращает снимок нагрузки в порядке аккаунтов.
func (b *Balancer) Loads() []Load {
	loads := make([]Load, len(b.counters))
	for i, c := range b.counters {
		loads[i] = Load{Name: b.names[i], Value: c.Value()}
	}
	return loads
}
