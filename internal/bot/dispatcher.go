package bot

import (
	"context"
	"sync"
)

// dispatcher runs events for different users concurrently while keeping
// each user's events in arrival order. Every user with pending events owns
// one lane drained by one goroutine; the lane disappears once empty.
type dispatcher struct {
	handle func(context.Context, Event)

	mu    sync.Mutex
	lanes map[int64]*lane
	wg    sync.WaitGroup
}

type lane struct {
	queue []Event
}

func newDispatcher(handle func(context.Context, Event)) *dispatcher {
	return &dispatcher{
		handle: handle,
		lanes:  make(map[int64]*lane),
	}
}

func (d *dispatcher) Submit(ctx context.Context, ev Event) {
	d.mu.Lock()
	if l, ok := d.lanes[ev.UserID]; ok {
		l.queue = append(l.queue, ev)
		d.mu.Unlock()
		return
	}
	l := &lane{queue: []Event{ev}}
	d.lanes[ev.UserID] = l
	d.wg.Add(1)
	d.mu.Unlock()

	go d.drain(ctx, ev.UserID, l)
}

func (d *dispatcher) drain(ctx context.Context, userID int64, l *lane) {
	defer d.wg.Done()
	for {
		d.mu.Lock()
		if len(l.queue) == 0 {
			delete(d.lanes, userID)
			d.mu.Unlock()
			return
		}
		ev := l.queue[0]
		l.queue = l.queue[1:]
		d.mu.Unlock()

		d.handle(ctx, ev)
	}
}

// Wait blocks until every submitted event has been handled.
func (d *dispatcher) Wait() {
	d.wg.Wait()
}
