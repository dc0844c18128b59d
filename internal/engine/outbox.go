package engine

import "sync"

// outbox runs queued deliveries one at a time, in push order, on a
// background goroutine that exits when the queue is empty.
type outbox struct {
	mu      sync.Mutex
	queue   []func()
	running bool
	pending sync.WaitGroup
}

func newOutbox() *outbox {
	return &outbox{}
}

func (o *outbox) push(fn func()) {
	o.pending.Add(1)
	o.mu.Lock()
	o.queue = append(o.queue, fn)
	if o.running {
		o.mu.Unlock()
		return
	}
	o.running = true
	o.mu.Unlock()
	go o.drain()
}

func (o *outbox) drain() {
	for {
		o.mu.Lock()
		if len(o.queue) == 0 {
			o.running = false
			o.mu.Unlock()
			return
		}
		fn := o.queue[0]
		o.queue[0] = nil
		o.queue = o.queue[1:]
		o.mu.Unlock()

		fn()
		o.pending.Done()
	}
}

// wait blocks until every pushed delivery has run.
func (o *outbox) wait() {
	o.pending.Wait()
}
