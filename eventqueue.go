package webglue

import (
	"fmt"
	"sync"
)

// eventQueue delivers the events of one connection in emit order. Filters run
// on the queue goroutine, so a slow filter only delays its own connection.
type eventQueue struct {
	l        *loop
	ch       chan Emission
	done     chan struct{}
	stopOnce sync.Once
	filters  []EventFilter
	metrics  *Metrics
}

func newEventQueue(l *loop, capacity uint, filters []EventFilter, metrics *Metrics) *eventQueue {
	return &eventQueue{
		l:       l,
		ch:      make(chan Emission, capacity),
		done:    make(chan struct{}),
		filters: filters,
		metrics: metrics,
	}
}

func (q *eventQueue) push(e Emission) bool {
	select {
	case <-q.done:
		return true
	default:
	}
	select {
	case q.ch <- e:
		return true
	default:
		return false
	}
}

func (q *eventQueue) stop() {
	q.stopOnce.Do(func() { close(q.done) })
}

func (q *eventQueue) run() {
	for {
		select {
		case e := <-q.ch:
			q.deliver(e)
		case <-q.done:
			return
		case <-q.l.ctx.Done():
			return
		}
	}
}

func (q *eventQueue) deliver(e Emission) {
	for _, filter := range q.filters {
		ok, err := q.runFilter(filter, e)
		if err != nil {
			_ = q.l.info.Log(evt, "event filter", "api", e.APIName, "name", e.EventName, "error", err, react, "suppress event")
		}
		if err != nil || !ok {
			_ = q.l.dbg.Log(evt, "event filter", "api", e.APIName, "name", e.EventName, "kind", KindEventFilterRejected)
			q.metrics.countEvent(e.APIName, e.EventName, eventFiltered)
			return
		}
	}
	if _, err := q.l.socket.Emit(emitEvent, "", e.APIName, e.EventName, e.Args); err != nil {
		_ = q.l.info.Log(evt, msgSend, "api", e.APIName, "name", e.EventName, "error", err)
		q.metrics.countEvent(e.APIName, e.EventName, eventFailed)
		return
	}
	q.metrics.countEvent(e.APIName, e.EventName, eventDelivered)
}

// runFilter treats a panic of filter as a denial with an error
func (q *eventQueue) runFilter(filter EventFilter, e Emission) (ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			ok, err = false, fmt.Errorf("event filter panicked: %v", r)
		}
	}()
	return filter(q.l.ctx, q.l.state, e)
}
