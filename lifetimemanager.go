package webglue

import (
	"sync"
)

// lifetimeManager knows the connected clients and fans emitted events out to them
type lifetimeManager struct {
	mx       sync.RWMutex
	queues   map[string]*eventQueue
	capacity uint
	filters  []EventFilter
	metrics  *Metrics
	info     StructuredLogger
}

func newLifetimeManager(capacity uint, filters []EventFilter, metrics *Metrics, info StructuredLogger) *lifetimeManager {
	return &lifetimeManager{
		queues:   make(map[string]*eventQueue),
		capacity: capacity,
		filters:  filters,
		metrics:  metrics,
		info:     info,
	}
}

func (m *lifetimeManager) OnConnected(l *loop) {
	q := newEventQueue(l, m.capacity, m.filters, m.metrics)
	m.mx.Lock()
	m.queues[l.state.ConnectionID()] = q
	m.mx.Unlock()
	m.metrics.addConnections(1)
	go q.run()
}

func (m *lifetimeManager) OnDisconnected(l *loop) {
	m.mx.Lock()
	q, ok := m.queues[l.state.ConnectionID()]
	delete(m.queues, l.state.ConnectionID())
	m.mx.Unlock()
	if ok {
		q.stop()
		m.metrics.addConnections(-1)
	}
}

// Broadcast enqueues the emission for every connection. Connections with full queues miss it.
func (m *lifetimeManager) Broadcast(e Emission) {
	m.mx.RLock()
	queues := make([]*eventQueue, 0, len(m.queues))
	for _, q := range m.queues {
		queues = append(queues, q)
	}
	m.mx.RUnlock()
	for _, q := range queues {
		if !q.push(e) {
			_ = m.info.Log(evt, "event", "connection", q.l.state.ConnectionID(),
				"api", e.APIName, "name", e.EventName, "error", "event queue full", react, "drop event")
			m.metrics.countEvent(e.APIName, e.EventName, eventDropped)
		}
	}
}

func (m *lifetimeManager) Count() int {
	m.mx.RLock()
	defer m.mx.RUnlock()
	return len(m.queues)
}
