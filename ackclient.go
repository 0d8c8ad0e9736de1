package webglue

import (
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
)

// ackClient correlates emitted messages with the acks the other party sends for them
type ackClient struct {
	mx      sync.Mutex
	pending map[string]chan ackMessage
	lastID  int64
}

func newAckClient() *ackClient {
	return &ackClient{
		pending: make(map[string]chan ackMessage),
		lastID:  -1,
	}
}

func (a *ackClient) newID() string {
	return strconv.FormatInt(atomic.AddInt64(&a.lastID, 1), 10)
}

// newAck registers a new ack id. The returned channel receives the ack or
// is closed without a value when the loop ends before the ack arrived.
func (a *ackClient) newAck() (string, <-chan ackMessage) {
	id := a.newID()
	ch := make(chan ackMessage, 1)
	a.mx.Lock()
	a.pending[id] = ch
	a.mx.Unlock()
	return id, ch
}

func (a *ackClient) deleteAck(id string) {
	a.mx.Lock()
	defer a.mx.Unlock()
	if ch, ok := a.pending[id]; ok {
		delete(a.pending, id)
		close(ch)
	}
}

func (a *ackClient) receiveAck(ack ackMessage) error {
	a.mx.Lock()
	defer a.mx.Unlock()
	ch, ok := a.pending[ack.AckID]
	if !ok {
		return fmt.Errorf(`unknown ack id "%v"`, ack.AckID)
	}
	delete(a.pending, ack.AckID)
	ch <- ack
	close(ch)
	return nil
}

func (a *ackClient) cancelAll() {
	a.mx.Lock()
	defer a.mx.Unlock()
	for _, ch := range a.pending {
		close(ch)
	}
	a.pending = make(map[string]chan ackMessage)
}
