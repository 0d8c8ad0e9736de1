package webglue

import (
	"errors"
	"fmt"
	"sync"
)

// Events declares the events of a Module. Values are either *EventSlot
// (an event) or Events (a nested namespace). Namespaces are joined with ".",
// events on the top level belong to the namespace "".
//
//	Events{
//		"tick": tick,                      // event "tick" in namespace ""
//		"chat": Events{"said": said},      // event "said" in namespace "chat"
//	}
type Events map[string]interface{}

// EventSlot is the emitter of one event. The server binds the slot when it is created,
// afterwards Emit sends the event to all connected clients which pass the event filters.
// Module code keeps a reference to its slots and calls Emit on them.
type EventSlot struct {
	mx        sync.RWMutex
	apiName   string
	eventName string
	emit      emitFunc
}

type emitFunc func(apiName, eventName string, args []interface{})

// NewEventSlot creates an unbound slot
func NewEventSlot() *EventSlot {
	return &EventSlot{}
}

// Emit sends the event. Emitting on an unbound slot does nothing.
func (e *EventSlot) Emit(args ...interface{}) {
	e.mx.RLock()
	emit, apiName, eventName := e.emit, e.apiName, e.eventName
	e.mx.RUnlock()
	if emit != nil {
		if args == nil {
			args = make([]interface{}, 0)
		}
		emit(apiName, eventName, args)
	}
}

// Bound tells if the slot belongs to a Server
func (e *EventSlot) Bound() bool {
	e.mx.RLock()
	defer e.mx.RUnlock()
	return e.emit != nil
}

// Name returns namespace and name of the event the slot is bound to
func (e *EventSlot) Name() (apiName string, eventName string) {
	e.mx.RLock()
	defer e.mx.RUnlock()
	return e.apiName, e.eventName
}

var errSlotBound = errors.New("event slot already bound")

func (e *EventSlot) bind(apiName, eventName string, emit emitFunc) error {
	e.mx.Lock()
	defer e.mx.Unlock()
	if e.emit != nil {
		return fmt.Errorf("%w to %v", errSlotBound, qualifiedEventName(e.apiName, e.eventName))
	}
	e.apiName, e.eventName, e.emit = apiName, eventName, emit
	return nil
}

func qualifiedEventName(apiName, eventName string) string {
	if apiName == "" {
		return eventName
	}
	return apiName + "." + eventName
}
