package webglue

import (
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"
)

const heartbeatEvent = "Heartbeat"

// Target is anything a client side event handler can be attached to.
// Targets form a tree like the elements of a document. The root target returns nil.
// Targets are compared with ==, so the dynamic type of a Target must be comparable.
// Pointers are the usual choice.
type Target interface {
	ParentTarget() Target
}

// Handler is called with the event arguments
type Handler func(args ...interface{})

// Hook is the client side registration for one event, see HookName.
// Hooks are created on discovery, handlers stay attached across reconnects.
type Hook struct {
	name      string
	apiName   string
	eventName string
	router    *eventRouter
}

// Name is the hook name, e.g. onChatSaid
func (h *Hook) Name() string {
	return h.name
}

// Event returns namespace and name of the event
func (h *Hook) Event() (apiName string, eventName string) {
	return h.apiName, h.eventName
}

// Attach attaches handler to target. The handler is called when the event is
// dispatched to target itself, not when it bubbles up from a descendant of target.
// The returned func detaches the handler.
// Attach panics if target is nil or not comparable.
func (h *Hook) Attach(target Target, handler Handler) (detach func()) {
	if target == nil || !reflect.TypeOf(target).Comparable() {
		panic(fmt.Sprintf("webglue: can not attach %v to target of type %T, targets must be comparable", h.name, target))
	}
	return h.router.attach(h.name, target, handler)
}

// Dispatch dispatches the event to target. It bubbles to all ancestors of target,
// but only handlers attached to target itself are called.
func (h *Hook) Dispatch(target Target, args ...interface{}) {
	h.router.dispatch(h.name, target, args)
}

type attachment struct {
	id      uint64
	target  Target
	handler Handler
}

// eventRouter holds the handlers of all hooks of a client
type eventRouter struct {
	mx          sync.RWMutex
	attachments map[string][]attachment
	lastID      uint64
}

func newEventRouter() *eventRouter {
	return &eventRouter{attachments: make(map[string][]attachment)}
}

func (r *eventRouter) attach(hookName string, target Target, handler Handler) func() {
	id := atomic.AddUint64(&r.lastID, 1)
	r.mx.Lock()
	r.attachments[hookName] = append(r.attachments[hookName], attachment{id: id, target: target, handler: handler})
	r.mx.Unlock()
	return func() {
		r.mx.Lock()
		defer r.mx.Unlock()
		as := r.attachments[hookName]
		for i, a := range as {
			if a.id == id {
				r.attachments[hookName] = append(as[:i:i], as[i+1:]...)
				return
			}
		}
	}
}

// trigger dispatches a received event to every target with an attached handler
func (r *eventRouter) trigger(hookName string, args []interface{}) {
	r.mx.RLock()
	targets := make([]Target, 0)
	seen := make(map[Target]bool)
	for _, a := range r.attachments[hookName] {
		if !seen[a.target] {
			seen[a.target] = true
			targets = append(targets, a.target)
		}
	}
	r.mx.RUnlock()
	for _, target := range targets {
		r.dispatch(hookName, target, args)
	}
}

func (r *eventRouter) dispatch(hookName string, target Target, args []interface{}) {
	r.mx.RLock()
	as := append([]attachment(nil), r.attachments[hookName]...)
	r.mx.RUnlock()
	for current := target; current != nil; current = current.ParentTarget() {
		for _, a := range as {
			// only where the event target is the current target
			if a.target == current && current == target {
				a.handler(args...)
			}
		}
	}
}
