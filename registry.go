package webglue

import (
	"fmt"
	"reflect"
	"sort"

	"go.uber.org/multierr"
)

// registry is built once from the modules and read-only afterwards
type registry struct {
	api       map[string]map[string]reflect.Value
	functions map[string]Functions
	events    map[string][]string
	checks    []CallCheck
	filters   []EventFilter
	resources []string
	discovery discoveryPayload
}

type slotBinding struct {
	slot      *EventSlot
	apiName   string
	eventName string
}

// newRegistry walks the modules in order. Later modules replace APIs with the
// same name. Event slots are only bound if all modules are valid.
func newRegistry(modules []Module, emit emitFunc) (*registry, error) {
	r := &registry{
		api:       make(map[string]map[string]reflect.Value),
		functions: make(map[string]Functions),
		events:    make(map[string][]string),
	}
	var err error
	var bindings []slotBinding
	for i, module := range modules {
		for apiName, functions := range module.API {
			fns := make(map[string]reflect.Value, len(functions))
			for fncName, fnc := range functions {
				value := reflect.ValueOf(fnc)
				if !value.IsValid() || value.Kind() != reflect.Func || value.IsNil() {
					err = multierr.Append(err, fmt.Errorf("module %v: %v.%v is not a func but %T", i, apiName, fncName, fnc))
					continue
				}
				fns[fncName] = value
			}
			r.api[apiName] = fns
			r.functions[apiName] = functions
		}
		bindings, err = collectSlots(module.Events, "", bindings, err)
		if module.CheckCall != nil {
			r.checks = append(r.checks, module.CheckCall)
		}
		if module.FilterEvent != nil {
			r.filters = append(r.filters, module.FilterEvent)
		}
		if module.Resources != "" {
			r.resources = append(r.resources, module.Resources)
		}
	}
	seen := make(map[*EventSlot]bool)
	for _, b := range bindings {
		if seen[b.slot] {
			err = multierr.Append(err, fmt.Errorf("event slot declared twice, last as %v", qualifiedEventName(b.apiName, b.eventName)))
		}
		seen[b.slot] = true
		if b.slot.Bound() {
			apiName, eventName := b.slot.Name()
			err = multierr.Append(err, fmt.Errorf("%v: %w to %v", qualifiedEventName(b.apiName, b.eventName), errSlotBound, qualifiedEventName(apiName, eventName)))
		}
	}
	if err != nil {
		return nil, err
	}
	for _, b := range bindings {
		if bindErr := b.slot.bind(b.apiName, b.eventName, emit); bindErr != nil {
			return nil, bindErr
		}
		r.addEvent(b.apiName, b.eventName)
	}
	for apiName := range r.events {
		sort.Strings(r.events[apiName])
	}
	r.discovery = r.buildDiscovery()
	return r, nil
}

func collectSlots(events Events, apiName string, bindings []slotBinding, err error) ([]slotBinding, error) {
	for name, value := range events {
		switch value := value.(type) {
		case *EventSlot:
			if value == nil {
				err = multierr.Append(err, fmt.Errorf("event %v has a nil slot", qualifiedEventName(apiName, name)))
				continue
			}
			bindings = append(bindings, slotBinding{slot: value, apiName: apiName, eventName: name})
		case Events:
			bindings, err = collectSlots(value, qualifiedEventName(apiName, name), bindings, err)
		case map[string]interface{}:
			bindings, err = collectSlots(value, qualifiedEventName(apiName, name), bindings, err)
		default:
			err = multierr.Append(err, fmt.Errorf("event %v: invalid declaration %T", qualifiedEventName(apiName, name), value))
		}
	}
	return bindings, err
}

func (r *registry) addEvent(apiName, eventName string) {
	for _, name := range r.events[apiName] {
		if name == eventName {
			return
		}
	}
	r.events[apiName] = append(r.events[apiName], eventName)
}

func (r *registry) buildDiscovery() discoveryPayload {
	payload := discoveryPayload{
		Events: make(map[string][]string, len(r.events)),
		API:    make(map[string]map[string]functionRef, len(r.api)),
	}
	for apiName, names := range r.events {
		payload.Events[apiName] = append([]string(nil), names...)
	}
	for apiName, fns := range r.api {
		refs := make(map[string]functionRef, len(fns))
		for fncName := range fns {
			refs[fncName] = functionRef{API: apiName, Fnc: fncName}
		}
		payload.API[apiName] = refs
	}
	return payload
}

func (r *registry) lookup(apiName, fncName string) (reflect.Value, *CallError) {
	fns, ok := r.api[apiName]
	if !ok {
		return reflect.Value{}, &CallError{Kind: KindUnknownAPI, Message: fmt.Sprintf("There is no API %v", apiName)}
	}
	fnc, ok := fns[fncName]
	if !ok {
		return reflect.Value{}, &CallError{Kind: KindUnknownFunction, Message: fmt.Sprintf("There is no function %v in API %v", fncName, apiName)}
	}
	return fnc, nil
}
