package webglue

import (
	"context"
	"reflect"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Module is a unit of server functionality. All fields are optional.
type Module struct {
	// API maps API names to the functions callable under that name
	API map[string]Functions
	// Events declares the events the module emits. See Events.
	Events Events
	// CheckCall is run before every function call on every connection
	CheckCall CallCheck
	// FilterEvent is run before every event is delivered to a connection
	FilterEvent EventFilter
	// Resources is a directory with static files for the browser client
	Resources string
}

// Functions maps function names to Go funcs.
//
// A func may take a context.Context as first parameter and a *ConnectionState
// as first (or second, after the context) parameter. The remaining parameters are
// filled from the call arguments. A func may return a value, several values or
// no value at all, and an error as last result.
type Functions map[string]interface{}

// MethodsOf builds Functions from the exported methods of receiver.
// The names start with a lower case letter, e.g. method Add is named "add".
func MethodsOf(receiver interface{}) Functions {
	functions := make(Functions)
	value := reflect.ValueOf(receiver)
	t := value.Type()
	for i := 0; i < t.NumMethod(); i++ {
		method := t.Method(i)
		if !method.IsExported() {
			continue
		}
		functions[lowerFirst(method.Name)] = value.Method(i).Interface()
	}
	return functions
}

// CallCheck decides if a call may be executed. Any error rejects the call
// and its message is sent to the client.
type CallCheck func(ctx context.Context, state *ConnectionState, call *Call) error

// Call describes a function call for CallChecks
type Call struct {
	APIName string
	FncName string
	// API contains all functions of the API
	API Functions
	// Fnc is the called func
	Fnc interface{}
	// Args are the call arguments decoded without type information
	Args []interface{}
}

// EventFilter decides if an event is delivered to the connection.
// false or an error suppress the delivery.
type EventFilter func(ctx context.Context, state *ConnectionState, emission Emission) (bool, error)

// Emission is one emitted event
type Emission struct {
	APIName   string
	EventName string
	Args      []interface{}
}

func lowerFirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToLower(r)) + s[size:]
}

func upperFirst(s string) string {
	if s == "" {
		return s
	}
	r, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToUpper(r)) + s[size:]
}

// HookName is the name of the client side hook for an event:
// "on" + each capitalized namespace segment + capitalized event name,
// e.g. onChatRoomJoined for event "joined" in namespace "chat.room".
func HookName(apiName, eventName string) string {
	var sb strings.Builder
	sb.WriteString("on")
	if apiName != "" {
		for _, segment := range strings.Split(apiName, ".") {
			sb.WriteString(upperFirst(segment))
		}
	}
	sb.WriteString(upperFirst(eventName))
	return sb.String()
}
