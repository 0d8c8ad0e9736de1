package webglue

import (
	"context"
	"fmt"
	"reflect"
	"runtime/debug"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
	stateType   = reflect.TypeOf((*ConnectionState)(nil))
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
)

// dispatcher resolves, checks and invokes calls
type dispatcher struct {
	registry             *registry
	tracer               trace.Tracer
	metrics              *Metrics
	enableDetailedErrors bool
}

// dispatch runs call on behalf of the connection of l. The result is either a value or a *CallError.
func (d *dispatcher) dispatch(ctx context.Context, l *loop, call callEnvelope) (result interface{}, callErr *CallError) {
	start := time.Now()
	ctx, span := d.tracer.Start(ctx, "webglue.call",
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("webglue.api", call.API),
			attribute.String("webglue.fnc", call.Fnc),
			attribute.String("webglue.connection", l.state.ConnectionID())))
	defer func() {
		if callErr != nil {
			span.SetAttributes(attribute.String("webglue.error_kind", string(callErr.Kind)))
			span.SetStatus(codes.Error, callErr.Message)
		}
		span.End()
		d.metrics.observeCall(call.API, call.Fnc, callErr, time.Since(start))
	}()

	fnc, callErr := d.registry.lookup(call.API, call.Fnc)
	if callErr != nil {
		return nil, callErr
	}
	if len(d.registry.checks) > 0 {
		c := &Call{
			APIName: call.API,
			FncName: call.Fnc,
			API:     d.registry.functions[call.API],
			Fnc:     fnc.Interface(),
			Args:    decodeLoose(l.protocol, call.Args),
		}
		for _, check := range d.registry.checks {
			if err := runCheck(ctx, l, check, c); err != nil {
				_ = l.dbg.Log(evt, "call check", "api", call.API, "fnc", call.Fnc, "error", err, react, "reject call")
				return nil, &CallError{Kind: KindCallCheckRejected, Message: err.Error()}
			}
		}
	}
	in, callErr := buildArguments(ctx, l.state, fnc, call.Args, l.protocol)
	if callErr != nil {
		_ = l.info.Log(evt, "buildArguments", "api", call.API, "fnc", call.Fnc, "error", callErr, react, "send error")
		return nil, callErr
	}
	return d.invoke(l, call, fnc, in)
}

// runCheck turns a panic of check into a rejection of the call
func runCheck(ctx context.Context, l *loop, check CallCheck, c *Call) (err error) {
	defer func() {
		if r := recover(); r != nil {
			_ = l.info.Log(evt, "panic in call check", "error", r, "api", c.APIName, "fnc", c.FncName, react, "reject call")
			_ = l.dbg.Log(evt, "panic in call check", "error", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("call check panicked: %v", r)
		}
	}()
	return check(ctx, l.state, c)
}

func (d *dispatcher) invoke(l *loop, call callEnvelope, fnc reflect.Value, in []reflect.Value) (result interface{}, callErr *CallError) {
	defer func() {
		if err := recover(); err != nil {
			_ = l.info.Log(evt, "panic in function", "error", err, "api", call.API, "fnc", call.Fnc, react, "send error")
			stack := string(debug.Stack())
			_ = l.dbg.Log(evt, "panic in function", "error", err, "api", call.API, "fnc", call.Fnc, "stack", stack)
			message := fmt.Sprintf("%v", err)
			if d.enableDetailedErrors {
				message = fmt.Sprintf("%v\n%v", err, stack)
			}
			result, callErr = nil, &CallError{Kind: KindFunctionFailed, Message: message}
		}
	}()
	out := fnc.Call(in)
	t := fnc.Type()
	if n := t.NumOut(); n > 0 && t.Out(n-1) == errorType {
		if errValue := out[n-1]; !errValue.IsNil() {
			return nil, &CallError{Kind: KindFunctionFailed, Message: errValue.Interface().(error).Error()}
		}
		out = out[:n-1]
	}
	switch len(out) {
	case 0:
		return nil, nil
	case 1:
		return out[0].Interface(), nil
	default:
		values := make([]interface{}, len(out))
		for i, v := range out {
			values[i] = v.Interface()
		}
		return values, nil
	}
}

// buildArguments fills the parameters of fnc. Missing trailing arguments are zero values,
// a variadic parameter takes all remaining arguments.
func buildArguments(ctx context.Context, state *ConnectionState, fnc reflect.Value, args arguments, protocol wireProtocol) ([]reflect.Value, *CallError) {
	t := fnc.Type()
	in := make([]reflect.Value, 0, t.NumIn())
	i := 0
	if i < t.NumIn() && t.In(i) == contextType {
		in = append(in, reflect.ValueOf(ctx))
		i++
	}
	if i < t.NumIn() && t.In(i) == stateType {
		in = append(in, reflect.ValueOf(state))
		i++
	}
	fixed := t.NumIn() - i
	if t.IsVariadic() {
		fixed--
	}
	if !t.IsVariadic() && len(args) > fixed {
		return nil, &CallError{
			Kind:    KindInvalidArguments,
			Message: fmt.Sprintf("too many arguments: expected %v, got %v", fixed, len(args)),
		}
	}
	for j := 0; j < fixed; j++ {
		pt := t.In(i + j)
		if j >= len(args) {
			in = append(in, reflect.Zero(pt))
			continue
		}
		arg, err := decodeArgument(protocol, args[j], pt)
		if err != nil {
			return nil, &CallError{Kind: KindInvalidArguments, Message: fmt.Sprintf("argument %v: %v", j, err)}
		}
		in = append(in, arg)
	}
	if t.IsVariadic() {
		elem := t.In(t.NumIn() - 1).Elem()
		for j := fixed; j < len(args); j++ {
			arg, err := decodeArgument(protocol, args[j], elem)
			if err != nil {
				return nil, &CallError{Kind: KindInvalidArguments, Message: fmt.Sprintf("argument %v: %v", j, err)}
			}
			in = append(in, arg)
		}
	}
	return in, nil
}

func decodeArgument(protocol wireProtocol, src interface{}, t reflect.Type) (reflect.Value, error) {
	arg := reflect.New(t)
	if err := protocol.UnmarshalArgument(src, arg.Interface()); err != nil {
		return reflect.Value{}, err
	}
	return arg.Elem(), nil
}

// decodeLoose decodes args without type information. Undecodable arguments are nil.
func decodeLoose(protocol wireProtocol, args arguments) []interface{} {
	values := make([]interface{}, len(args))
	for i, arg := range args {
		var value interface{}
		if err := protocol.UnmarshalArgument(arg, &value); err == nil {
			values[i] = value
		}
	}
	return values
}
