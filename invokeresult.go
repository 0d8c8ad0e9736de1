package webglue

// InvokeResult is the combined value/error result for async invocations. Used as channel type.
type InvokeResult struct {
	Value interface{}
	Error error
}

// newInvokeResultChan returns a closed channel which delivers exactly one InvokeResult
func newInvokeResultChan(value interface{}, err error) <-chan InvokeResult {
	ch := make(chan InvokeResult, 1)
	ch <- InvokeResult{Value: value, Error: err}
	close(ch)
	return ch
}
