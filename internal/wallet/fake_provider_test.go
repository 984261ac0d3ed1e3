package wallet

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

type fakeCall struct {
	Method string
	Params []interface{}
}

// fakeProvider answers wallet RPC methods from a handler table
type fakeProvider struct {
	mu       sync.Mutex
	calls    []fakeCall
	handlers map[string]func(params []interface{}) (interface{}, error)
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{handlers: make(map[string]func([]interface{}) (interface{}, error))}
}

func (f *fakeProvider) on(method string, fn func(params []interface{}) (interface{}, error)) {
	f.handlers[method] = fn
}

func (f *fakeProvider) reply(method string, value interface{}) {
	f.on(method, func([]interface{}) (interface{}, error) { return value, nil })
}

func (f *fakeProvider) Request(ctx context.Context, result interface{}, method string, params ...interface{}) error {
	f.mu.Lock()
	f.calls = append(f.calls, fakeCall{Method: method, Params: params})
	fn, ok := f.handlers[method]
	f.mu.Unlock()
	if !ok {
		return &ProviderError{Code: -32601, Message: fmt.Sprintf("method %s not found", method)}
	}
	value, err := fn(params)
	if err != nil {
		return err
	}
	if result == nil {
		return nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, result)
}

func (f *fakeProvider) methods() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.calls))
	for _, c := range f.calls {
		out = append(out, c.Method)
	}
	return out
}

func (f *fakeProvider) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
}
