package module

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bridgelua/bridgelua/event"
	"github.com/bridgelua/bridgelua/luaconv"

	lua "github.com/yuin/gopher-lua"
)

// httpModule exposes synchronous and event-driven HTTP requests.
type httpModule struct {
	RuntimeModule
	http.Client
}

func HttpModule(runtime Runtime) *httpModule {
	return &httpModule{
		RuntimeModule: RuntimeModule{
			Module: Module{
				name: "http",
			},
			runtime: runtime,
		},
	}
}

func (m *httpModule) Open() lua.LGFunction {
	return func(l *lua.LState) int {
		functions := map[string]lua.LGFunction{
			"request":       m.request,
			"request_async": m.requestAsync,
		}
		l.Push(l.SetFuncs(l.CreateTable(0, len(functions)), functions))
		return 1
	}
}

func checkMethod(l *lua.LState, n int) (string, bool) {
	method := strings.ToUpper(l.CheckString(n))
	switch method {
	case http.MethodGet, http.MethodPost, http.MethodPut,
		http.MethodPatch, http.MethodDelete, http.MethodHead:
		return method, true
	}
	l.ArgError(n, "expects method to be one of: 'get', 'post', 'put', 'patch', 'delete', 'head'")
	return "", false
}

func (m *httpModule) request(l *lua.LState) int {
	url := l.CheckString(1)
	if url == "" {
		l.ArgError(1, "expects URL string")
		return 0
	}
	method, ok := checkMethod(l, 2)
	if !ok {
		return 0
	}
	headers := l.CheckTable(3)
	body := l.OptString(4, "")

	timeoutMs := l.OptInt64(5, 5000)
	if timeoutMs <= 0 {
		timeoutMs = 5_000
	}

	var requestBody io.Reader
	if body != "" {
		requestBody = strings.NewReader(body)
	}

	ctx, ctxCancelFn := context.WithTimeout(l.Context(), time.Duration(timeoutMs)*time.Millisecond)
	defer ctxCancelFn()

	req, err := http.NewRequestWithContext(ctx, method, url, requestBody)
	if err != nil {
		l.RaiseError("HTTP request error: %v", err.Error())
		return 0
	}
	for k, v := range luaconv.Table(headers) {
		vs, ok := v.(string)
		if !ok {
			l.RaiseError("HTTP header values must be strings")
			return 0
		}
		req.Header.Add(k, vs)
	}
	resp, err := m.Do(req)
	if err != nil {
		l.RaiseError("HTTP request error: %v", err.Error())
		return 0
	}
	responseBody, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		l.RaiseError("HTTP response body error: %v", err.Error())
		return 0
	}
	responseHeaders := make(map[string]interface{}, len(resp.Header))
	for k, vs := range resp.Header {
		// TODO accept multiple values per header
		for _, v := range vs {
			responseHeaders[k] = v
			break
		}
	}

	l.Push(lua.LNumber(resp.StatusCode))
	l.Push(luaconv.Map(l, responseHeaders))
	l.Push(lua.LString(string(responseBody)))
	return 3
}

func (m *httpModule) requestAsync(l *lua.LState) int {
	fn := l.CheckFunction(1)
	if fn == nil {
		l.ArgError(1, "expects function")
		return 0
	}
	url := l.CheckString(2)
	if url == "" {
		l.ArgError(2, "expects URL string")
		return 0
	}
	method, ok := checkMethod(l, 3)
	if !ok {
		return 0
	}
	headers := l.CheckTable(4)
	body := l.OptString(5, "")

	timeoutMs := l.OptInt64(6, 5000)
	if timeoutMs <= 0 {
		timeoutMs = 5_000
	}

	var requestBody io.Reader
	if body != "" {
		requestBody = strings.NewReader(body)
	}

	ctx, ctxCancelFn := context.WithTimeout(l.Context(), time.Duration(timeoutMs)*time.Millisecond)

	req, err := http.NewRequestWithContext(ctx, method, url, requestBody)
	if err != nil {
		ctxCancelFn()
		l.RaiseError("HTTP request error: %v", err.Error())
		return 0
	}
	for k, v := range luaconv.Table(headers) {
		vs, ok := v.(string)
		if !ok {
			ctxCancelFn()
			l.RaiseError("HTTP header values must be strings")
			return 0
		}
		req.Header.Add(k, vs)
	}
	m.runtime.EventQueue() <- &httpRequestEvent{
		ctxCancelFn: ctxCancelFn,
		Client:      m.Client,
		Request:     req,
		VM:          l,
		Func:        fn,
	}
	return 0
}

// httpRequestEvent performs the request on its own goroutine and
// delivers the response to the callback from the event pump.
type httpRequestEvent struct {
	event.StateEvent
	*http.Request
	http.Client
	ctxCancelFn context.CancelFunc
	VM          *lua.LState
	Func        *lua.LFunction
	resp        *http.Response
	err         error
}

func (e *httpRequestEvent) Update(time.Duration) error {
	switch event.State(e.Load()) {
	case event.INITIALIZE:
		e.Store(uint32(event.PROGRESS))
		go func() {
			defer e.Store(uint32(event.FINALIZE))
			if resp, err := e.Do(e.Request); err != nil {
				e.err = fmt.Errorf("HTTP request error: %v", err.Error())
			} else {
				e.resp = resp
			}
		}()
	case event.FINALIZE:
		var body []byte
		var headers map[string]interface{}
		defer e.Store(uint32(event.COMPLETE))
		defer e.ctxCancelFn()
		if e.err == nil {
			resp := e.resp
			body, e.err = io.ReadAll(resp.Body)
			resp.Body.Close()
			if e.err != nil {
				e.err = fmt.Errorf("HTTP response body error: %v", e.err.Error())
			} else {
				headers = make(map[string]interface{}, len(resp.Header))
				for k, vs := range resp.Header {
					// TODO accept multiple values per header
					for _, v := range vs {
						headers[k] = v
						break
					}
				}
			}
		}
		e.VM.Push(e.Func)
		if e.err != nil {
			e.VM.Push(lua.LBool(false))
			e.VM.Push(lua.LString(e.err.Error()))
			e.VM.Push(lua.LNil)
			e.VM.Push(lua.LNil)
			e.VM.Push(lua.LNil)
		} else {
			e.VM.Push(lua.LBool(true))
			e.VM.Push(lua.LNil)
			e.VM.Push(lua.LNumber(e.resp.StatusCode))
			e.VM.Push(luaconv.Map(e.VM, headers))
			e.VM.Push(lua.LString(string(body)))
		}
		return e.VM.PCall(5, 0, nil)
	}
	return nil
}
