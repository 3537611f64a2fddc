// SPDX-License-Identifier: MPL-2.0

package jsrt

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	neturl "net/url"
	"strings"
	"time"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/eventloop"
	cleanhttp "github.com/hashicorp/go-cleanhttp"
)

const (
	userAgent = "esdata"

	// maxResponseBytes bounds a response body held in memory.
	maxResponseBytes = 64 << 20

	// keepAlivePeriod is longer than any request is expected to take.
	keepAlivePeriod = 24 * time.Hour
)

type (
	// userAgentRoundTripper sets the User-Agent header unless the loader
	// chose its own.
	userAgentRoundTripper struct {
		userAgent string
		inner     http.RoundTripper
	}

	fetchResponse struct {
		status int
		url    string
		header http.Header
		body   []byte
	}
)

func (rt *userAgentRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if _, ok := req.Header["User-Agent"]; !ok {
		req.Header.Set("User-Agent", rt.userAgent)
	}
	return rt.inner.RoundTrip(req)
}

// newHTTPClient returns the pooled cleanhttp client used by fetch.
func newHTTPClient() *http.Client {
	cli := cleanhttp.DefaultPooledClient()
	cli.Transport = &userAgentRoundTripper{
		userAgent: userAgent,
		inner:     cli.Transport,
	}
	return cli
}

// enableFetch installs a global fetch. Each request runs on its own
// goroutine and settles its promise back on the loop; a pending request
// keeps the loop alive. ctx aborts requests still in flight.
func enableFetch(ctx context.Context, vm *goja.Runtime, loop *eventloop.EventLoop, client *http.Client) error {
	return vm.Set("fetch", func(call goja.FunctionCall) goja.Value {
		p, resolve, reject := vm.NewPromise()
		req, err := newFetchRequest(ctx, call.Argument(0), call.Argument(1))
		if err != nil {
			_ = reject(vm.NewTypeError(err.Error()))
			return vm.ToValue(p)
		}

		keepAlive := loop.SetTimeout(func(*goja.Runtime) {}, keepAlivePeriod)
		go func() {
			res, err := doFetch(client, req)
			loop.RunOnLoop(func(vm *goja.Runtime) {
				loop.ClearTimeout(keepAlive)
				if err != nil {
					_ = reject(vm.NewTypeError("fetch failed: " + err.Error()))
					return
				}
				_ = resolve(res.toObject(vm))
			})
		}()
		return vm.ToValue(p)
	})
}

func newFetchRequest(ctx context.Context, input, init goja.Value) (*http.Request, error) {
	target := input.String()
	if obj, ok := input.(*goja.Object); ok {
		if href := obj.Get("href"); href != nil && !goja.IsUndefined(href) {
			target = href.String()
		}
	}
	u, err := neturl.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("invalid URL %q: %w", target, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("fetch only supports http and https URLs, got %q", target)
	}

	method := http.MethodGet
	header := make(http.Header)
	var body io.Reader
	if opts, ok := init.(*goja.Object); ok {
		if m := opts.Get("method"); m != nil && !goja.IsUndefined(m) {
			method = strings.ToUpper(m.String())
		}
		if h, ok := opts.Get("headers").(*goja.Object); ok {
			for _, name := range h.Keys() {
				header.Set(name, h.Get(name).String())
			}
		}
		if b := opts.Get("body"); b != nil && !goja.IsUndefined(b) && !goja.IsNull(b) {
			body = bytes.NewReader(toBytes(b, nil))
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, err
	}
	req.Header = header
	return req, nil
}

func doFetch(client *http.Client, req *http.Request) (*fetchResponse, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	if len(body) > maxResponseBytes {
		return nil, fmt.Errorf("response body exceeds %d bytes", maxResponseBytes)
	}
	return &fetchResponse{
		status: resp.StatusCode,
		url:    resp.Request.URL.String(),
		header: resp.Header,
		body:   body,
	}, nil
}

// toObject builds the subset of the Response interface loaders read. The
// body is already buffered, so text, json and arrayBuffer settle at once and
// may be called more than once.
func (r *fetchResponse) toObject(vm *goja.Runtime) *goja.Object {
	headers := vm.NewObject()
	_ = headers.Set("get", func(name string) goja.Value {
		if values := r.header.Values(name); len(values) > 0 {
			return vm.ToValue(strings.Join(values, ", "))
		}
		return goja.Null()
	})
	_ = headers.Set("has", func(name string) bool {
		return len(r.header.Values(name)) > 0
	})

	obj := vm.NewObject()
	_ = obj.Set("status", r.status)
	_ = obj.Set("statusText", http.StatusText(r.status))
	_ = obj.Set("ok", r.status >= 200 && r.status < 300)
	_ = obj.Set("url", r.url)
	_ = obj.Set("headers", headers)
	_ = obj.Set("text", func() goja.Value {
		return settledPromise(vm, vm.ToValue(string(r.body)), nil)
	})
	_ = obj.Set("arrayBuffer", func() goja.Value {
		return settledPromise(vm, vm.ToValue(vm.NewArrayBuffer(bytes.Clone(r.body))), nil)
	})
	_ = obj.Set("json", func() goja.Value {
		parse, ok := goja.AssertFunction(vm.Get("JSON").ToObject(vm).Get("parse"))
		if !ok {
			return settledPromise(vm, nil, errors.New("JSON.parse is not callable"))
		}
		v, err := parse(goja.Undefined(), vm.ToValue(string(r.body)))
		return settledPromise(vm, v, err)
	})
	return obj
}

// settledPromise returns a promise fulfilled with v, or rejected with err.
// A JavaScript exception is rejected with the thrown value itself.
func settledPromise(vm *goja.Runtime, v goja.Value, err error) goja.Value {
	p, resolve, reject := vm.NewPromise()
	var ex *goja.Exception
	switch {
	case errors.As(err, &ex):
		_ = reject(ex.Value())
	case err != nil:
		_ = reject(vm.NewGoError(err))
	default:
		_ = resolve(v)
	}
	return vm.ToValue(p)
}
