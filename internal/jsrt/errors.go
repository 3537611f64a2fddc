// SPDX-License-Identifier: MPL-2.0

package jsrt

import (
	"errors"
	"strings"

	"github.com/dop251/goja"
)

var (
	// ErrPromiseRejected is returned by Await for a rejected promise.
	ErrPromiseRejected = errors.New("promise rejected")

	// ErrPromiseUnsettled is returned for a promise that is still pending
	// after the event loop ran out of work.
	ErrPromiseUnsettled = errors.New("promise never settled")
)

// ScriptError is an exception thrown by module code.
type ScriptError struct {
	// Message is the thrown value as a string, e.g. "Error: boom".
	Message string
	// Stack holds one "at ..." line per frame.
	Stack string
}

func (e *ScriptError) Error() string {
	if e.Stack == "" {
		return e.Message
	}
	return e.Message + "\n" + e.Stack
}

// scriptError converts goja exceptions to ScriptError and passes any other
// error through unchanged.
func scriptError(err error) error {
	var ex *goja.Exception
	if !errors.As(err, &ex) {
		return err
	}
	msg := ""
	if v := ex.Value(); v != nil {
		msg = v.String()
	}
	stack := strings.TrimRight(strings.TrimPrefix(ex.String(), msg+"\n"), "\n")
	return &ScriptError{Message: msg, Stack: stack}
}

// thrown converts a value thrown asynchronously, such as the rejection of a
// module that failed during top-level await.
func thrown(v goja.Value) error {
	msg := "undefined"
	if v != nil {
		msg = v.String()
	}
	stack := ""
	if obj, ok := v.(*goja.Object); ok {
		if s := obj.Get("stack"); s != nil && !goja.IsUndefined(s) {
			stack = strings.TrimRight(strings.TrimPrefix(s.String(), msg+"\n"), "\n")
		}
	}
	if stack == msg {
		stack = ""
	}
	return &ScriptError{Message: msg, Stack: stack}
}

// describe renders a rejection reason, preferring the stack of Error objects.
func describe(v goja.Value) string {
	if v == nil || goja.IsUndefined(v) {
		return "undefined"
	}
	if obj, ok := v.(*goja.Object); ok {
		if stack := obj.Get("stack"); stack != nil && !goja.IsUndefined(stack) && stack.String() != "" {
			return stack.String()
		}
	}
	return v.String()
}
