// SPDX-License-Identifier: MPL-2.0

// Package jssafe decides whether a JavaScript value survives a JSON round
// trip unchanged and serializes values that do.
package jssafe

import (
	"errors"
	"fmt"
	"math"
	"math/big"

	"github.com/dop251/goja"
)

// ErrNotJSONSafe is wrapped by every rejection.
var ErrNotJSONSafe = errors.New("data loader exported value that is not JSON-safe")

const indent = "  "

// Check returns nil when v is null, a string, a non-NaN number, a boolean,
// an array, a plain object (Object.prototype or null prototype) or any
// object with a callable toJSON. Everything else is rejected. Infinity and
// -Infinity pass and serialize as null, as JSON.stringify does.
func Check(vm *goja.Runtime, v goja.Value) error {
	return check(vm, "", v)
}

func check(vm *goja.Runtime, key string, v goja.Value) error {
	if v == nil || goja.IsUndefined(v) {
		return notSerializable(key, "undefined")
	}
	if goja.IsNull(v) {
		return nil
	}
	if _, ok := v.(*goja.Symbol); ok {
		return notSerializable(key, "symbol")
	}
	if obj, ok := v.(*goja.Object); ok {
		return checkObject(vm, key, obj)
	}

	switch x := v.Export().(type) {
	case string, bool, int64:
		return nil
	case float64:
		if math.IsNaN(x) {
			return notSerializable(key, "NaN")
		}
		return nil
	case *big.Int:
		return notSerializable(key, "bigint")
	default:
		return notSerializable(key, fmt.Sprintf("%T", x))
	}
}

func checkObject(vm *goja.Runtime, key string, obj *goja.Object) error {
	if _, ok := goja.AssertFunction(obj); ok {
		return notSerializable(key, "function")
	}
	if obj.ClassName() == "Array" {
		return nil
	}
	if _, ok := goja.AssertFunction(obj.Get("toJSON")); ok {
		return nil
	}

	proto := obj.Prototype()
	if proto == nil || proto.SameAs(objectPrototype(vm)) {
		return nil
	}
	return fmt.Errorf("%w: instance of %s cannot be safely round-tripped%s",
		ErrNotJSONSafe, constructorName(proto), atKey(key))
}

// Stringify serializes v with the engine's JSON.stringify and a two-space
// indent. Every visited value goes through Check; the first rejection
// aborts serialization.
func Stringify(vm *goja.Runtime, v goja.Value) (string, error) {
	jsonObj := vm.GlobalObject().Get("JSON").ToObject(vm)
	stringify, ok := goja.AssertFunction(jsonObj.Get("stringify"))
	if !ok {
		return "", errors.New("JSON.stringify is not callable")
	}

	var violation error
	replacer := vm.ToValue(func(call goja.FunctionCall) goja.Value {
		value := call.Argument(1)
		if err := check(vm, call.Argument(0).String(), value); err != nil {
			violation = err
			panic(vm.NewGoError(err))
		}
		return value
	})

	out, err := stringify(jsonObj, v, replacer, vm.ToValue(indent))
	if violation != nil {
		return "", violation
	}
	if err != nil {
		return "", fmt.Errorf("JSON.stringify: %w", err)
	}
	if goja.IsUndefined(out) {
		return "", notSerializable("", "undefined")
	}
	return out.String(), nil
}

func objectPrototype(vm *goja.Runtime) *goja.Object {
	ctor := vm.GlobalObject().Get("Object").ToObject(vm)
	return ctor.Get("prototype").ToObject(vm)
}

func constructorName(proto *goja.Object) string {
	ctor, ok := proto.Get("constructor").(*goja.Object)
	if !ok {
		return "an object with a custom prototype"
	}
	if name := ctor.Get("name"); name != nil && !goja.IsUndefined(name) && name.String() != "" {
		return "class " + name.String()
	}
	return "an anonymous class"
}

func notSerializable(key, what string) error {
	return fmt.Errorf("%w: %s is not serializable%s", ErrNotJSONSafe, what, atKey(key))
}

func atKey(key string) string {
	if key == "" {
		return ""
	}
	return fmt.Sprintf(" (key %q)", key)
}
