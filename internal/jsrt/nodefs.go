// SPDX-License-Identifier: MPL-2.0

package jsrt

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"syscall"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/buffer"
)

// nodeFS is the read-only subset of node:fs that data loaders use to read
// their inputs. Paths may be strings, file: URL strings or URL objects.
type nodeFS struct {
	vm *goja.Runtime
}

func requireFS(vm *goja.Runtime, module *goja.Object) {
	f := &nodeFS{vm: vm}
	exports := module.Get("exports").(*goja.Object)

	_ = exports.Set("readFileSync", f.readFileSync)
	_ = exports.Set("existsSync", f.existsSync)
	_ = exports.Set("readdirSync", f.readdirSync)
	_ = exports.Set("statSync", f.statSync)

	promises := vm.NewObject()
	f.installPromises(promises)
	_ = exports.Set("promises", promises)
}

func requireFSPromises(vm *goja.Runtime, module *goja.Object) {
	f := &nodeFS{vm: vm}
	f.installPromises(module.Get("exports").(*goja.Object))
}

func (f *nodeFS) installPromises(obj *goja.Object) {
	_ = obj.Set("readFile", f.async(f.readFileSync))
	_ = obj.Set("readdir", f.async(f.readdirSync))
	_ = obj.Set("stat", f.async(f.statSync))
}

// async wraps a synchronous implementation into one returning a promise
// that is already settled.
func (f *nodeFS) async(sync func(goja.FunctionCall) goja.Value) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		p, resolve, reject := f.vm.NewPromise()
		value, thrown := f.catch(func() goja.Value { return sync(call) })
		if thrown != nil {
			_ = reject(thrown)
		} else {
			_ = resolve(value)
		}
		return f.vm.ToValue(p)
	}
}

func (f *nodeFS) catch(fn func() goja.Value) (value goja.Value, thrown goja.Value) {
	defer func() {
		if r := recover(); r != nil {
			v, ok := r.(goja.Value)
			if !ok {
				panic(r)
			}
			thrown = v
		}
	}()
	return fn(), nil
}

func (f *nodeFS) readFileSync(call goja.FunctionCall) goja.Value {
	path := f.path(call.Argument(0))
	data, err := os.ReadFile(path)
	if err != nil {
		f.throw("open", path, err)
	}
	if encoding(call.Argument(1)) != "" {
		return f.vm.ToValue(string(data))
	}
	return buffer.WrapBytes(f.vm, data)
}

func (f *nodeFS) existsSync(call goja.FunctionCall) goja.Value {
	path, err := toPath(call.Argument(0))
	if err != nil {
		return f.vm.ToValue(false)
	}
	_, err = os.Stat(path)
	return f.vm.ToValue(err == nil)
}

// readdirSync honors the recursive and withFileTypes options. Recursive
// listings are breadth first with names relative to the listed directory,
// as node returns them.
func (f *nodeFS) readdirSync(call goja.FunctionCall) goja.Value {
	root := f.path(call.Argument(0))
	recursive, withFileTypes := readdirOptions(call.Argument(1))

	var out []any
	queue := []string{""}
	for len(queue) > 0 {
		rel := queue[0]
		queue = queue[1:]

		dir := filepath.Join(root, rel)
		entries, err := os.ReadDir(dir)
		if err != nil {
			f.throw("scandir", dir, err)
		}
		for _, e := range entries {
			name := filepath.Join(rel, e.Name())
			if recursive && e.IsDir() {
				queue = append(queue, name)
			}
			if withFileTypes {
				out = append(out, f.dirent(e, dir))
			} else {
				out = append(out, name)
			}
		}
	}
	return f.vm.NewArray(out...)
}

func (f *nodeFS) dirent(e fs.DirEntry, parent string) *goja.Object {
	mode := e.Type()
	d := f.vm.NewObject()
	_ = d.Set("name", e.Name())
	_ = d.Set("parentPath", parent)
	_ = d.Set("path", parent)
	_ = d.Set("isFile", func() bool { return mode.IsRegular() })
	_ = d.Set("isDirectory", func() bool { return mode.IsDir() })
	_ = d.Set("isSymbolicLink", func() bool { return mode&fs.ModeSymlink != 0 })
	return d
}

func readdirOptions(v goja.Value) (recursive, withFileTypes bool) {
	obj, ok := v.(*goja.Object)
	if !ok {
		return false, false
	}
	flag := func(name string) bool {
		x := obj.Get(name)
		return x != nil && x.ToBoolean()
	}
	return flag("recursive"), flag("withFileTypes")
}

func (f *nodeFS) statSync(call goja.FunctionCall) goja.Value {
	path := f.path(call.Argument(0))
	info, err := os.Stat(path)
	if err != nil {
		f.throw("stat", path, err)
	}

	ms := float64(info.ModTime().UnixNano()) / 1e6
	mtime, err := f.vm.New(f.vm.Get("Date"), f.vm.ToValue(ms))
	if err != nil {
		panic(err)
	}

	stats := f.vm.NewObject()
	_ = stats.Set("size", info.Size())
	_ = stats.Set("mtimeMs", ms)
	_ = stats.Set("mtime", mtime)
	_ = stats.Set("isFile", func() bool { return info.Mode().IsRegular() })
	_ = stats.Set("isDirectory", func() bool { return info.IsDir() })
	return stats
}

func (f *nodeFS) path(v goja.Value) string {
	path, err := toPath(v)
	if err != nil {
		panic(f.vm.NewTypeError(err.Error()))
	}
	return path
}

// throw raises a node-style error carrying code, syscall and path.
func (f *nodeFS) throw(syscallName, path string, err error) {
	code := errnoCode(err)
	e := f.vm.NewGoError(err)
	_ = e.Set("message", code+": "+err.Error())
	_ = e.Set("code", code)
	_ = e.Set("syscall", syscallName)
	_ = e.Set("path", path)
	panic(e)
}

func errnoCode(err error) string {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return "ENOENT"
	case errors.Is(err, fs.ErrPermission):
		return "EACCES"
	case errors.Is(err, syscall.ENOTDIR):
		return "ENOTDIR"
	case errors.Is(err, syscall.EISDIR):
		return "EISDIR"
	default:
		return "EIO"
	}
}

// encoding returns the encoding named by a readFile options argument, or
// "" when the caller wants a Buffer.
func encoding(v goja.Value) string {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return ""
	}
	if obj, ok := v.(*goja.Object); ok {
		enc := obj.Get("encoding")
		if enc == nil || goja.IsUndefined(enc) || goja.IsNull(enc) {
			return ""
		}
		return enc.String()
	}
	return v.String()
}
