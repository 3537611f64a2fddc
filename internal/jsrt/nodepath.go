// SPDX-License-Identifier: MPL-2.0

package jsrt

import (
	"fmt"
	neturl "net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/url"
)

func requirePath(vm *goja.Runtime, module *goja.Object) {
	exports := module.Get("exports").(*goja.Object)

	_ = exports.Set("sep", string(filepath.Separator))
	_ = exports.Set("delimiter", string(filepath.ListSeparator))
	_ = exports.Set("join", func(parts ...string) string {
		if len(parts) == 0 {
			return "."
		}
		return filepath.Join(parts...)
	})
	_ = exports.Set("resolve", resolvePath)
	_ = exports.Set("normalize", filepath.Clean)
	_ = exports.Set("isAbsolute", filepath.IsAbs)
	_ = exports.Set("dirname", filepath.Dir)
	_ = exports.Set("basename", func(p string, ext goja.Value) string {
		base := filepath.Base(p)
		if ext != nil && !goja.IsUndefined(ext) {
			if suffix := ext.String(); suffix != base {
				base = strings.TrimSuffix(base, suffix)
			}
		}
		return base
	})
	_ = exports.Set("extname", extname)
	_ = exports.Set("relative", func(from, to string) (string, error) {
		return filepath.Rel(resolvePath(from), resolvePath(to))
	})
}

// requireURL extends the goja_nodejs url module, which provides URL and
// URLSearchParams, with the file URL helpers.
func requireURL(vm *goja.Runtime, module *goja.Object) {
	url.Require(vm, module)
	exports := module.Get("exports").(*goja.Object)
	urlCtor := exports.Get("URL").ToObject(vm)
	_ = exports.Set("fileURLToPath", func(call goja.FunctionCall) goja.Value {
		path, err := toPath(call.Argument(0))
		if err != nil {
			panic(vm.NewTypeError(err.Error()))
		}
		return vm.ToValue(path)
	})
	_ = exports.Set("pathToFileURL", func(call goja.FunctionCall) goja.Value {
		u, err := vm.New(urlCtor, vm.ToValue(FileURL(resolvePath(call.Argument(0).String()))))
		if err != nil {
			panic(err)
		}
		return u
	})
}

// FileURL returns the file: URL of an absolute path.
func FileURL(path string) string {
	slashed := filepath.ToSlash(path)
	if !strings.HasPrefix(slashed, "/") {
		slashed = "/" + slashed
	}
	u := neturl.URL{Scheme: "file", Path: slashed}
	return u.String()
}

// resolvePath mirrors node's path.resolve: segments are applied right to
// left until an absolute path is formed, then the working directory is
// prepended if needed.
func resolvePath(parts ...string) string {
	resolved := ""
	for i := len(parts) - 1; i >= 0; i-- {
		if parts[i] == "" {
			continue
		}
		resolved = filepath.Join(parts[i], resolved)
		if filepath.IsAbs(resolved) {
			return filepath.Clean(resolved)
		}
	}
	wd, err := os.Getwd()
	if err != nil {
		wd = string(filepath.Separator)
	}
	return filepath.Join(wd, resolved)
}

func extname(p string) string {
	base := filepath.Base(p)
	i := strings.LastIndexByte(base, '.')
	if i <= 0 {
		return ""
	}
	return base[i:]
}

// toPath accepts a path string, a file: URL string or a URL object.
func toPath(v goja.Value) (string, error) {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return "", fmt.Errorf("path must be a string or a file URL, got %v", v)
	}
	s := v.String()
	if obj, ok := v.(*goja.Object); ok {
		href := obj.Get("href")
		if href == nil || goja.IsUndefined(href) {
			return "", fmt.Errorf("path must be a string or a file URL, got %s", obj.ClassName())
		}
		s = href.String()
	}
	if !strings.HasPrefix(s, "file:") {
		return s, nil
	}

	u, err := neturl.Parse(s)
	if err != nil {
		return "", fmt.Errorf("invalid file URL %q: %w", s, err)
	}
	if u.Host != "" && u.Host != "localhost" {
		return "", fmt.Errorf("file URL host must be empty or localhost: %q", s)
	}
	path := u.Path
	// file:///C:/x on Windows
	if filepath.Separator == '\\' && len(path) >= 3 && path[0] == '/' && path[2] == ':' {
		path = path[1:]
	}
	return filepath.FromSlash(path), nil
}
