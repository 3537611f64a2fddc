// SPDX-License-Identifier: MPL-2.0

package jsrt

import (
	"os"
	"runtime"

	"github.com/dop251/goja"

	"esdata/pkg/platform"
)

// requireOS serves the read-only parts of node:os that describe the host.
func requireOS(vm *goja.Runtime, module *goja.Object) {
	exports := module.Get("exports").(*goja.Object)

	_ = exports.Set("EOL", platform.EOL(runtime.GOOS))
	_ = exports.Set("platform", func() string { return platform.NodePlatform(runtime.GOOS) })
	_ = exports.Set("type", func() string { return platform.NodeOSType(runtime.GOOS) })
	_ = exports.Set("arch", func() string { return platform.NodeArch(runtime.GOARCH) })
	_ = exports.Set("endianness", func() string { return "LE" })
	_ = exports.Set("tmpdir", os.TempDir)
	_ = exports.Set("homedir", func() string {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		return home
	})
	_ = exports.Set("hostname", func() string {
		name, err := os.Hostname()
		if err != nil {
			return "localhost"
		}
		return name
	})
	_ = exports.Set("availableParallelism", runtime.NumCPU)
	_ = exports.Set("cpus", func() goja.Value {
		cpus := make([]any, runtime.NumCPU())
		for i := range cpus {
			cpu := vm.NewObject()
			_ = cpu.Set("model", runtime.GOARCH)
			_ = cpu.Set("speed", 0)
			cpus[i] = cpu
		}
		return vm.NewArray(cpus...)
	})
}
