// SPDX-License-Identifier: MPL-2.0

package testutil

import (
	"runtime"
	"testing"

	"esdata/pkg/platform"
)

// SetHomeDir points the platform's home variable (USERPROFILE on Windows,
// HOME elsewhere) at dir for the rest of the test. Like t.Setenv it cannot
// be used in parallel tests.
func SetHomeDir(t testing.TB, dir string) {
	t.Helper()
	t.Setenv(platform.HomeEnv(runtime.GOOS), dir)
}
