// SPDX-License-Identifier: MPL-2.0

//go:build !windows

package watch

import (
	"errors"
	"syscall"
)

// isFatalWatchError reports inotify and descriptor exhaustion. A watcher
// that hit ENOSPC (max_user_watches), EMFILE or ENFILE misses events
// silently, so Run stops instead of continuing half blind.
func isFatalWatchError(err error) bool {
	for _, errno := range []syscall.Errno{syscall.ENOSPC, syscall.EMFILE, syscall.ENFILE} {
		if errors.Is(err, errno) {
			return true
		}
	}
	return false
}
