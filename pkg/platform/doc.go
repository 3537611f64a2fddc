// SPDX-License-Identifier: MPL-2.0

// Package platform centralizes the operating system differences esdata cares
// about: GOOS names and where per-user configuration lives.
package platform
