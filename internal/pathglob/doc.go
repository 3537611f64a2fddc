// SPDX-License-Identifier: MPL-2.0

// Package pathglob matches absolute file paths against doublestar globs and
// normalizes the glob lists declared by data loaders and project config.
//
// Paths and patterns are compared with forward slashes on every platform.
// Wildcards match dot files, "{a,b}" alternatives are supported and a
// pattern that fails to parse never matches.
package pathglob
