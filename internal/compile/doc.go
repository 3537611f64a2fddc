// SPDX-License-Identifier: MPL-2.0

// Package compile turns the exports of an executed data loader into the
// source of a static ES module.
//
// Every export is settled, checked for JSON safety and serialized with the
// runtime's own JSON.stringify. The result contains only export statements
// whose values are JSON literals, optionally wrapped in Promise.resolve when
// the loader exported a promise.
package compile
