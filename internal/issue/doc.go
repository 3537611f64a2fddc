// SPDX-License-Identifier: MPL-2.0

// Package issue provides actionable errors and a catalog of markdown guides
// for the failure classes esdata reports on the command line.
package issue
