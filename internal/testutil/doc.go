// SPDX-License-Identifier: MPL-2.0

// Package testutil provides test helpers that fail the test on error.
//
// CopyFixtures matters most: data loader builds write temp dirs next to
// their sources, so package fixtures are always copied before a load.
package testutil
