// SPDX-License-Identifier: MPL-2.0

// Package cueutil validates configuration documents against embedded CUE
// schemas.
//
// The project config loader and the data loader comment parser share the
// same flow: compile the schema once at package init, then check each input
// (CUE or strict JSON) against one of its definitions and decode it.
//
//	//go:embed loader_schema.cue
//	var schemaSource []byte
//
//	var schema = cueutil.MustCompileSchema(schemaSource, "#LoaderConfig")
//
//	cfg, err := cueutil.Decode[loaderConfig](schema, data,
//	    cueutil.WithFilename("report.data.ts"))
//
// Validation failures are *ValidationError values naming the file and the
// JSON path of every offending field.
package cueutil
