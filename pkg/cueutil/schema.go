// SPDX-License-Identifier: MPL-2.0

package cueutil

import (
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// Schema is one compiled CUE definition that documents are checked against.
// A cue.Context must not be used from several goroutines at once, so every
// operation on the schema's context happens under mu.
type Schema struct {
	mu         sync.Mutex
	ctx        *cue.Context
	definition cue.Value
	name       string
}

// CompileSchema compiles src and looks up definition (e.g. "#Config") in it.
func CompileSchema(src []byte, definition string) (*Schema, error) {
	ctx := cuecontext.New()
	root := ctx.CompileBytes(src)
	if root.Err() != nil {
		return nil, fmt.Errorf("internal error: failed to compile schema: %w", root.Err())
	}
	def := root.LookupPath(cue.ParsePath(definition))
	if def.Err() != nil {
		return nil, fmt.Errorf("internal error: schema definition %s not found: %w", definition, def.Err())
	}
	return &Schema{ctx: ctx, definition: def, name: definition}, nil
}

// MustCompileSchema is CompileSchema for embedded schemas; it panics on
// error.
func MustCompileSchema(src []byte, definition string) *Schema {
	s, err := CompileSchema(src, definition)
	if err != nil {
		panic(err)
	}
	return s
}

// Name returns the definition the schema checks against.
func (s *Schema) Name() string { return s.name }

// Validate compiles data (CUE or strict JSON), unifies it with the
// definition and validates the result. fn receives the unified value and
// must not keep it past its return.
func (s *Schema) Validate(data []byte, fn func(unified cue.Value) error, opts ...Option) error {
	options := defaultOptions()
	for _, opt := range opts {
		opt(&options)
	}
	filename := options.filename
	if filename == "" {
		filename = "<input>"
	}

	if err := CheckFileSize(data, options.maxFileSize, filename); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	userValue := s.ctx.CompileBytes(data, cue.Filename(filename))
	if userValue.Err() != nil {
		return FormatError(userValue.Err(), filename)
	}

	unified := s.definition.Unify(userValue)
	if err := unified.Validate(cue.Concrete(options.concrete)); err != nil {
		return FormatError(err, filename)
	}
	if fn == nil {
		return nil
	}
	if err := fn(unified); err != nil {
		return FormatError(err, filename)
	}
	return nil
}

// Decode validates data against s and decodes it into a T. Field errors
// name the file from WithFilename and the JSON path of the field.
func Decode[T any](s *Schema, data []byte, opts ...Option) (*T, error) {
	var out T
	err := s.Validate(data, func(unified cue.Value) error {
		return unified.Decode(&out)
	}, opts...)
	if err != nil {
		return nil, err
	}
	return &out, nil
}
