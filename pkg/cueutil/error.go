// SPDX-License-Identifier: MPL-2.0

package cueutil

import (
	"errors"
	"fmt"
	"strings"

	cueerrors "cuelang.org/go/cue/errors"
)

// ErrFileTooLarge is wrapped by CheckFileSize.
var ErrFileTooLarge = errors.New("file too large")

type (
	// FieldError is one problem found at a JSON path of the input. Path is
	// empty for problems that do not belong to a field (syntax errors).
	FieldError struct {
		Path    string
		Message string
	}

	// ValidationError reports why an input does not satisfy a schema.
	ValidationError struct {
		File   string
		Fields []FieldError
		cause  error
	}
)

// Error formats the problems as "<file>: <path>: <message>", one per line
// when there are several.
func (e *ValidationError) Error() string {
	lines := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		if f.Path == "" {
			lines = append(lines, f.Message)
			continue
		}
		lines = append(lines, f.Path+": "+f.Message)
	}
	if len(lines) == 1 {
		return e.File + ": " + lines[0]
	}
	return fmt.Sprintf("%s: validation failed:\n  %s", e.File, strings.Join(lines, "\n  "))
}

// Unwrap returns the underlying CUE error.
func (e *ValidationError) Unwrap() error { return e.cause }

// FormatError converts a CUE error into a *ValidationError whose fields use
// JSON path notation:
//
//	report.data.ts: dependencies[1]: conflicting values string and int
//	esdata.cue: watch.debounce: invalid value
//
// Non-CUE errors are wrapped with the file name. A *ValidationError is
// returned unchanged.
func FormatError(err error, file string) error {
	if err == nil {
		return nil
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve
	}

	list := cueerrors.Errors(err)
	if len(list) == 0 {
		return fmt.Errorf("%s: %w", file, err)
	}

	ve = &ValidationError{File: file, cause: err}
	for _, e := range list {
		path := formatPath(cueerrors.Path(e))
		msg := e.Error()

		// CUE sometimes repeats the path at the start of the message.
		if path != "" && strings.HasPrefix(msg, path) {
			msg = strings.TrimSpace(strings.TrimPrefix(strings.TrimPrefix(msg, path), ":"))
		}
		ve.Fields = append(ve.Fields, FieldError{Path: path, Message: msg})
	}
	return ve
}

// formatPath converts a CUE error path (["ignore", "0"]) to JSON-path
// notation ("ignore[0]").
func formatPath(path []string) string {
	var b strings.Builder
	for i, part := range path {
		if i > 0 && isIndex(part) {
			b.WriteString("[" + part + "]")
			continue
		}
		if i > 0 {
			b.WriteByte('.')
		}
		b.WriteString(part)
	}
	return b.String()
}

func isIndex(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// CheckFileSize returns an error wrapping ErrFileTooLarge if data exceeds
// maxSize bytes.
func CheckFileSize(data []byte, maxSize int64, filename string) error {
	if int64(len(data)) > maxSize {
		return fmt.Errorf("%s: %w: %d bytes exceeds maximum %d bytes",
			filename, ErrFileTooLarge, len(data), maxSize)
	}
	return nil
}
