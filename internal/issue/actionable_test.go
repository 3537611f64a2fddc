// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func TestActionableError_Error(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		err      *ActionableError
		expected string
	}{
		{
			name:     "operation only",
			err:      &ActionableError{Operation: "load data loader"},
			expected: "failed to load data loader",
		},
		{
			name: "operation with resource",
			err: &ActionableError{
				Operation: "load data loader",
				Resource:  "/src/posts.data.ts",
			},
			expected: "failed to load data loader: /src/posts.data.ts",
		},
		{
			name: "operation with cause",
			err: &ActionableError{
				Operation: "read config",
				Cause:     errors.New("unexpected token"),
			},
			expected: "failed to read config: unexpected token",
		},
		{
			name: "full context",
			err: &ActionableError{
				Operation: "load data loader",
				Resource:  "/src/posts.data.ts",
				Cause:     errors.New("boom"),
			},
			expected: "failed to load data loader: /src/posts.data.ts: boom",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("Error() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestActionableError_Unwrap(t *testing.T) {
	t.Parallel()

	sentinel := errors.New("sentinel")
	err := error(&ActionableError{Operation: "load data loader", Cause: sentinel})

	if !errors.Is(err, sentinel) {
		t.Error("errors.Is should find the cause")
	}

	var ae *ActionableError
	if !errors.As(err, &ae) {
		t.Fatal("errors.As should find the ActionableError")
	}
	if (&ActionableError{Operation: "x"}).Unwrap() != nil {
		t.Error("Unwrap() should return nil without a cause")
	}
}

func TestActionableError_Format(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		err      *ActionableError
		verbose  bool
		contains []string
		excludes []string
	}{
		{
			name: "suggestions",
			err: &ActionableError{
				Operation:   "load data loader",
				Resource:    "/src/a.data.js",
				Suggestions: []string{"Export a promise", "Check imports"},
			},
			contains: []string{"failed to load data loader: /src/a.data.js", "• Export a promise", "• Check imports"},
		},
		{
			name: "chain hidden when not verbose",
			err: &ActionableError{
				Operation: "read config",
				Cause:     errors.New("syntax error"),
			},
			contains: []string{"failed to read config: syntax error"},
			excludes: []string{"Error chain:"},
		},
		{
			name: "nested chain when verbose",
			err: &ActionableError{
				Operation: "build",
				Cause: &ActionableError{
					Operation: "load data loader",
					Cause:     errors.New("boom"),
				},
			},
			verbose: true,
			contains: []string{
				"Error chain:",
				"1. failed to load data loader: boom",
				"2. boom",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := tt.err.Format(tt.verbose)
			for _, s := range tt.contains {
				if !strings.Contains(got, s) {
					t.Errorf("Format() missing %q\ngot:\n%s", s, got)
				}
			}
			for _, s := range tt.excludes {
				if strings.Contains(got, s) {
					t.Errorf("Format() should not contain %q\ngot:\n%s", s, got)
				}
			}
		})
	}
}

func TestErrorContext_BuildError(t *testing.T) {
	t.Parallel()

	cause := errors.New("cause")
	err := NewErrorContext().
		WithOperation("load data loader").
		WithResource("/x.data.ts").
		WithSuggestions("one").
		WithSuggestions("two", "three").
		WithIssue(LoaderExecuteFailedId).
		Wrap(cause).
		BuildError()

	var ae *ActionableError
	if !errors.As(err, &ae) {
		t.Fatalf("BuildError() = %T, want *ActionableError", err)
	}
	want := &ActionableError{
		Operation:   "load data loader",
		Resource:    "/x.data.ts",
		Suggestions: []string{"one", "two", "three"},
		Issue:       LoaderExecuteFailedId,
		Cause:       cause,
	}
	if diff := cmp.Diff(want, ae, cmpopts.EquateErrors()); diff != "" {
		t.Errorf("BuildError() mismatch (-want +got):\n%s", diff)
	}
	if g := ae.Guide(); g == nil || g.Id() != LoaderExecuteFailedId {
		t.Error("Guide() should return the linked catalog entry")
	}
}

func TestErrorContext_BuildErrorIsIndependent(t *testing.T) {
	t.Parallel()

	ec := NewErrorContext().WithOperation("build").WithSuggestions("first")
	first := ec.BuildError().(*ActionableError)
	ec.WithResource("/later")

	if first.Resource != "" {
		t.Errorf("Resource = %q, want the value at BuildError time", first.Resource)
	}
}

func TestErrorContext_BuildWithoutOperation(t *testing.T) {
	t.Parallel()

	if err := NewErrorContext().WithResource("x").BuildError(); err != nil {
		t.Errorf("BuildError() without operation = %v, want nil", err)
	}
	if (&ActionableError{Operation: "op"}).Guide() != nil {
		t.Error("Guide() should be nil without an issue id")
	}
}
