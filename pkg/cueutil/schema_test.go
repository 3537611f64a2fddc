// SPDX-License-Identifier: MPL-2.0

package cueutil

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"cuelang.org/go/cue"
	"github.com/google/go-cmp/cmp"
)

const testSchema = `
#Loader: close({
	name:  string
	count: int
	tags?: [...string]
})
`

type testConfig struct {
	Name  string   `json:"name"`
	Count int      `json:"count"`
	Tags  []string `json:"tags,omitempty"`
}

func TestCompileSchema(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		src        string
		definition string
		wantErr    string
	}{
		{"valid", testSchema, "#Loader", ""},
		{"missing definition", testSchema, "#Missing", "#Missing not found"},
		{"syntax error", `#Loader: {`, "#Loader", "failed to compile schema"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			s, err := CompileSchema([]byte(tt.src), tt.definition)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("CompileSchema() error: %v", err)
				}
				if s.Name() != tt.definition {
					t.Errorf("Name() = %q, want %q", s.Name(), tt.definition)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("CompileSchema() error = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

func TestMustCompileSchemaPanics(t *testing.T) {
	t.Parallel()

	defer func() {
		if recover() == nil {
			t.Error("MustCompileSchema did not panic on a missing definition")
		}
	}()
	MustCompileSchema([]byte(testSchema), "#Missing")
}

func TestDecode(t *testing.T) {
	t.Parallel()

	schema := MustCompileSchema([]byte(testSchema), "#Loader")

	tests := []struct {
		name string
		data string
		want *testConfig
	}{
		{"CUE input", "name: \"posts\"\ncount: 42\n", &testConfig{Name: "posts", Count: 42}},
		{"strict JSON input", `{"name": "json", "count": 1, "tags": ["a", "b"]}`, &testConfig{Name: "json", Count: 1, Tags: []string{"a", "b"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := Decode[testConfig](schema, []byte(tt.data))
			if err != nil {
				t.Fatalf("Decode() error: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Decode() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDecodeErrors(t *testing.T) {
	t.Parallel()

	schema := MustCompileSchema([]byte(testSchema), "#Loader")

	tests := []struct {
		name     string
		data     string
		opts     []Option
		contains []string
	}{
		{"unknown field", `{"name": "x", "count": 1, "colour": "red"}`, []Option{WithFilename("x.json")}, []string{"x.json", "colour"}},
		{"type mismatch", `{"name": 3, "count": 1}`, []Option{WithFilename("x.json")}, []string{"x.json", "name"}},
		{"nested index", `{"name": "x", "count": 1, "tags": ["a", 2]}`, nil, []string{"<input>", "tags[1]"}},
		{"missing required field", `{"name": "x"}`, nil, []string{"count"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := Decode[testConfig](schema, []byte(tt.data), tt.opts...)
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("Decode() error = %v, want *ValidationError", err)
			}
			for _, want := range tt.contains {
				if !strings.Contains(err.Error(), want) {
					t.Errorf("error %q does not contain %q", err, want)
				}
			}
		})
	}
}

func TestDecodeSizeLimit(t *testing.T) {
	t.Parallel()

	schema := MustCompileSchema([]byte(testSchema), "#Loader")
	_, err := Decode[testConfig](schema, []byte(`{"name": "x", "count": 1}`), WithMaxFileSize(4))
	if !errors.Is(err, ErrFileTooLarge) {
		t.Fatalf("Decode() error = %v, want ErrFileTooLarge", err)
	}
}

func TestValidateNonConcrete(t *testing.T) {
	t.Parallel()

	schema := MustCompileSchema([]byte(`#Opt: { name?: string, port?: int }`), "#Opt")
	var got map[string]any
	err := schema.Validate([]byte(`{}`), func(v cue.Value) error {
		return v.Decode(&got)
	}, WithConcrete(false))
	if err != nil {
		t.Fatalf("Validate() error: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("decoded %v, want an empty map", got)
	}
}

func TestValidateCallbackError(t *testing.T) {
	t.Parallel()

	schema := MustCompileSchema([]byte(testSchema), "#Loader")
	sentinel := errors.New("rejected")
	err := schema.Validate([]byte(`{"name": "x", "count": 1}`), func(cue.Value) error {
		return sentinel
	}, WithFilename("cb.cue"))
	if !errors.Is(err, sentinel) || !strings.Contains(err.Error(), "cb.cue") {
		t.Errorf("Validate() error = %v, want wrapped sentinel naming cb.cue", err)
	}
}

func TestDecodeConcurrent(t *testing.T) {
	t.Parallel()

	schema := MustCompileSchema([]byte(testSchema), "#Loader")

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := range 16 {
		wg.Go(func() {
			data := fmt.Sprintf(`{"name": "loader-%d", "count": %d}`, i, i)
			got, err := Decode[testConfig](schema, []byte(data))
			if err != nil {
				errs <- err
				return
			}
			if got.Count != i {
				errs <- fmt.Errorf("count = %d, want %d", got.Count, i)
			}
		})
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}
