// SPDX-License-Identifier: MPL-2.0

package compile

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/dop251/goja"

	"esdata/internal/jsrt"
	"esdata/internal/jssafe"
)

const defaultExport = "default"

var identifierPattern = regexp.MustCompile(`^[\p{L}\p{Nl}$_][\p{L}\p{Nl}\p{Mn}\p{Mc}\p{Nd}\p{Pc}$_]*$`)

// reservedWords cannot name a const binding in module code.
var reservedWords = map[string]bool{
	"await": true, "break": true, "case": true, "catch": true, "class": true,
	"const": true, "continue": true, "debugger": true, "default": true,
	"delete": true, "do": true, "else": true, "enum": true, "export": true,
	"extends": true, "false": true, "finally": true, "for": true,
	"function": true, "if": true, "implements": true, "import": true,
	"in": true, "instanceof": true, "interface": true, "let": true,
	"new": true, "null": true, "package": true, "private": true,
	"protected": true, "public": true, "return": true, "static": true,
	"super": true, "switch": true, "this": true, "throw": true, "true": true,
	"try": true, "typeof": true, "var": true, "void": true, "while": true,
	"with": true, "yield": true, "arguments": true, "eval": true,
}

// Compile settles every export of mod and renders one export statement per
// key, in key order. Promises are settled together in one event loop
// drain. The first export that fails aborts the compile and no partial
// output is returned.
func Compile(ctx context.Context, mod *jsrt.Module) (string, error) {
	if err := mod.Settle(ctx); err != nil {
		return "", err
	}

	var b strings.Builder
	err := mod.Run(ctx, func(vm *goja.Runtime, exports *goja.Object) error {
		for i, key := range mod.Keys() {
			value, isPromise, err := jsrt.Await(exports.Get(key))
			if err != nil {
				return fmt.Errorf("export %q: %w", key, err)
			}
			literal, err := jssafe.Stringify(vm, value)
			if err != nil {
				return fmt.Errorf("export %q: %w", key, err)
			}
			if isPromise {
				literal = "Promise.resolve(" + literal + ")"
			}
			writeExport(&b, i, key, literal)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return b.String(), nil
}

func writeExport(b *strings.Builder, index int, key, literal string) {
	switch {
	case key == defaultExport:
		fmt.Fprintf(b, "export default %s;\n", literal)
	case isIdentifier(key):
		fmt.Fprintf(b, "export const %s = %s;\n", key, literal)
	default:
		// Arbitrary module namespace names need a local binding.
		local := "__esdata_export_" + strconv.Itoa(index)
		name, _ := json.Marshal(key)
		fmt.Fprintf(b, "const %s = %s;\nexport { %s as %s };\n", local, literal, local, name)
	}
}

func isIdentifier(name string) bool {
	return identifierPattern.MatchString(name) && !reservedWords[name]
}
