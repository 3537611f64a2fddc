// SPDX-License-Identifier: MPL-2.0

package jsrt

import (
	"crypto/md5"
	"crypto/rand"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"hash"
	"strings"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/buffer"
	"github.com/google/uuid"
)

var errDigestCalled = errors.New("digest already called")

var hashes = map[string]func() hash.Hash{
	"md5":    md5.New,
	"sha1":   sha1.New,
	"sha224": sha256.New224,
	"sha256": sha256.New,
	"sha384": sha512.New384,
	"sha512": sha512.New,
}

// requireCrypto serves the hashing and randomness helpers of node:crypto
// that loaders use for content hashes and ids.
func requireCrypto(vm *goja.Runtime, module *goja.Object) {
	exports := module.Get("exports").(*goja.Object)

	_ = exports.Set("createHash", func(call goja.FunctionCall) goja.Value {
		alg := strings.ToLower(call.Argument(0).String())
		newHash, ok := hashes[alg]
		if !ok {
			panic(vm.NewTypeError("Digest method not supported: " + alg))
		}
		return newHashObject(vm, newHash())
	})
	_ = exports.Set("getHashes", func() []string {
		return []string{"md5", "sha1", "sha224", "sha256", "sha384", "sha512"}
	})
	_ = exports.Set("randomUUID", uuid.NewString)
	_ = exports.Set("randomBytes", func(n int) goja.Value {
		b := make([]byte, n)
		_, _ = rand.Read(b)
		return buffer.WrapBytes(vm, b)
	})
}

func newHashObject(vm *goja.Runtime, h hash.Hash) *goja.Object {
	obj := vm.NewObject()
	digested := false
	_ = obj.Set("update", func(call goja.FunctionCall) goja.Value {
		if digested {
			panic(vm.NewGoError(errDigestCalled))
		}
		_, _ = h.Write(toBytes(call.Argument(0), call.Argument(1)))
		return obj
	})
	_ = obj.Set("digest", func(call goja.FunctionCall) goja.Value {
		if digested {
			panic(vm.NewGoError(errDigestCalled))
		}
		digested = true
		sum := h.Sum(nil)
		if enc := call.Argument(0); !goja.IsUndefined(enc) {
			return vm.ToValue(encodeBytes(sum, enc.String()))
		}
		return buffer.WrapBytes(vm, sum)
	})
	return obj
}

// toBytes accepts strings, Buffers and other typed arrays. Strings are
// decoded with the given encoding, utf8 by default.
func toBytes(v, encoding goja.Value) []byte {
	if b, ok := v.Export().([]byte); ok {
		return b
	}
	s := v.String()
	if encoding == nil || goja.IsUndefined(encoding) {
		return []byte(s)
	}
	var (
		b   []byte
		err error
	)
	switch strings.ToLower(encoding.String()) {
	case "hex":
		b, err = hex.DecodeString(s)
	case "base64":
		b, err = base64.StdEncoding.DecodeString(s)
	case "base64url":
		b, err = base64.RawURLEncoding.DecodeString(strings.TrimRight(s, "="))
	default:
		return []byte(s)
	}
	if err != nil {
		return []byte(s)
	}
	return b
}

func encodeBytes(b []byte, encoding string) string {
	switch strings.ToLower(encoding) {
	case "base64":
		return base64.StdEncoding.EncodeToString(b)
	case "base64url":
		return base64.RawURLEncoding.EncodeToString(b)
	case "latin1", "binary":
		runes := make([]rune, len(b))
		for i, c := range b {
			runes[i] = rune(c)
		}
		return string(runes)
	default:
		return hex.EncodeToString(b)
	}
}
