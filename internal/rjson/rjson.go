// SPDX-License-Identifier: MPL-2.0

// Package rjson converts relaxed JSON into strict JSON.
//
// Relaxed JSON allows // and /* */ comments, unquoted keys, single- or
// double-quoted strings, bare strings, optional and trailing commas and
// omitted braces around a top-level object. Bare true, false, null and
// JSON numbers keep their JSON meaning; every other bare token is a string.
package rjson

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrSyntax is wrapped by every conversion error.
var ErrSyntax = errors.New("relaxed JSON syntax error")

type parser struct {
	src string
	pos int
	out strings.Builder
}

// ToJSON converts src to strict JSON text.
func ToJSON(src string) (string, error) {
	p := &parser{src: src}
	if err := p.skipSpace(); err != nil {
		return "", err
	}

	var err error
	switch {
	case p.eof():
		p.out.WriteString("{}")
	case p.peek() == '{' || p.peek() == '[':
		err = p.value()
	default:
		err = p.members(0)
	}
	if err != nil {
		return "", err
	}

	if err := p.skipSpace(); err != nil {
		return "", err
	}
	if !p.eof() {
		return "", p.errorf("unexpected %q after value", p.peek())
	}
	return p.out.String(), nil
}

func (p *parser) eof() bool { return p.pos >= len(p.src) }

func (p *parser) peek() byte { return p.src[p.pos] }

func (p *parser) errorf(format string, args ...any) error {
	return fmt.Errorf("%w at offset %d: %s", ErrSyntax, p.pos, fmt.Sprintf(format, args...))
}

// skipSpace skips whitespace and comments.
func (p *parser) skipSpace() error {
	for !p.eof() {
		c := p.peek()
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			p.pos++
		case strings.HasPrefix(p.src[p.pos:], "//"):
			end := strings.IndexByte(p.src[p.pos:], '\n')
			if end < 0 {
				p.pos = len(p.src)
			} else {
				p.pos += end + 1
			}
		case strings.HasPrefix(p.src[p.pos:], "/*"):
			end := strings.Index(p.src[p.pos+2:], "*/")
			if end < 0 {
				return p.errorf("unterminated comment")
			}
			p.pos += end + 4
		default:
			return nil
		}
	}
	return nil
}

// skipSeparators skips whitespace, comments and commas.
func (p *parser) skipSeparators() error {
	for {
		if err := p.skipSpace(); err != nil {
			return err
		}
		if p.eof() || p.peek() != ',' {
			return nil
		}
		p.pos++
	}
}

func (p *parser) value() error {
	if p.eof() {
		return p.errorf("unexpected end of input")
	}
	switch c := p.peek(); c {
	case '{':
		p.pos++
		return p.members('}')
	case '[':
		p.pos++
		return p.elements()
	case '"', '\'':
		s, err := p.quoted()
		if err != nil {
			return err
		}
		p.writeString(s)
		return nil
	case '}', ']', ',', ':':
		return p.errorf("unexpected %q", c)
	default:
		tok := p.bare()
		if isLiteral(tok) {
			p.out.WriteString(tok)
		} else {
			p.writeString(tok)
		}
		return nil
	}
}

// members parses object members up to the closing byte. A zero closer
// means the braces were omitted and members run to the end of input.
func (p *parser) members(closer byte) error {
	p.out.WriteByte('{')
	first := true
	for {
		if err := p.skipSeparators(); err != nil {
			return err
		}
		if p.eof() {
			if closer != 0 {
				return p.errorf("unterminated object")
			}
			break
		}
		if closer != 0 && p.peek() == closer {
			p.pos++
			break
		}

		key, err := p.key()
		if err != nil {
			return err
		}
		if err := p.skipSpace(); err != nil {
			return err
		}
		if p.eof() || p.peek() != ':' {
			return p.errorf("expected ':' after key %q", key)
		}
		p.pos++
		if err := p.skipSpace(); err != nil {
			return err
		}

		if !first {
			p.out.WriteByte(',')
		}
		first = false
		p.writeString(key)
		p.out.WriteByte(':')
		if err := p.value(); err != nil {
			return err
		}
	}
	p.out.WriteByte('}')
	return nil
}

func (p *parser) elements() error {
	p.out.WriteByte('[')
	first := true
	for {
		if err := p.skipSeparators(); err != nil {
			return err
		}
		if p.eof() {
			return p.errorf("unterminated array")
		}
		if p.peek() == ']' {
			p.pos++
			break
		}
		if !first {
			p.out.WriteByte(',')
		}
		first = false
		if err := p.value(); err != nil {
			return err
		}
	}
	p.out.WriteByte(']')
	return nil
}

func (p *parser) key() (string, error) {
	switch c := p.peek(); c {
	case '"', '\'':
		return p.quoted()
	case '{', '}', '[', ']', ':':
		return "", p.errorf("unexpected %q where a key was expected", c)
	}
	key := p.bare()
	if key == "" {
		return "", p.errorf("empty key")
	}
	return key, nil
}

// quoted reads a single- or double-quoted string with JSON escapes. Inside
// single quotes an escaped single quote is allowed.
func (p *parser) quoted() (string, error) {
	quote := p.peek()
	start := p.pos
	p.pos++

	var b strings.Builder
	for !p.eof() {
		c := p.peek()
		switch {
		case c == quote:
			p.pos++
			return b.String(), nil
		case c == '\\':
			if p.pos+1 >= len(p.src) {
				return "", p.errorf("unterminated escape")
			}
			esc := p.src[p.pos+1]
			switch esc {
			case '\'':
				b.WriteByte('\'')
				p.pos += 2
			case 'u':
				if p.pos+6 > len(p.src) {
					return "", p.errorf("short unicode escape")
				}
				var r string
				if err := json.Unmarshal([]byte(`"`+p.src[p.pos:p.pos+6]+`"`), &r); err != nil {
					return "", p.errorf("invalid unicode escape %q", p.src[p.pos:p.pos+6])
				}
				b.WriteString(r)
				p.pos += 6
			default:
				var r string
				if err := json.Unmarshal([]byte(`"\`+string(esc)+`"`), &r); err != nil {
					return "", p.errorf("invalid escape \\%c", esc)
				}
				b.WriteString(r)
				p.pos += 2
			}
		case c == '\n':
			return "", p.errorf("newline in string starting at offset %d", start)
		default:
			b.WriteByte(c)
			p.pos++
		}
	}
	p.pos = start
	return "", p.errorf("unterminated string")
}

// bare reads an unquoted token. It ends at whitespace, a structural
// character or a comma.
func (p *parser) bare() string {
	start := p.pos
	for !p.eof() {
		c := p.peek()
		if c == ' ' || c == '\t' || c == '\n' || c == '\r' || strings.IndexByte("{}[],:\"'", c) >= 0 {
			break
		}
		p.pos++
	}
	return p.src[start:p.pos]
}

func (p *parser) writeString(s string) {
	enc, _ := json.Marshal(s)
	p.out.Write(enc)
}

func isLiteral(tok string) bool {
	switch tok {
	case "true", "false", "null":
		return true
	}
	if tok == "" || (tok[0] != '-' && (tok[0] < '0' || tok[0] > '9')) {
		return false
	}
	var n json.Number
	return json.Unmarshal([]byte(tok), &n) == nil
}
