package trapdoc

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"golang.org/x/exp/slices"
)

// Metadata is the free form acquisition metadata attached to an image.
// The well known Make key holds a nested mapping of sensor specific fields.
// Once an image is tagged by a detector run the map also carries the device,
// datetime, algo_name, algo_version and md5 keys.
type Metadata map[string]any

// requiredSidecarKeys are the metadata keys propagated into annotation
// sidecar documents.
var requiredSidecarKeys = []string{"device", "datetime", "algo_name", "algo_version", "md5"}

// EncodeMetadata serializes the metadata map to the literal notation stored
// inside container documents. The output is deterministic: keys are sorted,
// strings are single quoted and booleans and null are spelled True, False
// and None so that legacy consumers can still evaluate the field.
func EncodeMetadata(m Metadata) string {
	var b strings.Builder
	encodeLiteral(&b, map[string]any(m))
	return b.String()
}

func encodeLiteral(b *strings.Builder, v any) {
	switch v := v.(type) {
	case nil:
		b.WriteString("None")
	case bool:
		if v {
			b.WriteString("True")
		} else {
			b.WriteString("False")
		}
	case string:
		quoteLiteral(b, v)
	case int:
		b.WriteString(strconv.Itoa(v))
	case int32:
		b.WriteString(strconv.FormatInt(int64(v), 10))
	case int64:
		b.WriteString(strconv.FormatInt(v, 10))
	case uint:
		b.WriteString(strconv.FormatUint(uint64(v), 10))
	case uint64:
		b.WriteString(strconv.FormatUint(v, 10))
	case float32:
		b.WriteString(formatLiteralFloat(float64(v)))
	case float64:
		b.WriteString(formatLiteralFloat(v))
	case Metadata:
		encodeLiteralMap(b, map[string]any(v))
	case map[string]any:
		encodeLiteralMap(b, v)
	case []any:
		b.WriteByte('[')
		for i, item := range v {
			if i > 0 {
				b.WriteString(", ")
			}
			encodeLiteral(b, item)
		}
		b.WriteByte(']')
	default:
		// Values outside the literal vocabulary degrade to their string
		// form so the document stays parseable.
		quoteLiteral(b, fmt.Sprintf("%v", v))
	}
}

func encodeLiteralMap(b *strings.Builder, m map[string]any) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteString(", ")
		}
		quoteLiteral(b, k)
		b.WriteString(": ")
		encodeLiteral(b, m[k])
	}
	b.WriteByte('}')
}

func quoteLiteral(b *strings.Builder, s string) {
	b.WriteByte('\'')
	for _, r := range s {
		switch r {
		case '\\':
			b.WriteString(`\\`)
		case '\'':
			b.WriteString(`\'`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			if r < 0x20 {
				fmt.Fprintf(b, `\x%02x`, r)
			} else {
				b.WriteRune(r)
			}
		}
	}
	b.WriteByte('\'')
}

// formatLiteralFloat keeps the trailing .0 on integral floats so they decode
// back as floats. Non finite values have no literal spelling and degrade to
// None on the decoding side.
func formatLiteralFloat(f float64) string {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "None"
	}
	if f == math.Trunc(f) && math.Abs(f) < 1e16 {
		return strconv.FormatFloat(f, 'f', 1, 64)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// DecodeMetadata parses a metadata literal back into a map. The accepted
// grammar is a closed literal superset of JSON: single or double quoted
// strings, numbers, True/False/None spellings, nested mappings, lists and
// tuples, which decode as lists. Anything outside that grammar, in
// particular any form of expression, is rejected with a FormatError.
// An empty or blank literal decodes to an empty map.
func DecodeMetadata(s string) (Metadata, error) {
	p := &literalParser{src: s}
	p.skipSpace()
	if p.eof() {
		return Metadata{}, nil
	}

	v, err := p.parseValue()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if !p.eof() {
		return nil, formatErrorf("metadata literal: trailing content at offset %d", p.pos)
	}

	m, ok := v.(Metadata)
	if !ok {
		return nil, formatErrorf("metadata literal: top level value must be a mapping, got %T", v)
	}
	return m, nil
}

// literalParser is a recursive descent parser over the literal grammar.
type literalParser struct {
	src string
	pos int
}

func (p *literalParser) eof() bool {
	return p.pos >= len(p.src)
}

func (p *literalParser) peek() byte {
	return p.src[p.pos]
}

func (p *literalParser) skipSpace() {
	for !p.eof() {
		switch p.src[p.pos] {
		case ' ', '\t', '\n', '\r':
			p.pos++
		default:
			return
		}
	}
}

func (p *literalParser) parseValue() (any, error) {
	p.skipSpace()
	if p.eof() {
		return nil, formatErrorf("metadata literal: unexpected end of input")
	}

	switch c := p.peek(); {
	case c == '{':
		return p.parseMap()
	case c == '[':
		return p.parseSequence(']')
	case c == '(':
		return p.parseSequence(')')
	case c == '\'' || c == '"':
		return p.parseString()
	case c == 'T':
		return true, p.expect("True")
	case c == 'F':
		return false, p.expect("False")
	case c == 'N':
		return nil, p.expect("None")
	case c == '-' || c == '+' || c == '.' || (c >= '0' && c <= '9'):
		return p.parseNumber()
	default:
		return nil, formatErrorf("metadata literal: unexpected character %q at offset %d", c, p.pos)
	}
}

func (p *literalParser) expect(word string) error {
	if !strings.HasPrefix(p.src[p.pos:], word) {
		return formatErrorf("metadata literal: unexpected token at offset %d", p.pos)
	}
	p.pos += len(word)
	return nil
}

func (p *literalParser) parseMap() (any, error) {
	p.pos++ // consume {
	m := Metadata{}
	p.skipSpace()
	if !p.eof() && p.peek() == '}' {
		p.pos++
		return m, nil
	}

	for {
		p.skipSpace()
		if p.eof() {
			return nil, formatErrorf("metadata literal: unterminated mapping")
		}
		if c := p.peek(); c != '\'' && c != '"' {
			return nil, formatErrorf("metadata literal: mapping keys must be strings, got %q at offset %d", c, p.pos)
		}
		key, err := p.parseString()
		if err != nil {
			return nil, err
		}

		p.skipSpace()
		if p.eof() || p.peek() != ':' {
			return nil, formatErrorf("metadata literal: expected ':' at offset %d", p.pos)
		}
		p.pos++

		v, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		m[key.(string)] = v

		p.skipSpace()
		if p.eof() {
			return nil, formatErrorf("metadata literal: unterminated mapping")
		}
		switch p.peek() {
		case ',':
			p.pos++
			p.skipSpace()
			if !p.eof() && p.peek() == '}' { // tolerate a trailing comma
				p.pos++
				return m, nil
			}
		case '}':
			p.pos++
			return m, nil
		default:
			return nil, formatErrorf("metadata literal: expected ',' or '}' at offset %d", p.pos)
		}
	}
}

// parseSequence decodes lists and tuples. Tuples appear in legacy documents
// where EXIF rationals were serialized verbatim; both decode as lists.
func (p *literalParser) parseSequence(end byte) (any, error) {
	p.pos++ // consume the opening bracket
	out := []any{}
	p.skipSpace()
	if !p.eof() && p.peek() == end {
		p.pos++
		return out, nil
	}

	for {
		v, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		out = append(out, v)

		p.skipSpace()
		if p.eof() {
			return nil, formatErrorf("metadata literal: unterminated sequence")
		}
		switch p.peek() {
		case ',':
			p.pos++
			p.skipSpace()
			if !p.eof() && p.peek() == end {
				p.pos++
				return out, nil
			}
		case end:
			p.pos++
			return out, nil
		default:
			return nil, formatErrorf("metadata literal: expected ',' or %q at offset %d", end, p.pos)
		}
	}
}

func (p *literalParser) parseString() (any, error) {
	quote := p.peek()
	p.pos++

	var b strings.Builder
	for {
		if p.eof() {
			return nil, formatErrorf("metadata literal: unterminated string")
		}
		c := p.src[p.pos]
		switch c {
		case quote:
			p.pos++
			return b.String(), nil
		case '\\':
			p.pos++
			if p.eof() {
				return nil, formatErrorf("metadata literal: unterminated escape sequence")
			}
			esc := p.src[p.pos]
			p.pos++
			switch esc {
			case '\\', '\'', '"':
				b.WriteByte(esc)
			case 'n':
				b.WriteByte('\n')
			case 'r':
				b.WriteByte('\r')
			case 't':
				b.WriteByte('\t')
			case 'b':
				b.WriteByte('\b')
			case 'f':
				b.WriteByte('\f')
			case '0':
				b.WriteByte(0)
			case 'x':
				r, err := p.parseEscapedRune(2)
				if err != nil {
					return nil, err
				}
				b.WriteRune(r)
			case 'u':
				r, err := p.parseEscapedRune(4)
				if err != nil {
					return nil, err
				}
				b.WriteRune(r)
			default:
				return nil, formatErrorf("metadata literal: unsupported escape \\%c at offset %d", esc, p.pos-1)
			}
		default:
			b.WriteByte(c)
			p.pos++
		}
	}
}

func (p *literalParser) parseEscapedRune(digits int) (rune, error) {
	if p.pos+digits > len(p.src) {
		return 0, formatErrorf("metadata literal: truncated escape sequence")
	}
	n, err := strconv.ParseUint(p.src[p.pos:p.pos+digits], 16, 32)
	if err != nil {
		return 0, formatErrorf("metadata literal: invalid escape sequence at offset %d", p.pos)
	}
	p.pos += digits
	return rune(n), nil
}

func (p *literalParser) parseNumber() (any, error) {
	start := p.pos
	isFloat := false

	if c := p.peek(); c == '-' || c == '+' {
		p.pos++
	}
	for !p.eof() {
		c := p.peek()
		switch {
		case c >= '0' && c <= '9':
			p.pos++
		case c == '.':
			isFloat = true
			p.pos++
		case c == 'e' || c == 'E':
			isFloat = true
			p.pos++
			if !p.eof() && (p.peek() == '-' || p.peek() == '+') {
				p.pos++
			}
		default:
			goto done
		}
	}
done:
	text := p.src[start:p.pos]
	if !isFloat {
		if n, err := strconv.ParseInt(text, 10, 64); err == nil {
			return n, nil
		}
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return nil, formatErrorf("metadata literal: invalid number %q at offset %d", text, start)
	}
	return f, nil
}

// deepCopyValue clones metadata values so that copies of an image never share
// mutable state with the original.
func deepCopyValue(v any) any {
	switch v := v.(type) {
	case Metadata:
		out := make(Metadata, len(v))
		for k, item := range v {
			out[k] = deepCopyValue(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			out[k] = deepCopyValue(item)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = deepCopyValue(item)
		}
		return out
	default:
		return v
	}
}

// Clone returns a deep copy of the metadata map.
func (m Metadata) Clone() Metadata {
	if m == nil {
		return nil
	}
	return deepCopyValue(m).(Metadata)
}
