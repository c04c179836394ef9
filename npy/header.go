// header.go - Parser und Writer fuer den Python-Dict-Header
//
// Beispiel: {'descr': '<f4', 'fortran_order': False, 'shape': (1, 224, 224, 3), }
package npy

import (
	"fmt"
	"strconv"
	"strings"
)

type header struct {
	descr        string
	fortranOrder bool
	shape        []int
}

// headerParser ist ein minimaler Leser fuer das Dict-Literal. Unterstuetzt
// Strings, True/False und Tupel aus nicht-negativen Ganzzahlen.
type headerParser struct {
	s   string
	pos int
}

func parseHeader(s string) (header, error) {
	var h header

	p := &headerParser{s: strings.TrimRight(s, " \t\r\n\x00")}
	if !p.consume('{') {
		return h, p.errorf("expected '{'")
	}

	var haveDescr, haveFortran, haveShape bool
	for {
		p.skipSpace()
		if p.consume('}') {
			break
		}

		key, err := p.str()
		if err != nil {
			return h, err
		}

		p.skipSpace()
		if !p.consume(':') {
			return h, p.errorf("expected ':' after %q", key)
		}
		p.skipSpace()

		switch key {
		case "descr":
			if h.descr, err = p.str(); err != nil {
				return h, err
			}
			haveDescr = true
		case "fortran_order":
			if h.fortranOrder, err = p.boolean(); err != nil {
				return h, err
			}
			haveFortran = true
		case "shape":
			if h.shape, err = p.tuple(); err != nil {
				return h, err
			}
			haveShape = true
		default:
			return h, p.errorf("unexpected key %q", key)
		}

		p.skipSpace()
		if p.consume(',') {
			continue
		}
		p.skipSpace()
		if !p.consume('}') {
			return h, p.errorf("expected ',' or '}'")
		}
		break
	}

	if p.skipSpace(); p.pos != len(p.s) {
		return h, p.errorf("trailing data")
	}

	if !haveDescr || !haveFortran || !haveShape {
		return h, fmt.Errorf("%w: missing key (descr=%t fortran_order=%t shape=%t)", ErrMalformedHeader, haveDescr, haveFortran, haveShape)
	}

	return h, nil
}

func (p *headerParser) errorf(msg string, args ...any) error {
	return fmt.Errorf("%w: %s at offset %d", ErrMalformedHeader, fmt.Sprintf(msg, args...), p.pos)
}

func (p *headerParser) skipSpace() {
	for p.pos < len(p.s) && strings.IndexByte(" \t\r\n", p.s[p.pos]) >= 0 {
		p.pos++
	}
}

func (p *headerParser) consume(c byte) bool {
	if p.pos < len(p.s) && p.s[p.pos] == c {
		p.pos++
		return true
	}
	return false
}

func (p *headerParser) str() (string, error) {
	if p.pos >= len(p.s) || (p.s[p.pos] != '\'' && p.s[p.pos] != '"') {
		return "", p.errorf("expected string")
	}

	quote := p.s[p.pos]
	end := strings.IndexByte(p.s[p.pos+1:], quote)
	if end < 0 {
		return "", p.errorf("unterminated string")
	}

	v := p.s[p.pos+1 : p.pos+1+end]
	p.pos += end + 2
	return v, nil
}

func (p *headerParser) boolean() (bool, error) {
	switch {
	case strings.HasPrefix(p.s[p.pos:], "True"):
		p.pos += 4
		return true, nil
	case strings.HasPrefix(p.s[p.pos:], "False"):
		p.pos += 5
		return false, nil
	default:
		return false, p.errorf("expected True or False")
	}
}

func (p *headerParser) tuple() ([]int, error) {
	if !p.consume('(') {
		return nil, p.errorf("expected '('")
	}

	shape := []int{}
	for {
		p.skipSpace()
		if p.consume(')') {
			return shape, nil
		}

		start := p.pos
		for p.pos < len(p.s) && p.s[p.pos] >= '0' && p.s[p.pos] <= '9' {
			p.pos++
		}
		if start == p.pos {
			return nil, p.errorf("expected dimension")
		}

		d, err := strconv.Atoi(p.s[start:p.pos])
		if err != nil {
			return nil, p.errorf("dimension: %v", err)
		}
		shape = append(shape, d)

		p.skipSpace()
		if p.consume(',') {
			continue
		}
		p.skipSpace()
		if !p.consume(')') {
			return nil, p.errorf("expected ',' or ')'")
		}
		return shape, nil
	}
}

// formatHeader erzeugt den Header-Text ohne Padding
func formatHeader(dtype DType, shape []int) string {
	var sb strings.Builder
	sb.WriteString("{'descr': '")
	sb.WriteString(string(dtype))
	sb.WriteString("', 'fortran_order': False, 'shape': (")
	for i, d := range shape {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(strconv.Itoa(d))
	}
	if len(shape) == 1 {
		sb.WriteByte(',')
	}
	sb.WriteString("), }")
	return sb.String()
}
