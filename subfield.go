// Licensed to the Apache Software Foundation (ASF) under one
// or more contributor license agreements.  See the NOTICE file
// distributed with this work for additional information
// regarding copyright ownership.  The ASF licenses this file
// to you under the Apache License, Version 2.0 (the
// "License"); you may not use this file except in compliance
// with the License.  You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing,
// software distributed under the License is distributed on an
// "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
// KIND, either express or implied.  See the License for the
// specific language governing permissions and limitations
// under the License.

package vellum

import (
	"fmt"
	"strconv"
	"strings"
)

// SubfieldElement is one step of a subfield path: a struct field name,
// an array index, a map key, or a wildcard over all subscripts.
type SubfieldElement interface {
	fmt.Stringer
	isSubfieldElement()
}

// NestedField addresses a struct field by name.
type NestedField struct{ Name string }

func (NestedField) isSubfieldElement() {}
func (e NestedField) String() string   { return "." + e.Name }

// LongSubscript addresses an array element or an integer map key.
type LongSubscript struct{ Index int64 }

func (LongSubscript) isSubfieldElement() {}
func (e LongSubscript) String() string   { return fmt.Sprintf("[%d]", e.Index) }

// StringSubscript addresses a string map key.
type StringSubscript struct{ Key string }

func (StringSubscript) isSubfieldElement() {}
func (e StringSubscript) String() string {
	return "[" + strconv.Quote(e.Key) + "]"
}

// AllSubscripts addresses every element of an array or map.
type AllSubscripts struct{}

func (AllSubscripts) isSubfieldElement() {}
func (AllSubscripts) String() string     { return "[*]" }

// Subfield addresses a part of a possibly nested column, e.g.
// "a.b[3].c" or `m["key"]`. The first element is always the top-level
// column name.
type Subfield struct {
	elements []SubfieldElement
}

// NewSubfield returns a subfield addressing a whole top-level column.
func NewSubfield(column string) *Subfield {
	return &Subfield{elements: []SubfieldElement{NestedField{Name: column}}}
}

// ParseSubfield parses a subfield path. The path must begin with a
// field name followed by any mix of ".name", "[index]", `["key"]` and
// "[*]" steps. Returns an error wrapping ErrInvalidSubfield on
// malformed input.
func ParseSubfield(path string) (*Subfield, error) {
	p := &subfieldParser{input: path}
	elems, err := p.parse()
	if err != nil {
		return nil, err
	}

	return &Subfield{elements: elems}, nil
}

// Elements returns the path steps in order.
func (s *Subfield) Elements() []SubfieldElement { return s.elements }

// Name returns the top-level column the path addresses.
func (s *Subfield) Name() string {
	return s.elements[0].(NestedField).Name
}

// IsRoot reports whether the path addresses the whole column.
func (s *Subfield) IsRoot() bool { return len(s.elements) == 1 }

func (s *Subfield) String() string {
	var b strings.Builder
	b.WriteString(s.Name())
	for _, e := range s.elements[1:] {
		b.WriteString(e.String())
	}

	return b.String()
}

type subfieldParser struct {
	input string
	pos   int
}

func (p *subfieldParser) errorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s at position %d in %q",
		ErrInvalidSubfield, fmt.Sprintf(format, args...), p.pos, p.input)
}

func (p *subfieldParser) parse() ([]SubfieldElement, error) {
	name, err := p.identifier()
	if err != nil {
		return nil, err
	}
	elems := []SubfieldElement{NestedField{Name: name}}

	for p.pos < len(p.input) {
		switch p.input[p.pos] {
		case '.':
			p.pos++
			name, err := p.identifier()
			if err != nil {
				return nil, err
			}
			elems = append(elems, NestedField{Name: name})
		case '[':
			p.pos++
			elem, err := p.subscript()
			if err != nil {
				return nil, err
			}
			elems = append(elems, elem)
		default:
			return nil, p.errorf("unexpected character %q", p.input[p.pos])
		}
	}

	return elems, nil
}

func (p *subfieldParser) identifier() (string, error) {
	start := p.pos
	for p.pos < len(p.input) {
		c := p.input[p.pos]
		if c == '.' || c == '[' || c == ']' {
			break
		}
		p.pos++
	}
	if p.pos == start {
		return "", p.errorf("expected field name")
	}

	return p.input[start:p.pos], nil
}

func (p *subfieldParser) subscript() (SubfieldElement, error) {
	if p.pos >= len(p.input) {
		return nil, p.errorf("unterminated subscript")
	}

	switch c := p.input[p.pos]; {
	case c == '*':
		p.pos++

		return AllSubscripts{}, p.close()
	case c == '"' || c == '\'':
		key, err := p.quoted(c)
		if err != nil {
			return nil, err
		}

		return StringSubscript{Key: key}, p.close()
	default:
		start := p.pos
		for p.pos < len(p.input) && p.input[p.pos] != ']' {
			p.pos++
		}
		idx, err := strconv.ParseInt(p.input[start:p.pos], 10, 64)
		if err != nil {
			return nil, p.errorf("invalid subscript %q", p.input[start:p.pos])
		}

		return LongSubscript{Index: idx}, p.close()
	}
}

func (p *subfieldParser) quoted(quote byte) (string, error) {
	p.pos++
	var b strings.Builder
	for p.pos < len(p.input) {
		c := p.input[p.pos]
		switch c {
		case quote:
			p.pos++

			return b.String(), nil
		case '\\':
			p.pos++
			if p.pos >= len(p.input) {
				return "", p.errorf("unterminated escape")
			}
			b.WriteByte(p.input[p.pos])
			p.pos++
		default:
			b.WriteByte(c)
			p.pos++
		}
	}

	return "", p.errorf("unterminated quoted key")
}

func (p *subfieldParser) close() error {
	if p.pos >= len(p.input) || p.input[p.pos] != ']' {
		return p.errorf("expected closing bracket")
	}
	p.pos++

	return nil
}
