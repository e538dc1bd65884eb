// Package dialogueact implements dialogue act items, dialogue acts, N-best lists
// and confusion networks exchanged between the understanding side and the
// dialogue manager.
package dialogueact

import (
	"errors"
	"fmt"
	"strings"
)

// ErrSyntax is returned when a dialogue act string cannot be parsed.
var ErrSyntax = errors.New("dialogueact: syntax error")

// Item is a single dialogue act item dat(name="value"). Name and Value may be
// empty when absent.
type Item struct {
	DAT   string
	Name  string
	Value string
}

// NewItem builds an item from its parts.
func NewItem(dat, name, value string) Item {
	return Item{DAT: dat, Name: name, Value: value}
}

func (it Item) String() string {
	switch {
	case it.Name == "" && it.Value == "":
		return it.DAT + "()"
	case it.Value == "":
		return it.DAT + "(" + it.Name + ")"
	default:
		return it.DAT + "(" + it.Name + "=\"" + it.Value + "\")"
	}
}

// Less orders items by (dat, name, value).
func (it Item) Less(o Item) bool {
	if it.DAT != o.DAT {
		return it.DAT < o.DAT
	}
	if it.Name != o.Name {
		return it.Name < o.Name
	}
	return it.Value < o.Value
}

// ParseItem parses forms such as inform(to_stop="Wall Street"), request(from_stop),
// hello() and bare hello.
func ParseItem(s string) (Item, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Item{}, fmt.Errorf("%w: empty item", ErrSyntax)
	}
	open := strings.IndexByte(s, '(')
	if open < 0 {
		if strings.ContainsAny(s, ")=\"") {
			return Item{}, fmt.Errorf("%w: %q", ErrSyntax, s)
		}
		return Item{DAT: s}, nil
	}
	if !strings.HasSuffix(s, ")") {
		return Item{}, fmt.Errorf("%w: unterminated item %q", ErrSyntax, s)
	}
	dat := strings.TrimSpace(s[:open])
	if dat == "" {
		return Item{}, fmt.Errorf("%w: missing act type in %q", ErrSyntax, s)
	}
	body := s[open+1 : len(s)-1]
	if strings.TrimSpace(body) == "" {
		return Item{DAT: dat}, nil
	}

	eq := indexOutsideQuotes(body, '=')
	if eq < 0 {
		return Item{DAT: dat, Name: strings.TrimSpace(body)}, nil
	}
	name := strings.TrimSpace(body[:eq])
	value, err := unquote(strings.TrimSpace(body[eq+1:]))
	if err != nil {
		return Item{}, fmt.Errorf("%w: %q: %v", ErrSyntax, s, err)
	}
	return Item{DAT: dat, Name: name, Value: value}, nil
}

func unquote(v string) (string, error) {
	if len(v) >= 2 && (v[0] == '"' || v[0] == '\'') {
		if v[len(v)-1] != v[0] {
			return "", errors.New("unbalanced quotes")
		}
		return v[1 : len(v)-1], nil
	}
	if strings.ContainsAny(v, "\"'") {
		return "", errors.New("stray quote")
	}
	return v, nil
}

// indexOutsideQuotes returns the index of the first sep that is not inside a
// quoted string, or -1.
func indexOutsideQuotes(s string, sep byte) int {
	var quote byte
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
		case c == sep:
			return i
		}
	}
	return -1
}

// splitOutside splits s on sep, ignoring separators inside quotes or parentheses.
func splitOutside(s string, sep byte) []string {
	var (
		parts []string
		quote byte
		depth int
		start int
	)
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
		case c == '(':
			depth++
		case c == ')':
			if depth > 0 {
				depth--
			}
		case c == sep && depth == 0:
			parts = append(parts, s[start:i])
			start = i + 1
		}
	}
	return append(parts, s[start:])
}
