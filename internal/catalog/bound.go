package catalog

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/partwise/partwise/internal/partition"
)

var errMalformedBound = errors.New("malformed partition bound")

// ParseRangeBound parses "FOR VALUES FROM (<from>) TO (<to>)" as reported by
// pg_get_expr and returns the literal text between the parentheses. Quoted
// literals and nested parentheses (casts, row values) are kept intact.
func ParseRangeBound(expr string) (from, to string, err error) {
	i, ok := consumeKeywords(expr, 0, "FOR", "VALUES", "FROM")
	if !ok {
		return "", "", fmt.Errorf("%w: expected FOR VALUES FROM", errMalformedBound)
	}
	from, i, ok = scanGroup(expr, i)
	if !ok {
		return "", "", fmt.Errorf("%w: unterminated FROM list", errMalformedBound)
	}
	if i, ok = consumeKeywords(expr, i, "TO"); !ok {
		return "", "", fmt.Errorf("%w: expected TO", errMalformedBound)
	}
	to, i, ok = scanGroup(expr, i)
	if !ok {
		return "", "", fmt.Errorf("%w: unterminated TO list", errMalformedBound)
	}
	if !atEnd(expr, i) {
		return "", "", fmt.Errorf("%w: unexpected trailing text %q", errMalformedBound, strings.TrimSpace(expr[i:]))
	}
	if from == "" || to == "" {
		return "", "", fmt.Errorf("%w: empty bound", errMalformedBound)
	}
	return from, to, nil
}

// ParseListBound parses "FOR VALUES IN (<values>)".
func ParseListBound(expr string) (string, error) {
	i, ok := consumeKeywords(expr, 0, "FOR", "VALUES", "IN")
	if !ok {
		return "", fmt.Errorf("%w: expected FOR VALUES IN", errMalformedBound)
	}
	values, i, ok := scanGroup(expr, i)
	if !ok || values == "" {
		return "", fmt.Errorf("%w: bad IN list", errMalformedBound)
	}
	if !atEnd(expr, i) {
		return "", fmt.Errorf("%w: unexpected trailing text %q", errMalformedBound, strings.TrimSpace(expr[i:]))
	}
	return values, nil
}

// ParseHashBound parses "FOR VALUES WITH (modulus <m>, remainder <r>)".
func ParseHashBound(expr string) (modulus, remainder int, err error) {
	i, ok := consumeKeywords(expr, 0, "FOR", "VALUES", "WITH")
	if !ok {
		return 0, 0, fmt.Errorf("%w: expected FOR VALUES WITH", errMalformedBound)
	}
	inner, i, ok := scanGroup(expr, i)
	if !ok || !atEnd(expr, i) {
		return 0, 0, fmt.Errorf("%w: bad WITH list", errMalformedBound)
	}

	modulus, remainder = -1, -1
	seen := make(map[string]bool, 2)
	for _, item := range splitTopLevel(inner) {
		fields := strings.Fields(item)
		if len(fields) != 2 {
			return 0, 0, fmt.Errorf("%w: bad hash option %q", errMalformedBound, item)
		}
		n, convErr := strconv.Atoi(fields[1])
		if convErr != nil {
			return 0, 0, fmt.Errorf("%w: bad hash option %q", errMalformedBound, item)
		}
		option := strings.ToLower(fields[0])
		var dst *int
		switch option {
		case "modulus":
			dst = &modulus
		case "remainder":
			dst = &remainder
		default:
			return 0, 0, fmt.Errorf("%w: unknown hash option %q", errMalformedBound, fields[0])
		}
		if seen[option] {
			return 0, 0, fmt.Errorf("%w: repeated hash option %q", errMalformedBound, fields[0])
		}
		seen[option] = true
		*dst = n
	}
	if modulus <= 0 || remainder < 0 {
		return 0, 0, fmt.Errorf("%w: modulus and remainder are required", errMalformedBound)
	}
	if remainder >= modulus {
		return 0, 0, fmt.Errorf("%w: remainder %d is not below modulus %d", errMalformedBound, remainder, modulus)
	}
	return modulus, remainder, nil
}

// ParsePartitionKey parses pg_get_partkeydef output such as
// "RANGE (tenant_id, created_at)".
func ParsePartitionKey(def string) (partition.Kind, []string, error) {
	def = strings.TrimSpace(def)
	end := strings.IndexFunc(def, func(r rune) bool { return unicode.IsSpace(r) || r == '(' })
	if end <= 0 {
		return "", nil, fmt.Errorf("%w: no partitioning method in %q", errMalformedBound, def)
	}

	var kind partition.Kind
	switch strings.ToUpper(def[:end]) {
	case "RANGE":
		kind = partition.KindRange
	case "LIST":
		kind = partition.KindList
	case "HASH":
		kind = partition.KindHash
	default:
		return "", nil, fmt.Errorf("%w: unknown partitioning method %q", errMalformedBound, def[:end])
	}

	inner, i, ok := scanGroup(def, end)
	if !ok || !atEnd(def, i) || inner == "" {
		return "", nil, fmt.Errorf("%w: bad key column list in %q", errMalformedBound, def)
	}
	return kind, splitTopLevel(inner), nil
}

// consumeKeywords matches whitespace-separated keywords case-insensitively
// starting at s[i] and returns the index after the last one.
func consumeKeywords(s string, i int, words ...string) (int, bool) {
	for _, w := range words {
		i = skipSpace(s, i)
		if len(s)-i < len(w) || !strings.EqualFold(s[i:i+len(w)], w) {
			return i, false
		}
		i += len(w)
		// A keyword must not run into an identifier character.
		if i < len(s) && isIdentChar(rune(s[i])) {
			return i, false
		}
	}
	return i, true
}

// scanGroup reads a parenthesized group starting at the next non-space
// character and returns its trimmed contents and the index after ')'.
func scanGroup(s string, i int) (string, int, bool) {
	i = skipSpace(s, i)
	if i >= len(s) || s[i] != '(' {
		return "", i, false
	}
	start := i + 1
	depth := 0
	for j := i; j < len(s); j++ {
		switch s[j] {
		case '\'', '"':
			end := skipQuoted(s, j)
			if end < 0 {
				return "", j, false
			}
			j = end
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return strings.TrimSpace(s[start:j]), j + 1, true
			}
		}
	}
	return "", len(s), false
}

// skipQuoted returns the index of the closing quote of the quoted run that
// starts at s[i], honouring doubled quotes, or -1 if it never closes.
func skipQuoted(s string, i int) int {
	q := s[i]
	for j := i + 1; j < len(s); j++ {
		if s[j] != q {
			continue
		}
		if j+1 < len(s) && s[j+1] == q {
			j++
			continue
		}
		return j
	}
	return -1
}

// splitTopLevel splits on commas outside quotes and parentheses.
func splitTopLevel(s string) []string {
	var parts []string
	depth, start := 0, 0
	for j := 0; j < len(s); j++ {
		switch s[j] {
		case '\'', '"':
			if end := skipQuoted(s, j); end >= 0 {
				j = end
			}
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, strings.TrimSpace(s[start:j]))
				start = j + 1
			}
		}
	}
	return append(parts, strings.TrimSpace(s[start:]))
}

func skipSpace(s string, i int) int {
	for i < len(s) && unicode.IsSpace(rune(s[i])) {
		i++
	}
	return i
}

func atEnd(s string, i int) bool {
	return skipSpace(s, i) == len(s)
}

func isIdentChar(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}
