package runtime

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/Jeffail/gabs/v2"
)

// ValueStore keeps execution state in a flat map with underscore-separated
// keys. Keys like "step.result.field" are stored as "step_result_field" so
// they are addressable from expr-lang expressions.
type ValueStore struct {
	values map[string]any
}

func NewValueStore() *ValueStore {
	return &ValueStore{values: make(map[string]any)}
}

func (s *ValueStore) Set(key string, value any) {
	s.values[FormatKey(key)] = value
}

func (s *ValueStore) Get(key string) (any, bool) {
	v, ok := s.values[FormatKey(key)]
	return v, ok
}

// SetNested stores a value and expands nested maps/arrays into flat keys.
// Intermediate nodes are stored too, so both step.result.body.id and
// step.result.body != null work in expressions.
func (s *ValueStore) SetNested(prefix string, value any) {
	s.Set(prefix, value)
	s.expand(prefix, gabs.Wrap(value))
}

func (s *ValueStore) expand(prefix string, node *gabs.Container) {
	switch node.Data().(type) {
	case map[string]any:
		for k, child := range node.ChildrenMap() {
			key := prefix + "." + k
			s.Set(key, child.Data())
			s.expand(key, child)
		}
	case []any:
		for i, child := range node.Children() {
			key := fmt.Sprintf("%s.%d", prefix, i)
			s.Set(key, child.Data())
			s.expand(key, child)
		}
	}
}

func (s *ValueStore) All() map[string]any {
	return s.values
}

var (
	hyphenStartOrEndRe = regexp.MustCompile(`(^|[^ ])-([^ ]|$)`)
	hyphenMiddleRe     = regexp.MustCompile(`([^ ])-([^ ])`)
)

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}

// FormatKey converts a dotted/hyphenated path into the flat underscore form.
func FormatKey(key string) string {
	key = strings.ReplaceAll(key, ".", "_")
	key = hyphenStartOrEndRe.ReplaceAllString(key, "${1}_${2}")
	key = hyphenMiddleRe.ReplaceAllString(key, "${1}_${2}")
	return key
}

// FormatExpression rewrites dotted paths inside an expression to the flat
// underscore form, leaving string literals, numeric literals, optional
// chaining (?.) and lambda accessors (#.) untouched.
func FormatExpression(e string) string {
	result := []rune(e)
	openParentheses := 0
	inDoubleQuote := false
	inBacktick := false
	escapeNext := false

	for i, r := range result {
		if escapeNext {
			escapeNext = false
			continue
		}

		if inDoubleQuote && r == '\\' {
			escapeNext = true
			continue
		}

		if r == '"' && !inBacktick {
			inDoubleQuote = !inDoubleQuote
			continue
		}
		if r == '`' && !inDoubleQuote {
			inBacktick = !inBacktick
			continue
		}

		if inDoubleQuote || inBacktick {
			continue
		}

		switch r {
		case '(':
			openParentheses++
		case ')':
			openParentheses--
		case '.':
			if i > 0 && (result[i-1] == '?' || result[i-1] == '#') {
				continue
			}
			if i > 0 && i < len(result)-1 && isDigit(result[i-1]) && isDigit(result[i+1]) {
				continue
			}
			result[i] = '_'
		case '-':
			if openParentheses == 0 {
				temp := string(result[max(i-1, 0):min(i+2, len(result))])
				if hyphenStartOrEndRe.MatchString(temp) || hyphenMiddleRe.MatchString(temp) {
					result[i] = '_'
				}
			}
		}
	}
	return string(result)
}
