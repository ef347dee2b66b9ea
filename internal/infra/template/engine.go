package template

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"herald/internal/domain/notification"
)

var _ notification.Renderer = (*Engine)(nil)

var (
	varRe      = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_]+(?:\.[a-zA-Z0-9_]+)*)\s*\}\}`)
	eachOpenRe = regexp.MustCompile(`\{\{#each\s+([a-zA-Z0-9_]+(?:\.[a-zA-Z0-9_]+)*)\s*\}\}`)
)

const eachClose = "{{/each}}"

// Engine renders placeholder templates: {{var}} substitution with dotted
// field access and {{#each list}}...{{/each}} iteration blocks.
//
// Rendering is pure and deterministic: identical (pattern, data) inputs
// always produce byte-identical output. It also never fails: unresolved
// placeholders render as empty strings and are reported as warnings so the
// degradation stays visible in the notification's audit trail.
type Engine struct{}

// NewEngine creates a new template engine.
func NewEngine() *Engine {
	return &Engine{}
}

// Render substitutes data into the subject and body patterns.
func (e *Engine) Render(subjectPattern, bodyPattern string, data map[string]any) (subject, body string, warnings []string) {
	scopes := []any{data}
	subject = renderPattern(subjectPattern, scopes, &warnings)
	body = renderPattern(bodyPattern, scopes, &warnings)
	return subject, body, warnings
}

// renderPattern expands each-blocks first, then substitutes variables in the
// remaining text. scopes is a resolution stack, innermost last.
func renderPattern(pattern string, scopes []any, warnings *[]string) string {
	var sb strings.Builder

	rest := pattern
	for {
		loc := eachOpenRe.FindStringSubmatchIndex(rest)
		if loc == nil {
			sb.WriteString(substituteVars(rest, scopes, warnings))
			break
		}

		sb.WriteString(substituteVars(rest[:loc[0]], scopes, warnings))
		listPath := rest[loc[2]:loc[3]]
		afterOpen := rest[loc[1]:]

		inner, after, ok := splitEachBlock(afterOpen)
		if !ok {
			// Unbalanced block: emit the tag literally rather than guessing.
			*warnings = append(*warnings, fmt.Sprintf("unterminated {{#each %s}} block", listPath))
			sb.WriteString(substituteVars(afterOpen, scopes, warnings))
			break
		}

		value, found := lookup(listPath, scopes)
		if !found {
			*warnings = append(*warnings, fmt.Sprintf("unresolved template variable: %s", listPath))
		} else if items, isList := value.([]any); isList {
			for _, item := range items {
				sb.WriteString(renderPattern(inner, append(scopes, item), warnings))
			}
		} else {
			*warnings = append(*warnings, fmt.Sprintf("template variable %s is not a list", listPath))
		}

		rest = after
	}

	return sb.String()
}

// splitEachBlock finds the {{/each}} matching an already-consumed opening
// tag, accounting for nested blocks. Returns the block body and the text
// after the closing tag.
func splitEachBlock(s string) (inner, after string, ok bool) {
	depth := 1
	offset := 0
	for {
		openLoc := eachOpenRe.FindStringIndex(s[offset:])
		closeIdx := strings.Index(s[offset:], eachClose)
		if closeIdx < 0 {
			return "", "", false
		}
		if openLoc != nil && openLoc[0] < closeIdx {
			depth++
			offset += openLoc[1]
			continue
		}
		depth--
		if depth == 0 {
			return s[:offset+closeIdx], s[offset+closeIdx+len(eachClose):], true
		}
		offset += closeIdx + len(eachClose)
	}
}

// substituteVars replaces every {{var}} occurrence in text.
func substituteVars(text string, scopes []any, warnings *[]string) string {
	return varRe.ReplaceAllStringFunc(text, func(match string) string {
		path := varRe.FindStringSubmatch(match)[1]
		value, found := lookup(path, scopes)
		if !found {
			*warnings = append(*warnings, fmt.Sprintf("unresolved template variable: %s", path))
			return ""
		}
		s, scalar := formatScalar(value)
		if !scalar {
			*warnings = append(*warnings, fmt.Sprintf("template variable %s is not a scalar", path))
			return ""
		}
		return s
	})
}

// lookup resolves a dotted path against the scope stack, innermost first.
// The leading segment "this" refers to the current scope value itself.
func lookup(path string, scopes []any) (any, bool) {
	segments := strings.Split(path, ".")

	for i := len(scopes) - 1; i >= 0; i-- {
		if value, ok := walk(scopes[i], segments); ok {
			return value, true
		}
	}
	return nil, false
}

func walk(value any, segments []string) (any, bool) {
	for idx, seg := range segments {
		if seg == "this" && idx == 0 {
			continue
		}
		m, ok := value.(map[string]any)
		if !ok {
			return nil, false
		}
		value, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	return value, true
}

// formatScalar renders a leaf value. JSON numbers arrive as float64; whole
// values print without a decimal point so "age 30" never becomes "age 30.0".
func formatScalar(value any) (string, bool) {
	switch v := value.(type) {
	case string:
		return v, true
	case bool:
		return strconv.FormatBool(v), true
	case int:
		return strconv.Itoa(v), true
	case int64:
		return strconv.FormatInt(v, 10), true
	case float64:
		if v == float64(int64(v)) {
			return strconv.FormatInt(int64(v), 10), true
		}
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case nil:
		return "", true
	default:
		return "", false
	}
}
