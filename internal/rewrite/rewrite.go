// Package rewrite applies scalar field edits to decoded save payloads. The
// payloads are YAML-like text documents; rewriting works line by line so that
// indentation, comments, and key order survive untouched.
package rewrite

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Rule describes one field edit. Value sets the field to a fixed string;
// RotateGUID replaces it with a freshly generated UUID instead.
type Rule struct {
	Field      string
	Value      string
	RotateGUID bool
}

// Rewriter applies a fixed set of rules to decoded payloads.
type Rewriter struct {
	rules  []Rule
	logger *logrus.Logger
}

// NewRewriter creates a rewriter for the given rules.
func NewRewriter(rules []Rule, logger *logrus.Logger) (*Rewriter, error) {
	for i, rule := range rules {
		if rule.Field == "" {
			return nil, fmt.Errorf("rewrite rule %d: field must not be empty", i)
		}
		if rule.Value == "" && !rule.RotateGUID {
			return nil, fmt.Errorf("rewrite rule %d (%s): either value or rotate_guid is required", i, rule.Field)
		}
	}
	return &Rewriter{rules: rules, logger: logger}, nil
}

// Apply runs all rules over the payload and returns the rewritten document
// along with the number of replacements made. Fields that do not occur in
// the payload are skipped.
func (r *Rewriter) Apply(payload []byte) ([]byte, int, error) {
	if len(r.rules) == 0 {
		return payload, 0, nil
	}

	lines := strings.Split(string(payload), "\n")
	replaced := 0
	for i, line := range lines {
		for _, rule := range r.rules {
			newLine, ok := applyRule(line, rule)
			if !ok {
				continue
			}
			lines[i] = newLine
			replaced++
			if r.logger != nil {
				r.logger.WithFields(logrus.Fields{
					"field": rule.Field,
					"line":  i + 1,
				}).Debug("Rewrote field")
			}
			break
		}
	}

	var buf bytes.Buffer
	for i, line := range lines {
		if i > 0 {
			buf.WriteByte('\n')
		}
		buf.WriteString(line)
	}
	return buf.Bytes(), replaced, nil
}

// applyRule rewrites a single "key: value" line when the key matches the
// rule's field. Mapping keys nested under other keys match by their own name.
func applyRule(line string, rule Rule) (string, bool) {
	trimmed := strings.TrimLeft(line, " \t")
	indent := line[:len(line)-len(trimmed)]

	key, _, found := strings.Cut(trimmed, ":")
	if !found || strings.TrimSpace(key) != rule.Field {
		return "", false
	}

	value := rule.Value
	if rule.RotateGUID {
		value = uuid.NewString()
	}
	return fmt.Sprintf("%s%s: %s", indent, strings.TrimSpace(key), value), true
}
