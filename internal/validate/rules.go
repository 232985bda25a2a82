// Package validate checks request bodies and uploaded files against
// declarative rule sets.
package validate

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// RuleSet maps a field name to its ordered list of rule tokens, e.g.
// {"title": {"required", "string", "min:3"}}.
type RuleSet map[string][]string

// Outcome is the result of a validation pass. It is either empty (success)
// or carries every violated rule's message per field, never a partial view.
type Outcome struct {
	Errors map[string][]string
}

// OK reports whether no field had any violation.
func (o Outcome) OK() bool {
	return len(o.Errors) == 0
}

func (o *Outcome) add(field, message string) {
	if o.Errors == nil {
		o.Errors = make(map[string][]string)
	}
	o.Errors[field] = append(o.Errors[field], message)
}

// setLast records a message for a field, replacing any previous one. Used by
// file rules where a later failing check overwrites an earlier message.
func (o *Outcome) setLast(field, message string) {
	if o.Errors == nil {
		o.Errors = make(map[string][]string)
	}
	o.Errors[field] = []string{message}
}

var emailRX = regexp.MustCompile(`^[a-zA-Z0-9.!#$%&'*+/=?^_{|}~-]+@[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?(?:\.[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?)*$`)

// ruleFunc checks one rule against a field value. It returns a message and
// false on violation. arg carries the parameter of parameterized tokens.
type ruleFunc func(field string, value any, arg string) (string, bool)

var ruleFuncs = map[string]ruleFunc{
	"required": func(field string, value any, _ string) (string, bool) {
		if isAbsent(value) {
			return fmt.Sprintf("%s is required", field), false
		}
		return "", true
	},
	"string": func(field string, value any, _ string) (string, bool) {
		if _, ok := value.(string); !ok {
			return fmt.Sprintf("%s must be a string", field), false
		}
		return "", true
	},
	"email": func(field string, value any, _ string) (string, bool) {
		s, ok := value.(string)
		if !ok || !emailRX.MatchString(s) {
			return fmt.Sprintf("%s must be a valid email address", field), false
		}
		return "", true
	},
	"min": func(field string, value any, arg string) (string, bool) {
		n, _ := strconv.Atoi(arg)
		if s, ok := value.(string); ok && len(s) < n {
			return fmt.Sprintf("%s must be at least %d characters", field, n), false
		}
		return "", true
	},
	"max": func(field string, value any, arg string) (string, bool) {
		n, _ := strconv.Atoi(arg)
		if s, ok := value.(string); ok && len(s) > n {
			return fmt.Sprintf("%s may not be longer than %d characters", field, n), false
		}
		return "", true
	},
}

// Fields validates a field map against rules. Every violated rule for a field
// is collected before returning; the pass is never fail-fast. The error
// return signals a malformed rule token, which is an internal fault distinct
// from a validation failure.
func Fields(data map[string]any, rules RuleSet) (Outcome, error) {
	var outcome Outcome
	for field, tokens := range rules {
		value, present := data[field]
		required := hasToken(tokens, "required")
		// Non-required rules skip fields that were not supplied at all.
		if !present && !required {
			continue
		}
		for _, token := range tokens {
			name, arg, err := splitToken(token)
			if err != nil {
				return Outcome{}, err
			}
			check, ok := ruleFuncs[name]
			if !ok {
				return Outcome{}, fmt.Errorf("unknown validation rule %q", token)
			}
			if name != "required" && isAbsent(value) {
				continue
			}
			if message, ok := check(field, value, arg); !ok {
				outcome.add(field, message)
			}
		}
	}
	return outcome, nil
}

func splitToken(token string) (name, arg string, err error) {
	name = token
	if idx := strings.IndexByte(token, ':'); idx >= 0 {
		name, arg = token[:idx], token[idx+1:]
		if arg == "" {
			return "", "", fmt.Errorf("validation rule %q is missing its argument", token)
		}
		if name == "min" || name == "max" {
			if _, convErr := strconv.Atoi(arg); convErr != nil {
				return "", "", fmt.Errorf("validation rule %q needs a numeric argument", token)
			}
		}
	}
	return name, arg, nil
}

func hasToken(tokens []string, want string) bool {
	for _, t := range tokens {
		if t == want {
			return true
		}
	}
	return false
}

func isAbsent(value any) bool {
	if value == nil {
		return true
	}
	if s, ok := value.(string); ok {
		return strings.TrimSpace(s) == ""
	}
	return false
}
