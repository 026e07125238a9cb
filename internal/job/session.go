package job

import (
	"fmt"
	"regexp"
	"strings"

	"dario.cat/mergo"
)

// MergeMode selects how the merged input session is computed. Strict keeps only signature-declared parameters; Loose keeps
// the superset, including parameters created by the mapping expression.
type MergeMode string

// Merge mode constants.
const (
	MergeStrict MergeMode = "strict"
	MergeLoose  MergeMode = "loose"
)

// substitutionPattern matches ${identifier} tokens in a mapping value.
var substitutionPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// MergeSession computes the merged input session for a job run: the
// union of (a) defaults declared by the script signature, (b) the
// caller-provided input session, and (c) a mapping applying ${name}
// textual substitutions against already-merged values.
//
// mergo.Merge layers maps left-to-right with later sources overriding
// earlier ones when WithOverride is given, giving defaults ⊂
// caller-input precedence before the mapping step is applied.
func MergeSession(defaults, callerInput map[string]string, mapping map[string]string, mode MergeMode) (map[string]string, error) {
	merged := cloneMap(defaults)
	if err := mergo.Merge(&merged, cloneMap(callerInput), mergo.WithOverride); err != nil {
		return nil, fmt.Errorf("merging caller session: %w", err)
	}

	mapped := make(map[string]string, len(mapping))
	for name, expr := range mapping {
		mapped[name] = substitute(expr, merged)
	}

	switch mode {
	case MergeStrict:
		// Only signature-declared parameters survive: apply substitutions
		// in place over the declared defaults, dropping anything the
		// caller or the mapping introduced that wasn't already a default.
		result := make(map[string]string, len(defaults))
		for name := range defaults {
			result[name] = merged[name]
		}
		for name, resolved := range mapped {
			if _, declared := defaults[name]; declared {
				result[name] = resolved
			}
		}
		return result, nil
	case MergeLoose:
		result := cloneMap(merged)
		if err := mergo.Merge(&result, mapped, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("merging mapping in loose mode: %w", err)
		}
		return result, nil
	default:
		return nil, fmt.Errorf("unknown merge mode %q", mode)
	}
}

// substitute applies ${name} textual replacement against values. Unknown
// identifiers are left as literal tokens.
func substitute(expr string, values map[string]string) string {
	return substitutionPattern.ReplaceAllStringFunc(expr, func(tok string) string {
		name := strings.TrimSuffix(strings.TrimPrefix(tok, "${"), "}")
		if v, ok := values[name]; ok {
			return v
		}
		return tok
	})
}
