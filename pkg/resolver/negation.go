package resolver

import "strings"

// DefaultNegationFragments lists field-name fragments that invert the
// intuitive boolean mapping: for a field like "disabled", an affirmative
// real-world statement ("Not Active") resolves to true. The list is explicit
// and configurable so the behavior stays deterministic instead of relying on
// the model's own judgment of what reads as a negation.
var DefaultNegationFragments = []string{
	"disabled",
	"inactive",
	"not_active",
	"not_available",
	"deprecated",
	"hidden",
	"excluded",
}

// IsNegatedName reports whether a field name contains one of the fragments.
func IsNegatedName(name string, fragments []string) bool {
	lower := strings.ToLower(name)
	for _, f := range fragments {
		if strings.Contains(lower, f) {
			return true
		}
	}
	return false
}

// rawBoolHint classifies a raw boolean cell when its reading is unambiguous.
// Direct answers (yes/no/true/false) carry the field's value as-is. Status
// words (active, inactive, "not ..." phrases) describe the affirmative
// concept, so they must be inverted for negated field names; that is reported
// via status. Ambiguous values return known=false and are left to the model.
func rawBoolHint(raw string) (value, status, known bool) {
	v := strings.ToLower(strings.TrimSpace(raw))
	v = strings.ReplaceAll(v, "_", " ")
	switch v {
	case "yes", "y", "true", "1":
		return true, false, true
	case "no", "n", "false", "0":
		return false, false, true
	case "active", "enabled", "available":
		return true, true, true
	case "inactive", "unavailable", "disabled":
		return false, true, true
	}
	if strings.HasPrefix(v, "not ") {
		return false, true, true
	}
	return false, false, false
}
