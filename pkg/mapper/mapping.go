// Package mapper derives field-name mappings between input records and asset
// specs, and materializes them into patches across all rows.
package mapper

import (
	"encoding/json"
	"fmt"

	"github.com/surgetech/surge-agent/pkg/assets"
	"github.com/surgetech/surge-agent/pkg/jsonutil"
)

// Pair binds an input field name to its output field target.
type Pair struct {
	InputField string
	Output     assets.FieldTarget
}

// MarshalJSON renders the pair as a two-element array, the shape the model
// produces and prompts display.
func (p Pair) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]any{p.InputField, p.Output})
}

// UnmarshalJSON parses a two-element [input, output] array where output is a
// bare name or a field-spec object.
func (p *Pair) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw) != 2 {
		return fmt.Errorf("mapping pair must have exactly 2 elements, got %d", len(raw))
	}
	// Numeric column headers may come back as JSON numbers; coerce.
	p.InputField = jsonutil.FlexibleStringValue(raw[0])
	if p.InputField == "" {
		return fmt.Errorf("mapping pair input field is empty")
	}
	if err := json.Unmarshal(raw[1], &p.Output); err != nil {
		return fmt.Errorf("mapping pair output field: %w", err)
	}
	return nil
}

// Mapping is the derived correspondence for one (asset type, operation)
// batch: which input fields locate a record and which carry new values.
// It is derived once from an example row and applied uniformly to all rows.
type Mapping struct {
	Predicate []Pair `json:"predicate"`
	Patch     []Pair `json:"patch"`
}
