// Package assets defines the asset data model: field specifications per asset
// type, patch structures, and the tagged value union flowing through the
// derivation pipeline.
package assets

import "encoding/json"

// AssetType names a record type in the backend.
type AssetType string

// Operation is a change kind applied to assets.
type Operation string

const (
	OperationCreate      Operation = "create"
	OperationUpdate      Operation = "update"
	OperationDelete      Operation = "delete"
	OperationDeprecation Operation = "deprecation"
)

// Environment names a backend deployment target.
type Environment string

const (
	EnvProd    Environment = "prod"
	EnvPreprod Environment = "preprod"
	EnvTest    Environment = "test"
	EnvDev     Environment = "dev"
)

// Environments lists all deployment targets in priority order.
var Environments = []Environment{EnvProd, EnvPreprod, EnvTest, EnvDev}

// Field value types a spec may declare.
const (
	TypeString       = "string"
	TypeNumber       = "number"
	TypeBoolean      = "boolean"
	TypeArray        = "array"
	TypeLibraryEntry = "LibraryEntry"
)

// Relation describes a foreign lookup embedded in a predicate field: find the
// target asset whose PredicateField matches PredicateFieldValue and substitute
// its TargetField.
type Relation struct {
	AssetType           AssetType `json:"asset_type"`
	TargetField         string    `json:"target_field"`
	PredicateField      string    `json:"predicate_field"`
	PredicateFieldValue string    `json:"predicate_field_value,omitempty"`
}

// FieldSpec describes one output field: its name, value type, element type
// for arrays, nullability, and an optional foreign relation.
type FieldSpec struct {
	Name           string    `json:"name"`
	Type           string    `json:"type"`
	ArrayValueType string    `json:"array_value_type,omitempty"`
	Nullable       bool      `json:"nullable,omitempty"`
	Relation       *Relation `json:"relation,omitempty"`
}

// FieldTarget is the value side of a spec's field mapping: either a bare
// output field name or a full FieldSpec.
type FieldTarget struct {
	Name string
	Spec *FieldSpec
}

// Plain builds a FieldTarget carrying only an output field name.
func Plain(name string) FieldTarget { return FieldTarget{Name: name} }

// WithSpec builds a FieldTarget carrying a full field spec.
func WithSpec(spec FieldSpec) FieldTarget { return FieldTarget{Spec: &spec} }

// FieldName returns the output field name regardless of form.
func (t FieldTarget) FieldName() string {
	if t.Spec != nil {
		return t.Spec.Name
	}
	return t.Name
}

// MarshalJSON emits the bare name or the full spec, matching the registry's
// declarative form when rendered into prompts.
func (t FieldTarget) MarshalJSON() ([]byte, error) {
	if t.Spec != nil {
		return json.Marshal(t.Spec)
	}
	return json.Marshal(t.Name)
}

// UnmarshalJSON accepts either a bare string or a spec object.
func (t *FieldTarget) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		t.Name, t.Spec = name, nil
		return nil
	}
	var spec FieldSpec
	if err := json.Unmarshal(data, &spec); err != nil {
		return err
	}
	t.Name, t.Spec = "", &spec
	return nil
}

// AssetSpec declares, for one asset type, the mapping from human-readable
// input labels to output fields, which output fields uniquely identify a
// record, and which must be populated on create.
type AssetSpec struct {
	Fields               map[string]FieldTarget `json:"fields"`
	PredicateFields      []FieldTarget          `json:"predicate_fields"`
	CreateRequiredFields []string               `json:"create_required_fields,omitempty"`
}

// FieldNames returns the set of output field names declared by the spec.
func (s AssetSpec) FieldNames() map[string]bool {
	names := make(map[string]bool, len(s.Fields))
	for _, t := range s.Fields {
		names[t.FieldName()] = true
	}
	return names
}

// PredicateFieldNames returns the output field names of the predicate set.
func (s AssetSpec) PredicateFieldNames() []string {
	names := make([]string, 0, len(s.PredicateFields))
	for _, t := range s.PredicateFields {
		names = append(names, t.FieldName())
	}
	return names
}

// TargetFor returns the FieldTarget for an output field name, if declared.
func (s AssetSpec) TargetFor(fieldName string) (FieldTarget, bool) {
	for _, t := range s.Fields {
		if t.FieldName() == fieldName {
			return t, true
		}
	}
	return FieldTarget{}, false
}
