package assets

import (
	"encoding/json"
	"fmt"
)

// FieldValue is one patch entry. It is a closed union of three cases:
//
//   - Literal: a final JSON value, ready for the backend;
//   - Deferred: a raw cell value awaiting typed conversion per its FieldSpec;
//   - RelationRef: a foreign lookup awaiting resolution during enrichment.
//
// The resolver turns every Deferred into a Literal and enrichment turns every
// RelationRef into a Literal, so the execution engine only ever sees literals.
type FieldValue interface {
	fieldValue()
}

// Literal is a resolved JSON value.
type Literal struct {
	Value any
}

// Deferred wraps a raw string value with the field spec that governs its
// typed conversion.
type Deferred struct {
	Spec FieldSpec
	Raw  string
}

// RelationRef is a foreign lookup with its match value filled in.
type RelationRef struct {
	Relation Relation
}

func (Literal) fieldValue()     {}
func (Deferred) fieldValue()    {}
func (RelationRef) fieldValue() {}

// Lit wraps a plain value as a Literal FieldValue.
func Lit(v any) FieldValue { return Literal{Value: v} }

// MarshalJSON renders the literal's underlying value.
func (l Literal) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.Value)
}

// MarshalJSON renders the spec fields plus the raw value under "value",
// the shape the resolver prompt presents to the model.
func (d Deferred) MarshalJSON() ([]byte, error) {
	obj := map[string]any{
		"name":  d.Spec.Name,
		"type":  d.Spec.Type,
		"value": d.Raw,
	}
	if d.Spec.ArrayValueType != "" {
		obj["array_value_type"] = d.Spec.ArrayValueType
	}
	if d.Spec.Nullable {
		obj["nullable"] = true
	}
	return json.Marshal(obj)
}

// MarshalJSON renders the relation descriptor.
func (r RelationRef) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Relation)
}

// Fields is an ordered-agnostic mapping of output field name to FieldValue.
type Fields map[string]FieldValue

// Literals converts a fully resolved Fields map to plain JSON values. It
// fails if any entry is still deferred or an unresolved relation.
func (f Fields) Literals() (map[string]any, error) {
	out := make(map[string]any, len(f))
	for key, v := range f {
		lit, ok := v.(Literal)
		if !ok {
			return nil, fmt.Errorf("field %q is not resolved to a literal (%T)", key, v)
		}
		out[key] = lit.Value
	}
	return out, nil
}

// DeferredEntries returns the subset of entries still awaiting typed
// conversion.
func (f Fields) DeferredEntries() map[string]Deferred {
	out := make(map[string]Deferred)
	for key, v := range f {
		if d, ok := v.(Deferred); ok {
			out[key] = d
		}
	}
	return out
}

// Clone returns a shallow copy of the map.
func (f Fields) Clone() Fields {
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// AssetPatch is the unit of change: a predicate locating an existing record
// and a patch body holding the fields to create or change. Keys are flat
// dot-path output field names until the pipeline unflattens them.
type AssetPatch struct {
	Predicate Fields
	Patch     Fields
}

// NewAssetPatch returns a patch with empty initialized maps.
func NewAssetPatch() AssetPatch {
	return AssetPatch{Predicate: Fields{}, Patch: Fields{}}
}

// ResolvedPatch is the execution-stage form of a patch: the body is a nested
// record ready for the backend, while the predicate stays flat for matching.
// Predicate values may still hold a RelationRef until enrichment resolves it.
type ResolvedPatch struct {
	Predicate Fields
	Body      map[string]any
}

// Clone deep-copies the patch so per-environment enrichment never shares
// nested maps across environments.
func (p ResolvedPatch) Clone() ResolvedPatch {
	return ResolvedPatch{
		Predicate: p.Predicate.Clone(),
		Body:      cloneMap(p.Body),
	}
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		switch t := v.(type) {
		case map[string]any:
			out[k] = cloneMap(t)
		case []any:
			list := make([]any, len(t))
			for i, el := range t {
				if nested, ok := el.(map[string]any); ok {
					list[i] = cloneMap(nested)
				} else {
					list[i] = el
				}
			}
			out[k] = list
		default:
			out[k] = v
		}
	}
	return out
}

// ExecutionTask groups patches sharing an asset type and operation for one
// target environment.
type ExecutionTask struct {
	AssetType AssetType
	Operation Operation
	Patches   []ResolvedPatch
}
