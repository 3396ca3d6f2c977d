package mapper

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/surgetech/surge-agent/pkg/assets"
)

// MappingError reports a row that cannot be materialized because an input
// field the mapping expects is absent.
type MappingError struct {
	Field string
	Row   int
}

func (e *MappingError) Error() string {
	return fmt.Sprintf("row %d: missing expected field %q in input record", e.Row, e.Field)
}

// Materialize applies one derived mapping across all rows, producing flat
// patches. Predicate relations become deferred RelationRef values carrying
// the row's match value; spec-typed patch fields become Deferred values
// awaiting typed conversion; everything else is a trimmed literal.
//
// Rows missing a mapped input field fail individually: the row is skipped
// with a warning and the batch proceeds. An error is returned only when no
// row materializes at all.
func Materialize(mapping Mapping, rows []map[string]string, logger *zap.Logger) ([]assets.AssetPatch, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("no input data found for the operation")
	}

	patches := make([]assets.AssetPatch, 0, len(rows))
	var lastErr error

	for i, row := range rows {
		patch, err := rowToPatch(mapping, row, i)
		if err != nil {
			lastErr = err
			logger.Warn("skipping row", zap.Int("row", i), zap.Error(err))
			continue
		}
		patches = append(patches, patch)
	}

	if len(patches) == 0 {
		return nil, fmt.Errorf("no rows materialized: %w", lastErr)
	}
	return patches, nil
}

func rowToPatch(mapping Mapping, row map[string]string, rowIndex int) (assets.AssetPatch, error) {
	patch := assets.NewAssetPatch()

	for _, p := range mapping.Predicate {
		raw, ok := row[p.InputField]
		if !ok {
			return assets.AssetPatch{}, &MappingError{Field: p.InputField, Row: rowIndex}
		}
		value := strings.TrimSpace(raw)

		if spec := p.Output.Spec; spec != nil {
			if spec.Relation == nil {
				return assets.AssetPatch{}, fmt.Errorf("row %d: predicate field spec %q must carry a relation", rowIndex, spec.Name)
			}
			relation := *spec.Relation
			relation.PredicateFieldValue = value
			patch.Predicate[spec.Name] = assets.RelationRef{Relation: relation}
		} else {
			patch.Predicate[p.Output.Name] = assets.Lit(value)
		}
	}

	for _, p := range mapping.Patch {
		raw, ok := row[p.InputField]
		if !ok {
			return assets.AssetPatch{}, &MappingError{Field: p.InputField, Row: rowIndex}
		}
		value := strings.TrimSpace(raw)

		if spec := p.Output.Spec; spec != nil {
			patch.Patch[spec.Name] = assets.Deferred{Spec: *spec, Raw: value}
		} else {
			patch.Patch[p.Output.Name] = assets.Lit(value)
		}
	}

	return patch, nil
}
