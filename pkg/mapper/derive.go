package mapper

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/surgetech/surge-agent/pkg/assets"
	"github.com/surgetech/surge-agent/pkg/llm"
)

const mappingSystemPrompt = `
You will be given:

1. A **spec JSON object** defining mappings between input field names and output field names:

{
    "fields": {<input_field1>: <output_field2>, ...},
    "predicate_fields": [<list of output field names to be used as predicates>]
}

2. An **example input record** with field names and values.
   - Input field names may not exactly match the spec but will usually be similar.
   - Fields representing **updates/patches** often contain "new" or "updated" or "review".
   - Fields representing **old/previous values** often contain "old" or "previous" and must be **ignored**.

---

### Your task:
Return a JSON object in the form:

{
    "predicate": [
        [<input_field_name>, <output_field_name>],
        ...
    ],
    "patch": [
        [<input_field_name>, <output_field_name>],
        ...
    ]
}

---

### Rules:

1. **Do not alter field names.**
   - Always use field names exactly as they appear in the input record and the spec.

2. **Do not split or truncate field names.**
   - If a field name contains dots (e.g., "user.address.street"), treat it as a single name.

3. **Predicate vs Patch:**
   - If the mapped output field is in ` + "`predicate_fields`" + `, include it under "predicate".
   - Otherwise, if the input field is an update/patch field, include it under "patch".
   - If a predicate field is a relation (i.e., has a "relation" spec), include the full spec object in the predicate mapping.

4. **Ignore old/previous fields.**
   - Any input field containing "old" or "previous" must be excluded.

5. **Important:**
   - Sometimes an output field is not a string but a **spec object**, e.g.
     {"name": "types", "type": "array", "array_value_type": "LibraryEntry"}
   - In such cases, use the **entire object** in the output mapping.
`

const updatableFieldsSystemPrompt = `
You will be given:
1. A **task description/context** describing the update operation.
2. An **example input record** with field names and values.
Your task is to identify which fields in the example input are intended for updating based on the task description.

### Output
Return exactly the JSON object in the following structure:
{
  "results": [<list of field names to be updated>]
}
`

// Mapper derives mappings via the extraction gateway.
type Mapper struct {
	client llm.Client
	logger *zap.Logger
}

// New creates a Mapper backed by the given model client.
func New(client llm.Client, logger *zap.Logger) *Mapper {
	return &Mapper{client: client, logger: logger.Named("mapper")}
}

// DeriveMapping asks the model for a field-name correspondence between the
// example row and the spec, then validates it structurally. Violations feed
// the repair loop rather than being trusted.
func (m *Mapper) DeriveMapping(ctx context.Context, spec assets.AssetSpec, example map[string]string, operation assets.Operation) (Mapping, error) {
	specJSON, err := json.MarshalIndent(spec, "", "  ")
	if err != nil {
		return Mapping{}, fmt.Errorf("marshal asset spec: %w", err)
	}
	exampleJSON, err := json.Marshal(example)
	if err != nil {
		return Mapping{}, fmt.Errorf("marshal example row: %w", err)
	}

	messages := []llm.Message{
		llm.System(mappingSystemPrompt),
		llm.User(fmt.Sprintf("Example input:\n%s\nField specification:\n%s\n\nPlease do the mapping.", exampleJSON, specJSON)),
	}

	opts := &llm.ExtractOptions[Mapping]{
		Validate: func(mapping Mapping) error {
			return validateMapping(mapping, spec, example, operation)
		},
	}

	mapping, err := llm.Extract(ctx, m.client, messages, opts, m.logger)
	if err != nil {
		return Mapping{}, fmt.Errorf("derive mapping: %w", err)
	}

	m.logger.Debug("mapping derived",
		zap.Int("predicate_fields", len(mapping.Predicate)),
		zap.Int("patch_fields", len(mapping.Patch)))

	return mapping, nil
}

// validateMapping enforces the structural rules a derived mapping must
// satisfy before it is applied to any row.
func validateMapping(mapping Mapping, spec assets.AssetSpec, example map[string]string, operation assets.Operation) error {
	specFieldNames := spec.FieldNames()

	if operation == assets.OperationCreate {
		for _, required := range spec.CreateRequiredFields {
			if !specFieldNames[required] {
				return fmt.Errorf("required field %q not found in spec fields", required)
			}
		}
	}

	for _, p := range mapping.Predicate {
		if !specFieldNames[p.Output.FieldName()] {
			return fmt.Errorf("predicate output field %q not found in spec fields", p.Output.FieldName())
		}
	}
	for _, p := range mapping.Patch {
		if !specFieldNames[p.Output.FieldName()] {
			return fmt.Errorf("patch output field %q not found in spec fields", p.Output.FieldName())
		}
		if _, ok := example[p.InputField]; !ok {
			return fmt.Errorf("patch input field %q not found in example input fields", p.InputField)
		}
	}

	return nil
}

// IdentifyUpdatableFields asks the model which input fields the task
// description actually intends to change.
func (m *Mapper) IdentifyUpdatableFields(ctx context.Context, taskDescription string) ([]string, error) {
	type response struct {
		Results []string `json:"results"`
	}

	messages := []llm.Message{
		llm.System(updatableFieldsSystemPrompt),
		llm.User("Task description/context:\n" + taskDescription),
	}

	resp, err := llm.Extract(ctx, m.client, messages, &llm.ExtractOptions[response]{}, m.logger)
	if err != nil {
		return nil, fmt.Errorf("identify updatable fields: %w", err)
	}
	return resp.Results, nil
}

// SkipNonUpdatable narrows an update mapping's patch to the input fields the
// task description names, dropping anything that would import unrelated data
// as an unintended update.
func (m *Mapper) SkipNonUpdatable(ctx context.Context, mapping *Mapping, taskDescription string, example map[string]string) error {
	exampleJSON, err := json.MarshalIndent(example, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal example row: %w", err)
	}

	updatable, err := m.IdentifyUpdatableFields(ctx, taskDescription+"\n\n"+string(exampleJSON))
	if err != nil {
		return err
	}
	m.logger.Info("identified updatable fields", zap.Strings("fields", updatable))

	allowed := make(map[string]bool, len(updatable))
	for _, f := range updatable {
		allowed[f] = true
	}

	kept := mapping.Patch[:0]
	for _, p := range mapping.Patch {
		if allowed[p.InputField] {
			kept = append(kept, p)
		}
	}
	mapping.Patch = kept

	return nil
}
