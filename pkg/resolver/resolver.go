// Package resolver converts deferred field-spec values into final typed JSON
// values, in chunks, with strict per-chunk shape validation.
package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/surgetech/surge-agent/pkg/assets"
	"github.com/surgetech/surge-agent/pkg/llm"
)

// Typed batch conversion is failure-prone, so the repair budget is higher
// than the gateway default.
const resolveMaxRepairs = 5

// chunkSize bounds how many patches go into one prompt.
const chunkSize = 100

const resolveSystemPrompt = `
You will be given a **list of patch objects**.

The fields in each patch follow a special **asset field spec object** format:

{
  "name": "<name_of_the_field>",
  "type": "<type_of_the_field>",
  "array_value_type": "<type_of_array_values>" (optional),
  "value": "<the actual value to set>"
}

Your task is to **convert all asset field spec objects into their proper values**.
**Important:** The length of the output list must exactly match the input list, and the keys in each patch object must remain unchanged.

### Conversion Rules

1. **Primitive Types**
   - Convert values based on their declared "type".
   - Example:
     - For "type": "boolean", convert "Yes", "True", "Active" to true, and "No", "False", "Inactive" to false.

2. **Special Handling for Booleans**
   - Field names containing any of the following fragments invert the intuitive mapping: %s.
     - Example: "value": "Not Active" with "name": "disabled" means the record IS disabled, so the result is true.
   - Field names without these fragments keep the intuitive mapping: "Not Active" with "name": "active" is false.

3. **Array Fields**
   - If "type": "array" and "array_value_type" is "LibraryEntry", and the provided value is a string, convert it to:
     [{ "id": "<value>" }]

4. **LibraryEntry Objects**
   - For fields of type "LibraryEntry" (not in an array), convert the value to:
     { "id": "<value>" }
   - If the input already has {"id": "...", "code": "..."}, leave it unchanged.

5. **Nullability**
    - If a field is marked as nullable and the value is empty or "None", set it to null.
    - If a field is nullable and the value is "nan" or similar, treat it as null.

**Important:** You must replace the spec object with the converted value, not nest it.
Example:
{
  "semiFinishedSupplier": {
    "name": "semiFinishedSupplier",
    "type": "boolean",
    "value": "Yes"
  },
  "types": {
    "name": "types",
    "type": "array",
    "array_value_type": "LibraryEntry",
    "value": "Component/Raw Material Supplier"
  },
  "catalogUploadedBy": {
    "name": "catalogUploadedBy",
    "type": "string",
    "nullable": true,
    "value": "None"
  }
}
Should be converted to:
{
  "semiFinishedSupplier": true,
  "types": [
    { "id": "Component/Raw Material Supplier" }
  ],
  "catalogUploadedBy": null
}
---

### Output
Return the result in the following structure:

{
  "results": [
    <converted_patch_1>,
    <converted_patch_2>,
    ...
  ]
}
`

// Resolver batch-converts deferred values using a higher-capability model.
type Resolver struct {
	client            llm.Client
	negationFragments []string
	logger            *zap.Logger
}

// New creates a Resolver. Pass nil fragments to use the defaults.
func New(client llm.Client, negationFragments []string, logger *zap.Logger) *Resolver {
	if negationFragments == nil {
		negationFragments = DefaultNegationFragments
	}
	return &Resolver{
		client:            client,
		negationFragments: negationFragments,
		logger:            logger.Named("resolver"),
	}
}

// Resolve converts every still-deferred value in each patch body into its
// final typed literal, in place. Keys that already hold literals or relation
// descriptors pass through unchanged, and patch order and key sets are
// preserved exactly. Running on already-resolved patches is a no-op.
func (r *Resolver) Resolve(ctx context.Context, patches []assets.AssetPatch) error {
	deferred := make([]map[string]assets.Deferred, len(patches))
	total := 0
	for i, p := range patches {
		deferred[i] = p.Patch.DeferredEntries()
		total += len(deferred[i])
	}
	if total == 0 {
		return nil
	}

	chunks := splitChunks(len(patches), max(1, len(patches)/chunkSize))
	r.logger.Info("resolving deferred patch values",
		zap.Int("patches", len(patches)),
		zap.Int("deferred_values", total),
		zap.Int("chunks", len(chunks)))

	offset := 0
	for _, size := range chunks {
		chunk := deferred[offset : offset+size]
		results, err := r.resolveChunk(ctx, chunk)
		if err != nil {
			return fmt.Errorf("resolve chunk at offset %d: %w", offset, err)
		}
		for i, result := range results {
			target := patches[offset+i].Patch
			for key, value := range result {
				target[key] = assets.Lit(value)
			}
		}
		offset += size
	}

	return nil
}

type resolveResponse struct {
	Results []map[string]any `json:"results"`
}

func (r *Resolver) resolveChunk(ctx context.Context, chunk []map[string]assets.Deferred) ([]map[string]any, error) {
	chunkJSON, err := json.MarshalIndent(chunk, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal chunk: %w", err)
	}

	messages := []llm.Message{
		llm.System(fmt.Sprintf(resolveSystemPrompt, strings.Join(r.negationFragments, ", "))),
		llm.User("Please convert the following patches:\n" + string(chunkJSON)),
	}

	opts := &llm.ExtractOptions[resolveResponse]{
		MaxRepairs: resolveMaxRepairs,
		Validate: func(resp resolveResponse) error {
			return validateChunk(chunk, resp, r.negationFragments)
		},
	}

	resp, err := llm.Extract(ctx, r.client, messages, opts, r.logger)
	if err != nil {
		return nil, err
	}
	return resp.Results, nil
}

// validateChunk checks the model's conversion against the declared specs:
// result count, exact key sets, value types per field, and boolean polarity
// for raw values whose reading is unambiguous.
func validateChunk(chunk []map[string]assets.Deferred, resp resolveResponse, negationFragments []string) error {
	if len(resp.Results) != len(chunk) {
		return fmt.Errorf("expected %d results, got %d", len(chunk), len(resp.Results))
	}

	for i, result := range resp.Results {
		expected := chunk[i]
		if len(result) != len(expected) {
			return fmt.Errorf("keys mismatch in patch %d: expected %d keys, got %d", i, len(expected), len(result))
		}
		for key := range expected {
			if _, ok := result[key]; !ok {
				return fmt.Errorf("keys mismatch in patch %d: missing key %q", i, key)
			}
		}

		for key, d := range expected {
			val := result[key]
			switch d.Spec.Type {
			case assets.TypeArray:
				list, ok := val.([]any)
				if !ok {
					return fmt.Errorf("expected list for field %q in patch %d, got %T", key, i, val)
				}
				if d.Spec.ArrayValueType == assets.TypeLibraryEntry {
					for _, el := range list {
						if err := validateLibraryEntry(el); err != nil {
							return fmt.Errorf("field %q in patch %d: %w", key, i, err)
						}
					}
				}
			case assets.TypeBoolean:
				b, ok := val.(bool)
				if !ok {
					return fmt.Errorf("expected boolean for field %q in patch %d, got %T", key, i, val)
				}
				if hint, status, known := rawBoolHint(d.Raw); known {
					expected := hint
					if status && IsNegatedName(d.Spec.Name, negationFragments) {
						expected = !hint
					}
					if b != expected {
						return fmt.Errorf("boolean field %q in patch %d: value %q must convert to %v, got %v", key, i, d.Raw, expected, b)
					}
				}
			case assets.TypeString:
				if val != nil {
					if _, ok := val.(string); !ok {
						return fmt.Errorf("expected string or null for field %q in patch %d, got %T", key, i, val)
					}
				}
			}
		}
	}

	return nil
}

// validateLibraryEntry checks the minimal LibraryEntry shape: an "id" string
// plus an optional "code".
func validateLibraryEntry(v any) error {
	obj, ok := v.(map[string]any)
	if !ok {
		return fmt.Errorf("library entry must be an object, got %T", v)
	}
	id, ok := obj["id"]
	if !ok {
		return fmt.Errorf("library entry missing id")
	}
	if _, ok := id.(string); !ok {
		return fmt.Errorf("library entry id must be a string, got %T", id)
	}
	if code, ok := obj["code"]; ok && code != nil {
		if _, ok := code.(string); !ok {
			return fmt.Errorf("library entry code must be a string, got %T", code)
		}
	}
	return nil
}

// splitChunks divides n items into k contiguous chunks whose sizes differ by
// at most one.
func splitChunks(n, k int) []int {
	sizes := make([]int, 0, k)
	base := n / k
	rem := n % k
	for i := 0; i < k; i++ {
		size := base
		if i < rem {
			size++
		}
		if size > 0 {
			sizes = append(sizes, size)
		}
	}
	return sizes
}
