package pipeline

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/surgetech/surge-agent/pkg/assets"
	"github.com/surgetech/surge-agent/pkg/jsonutil"
	"github.com/surgetech/surge-agent/pkg/llm"
)

const deprecationExtractionPrompt = `
Given the task description and the input data, your task is to return a valid JSON with the following structure:

{
    "results": [
        {
            "update_data": <library entry data to update>,
            "create_data": <library entry data to create>,
            "organization_patch": {
                "predicate": {
                    "attributes": {
                        "vatCode": "<previous VAT code>",
                        "sapCode": "<previous SAP code>"
                    }
                },
                "patch": {
                    "attributes": {
                        "vatCode": "<new VAT code>",
                        "sapCode": "<new SAP code>"
                    }
                }
            }
        },
        ...
    ]
}

Rules:
1. Determine which VAT and SAP codes need to be updated based on the input data.
2. There must always be a unique mapping between previous and new codes.
3. No duplicates are allowed.
4. "update_data" and "create_data" each hold exactly one record.
5. If many deprecations are found, return them all in the results array.
`

// Deprecation is one supplier replacement: mark the old entry, create the
// new one, and move the organization's codes over.
type Deprecation struct {
	UpdateData        map[string]string `json:"update_data"`
	CreateData        map[string]string `json:"create_data"`
	OrganizationPatch struct {
		Predicate map[string]any `json:"predicate"`
		Patch     map[string]any `json:"patch"`
	} `json:"organization_patch"`
}

// ExtractDeprecations pulls the deprecation pairs out of the task
// description and row data.
func (p *Pipeline) ExtractDeprecations(ctx context.Context, taskDescription string, rows []map[string]string) ([]Deprecation, error) {
	type response struct {
		Results []Deprecation `json:"results"`
	}

	rowsJSON, err := json.Marshal(rows)
	if err != nil {
		return nil, fmt.Errorf("marshal rows: %w", err)
	}

	messages := []llm.Message{
		llm.System(deprecationExtractionPrompt),
		llm.User(fmt.Sprintf("Task description: %s\nInput data: %s", taskDescription, rowsJSON)),
	}

	opts := &llm.ExtractOptions[response]{
		Validate: func(r response) error {
			for i, d := range r.Results {
				if len(d.UpdateData) == 0 || len(d.CreateData) == 0 {
					return fmt.Errorf("deprecation %d must carry both update_data and create_data", i)
				}
			}
			return nil
		},
	}

	resp, err := llm.Extract(ctx, p.client, messages, opts, p.logger)
	if err != nil {
		return nil, fmt.Errorf("extract deprecations: %w", err)
	}
	return resp.Results, nil
}

// previousVATCode reads the previous VAT code from the organization patch
// predicate.
func (d Deprecation) previousVATCode() string {
	flat := jsonutil.FlattenDotted(d.OrganizationPatch.Predicate)
	vat, _ := flat["attributes.vatCode"].(string)
	return vat
}

// DecomposeDeprecation turns deprecations into primitive tasks per
// environment: a supplier entry update marking the old record, a create for
// its replacement, and an organization update carrying the new codes. The
// backend never sees deprecation as a primitive.
func (p *Pipeline) DecomposeDeprecation(ctx context.Context, taskDescription string, deprecations []Deprecation, environments []assets.Environment, sessions SessionFactory) (map[assets.Environment][]assets.ExecutionTask, error) {
	tasksByEnv := make(map[assets.Environment][]assets.ExecutionTask, len(environments))

	for i, d := range deprecations {
		p.logger.Info("decomposing deprecation", zap.Int("index", i))

		updatePatches, err := p.CreateEnrichedPatches(ctx, PatchRequest{
			AssetType:       "SupplierLibraryEntry",
			Operation:       assets.OperationUpdate,
			TaskDescription: taskDescription,
			Rows:            []map[string]string{d.UpdateData},
		}, environments, sessions)
		if err != nil {
			return nil, fmt.Errorf("deprecation %d update: %w", i, err)
		}

		createPatches, err := p.CreateEnrichedPatches(ctx, PatchRequest{
			AssetType:       "SupplierLibraryEntry",
			Operation:       assets.OperationDeprecation,
			TaskDescription: taskDescription,
			Rows:            []map[string]string{d.CreateData},
			PreviousVATCode: d.previousVATCode(),
		}, environments, sessions)
		if err != nil {
			return nil, fmt.Errorf("deprecation %d create: %w", i, err)
		}

		orgPatch := organizationUpdatePatch(d)

		for _, env := range environments {
			tasksByEnv[env] = append(tasksByEnv[env],
				assets.ExecutionTask{
					AssetType: "SupplierLibraryEntry",
					Operation: assets.OperationUpdate,
					Patches:   updatePatches[env],
				},
				assets.ExecutionTask{
					AssetType: "SupplierLibraryEntry",
					Operation: assets.OperationCreate,
					Patches:   createPatches[env],
				},
				assets.ExecutionTask{
					AssetType: "Organization",
					Operation: assets.OperationUpdate,
					Patches:   []assets.ResolvedPatch{orgPatch.Clone()},
				})
		}
	}

	return tasksByEnv, nil
}

// organizationUpdatePatch shapes the organization code move: the predicate
// is flattened for matching, the body stays nested.
func organizationUpdatePatch(d Deprecation) assets.ResolvedPatch {
	predicate := assets.Fields{}
	for path, value := range jsonutil.FlattenDotted(d.OrganizationPatch.Predicate) {
		predicate[path] = assets.Lit(value)
	}
	return assets.ResolvedPatch{
		Predicate: predicate,
		Body:      d.OrganizationPatch.Patch,
	}
}
