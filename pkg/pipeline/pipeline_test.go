package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/surgetech/surge-agent/pkg/assets"
	"github.com/surgetech/surge-agent/pkg/llm"
	"github.com/surgetech/surge-agent/pkg/mirror"
)

func fakeSessions(finder mirror.Finder) SessionFactory {
	return func(ctx context.Context, env assets.Environment) (*EnvSession, error) {
		return &EnvSession{Mirror: finder}, nil
	}
}

func TestCreateEnrichedPatches_SupplierCreate(t *testing.T) {
	mappingResponse := `{
		"predicate": [["Supplier VAT number / Registration Number", "key"]],
		"patch": [
			["Supplier Name", "description"],
			["Semi Finished Supplier", {"name": "semiFinishedSupplier", "type": "boolean"}],
			["Supplier Type", {"name": "types", "type": "array", "array_value_type": "LibraryEntry"}],
			["Supplier Status", {"name": "disabled", "type": "boolean"}],
			["Visibility Rules", {"name": "hasVisibilityRules", "type": "boolean"}]
		]
	}`
	resolveResponse := `{
		"results": [{
			"semiFinishedSupplier": false,
			"types": [{"id": "Frame Manufacturer"}],
			"disabled": true,
			"hasVisibilityRules": false
		}]
	}`

	client := llm.NewMockClient(mappingResponse, resolveResponse)
	p := New(client, client, zap.NewNop())

	req := PatchRequest{
		AssetType:       "SupplierLibraryEntry",
		Operation:       assets.OperationCreate,
		TaskDescription: "add the new suppliers to the supplier library",
		Rows: []map[string]string{{
			"Supplier VAT number / Registration Number": "IT04092700121",
			"Supplier Name":          "MIRAGE SRL",
			"Semi Finished Supplier": "No",
			"Supplier Type":          "Frame Manufacturer",
			"Supplier Status":        "Not Active in BC",
			"Visibility Rules":       "No",
		}},
	}

	byEnv, err := p.CreateEnrichedPatches(context.Background(), req,
		[]assets.Environment{assets.EnvTest}, fakeSessions(&mirror.Fake{}))
	require.NoError(t, err)

	patches := byEnv[assets.EnvTest]
	require.Len(t, patches, 1)
	body := patches[0].Body

	assert.Equal(t, "IT04092700121", body["key"])
	assert.Equal(t, "common.supplier.it04092700121", body["id"])
	assert.Equal(t, "MIRAGE SRL", body["description"])
	assert.Equal(t, false, body["semiFinishedSupplier"])
	assert.Equal(t, true, body["disabled"])
	assert.Equal(t, false, body["hasVisibilityRules"])
	assert.Equal(t, "mirage-srl", body["organizationId"])
	assert.Equal(t, []any{map[string]any{"id": "Frame Manufacturer", "code": "Frame Manufacturer"}}, body["types"])
}

func TestCreateEnrichedPatches_ClonesPerEnvironment(t *testing.T) {
	mappingResponse := `{
		"predicate": [["Supplier VAT number / Registration Number", "key"]],
		"patch": [["Supplier Name", "description"]]
	}`

	client := llm.NewMockClient(mappingResponse)
	p := New(client, client, zap.NewNop())

	req := PatchRequest{
		AssetType: "SupplierLibraryEntry",
		Operation: assets.OperationCreate,
		Rows: []map[string]string{{
			"Supplier VAT number / Registration Number": "IT04092700121",
			"Supplier Name": "MIRAGE SRL",
		}},
	}

	byEnv, err := p.CreateEnrichedPatches(context.Background(), req,
		[]assets.Environment{assets.EnvTest, assets.EnvDev}, fakeSessions(&mirror.Fake{}))
	require.NoError(t, err)

	byEnv[assets.EnvTest][0].Body["description"] = "MUTATED"
	assert.Equal(t, "MIRAGE SRL", byEnv[assets.EnvDev][0].Body["description"])
}

func TestCreatePatches_UpdateDropsUnrelatedFields(t *testing.T) {
	mappingResponse := `{
		"predicate": [["Supplier VAT number / Registration Number", "key"]],
		"patch": [
			["SAP Supplier Code", "sapCode"],
			["Supplier Name", "description"]
		]
	}`
	updatableResponse := `{"results": ["SAP Supplier Code"]}`

	client := llm.NewMockClient(mappingResponse, updatableResponse)
	p := New(client, client, zap.NewNop())

	patches, err := p.CreatePatches(context.Background(), PatchRequest{
		AssetType:       "SupplierLibraryEntry",
		Operation:       assets.OperationUpdate,
		TaskDescription: "update the SAP code for supplier MIRAGE SRL",
		Rows: []map[string]string{{
			"Supplier VAT number / Registration Number": "IT04092700121",
			"SAP Supplier Code": "900123",
			"Supplier Name":     "MIRAGE SRL",
		}},
	})
	require.NoError(t, err)
	require.Len(t, patches, 1)

	assert.Equal(t, map[string]any{"sapCode": "900123"}, patches[0].Body)
	predicate, err := patches[0].Predicate.Literals()
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"key": "IT04092700121"}, predicate)
}

func TestCreatePatches_DeletePredicateLengthEnforced(t *testing.T) {
	// EyewearManufacturerAssignment requires two predicate fields.
	mappingResponse := `{
		"predicate": [["UPC Code", "eyewearId"]],
		"patch": []
	}`

	client := llm.NewMockClient(mappingResponse)
	p := New(client, client, zap.NewNop())

	_, err := p.CreatePatches(context.Background(), PatchRequest{
		AssetType: "EyewearManufacturerAssignment",
		Operation: assets.OperationDelete,
		Rows:      []map[string]string{{"UPC Code": "0762753349247"}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "predicate fields")
}

func TestCreatePatches_UnknownAssetType(t *testing.T) {
	client := llm.NewMockClient()
	p := New(client, client, zap.NewNop())

	_, err := p.CreatePatches(context.Background(), PatchRequest{
		AssetType: "Eyewear",
		Operation: assets.OperationCreate,
		Rows:      []map[string]string{{"UPC": "x"}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no asset spec")
}

func TestDeprecation_OrganizationPatchShape(t *testing.T) {
	var d Deprecation
	d.OrganizationPatch.Predicate = map[string]any{
		"attributes": map[string]any{"vatCode": "IT04092700121", "sapCode": "900123"},
	}
	d.OrganizationPatch.Patch = map[string]any{
		"attributes": map[string]any{"vatCode": "IT99999999999", "sapCode": "900999"},
	}

	assert.Equal(t, "IT04092700121", d.previousVATCode())

	patch := organizationUpdatePatch(d)
	predicate, err := patch.Predicate.Literals()
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"attributes.vatCode": "IT04092700121",
		"attributes.sapCode": "900123",
	}, predicate)
	assert.Equal(t, d.OrganizationPatch.Patch, patch.Body)
}

func TestExtractDeprecations(t *testing.T) {
	client := llm.NewMockClient(`{
		"results": [{
			"update_data": {"Supplier VAT number / Registration Number": "IT04092700121", "Supplier Status": "Not Active"},
			"create_data": {"Supplier VAT number / Registration Number": "IT99999999999", "Supplier Name": "MIRAGE SRL"},
			"organization_patch": {
				"predicate": {"attributes": {"vatCode": "IT04092700121"}},
				"patch": {"attributes": {"vatCode": "IT99999999999"}}
			}
		}]
	}`)
	p := New(client, client, zap.NewNop())

	deprecations, err := p.ExtractDeprecations(context.Background(),
		"deprecate supplier IT04092700121 in favour of IT99999999999", nil)
	require.NoError(t, err)
	require.Len(t, deprecations, 1)
	assert.Equal(t, "IT04092700121", deprecations[0].previousVATCode())
}
