package enrich

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/surgetech/surge-agent/pkg/assets"
	"github.com/surgetech/surge-agent/pkg/mirror"
)

func testContext(finder mirror.Finder) *Context {
	return &Context{
		Mirror: finder,
		Logger: zap.NewNop(),
		Now:    func() time.Time { return time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC) },
	}
}

func TestSlug(t *testing.T) {
	assert.Equal(t, "xiamen-torch-special-metal-material-co-ltd",
		Slug("Xiamen Torch Special Metal Material Co., LTD"))
	assert.Equal(t, "mirage-srl", Slug("MIRAGE SRL"))
	assert.Equal(t, "a-b", Slug("  A -- B  "))
	// Pure and stable.
	assert.Equal(t, Slug("MIRAGE SRL"), Slug("MIRAGE SRL"))
}

func TestSupplierLibraryEntryCreate(t *testing.T) {
	patch := assets.ResolvedPatch{
		Predicate: assets.Fields{},
		Body: map[string]any{
			"key":                  "IT04092700121",
			"description":          "MIRAGE SRL",
			"semiFinishedSupplier": false,
			"disabled":             true,
			"hasVisibilityRules":   false,
			"types":                []any{map[string]any{"id": "Frame Manufacturer"}},
			"country":              map[string]any{"id": "IT"},
		},
	}

	ec := testContext(&mirror.Fake{})
	require.NoError(t, SupplierLibraryEntryCreate(context.Background(), ec, &patch))

	body := patch.Body
	assert.Equal(t, "common.supplier.it04092700121", body["id"])
	assert.Equal(t, "common", body["namespace"])
	assert.Equal(t, "supplier", body["library"])
	assert.Equal(t, "mirage-srl", body["organizationId"])
	assert.Equal(t, CreatedBy, body["createdBy"])
	assert.Equal(t, "2026-09-01T12:00:00Z", body["createdAt"])
	assert.Nil(t, body["rank"])
	assert.Nil(t, body["sapCode"])
	assert.Equal(t, []any{}, body["visibleTo"])

	types := body["types"].([]any)
	assert.Equal(t, map[string]any{"id": "Frame Manufacturer", "code": "Frame Manufacturer"}, types[0])

	country := body["country"].(map[string]any)
	assert.Equal(t, "Italy", country["code"])
}

func TestSupplierLibraryEntryCreate_Idempotent(t *testing.T) {
	patch := assets.ResolvedPatch{
		Predicate: assets.Fields{},
		Body: map[string]any{
			"key":            "IT04092700121",
			"description":    "MIRAGE SRL",
			"id":             "already.set",
			"organizationId": "already-set",
			"sapCode":        "9001",
		},
	}

	ec := testContext(&mirror.Fake{})
	require.NoError(t, SupplierLibraryEntryCreate(context.Background(), ec, &patch))
	require.NoError(t, SupplierLibraryEntryCreate(context.Background(), ec, &patch))

	assert.Equal(t, "already.set", patch.Body["id"])
	assert.Equal(t, "already-set", patch.Body["organizationId"])
	assert.Equal(t, "9001", patch.Body["sapCode"])
}

func TestSupplierLibraryEntryDeprecation(t *testing.T) {
	finder := &mirror.Fake{Records: map[assets.AssetType][]map[string]any{
		"Organization": {
			{"companyId": "mirage-srl", "attributes": map[string]any{"vatCode": "IT04092700121"}},
		},
	}}

	ec := testContext(finder)
	ec.PreviousVATCode = "IT04092700121"

	patch := assets.ResolvedPatch{
		Predicate: assets.Fields{},
		Body:      map[string]any{"key": "IT99999999999", "description": "MIRAGE SRL NEW"},
	}
	require.NoError(t, SupplierLibraryEntryDeprecation(context.Background(), ec, &patch))
	assert.Equal(t, "mirage-srl", patch.Body["organizationId"])

	ec.PreviousVATCode = "MISSING"
	patch2 := assets.ResolvedPatch{
		Predicate: assets.Fields{},
		Body:      map[string]any{"key": "IT99999999998"},
	}
	assert.Error(t, SupplierLibraryEntryDeprecation(context.Background(), ec, &patch2))
}

func TestOrganizationCreate(t *testing.T) {
	patch := assets.ResolvedPatch{
		Predicate: assets.Fields{},
		Body: map[string]any{
			"companyName":  "MIRAGE SRL",
			"companyTypes": []any{"Frame Manufacturer", "Eyewear Designer"},
			"attributes":   map[string]any{"vatCode": "IT04092700121", "sapCode": ""},
		},
	}

	ec := testContext(&mirror.Fake{})
	require.NoError(t, OrganizationCreate(context.Background(), ec, &patch))

	assert.Equal(t, "mirage-srl", patch.Body["companyId"])
	assert.Equal(t, "mirage-srl", patch.Body["id"])
	assert.Equal(t, []any{"eyeman", "eyedes"}, patch.Body["companyTypes"])
	assert.Equal(t, false, patch.Body["active"])
	assert.Nil(t, patch.Body["attributes"].(map[string]any)["sapCode"])
}

func TestOrganizationCreate_UnknownTypeLabel(t *testing.T) {
	patch := assets.ResolvedPatch{
		Predicate: assets.Fields{},
		Body: map[string]any{
			"companyName":  "ACME",
			"companyTypes": []any{"Packaging Supplier"},
		},
	}

	ec := testContext(&mirror.Fake{})
	err := OrganizationCreate(context.Background(), ec, &patch)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Packaging Supplier")
}

func TestEyewearManufacturerAssignmentDelete(t *testing.T) {
	finder := &mirror.Fake{Records: map[assets.AssetType][]map[string]any{
		"Organization": {
			{"companyId": "mirage-srl", "attributes": map[string]any{"vatCode": "IT04092700121"}},
		},
	}}

	patch := assets.ResolvedPatch{
		Predicate: assets.Fields{
			"eyewearId": assets.Lit("0762753349247"),
			"manufacturerId": assets.RelationRef{Relation: assets.Relation{
				AssetType:           "Organization",
				TargetField:         "companyId",
				PredicateField:      "attributes.vatCode",
				PredicateFieldValue: "IT04092700121",
			}},
		},
		Body: map[string]any{},
	}

	require.NoError(t, EyewearManufacturerAssignmentDelete(context.Background(), testContext(finder), &patch))
	assert.Equal(t, assets.Lit("mirage-srl"), patch.Predicate["manufacturerId"])
}

func TestSupplierTypeCode(t *testing.T) {
	code, ok := SupplierTypeCode("Frame Manufacturer")
	assert.True(t, ok)
	assert.Equal(t, "eyeman", code)

	_, ok = SupplierTypeCode("Packaging Supplier")
	assert.False(t, ok)
}
