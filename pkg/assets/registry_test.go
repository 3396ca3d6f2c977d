package assets

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpecs_PredicateAndRequiredFieldsDeclared(t *testing.T) {
	for assetType, spec := range Specs {
		names := spec.FieldNames()
		for _, p := range spec.PredicateFieldNames() {
			assert.Truef(t, names[p], "%s: predicate field %q not declared", assetType, p)
		}
		for _, r := range spec.CreateRequiredFields {
			assert.Truef(t, names[r], "%s: required field %q not declared", assetType, r)
		}
	}
}

func TestIDField(t *testing.T) {
	assert.Equal(t, "companyId", IDField("Organization"))
	assert.Equal(t, "upc", IDField("Eyewear"))
	assert.Equal(t, "id", IDField("SupplierLibraryEntry"))
}

func TestFieldTarget_JSONRoundTrip(t *testing.T) {
	spec, ok := SpecFor("SupplierLibraryEntry")
	require.True(t, ok)

	data, err := json.Marshal(spec.Fields["Supplier Type"])
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"types","type":"array","array_value_type":"LibraryEntry"}`, string(data))

	var plain FieldTarget
	require.NoError(t, json.Unmarshal([]byte(`"key"`), &plain))
	assert.Equal(t, "key", plain.FieldName())
	assert.Nil(t, plain.Spec)

	var full FieldTarget
	require.NoError(t, json.Unmarshal(data, &full))
	assert.Equal(t, "types", full.FieldName())
	require.NotNil(t, full.Spec)
	assert.Equal(t, TypeLibraryEntry, full.Spec.ArrayValueType)
}

func TestFields_Literals(t *testing.T) {
	f := Fields{
		"key":      Lit("IT04092700121"),
		"disabled": Lit(true),
	}
	got, err := f.Literals()
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"key": "IT04092700121", "disabled": true}, got)

	f["types"] = Deferred{Spec: FieldSpec{Name: "types", Type: TypeArray}, Raw: "Frame Manufacturer"}
	_, err = f.Literals()
	assert.ErrorContains(t, err, "types")
}
