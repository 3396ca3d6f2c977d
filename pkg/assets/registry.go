package assets

// Specs is the static field specification registry. It is defined at process
// start and never mutated.
var Specs = map[AssetType]AssetSpec{
	"BaseMaterial": {
		Fields: map[string]FieldTarget{
			"Vendor Code":                        Plain("organizationId"),
			"Base Material Vendor Code":          Plain("vendorCode"),
			"Base Material Vendor Description":   Plain("vendorDescription"),
			"Material Family KEYE Code":          Plain("materialFamily.id"),
			"Material Family KEYE Description":   Plain("materialFamily.code"),
			"Material Family Vendor Code":        Plain("vendorMaterialFamily.id"),
			"Material Family Vendor Description": Plain("vendorMaterialFamily.code"),
			"Base Material KEYE Code":            Plain("material.id"),
			"Base Material KEYE Description":     Plain("material.code"),
		},
		PredicateFields: []FieldTarget{Plain("organizationId"), Plain("vendorCode")},
	},
	"SupplierLibraryEntry": {
		Fields: map[string]FieldTarget{
			"Supplier VAT number / Registration Number": Plain("key"),
			"SAP Supplier Code":                         Plain("sapCode"),
			"Supplier Country Code":                     Plain("country.id"),
			"Supplier Country Description":              Plain("country.code"),
			"Supplier Name":                             Plain("description"),
			"Semi Finished Supplier": WithSpec(FieldSpec{
				Name: "semiFinishedSupplier",
				Type: TypeBoolean,
			}),
			"Supplier Type": WithSpec(FieldSpec{
				Name:           "types",
				Type:           TypeArray,
				ArrayValueType: TypeLibraryEntry,
			}),
			"Supplier Status": WithSpec(FieldSpec{
				Name: "disabled",
				Type: TypeBoolean,
			}),
			"Catalog Uploaded By": WithSpec(FieldSpec{
				Name:     "catalogUploadedBy",
				Type:     TypeString,
				Nullable: true,
			}),
			"Visibility Rules": WithSpec(FieldSpec{
				Name: "hasVisibilityRules",
				Type: TypeBoolean,
			}),
		},
		PredicateFields: []FieldTarget{Plain("key")},
		CreateRequiredFields: []string{
			"key",
			"country.id",
			"description",
			"semiFinishedSupplier",
			"hasVisibilityRules",
			"disabled",
			"types",
		},
	},
	"Organization": {
		Fields: map[string]FieldTarget{
			"Supplier VAT number / Registration Number": Plain("attributes.vatCode"),
			"SAP Supplier Code":                         Plain("attributes.sapCode"),
			"Supplier Name":                             Plain("companyName"),
			"Supplier Type": WithSpec(FieldSpec{
				Name:           "companyTypes",
				Type:           TypeArray,
				ArrayValueType: TypeString,
			}),
		},
		PredicateFields:      []FieldTarget{Plain("attributes.vatCode")},
		CreateRequiredFields: []string{"companyName", "attributes.vatCode", "companyTypes"},
	},
	"EyewearManufacturerAssignment": {
		Fields: map[string]FieldTarget{
			"UPC Code": Plain("eyewearId"),
			"Frame Manufacturer VAT Number / Registration Code": WithSpec(FieldSpec{
				Name: "manufacturerId",
				Type: TypeString,
				Relation: &Relation{
					AssetType:      "Organization",
					TargetField:    "companyId",
					PredicateField: "attributes.vatCode",
				},
			}),
		},
		PredicateFields: []FieldTarget{Plain("eyewearId"), Plain("manufacturerId")},
	},
}

// SpecFor returns the registered spec for an asset type.
func SpecFor(assetType AssetType) (AssetSpec, bool) {
	spec, ok := Specs[assetType]
	return spec, ok
}

// OperationDescriptions document each operation for model prompts.
var OperationDescriptions = map[Operation]string{
	OperationCreate:      `Create new assets and add them to a library, catalog, or collection. This represents actions such as "add to library," "add to catalog," or "create in."`,
	OperationUpdate:      "Update an existing asset.",
	OperationDelete:      "Delete or reset an existing asset.",
	OperationDeprecation: "Deprecate an existing asset.",
}

// idFields overrides the identifier field per asset type; anything not listed
// uses "id".
var idFields = map[AssetType]string{
	"Eyewear":              "upc",
	"CertificationRequest": "requestId",
	"LensDropBallTest":     "dropBallTestId",
	"OptiTest":             "optiTestId",
	"Organization":         "companyId",
}

// IDField returns the identifier field name for an asset type.
func IDField(assetType AssetType) string {
	if f, ok := idFields[assetType]; ok {
		return f
	}
	return "id"
}
