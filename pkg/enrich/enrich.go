// Package enrich injects derived and default field values into patches
// before execution, keyed by (asset type, operation).
package enrich

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/surgetech/surge-agent/pkg/assets"
	"github.com/surgetech/surge-agent/pkg/mirror"
)

// CreatedBy is stamped on records the agent synthesizes.
const CreatedBy = "Surge Agent"

// Countries maps ISO country codes to their display descriptions, used to
// backfill a missing country code field.
var Countries = map[string]string{
	"JP": "Japan",
	"CN": "China",
	"HK": "Hong Kong",
	"MU": "Mauritius",
	"US": "United States",
	"MO": "Macao",
	"TW": "Taiwan, Province of China",
	"AT": "Austria",
	"CH": "Switzerland",
	"DE": "Germany",
	"FR": "France",
	"IT": "Italy",
	"SI": "Slovenia",
	"SK": "Slovakia",
}

var nonAlphanumeric = regexp.MustCompile(`[^a-z0-9]+`)

// Slug derives a stable identifier from a display name: lowercase, runs of
// non-alphanumeric characters collapsed to single hyphens, trimmed.
// "Xiamen Torch Special Metal Material Co., LTD" becomes
// "xiamen-torch-special-metal-material-co-ltd".
func Slug(name string) string {
	s := strings.ToLower(name)
	s = nonAlphanumeric.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// supplierTypeCodes maps human-readable supplier type labels to internal
// organization type codes. Packaging suppliers have no organization type.
var supplierTypeCodes = map[string]string{
	"Certification Authority":         "ceraut",
	"Component/Raw Material Supplier": "cmpman",
	"Eyewear Designer":                "eyedes",
	"Frame Manufacturer":              "eyeman",
	"Galvanic Treatment Supplier":     "galvman",
}

// SupplierTypeCode resolves a supplier type label to its organization type
// code. The second return is false for unknown labels and for labels with no
// organization type (Packaging Supplier).
func SupplierTypeCode(label string) (string, bool) {
	code, ok := supplierTypeCodes[label]
	return code, ok
}

// Context carries what enrichers need beyond the patch itself. It is built
// per environment and passed explicitly; enrichers keep no global state.
type Context struct {
	Mirror mirror.Finder
	Logger *zap.Logger

	// Now supplies timestamps; tests pin it. Defaults to time.Now.
	Now func() time.Time

	// PreviousVATCode is set only for deprecation flows, where the new
	// entry's organization is the one registered under the old VAT code.
	PreviousVATCode string
}

func (ec *Context) now() time.Time {
	if ec.Now != nil {
		return ec.Now()
	}
	return time.Now()
}

// Func mutates one patch in place. Enrichers must be idempotent: fields
// already set are never overwritten.
type Func func(ctx context.Context, ec *Context, patch *assets.ResolvedPatch) error

// Key identifies an enricher by asset type and operation.
type Key struct {
	AssetType assets.AssetType
	Operation assets.Operation
}

// Registry maps (asset type, operation) to its enricher. Absence of an entry
// means no enrichment, which is a valid case.
var Registry = map[Key]Func{
	{AssetType: "SupplierLibraryEntry", Operation: assets.OperationCreate}:          SupplierLibraryEntryCreate,
	{AssetType: "SupplierLibraryEntry", Operation: assets.OperationDeprecation}:     SupplierLibraryEntryDeprecation,
	{AssetType: "Organization", Operation: assets.OperationCreate}:                  OrganizationCreate,
	{AssetType: "EyewearManufacturerAssignment", Operation: assets.OperationDelete}: EyewearManufacturerAssignmentDelete,
}

// For returns the enricher registered for the key, if any.
func For(assetType assets.AssetType, operation assets.Operation) (Func, bool) {
	fn, ok := Registry[Key{AssetType: assetType, Operation: operation}]
	return fn, ok
}

// enrichSupplierLibraryEntry applies the defaults shared by supplier entry
// creation and deprecation.
func enrichSupplierLibraryEntry(ec *Context, body map[string]any) error {
	key, ok := body["key"].(string)
	if !ok || key == "" {
		return fmt.Errorf("supplier library entry has no key")
	}

	const namespace = "common"
	const library = "supplier"

	setDefault(body, "id", fmt.Sprintf("%s.%s.%s", namespace, library, strings.ToLower(key)))
	setDefault(body, "namespace", namespace)
	setDefault(body, "library", library)
	setDefault(body, "rank", nil)
	setDefault(body, "extra", nil)
	setDefault(body, "createdBy", CreatedBy)
	setDefault(body, "createdAt", ec.now().Format(time.RFC3339))
	setDefault(body, "sapCode", nil)
	setDefault(body, "visibleTo", []any{})

	if types, ok := body["types"].([]any); ok {
		for _, t := range types {
			entry, ok := t.(map[string]any)
			if !ok {
				continue
			}
			if id, ok := entry["id"]; ok {
				if _, has := entry["code"]; !has {
					entry["code"] = id
				}
			}
		}
	}

	if country, ok := body["country"].(map[string]any); ok {
		if id, ok := country["id"].(string); ok {
			if _, has := country["code"]; !has {
				country["code"] = countryOrNil(id)
			}
		}
	}

	if body["sapCode"] == "" {
		body["sapCode"] = nil
	}

	return nil
}

func countryOrNil(id string) any {
	if desc, ok := Countries[id]; ok {
		return desc
	}
	return nil
}

// findOrganizationIDByVAT resolves an organization's companyId from its VAT
// code via the cached mirror, failing hard when there is no match.
func findOrganizationIDByVAT(ctx context.Context, ec *Context, vatCode string) (string, error) {
	org, err := ec.Mirror.FindOne(ctx, "Organization", map[string]any{"attributes.vatCode": vatCode})
	if err != nil {
		return "", fmt.Errorf("organization with vatCode=%s not found: %w", vatCode, err)
	}
	companyID, ok := org["companyId"].(string)
	if !ok {
		return "", fmt.Errorf("organization with vatCode=%s has no companyId", vatCode)
	}
	ec.Logger.Info("resolved organization by VAT code",
		zap.String("vat_code", vatCode),
		zap.String("company_id", companyID))
	return companyID, nil
}

// SupplierLibraryEntryCreate defaults a new supplier entry and derives its
// organization from the supplier's display name.
func SupplierLibraryEntryCreate(_ context.Context, ec *Context, patch *assets.ResolvedPatch) error {
	if err := enrichSupplierLibraryEntry(ec, patch.Body); err != nil {
		return err
	}
	if _, ok := patch.Body["organizationId"]; !ok {
		name, _ := patch.Body["description"].(string)
		patch.Body["organizationId"] = Slug(name)
	}
	return nil
}

// SupplierLibraryEntryDeprecation defaults the replacement entry and binds it
// to the organization registered under the previous VAT code.
func SupplierLibraryEntryDeprecation(ctx context.Context, ec *Context, patch *assets.ResolvedPatch) error {
	if err := enrichSupplierLibraryEntry(ec, patch.Body); err != nil {
		return err
	}
	if _, ok := patch.Body["organizationId"]; !ok {
		orgID, err := findOrganizationIDByVAT(ctx, ec, ec.PreviousVATCode)
		if err != nil {
			return err
		}
		patch.Body["organizationId"] = orgID
	}
	return nil
}

// OrganizationCreate derives the organization's identifiers from its company
// name and maps supplier type labels to internal type codes. An unrecognized
// label is a hard error, never retried.
func OrganizationCreate(_ context.Context, ec *Context, patch *assets.ResolvedPatch) error {
	body := patch.Body

	name, ok := body["companyName"].(string)
	if !ok || name == "" {
		return fmt.Errorf("organization has no companyName")
	}
	id := Slug(name)
	body["companyId"] = id
	body["id"] = id

	if rawTypes, ok := body["companyTypes"].([]any); ok {
		codes := make([]any, 0, len(rawTypes))
		for _, t := range rawTypes {
			label, _ := t.(string)
			code, ok := SupplierTypeCode(label)
			if !ok {
				ec.Logger.Warn("unknown supplier type", zap.String("label", label))
				return fmt.Errorf("unknown supplier type: %s", label)
			}
			codes = append(codes, code)
		}
		body["companyTypes"] = codes
	}

	setDefault(body, "active", false)

	if attributes, ok := body["attributes"].(map[string]any); ok {
		if attributes["sapCode"] == "" {
			attributes["sapCode"] = nil
		}
	}

	return nil
}

// EyewearManufacturerAssignmentDelete replaces the manufacturer relation in
// the predicate with the organization ID resolved from its VAT code.
func EyewearManufacturerAssignmentDelete(ctx context.Context, ec *Context, patch *assets.ResolvedPatch) error {
	ref, ok := patch.Predicate["manufacturerId"].(assets.RelationRef)
	if !ok {
		return nil
	}
	vatCode := ref.Relation.PredicateFieldValue
	if vatCode == "" {
		return nil
	}
	orgID, err := findOrganizationIDByVAT(ctx, ec, vatCode)
	if err != nil {
		return err
	}
	patch.Predicate["manufacturerId"] = assets.Lit(orgID)
	return nil
}

// setDefault writes a value only when the key is absent, keeping enrichment
// idempotent.
func setDefault(body map[string]any, key string, value any) {
	if _, ok := body[key]; !ok {
		body[key] = value
	}
}
