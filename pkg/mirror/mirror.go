// Package mirror reads the cached copy of backend state kept in MongoDB,
// used by enrichers for cross-referencing without touching the live backend.
package mirror

import (
	"context"
	"fmt"
	"reflect"

	"github.com/surgetech/surge-agent/pkg/assets"
	"github.com/surgetech/surge-agent/pkg/jsonutil"
)

// ErrNotFound reports a lookup with no matching record.
type ErrNotFound struct {
	AssetType assets.AssetType
	Predicate map[string]any
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("no %s record matches predicate %v", e.AssetType, e.Predicate)
}

// Finder locates a single cached record by predicate. Predicate keys may use
// dot-notation paths into nested documents.
type Finder interface {
	FindOne(ctx context.Context, assetType assets.AssetType, predicate map[string]any) (map[string]any, error)
}

// matches reports whether every predicate entry equals the record's value at
// that path. DeepEqual because either side may hold uncomparable types such
// as arrays.
func matches(record map[string]any, predicate map[string]any) bool {
	for path, want := range predicate {
		got, ok := jsonutil.LookupPath(record, path)
		if !ok || !reflect.DeepEqual(got, want) {
			return false
		}
	}
	return true
}

// Fake is an in-memory Finder for tests.
type Fake struct {
	Records map[assets.AssetType][]map[string]any
}

// FindOne implements Finder.
func (f *Fake) FindOne(_ context.Context, assetType assets.AssetType, predicate map[string]any) (map[string]any, error) {
	for _, record := range f.Records[assetType] {
		if matches(record, predicate) {
			return record, nil
		}
	}
	return nil, &ErrNotFound{AssetType: assetType, Predicate: predicate}
}

var _ Finder = (*Fake)(nil)
