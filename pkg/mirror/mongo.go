package mirror

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.uber.org/zap"

	"github.com/surgetech/surge-agent/pkg/assets"
	"github.com/surgetech/surge-agent/pkg/logging"
)

// Mongo reads cached_<AssetType> collections. Each collection is loaded at
// most once per process and matched in memory afterwards; callers needing
// fresh data trigger a backend-side cache refresh and restart.
type Mongo struct {
	client   *mongo.Client
	database string
	timeout  time.Duration
	logger   *zap.Logger

	mu    sync.Mutex
	cache map[assets.AssetType][]map[string]any
}

// Config holds connection settings for the cached mirror.
type Config struct {
	URI      string
	Database string
	Timeout  time.Duration
}

// NewMongo connects to the mirror database.
func NewMongo(cfg Config, logger *zap.Logger) (*Mongo, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("connect mirror: %w", err)
	}
	logger.Info("mirror connected",
		zap.String("uri", logging.SanitizeConnectionString(cfg.URI)),
		zap.String("database", cfg.Database))
	return &Mongo{
		client:   client,
		database: cfg.Database,
		timeout:  cfg.Timeout,
		logger:   logger.Named("mirror"),
		cache:    make(map[assets.AssetType][]map[string]any),
	}, nil
}

// Close releases the underlying connection.
func (m *Mongo) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

// FindOne implements Finder against the cached collection for the asset type.
func (m *Mongo) FindOne(ctx context.Context, assetType assets.AssetType, predicate map[string]any) (map[string]any, error) {
	records, err := m.load(ctx, assetType)
	if err != nil {
		return nil, err
	}
	for _, record := range records {
		if matches(record, predicate) {
			return record, nil
		}
	}
	return nil, &ErrNotFound{AssetType: assetType, Predicate: predicate}
}

// load reads the full cached collection on first use. First read wins.
func (m *Mongo) load(ctx context.Context, assetType assets.AssetType) ([]map[string]any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if records, ok := m.cache[assetType]; ok {
		return records, nil
	}

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	coll := m.client.Database(m.database).Collection("cached_" + string(assetType))
	cursor, err := coll.Find(ctx, bson.D{})
	if err != nil {
		return nil, fmt.Errorf("load cached %s: %w", assetType, err)
	}

	var docs []bson.M
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode cached %s: %w", assetType, err)
	}

	records := make([]map[string]any, 0, len(docs))
	for _, doc := range docs {
		records = append(records, normalize(doc).(map[string]any))
	}

	m.logger.Debug("loaded cached collection",
		zap.String("asset_type", string(assetType)),
		zap.Int("records", len(records)))

	m.cache[assetType] = records
	return records, nil
}

// normalize converts bson document types into plain maps and slices so
// dot-path matching works uniformly.
func normalize(v any) any {
	switch t := v.(type) {
	case bson.M:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = normalize(val)
		}
		return out
	case bson.D:
		out := make(map[string]any, len(t))
		for _, e := range t {
			out[e.Key] = normalize(e.Value)
		}
		return out
	case bson.A:
		out := make([]any, len(t))
		for i, el := range t {
			out[i] = normalize(el)
		}
		return out
	default:
		return v
	}
}

var _ Finder = (*Mongo)(nil)
