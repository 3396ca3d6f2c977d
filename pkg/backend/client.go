// Package backend is the client for the blockchain-style asset CRUD API.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/surgetech/surge-agent/pkg/assets"
	"github.com/surgetech/surge-agent/pkg/logging"
	"github.com/surgetech/surge-agent/pkg/retry"
)

// DefaultTypeNamespace prefixes asset type names on the wire.
const DefaultTypeNamespace = "eu.surgetech.ewc.bc.chaincode.model.asset."

// Chaincode operation names.
const (
	opSave      = "SAVE"
	opDelete    = "DELETE"
	opDeleteAll = "DELETE_ALL"
	opFindAll   = "FIND_ALL"
	opFind      = "FIND"
	opExists    = "EXISTS"
)

// Config holds the client's connection settings.
type Config struct {
	BaseURL       string
	TypeNamespace string
	Timeout       time.Duration
	DryRun        bool
}

// Client talks to the chaincode HTTP gateway. All payloads travel inside the
// {"payload": "<json string>"} envelope the gateway expects.
type Client struct {
	baseURL    string
	ns         string
	dryRun     bool
	httpClient *http.Client
	retryCfg   *retry.Config
	logger     *zap.Logger
}

// New creates a backend client.
func New(cfg Config, logger *zap.Logger) *Client {
	ns := cfg.TypeNamespace
	if ns == "" {
		ns = DefaultTypeNamespace
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		ns:         ns,
		dryRun:     cfg.DryRun,
		httpClient: &http.Client{Timeout: timeout},
		retryCfg:   retry.DefaultConfig(),
		logger:     logger.Named("backend"),
	}
}

// DryRun reports whether mutating calls are intercepted.
func (c *Client) DryRun() bool { return c.dryRun }

// mutatingOps are intercepted in dry-run mode before any network effect.
var mutatingOps = map[string]bool{opSave: true, opDelete: true, opDeleteAll: true}

// request posts the enveloped payload and decodes the gateway's response. In
// dry-run mode, mutating payloads are logged and a nil result is returned;
// reads still hit the live backend since they do not mutate state.
func (c *Client) request(ctx context.Context, uri string, payload map[string]any) (any, error) {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	envelope, err := json.Marshal(map[string]any{"payload": string(payloadJSON)})
	if err != nil {
		return nil, fmt.Errorf("marshal envelope: %w", err)
	}

	if op, _ := payload["operation"].(string); c.dryRun && mutatingOps[op] {
		c.logger.Info("dry run: skipping mutating call",
			zap.String("uri", uri),
			zap.String("operation", op),
			zap.String("payload", logging.TruncateString(string(payloadJSON), logging.MaxPayloadLogLength)))
		return nil, nil
	}

	var result any
	err = retry.DoIfRetryable(ctx, c.retryCfg, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, uri, bytes.NewReader(envelope))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return fmt.Errorf("backend returned %d: %s", resp.StatusCode,
				logging.TruncateString(string(body), logging.MaxPayloadLogLength))
		}

		result = decodeResponse(body)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// decodeResponse unwraps the gateway's {"data": "<json string>"} shape,
// falling back to the outer document when the inner payload is not JSON.
func decodeResponse(body []byte) any {
	var outer map[string]any
	if err := json.Unmarshal(body, &outer); err != nil {
		return nil
	}
	data, ok := outer["data"]
	if !ok {
		return outer
	}
	str, ok := data.(string)
	if !ok {
		return data
	}
	if str == "" {
		return nil
	}
	var inner any
	if err := json.Unmarshal([]byte(str), &inner); err != nil {
		return outer
	}
	return inner
}

func (c *Client) execute(ctx context.Context, txType, txName string, payload map[string]any) (any, error) {
	return c.request(ctx, fmt.Sprintf("%s/api/v1.0/chaincode/%s/%s", c.baseURL, txType, txName), payload)
}

func (c *Client) run(ctx context.Context, txType string, payload map[string]any) (any, error) {
	return c.execute(ctx, txType, txType+"Direct", payload)
}

func (c *Client) runBatch(ctx context.Context, payloads []map[string]any) (any, error) {
	return c.execute(ctx, "invoke", "invokeDirectBatch", map[string]any{"data": payloads})
}

// FindAllTypes lists every asset type the backend knows.
func (c *Client) FindAllTypes(ctx context.Context) ([]string, error) {
	res, err := c.request(ctx, c.baseURL+"/api/v1.0/chaincode/query/findAllTypes", map[string]any{})
	if err != nil {
		return nil, err
	}
	obj, ok := res.(map[string]any)
	if !ok {
		return nil, nil
	}
	raw, _ := obj["types"].([]any)
	types := make([]string, 0, len(raw))
	for _, t := range raw {
		if s, ok := t.(string); ok {
			types = append(types, s)
		}
	}
	return types, nil
}

// FindAll fetches every record of the asset type. Elements may arrive as
// JSON-encoded strings; those are decoded transparently.
func (c *Client) FindAll(ctx context.Context, assetType assets.AssetType) ([]map[string]any, error) {
	res, err := c.run(ctx, "query", map[string]any{
		"operation": opFindAll,
		"type":      c.ns + string(assetType),
		"fields":    nil,
	})
	if err != nil {
		return nil, err
	}

	list, _ := res.([]any)
	records := make([]map[string]any, 0, len(list))
	for _, el := range list {
		switch t := el.(type) {
		case map[string]any:
			records = append(records, t)
		case string:
			var record map[string]any
			if err := json.Unmarshal([]byte(t), &record); err == nil {
				records = append(records, record)
			}
		}
	}
	return records, nil
}

// SaveBatch creates or fully replaces records in one batch call. Idempotent
// on identical payloads.
func (c *Client) SaveBatch(ctx context.Context, assetType assets.AssetType, batch []map[string]any) error {
	if c.dryRun {
		c.logger.Info("dry run: save_batch",
			zap.String("asset_type", string(assetType)),
			zap.Int("items", len(batch)),
			zap.String("payload", logging.CompactJSON(batch)))
		return nil
	}

	idField := assets.IDField(assetType)
	payloads := make([]map[string]any, 0, len(batch))
	for _, record := range batch {
		data, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("marshal record: %w", err)
		}
		payloads = append(payloads, map[string]any{
			"operation": opSave,
			"type":      c.ns + string(assetType),
			"id":        record[idField],
			"data":      string(data),
		})
	}

	_, err := c.runBatch(ctx, payloads)
	return err
}

// Save creates or fully replaces one record.
func (c *Client) Save(ctx context.Context, assetType assets.AssetType, record map[string]any) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	_, err = c.run(ctx, "invoke", map[string]any{
		"operation": opSave,
		"type":      c.ns + string(assetType),
		"id":        record[assets.IDField(assetType)],
		"data":      string(data),
	})
	return err
}

// DeleteOne removes one record by identifier.
func (c *Client) DeleteOne(ctx context.Context, assetType assets.AssetType, id string) error {
	_, err := c.run(ctx, "invoke", map[string]any{
		"operation": opDelete,
		"type":      c.ns + string(assetType),
		"id":        id,
	})
	return err
}

// DeleteBatch removes records by identifier in one batch call.
func (c *Client) DeleteBatch(ctx context.Context, assetType assets.AssetType, ids []string) error {
	if c.dryRun {
		c.logger.Info("dry run: delete_batch",
			zap.String("asset_type", string(assetType)),
			zap.Int("items", len(ids)),
			zap.Strings("ids", ids))
		return nil
	}

	payloads := make([]map[string]any, 0, len(ids))
	for _, id := range ids {
		payloads = append(payloads, map[string]any{
			"operation": opDelete,
			"type":      c.ns + string(assetType),
			"id":        id,
		})
	}

	_, err := c.runBatch(ctx, payloads)
	return err
}

// Find fetches one record by identifier.
func (c *Client) Find(ctx context.Context, assetType assets.AssetType, id string) (map[string]any, error) {
	res, err := c.run(ctx, "query", map[string]any{
		"operation": opFind,
		"type":      c.ns + string(assetType),
		"id":        id,
	})
	if err != nil {
		return nil, err
	}
	record, _ := res.(map[string]any)
	return record, nil
}

// Exists reports whether a record with the identifier exists.
func (c *Client) Exists(ctx context.Context, assetType assets.AssetType, id string) (bool, error) {
	res, err := c.run(ctx, "query", map[string]any{
		"operation": opExists,
		"type":      c.ns + string(assetType),
		"id":        id,
	})
	if err != nil {
		return false, err
	}
	obj, _ := res.(map[string]any)
	yes, _ := obj["yes"].(bool)
	return yes, nil
}
