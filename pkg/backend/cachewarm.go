package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/surgetech/surge-agent/pkg/assets"
	"github.com/surgetech/surge-agent/pkg/logging"
	"github.com/surgetech/surge-agent/pkg/retry"
)

// Secrets maps organization name to per-environment machine secrets.
type Secrets map[string]map[string]string

// LoadSecrets reads the machine-secret file used to authenticate cache
// refresh calls.
func LoadSecrets(path string) (Secrets, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read secrets file: %w", err)
	}
	var secrets Secrets
	if err := yaml.Unmarshal(data, &secrets); err != nil {
		return nil, fmt.Errorf("parse secrets file %s: %w", path, err)
	}
	return secrets, nil
}

// CacheRefresher triggers ultra-cache reloads on the downstream portals after
// asset mutations. Refreshes are best-effort: per-organization failures are
// logged, never escalated.
type CacheRefresher struct {
	secrets    Secrets
	domain     string
	httpClient *http.Client
	logger     *zap.Logger

	// hostOverride replaces the derived portal host, for tests.
	hostOverride string
}

// NewCacheRefresher builds a refresher for the given secrets and portal
// domain (e.g. "cp-bc.com").
func NewCacheRefresher(secrets Secrets, domain string, timeout time.Duration, logger *zap.Logger) *CacheRefresher {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &CacheRefresher{
		secrets:    secrets,
		domain:     domain,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.Named("cachewarm"),
	}
}

// hostFor builds the portal host for an organization. Production has no
// environment segment.
func (r *CacheRefresher) hostFor(org string, env assets.Environment) string {
	if r.hostOverride != "" {
		return r.hostOverride
	}
	if env == assets.EnvProd {
		return fmt.Sprintf("https://%s.%s", org, r.domain)
	}
	return fmt.Sprintf("https://%s.%s.%s", org, env, r.domain)
}

// Refresh reloads the ultra-cache for the touched asset types on every
// organization that has a secret for the environment.
func (r *CacheRefresher) Refresh(ctx context.Context, env assets.Environment, include []assets.AssetType) {
	body := map[string]any{"default": map[string]any{}}
	if len(include) > 0 {
		types := make([]string, 0, len(include))
		for _, t := range include {
			types = append(types, string(t))
		}
		body["default"].(map[string]any)["include"] = types
	}
	payload, err := json.Marshal(body)
	if err != nil {
		r.logger.Warn("marshal refresh payload", zap.Error(err))
		return
	}

	r.logger.Info("starting ultra-cache reload",
		zap.String("env", string(env)),
		zap.Int("orgs", len(r.secrets)),
		zap.Int("asset_types", len(include)))

	for org, envSecrets := range r.secrets {
		secret, ok := envSecrets[string(env)]
		if !ok {
			r.logger.Debug("no secret for environment, skipping org",
				zap.String("org", org), zap.String("env", string(env)))
			continue
		}

		host := r.hostFor(org, env)
		if err := r.refreshOrg(ctx, host, secret, payload); err != nil {
			// Refresh errors can echo request headers; sanitize before logging.
			r.logger.Warn("ultra-cache reload failed",
				zap.String("org", org),
				zap.String("host", host),
				zap.String("error", logging.SanitizeError(err)))
			continue
		}
		r.logger.Info("ultra-cache reload ok",
			zap.String("org", org),
			zap.String("host", host))
	}

	r.logger.Info("ultra-cache reload finished")
}

func (r *CacheRefresher) refreshOrg(ctx context.Context, host, secret string, payload []byte) error {
	return retry.DoIfRetryable(ctx, retry.DefaultConfig(), func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			host+"/api/v1.0/ultra-cache/data/refresh", bytes.NewReader(payload))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Surge-Machine-Secret", secret)

		resp, err := r.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 500))
			return fmt.Errorf("refresh returned %d: %s", resp.StatusCode, body)
		}
		return nil
	})
}
