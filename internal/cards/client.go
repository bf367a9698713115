// internal/cards/client.go
package cards

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"flowcoach/internal/common/errors"
	commonhttp "flowcoach/internal/common/http"
	"flowcoach/internal/common/logger"

	"github.com/redis/go-redis/v9"
)

const (
	linkedCacheKey  = "cards:linked"
	catalogCacheKey = "cards:catalog"
)

// Client fetches the authoritative linked-card list and the candidate
// catalog. Responses are cached in Redis with a short TTL; a cold or
// unavailable cache falls through to the HTTP call.
type Client struct {
	baseURL     string
	bearerToken string
	httpClient  *commonhttp.Client
	redis       *redis.Client
	cacheTTL    time.Duration
	logger      logger.Logger
}

func NewClient(baseURL, bearerToken string, timeout time.Duration, rdb *redis.Client, cacheTTL time.Duration, log logger.Logger) *Client {
	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		bearerToken: bearerToken,
		httpClient:  commonhttp.NewClient(timeout),
		redis:       rdb,
		cacheTTL:    cacheTTL,
		logger:      log.WithFields(map[string]interface{}{"component": "cards-client"}),
	}
}

// Linked returns the authoritative linked-cards list.
func (c *Client) Linked(ctx context.Context) ([]LinkedCard, error) {
	var out []LinkedCard
	if c.cacheGet(ctx, linkedCacheKey, &out) {
		return out, nil
	}

	if err := c.get(ctx, "/cards", &out); err != nil {
		return nil, errors.NewLinkedCardsFetchFailedError(err)
	}

	c.cacheSet(ctx, linkedCacheKey, out)
	return out, nil
}

// Catalog returns the active candidate product catalog.
func (c *Client) Catalog(ctx context.Context) ([]CatalogProduct, error) {
	var out []CatalogProduct
	if c.cacheGet(ctx, catalogCacheKey, &out) {
		return out, nil
	}

	if err := c.get(ctx, "/cards/catalog?active=1", &out); err != nil {
		return nil, errors.NewCatalogFetchFailedError(err)
	}

	c.cacheSet(ctx, catalogCacheKey, out)
	return out, nil
}

// InvalidateLinked drops the cached linked list so the next Linked call hits
// the backend. Called after a mandate executes.
func (c *Client) InvalidateLinked(ctx context.Context) {
	if c.redis == nil {
		return
	}
	if err := c.redis.Del(ctx, linkedCacheKey).Err(); err != nil {
		c.logger.Debug("cache invalidate failed", map[string]interface{}{
			"key":   linkedCacheKey,
			"error": err.Error(),
		})
	}
}

func (c *Client) cacheGet(ctx context.Context, key string, out interface{}) bool {
	if c.redis == nil {
		return false
	}
	val, err := c.redis.Get(ctx, key).Result()
	if err != nil {
		return false
	}
	if err := json.Unmarshal([]byte(val), out); err != nil {
		return false
	}
	return true
}

func (c *Client) cacheSet(ctx context.Context, key string, val interface{}) {
	if c.redis == nil {
		return
	}
	data, err := json.Marshal(val)
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, key, data, c.cacheTTL).Err(); err != nil {
		c.logger.Debug("cache write failed", map[string]interface{}{
			"key":   key,
			"error": err.Error(),
		})
	}
}

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if c.bearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.bearerToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("request failed (status %d): %s", resp.StatusCode, string(body))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return nil
}
