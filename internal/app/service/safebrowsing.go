package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/linklit/LinkLit/config"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var (
	// ErrMaliciousLink signals that the destination matched a threat list.
	ErrMaliciousLink = errors.New("malicious link entered")
	// ErrSafetyUnavailable signals that the classifier could not be consulted.
	// The creation pipeline fails closed on it while the check is enabled.
	ErrSafetyUnavailable = errors.New("safety check unavailable")
)

const (
	safetyVerdictOK  = "ok"
	safetyVerdictBad = "bad"
	safetyKeyPrefix  = "sb:"
)

// SafetyChecker vetoes destination URLs before persistence.
type SafetyChecker interface {
	Check(ctx context.Context, url string) error
}

type threatMatchesRequest struct {
	Client struct {
		ClientID      string `json:"clientId"`
		ClientVersion string `json:"clientVersion"`
	} `json:"client"`
	ThreatInfo struct {
		ThreatTypes      []string            `json:"threatTypes"`
		PlatformTypes    []string            `json:"platformTypes"`
		ThreatEntryTypes []string            `json:"threatEntryTypes"`
		ThreatEntries    []map[string]string `json:"threatEntries"`
	} `json:"threatInfo"`
}

type threatMatchesResponse struct {
	Matches []struct {
		ThreatType string `json:"threatType"`
	} `json:"matches"`
}

// safeBrowsingChecker queries the Google Safe Browsing v4 lookup API and
// caches verdicts in Redis with a bounded TTL.
type safeBrowsingChecker struct {
	client   *resty.Client
	cache    *redis.Client
	cacheTTL time.Duration
	apiKey   string
	enabled  bool
	logger   *zap.Logger
}

// NewSafeBrowsingChecker builds the checker from config. The cache client may
// be nil, in which case every check hits the API.
func NewSafeBrowsingChecker(cfg config.SafeBrowsingConfig, cache *redis.Client, logger *zap.Logger) SafetyChecker {
	if logger == nil {
		logger = zap.NewNop()
	}

	ttl, err := time.ParseDuration(cfg.CacheTTL)
	if err != nil || ttl <= 0 {
		ttl = time.Hour
	}

	client := resty.New().
		SetBaseURL(cfg.Endpoint).
		SetTimeout(30 * time.Second)

	return &safeBrowsingChecker{
		client:   client,
		cache:    cache,
		cacheTTL: ttl,
		apiKey:   cfg.APIKey,
		enabled:  cfg.Enabled,
		logger:   logger,
	}
}

func (c *safeBrowsingChecker) Check(ctx context.Context, url string) error {
	if !c.enabled {
		return nil
	}
	if c.apiKey == "" {
		c.logger.Error("safe browsing enabled but no API key configured")
		return ErrSafetyUnavailable
	}

	if verdict, ok := c.cachedVerdict(ctx, url); ok {
		if verdict == safetyVerdictBad {
			return ErrMaliciousLink
		}
		return nil
	}

	req := threatMatchesRequest{}
	req.Client.ClientID = "linklit"
	req.Client.ClientVersion = "1.0.0"
	req.ThreatInfo.ThreatTypes = []string{
		"MALWARE",
		"SOCIAL_ENGINEERING",
		"UNWANTED_SOFTWARE",
		"POTENTIALLY_HARMFUL_APPLICATION",
	}
	req.ThreatInfo.PlatformTypes = []string{"ANY_PLATFORM"}
	req.ThreatInfo.ThreatEntryTypes = []string{"URL"}
	req.ThreatInfo.ThreatEntries = []map[string]string{{"url": url}}

	var result threatMatchesResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParam("key", c.apiKey).
		SetBody(req).
		SetResult(&result).
		Post("/v4/threatMatches:find")
	if err != nil {
		c.logger.Error("safe browsing request failed", zap.Error(err))
		return ErrSafetyUnavailable
	}
	if resp.IsError() {
		c.logger.Error("safe browsing returned error status",
			zap.Int("status", resp.StatusCode()))
		return ErrSafetyUnavailable
	}

	if len(result.Matches) > 0 {
		c.storeVerdict(ctx, url, safetyVerdictBad)
		c.logger.Warn("blocked malicious destination",
			zap.String("threat_type", result.Matches[0].ThreatType))
		return ErrMaliciousLink
	}

	c.storeVerdict(ctx, url, safetyVerdictOK)
	return nil
}

func (c *safeBrowsingChecker) cachedVerdict(ctx context.Context, url string) (string, bool) {
	if c.cache == nil {
		return "", false
	}
	verdict, err := c.cache.Get(ctx, safetyCacheKey(url)).Result()
	if err != nil {
		return "", false
	}
	return verdict, true
}

func (c *safeBrowsingChecker) storeVerdict(ctx context.Context, url, verdict string) {
	if c.cache == nil {
		return
	}
	if err := c.cache.Set(ctx, safetyCacheKey(url), verdict, c.cacheTTL).Err(); err != nil {
		c.logger.Warn("failed to cache safety verdict", zap.Error(err))
	}
}

func safetyCacheKey(url string) string {
	sum := sha256.Sum256([]byte(url))
	return fmt.Sprintf("%s%s", safetyKeyPrefix, hex.EncodeToString(sum[:16]))
}
