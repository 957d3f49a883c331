// Package geoip resolves client IPs to coarse locations for the audit
// trail. Lookups are strictly best-effort: any failure degrades to
// Unknown and never influences the activation decision.
package geoip

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/keypilot/keypilot-api/internal/config"
	"go.uber.org/zap"
)

const unknown = "Unknown"

type Location struct {
	Country string
	City    string
}

func UnknownLocation() Location {
	return Location{Country: unknown, City: unknown}
}

type Client struct {
	httpClient *http.Client
	baseURL    string
	timeout    time.Duration
	logger     *zap.Logger
}

func NewClient(cfg *config.GeoIPConfig, logger *zap.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    cfg.BaseURL,
		timeout:    timeout,
		logger:     logger.Named("GeoIPClient"),
	}
}

// Lookup queries the ip-api JSON endpoint. The call is bounded by the
// configured timeout; on any error or non-success payload it returns
// UnknownLocation.
func (c *Client) Lookup(ctx context.Context, ip string) Location {
	if ip == "" {
		return UnknownLocation()
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	url := fmt.Sprintf("%s/json/%s?fields=status,country,city", c.baseURL, ip)
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		c.logger.Warn("Failed to build geolocation request", zap.String("ip", ip), zap.Error(err))
		return UnknownLocation()
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug("Geolocation lookup failed", zap.String("ip", ip), zap.Error(err))
		return UnknownLocation()
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Debug("Geolocation lookup returned non-OK status", zap.String("ip", ip), zap.Int("status", resp.StatusCode))
		return UnknownLocation()
	}

	var payload struct {
		Status  string `json:"status"`
		Country string `json:"country"`
		City    string `json:"city"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		c.logger.Debug("Failed to decode geolocation response", zap.String("ip", ip), zap.Error(err))
		return UnknownLocation()
	}

	if payload.Status != "success" {
		return UnknownLocation()
	}

	loc := Location{Country: payload.Country, City: payload.City}
	if loc.Country == "" {
		loc.Country = unknown
	}
	if loc.City == "" {
		loc.City = unknown
	}
	return loc
}
