package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/lborres/workdeck/core"
)

const defaultIPAPIBaseURL = "http://ip-api.com/json/"

// IPAPILocator looks addresses up on ip-api.com.
type IPAPILocator struct {
	baseURL    string
	httpClient *http.Client
}

var _ core.GeoLocator = (*IPAPILocator)(nil)

func NewIPAPILocator(baseURL string) *IPAPILocator {
	if baseURL == "" {
		baseURL = defaultIPAPIBaseURL
	}
	return &IPAPILocator{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 5 * time.Second},
	}
}

type ipAPIResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	City    string `json:"city"`
	Country string `json:"country"`
}

func (l *IPAPILocator) Locate(ctx context.Context, ip string) (*core.Location, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.baseURL+url.PathEscape(ip), nil)
	if err != nil {
		return nil, fmt.Errorf("build geolocation request: %w", err)
	}

	resp, err := l.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("geolocation request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("geolocation returned status %d", resp.StatusCode)
	}

	var body ipAPIResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode geolocation response: %w", err)
	}
	if body.Status == "fail" {
		return nil, fmt.Errorf("geolocation failed: %s", body.Message)
	}

	return &core.Location{City: body.City, Country: body.Country}, nil
}
