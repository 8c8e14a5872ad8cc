// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Package geo resolves an approximate location for a client IP address.
//
// Lookups are best effort. Security emails mention where a request came from,
// but a slow or failing lookup must never block the email itself.
package geo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Location is the coarse position of a client.
type Location struct {
	Region      string `json:"region"`
	CountryCode string `json:"country_code"`
}

// String renders the location as "Region, CC".
func (l Location) String() string {
	switch {
	case l.Region != "" && l.CountryCode != "":
		return l.Region + ", " + l.CountryCode
	case l.Region != "":
		return l.Region
	default:
		return l.CountryCode
	}
}

// IsZero reports whether nothing is known about the location.
func (l Location) IsZero() bool {
	return l.Region == "" && l.CountryCode == ""
}

// Locator looks up the location of an IP address.
type Locator interface {
	Locate(ctx context.Context, ip string) (Location, error)
}

// ErrUnresolvable is returned for addresses the provider cannot place,
// such as loopback or private ranges.
var ErrUnresolvable = errors.New("geo: address cannot be located")

// IPAPIClient queries an ipapi.co compatible JSON endpoint.
type IPAPIClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewIPAPIClient builds a client for baseURL with a per-lookup timeout.
func NewIPAPIClient(baseURL string, timeout time.Duration) *IPAPIClient {
	return &IPAPIClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// ipapiResponse mirrors the fields of the provider payload we read.
type ipapiResponse struct {
	Region      string `json:"region"`
	CountryCode string `json:"country_code"`
	Error       bool   `json:"error"`
	Reason      string `json:"reason"`
}

// Locate implements [Locator].
func (client *IPAPIClient) Locate(ctx context.Context, ip string) (Location, error) {
	if strings.TrimSpace(ip) == "" {
		return Location{}, ErrUnresolvable
	}

	endpoint := fmt.Sprintf("%s/%s/json/", client.baseURL, url.PathEscape(ip))
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Location{}, fmt.Errorf("geo_request_build_failed: %w", err)
	}
	request.Header.Set("Accept", "application/json")

	response, err := client.httpClient.Do(request)
	if err != nil {
		return Location{}, fmt.Errorf("geo_request_failed: %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, response.Body)
		return Location{}, fmt.Errorf("geo_unexpected_status: %d", response.StatusCode)
	}

	var payload ipapiResponse
	if err := json.NewDecoder(io.LimitReader(response.Body, 64<<10)).Decode(&payload); err != nil {
		return Location{}, fmt.Errorf("geo_decode_failed: %w", err)
	}

	// Reserved addresses come back as {"error": true, "reason": "Reserved IP Address"}.
	if payload.Error {
		return Location{}, fmt.Errorf("%w: %s", ErrUnresolvable, payload.Reason)
	}

	return Location{Region: payload.Region, CountryCode: payload.CountryCode}, nil
}
