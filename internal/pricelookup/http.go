// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package pricelookup

import (
	"context"
	"errors"
	"fmt"
	stdhttp "net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/wneessen/fuelwatch/internal/http"
)

const (
	name         = "fuelwatch-api"
	defaultLimit = "1"
)

// HTTPClient queries the cheapest stations endpoint of the fuel price backend.
type HTTPClient struct {
	http     *http.Client
	endpoint string
	apiKey   string
	timeout  time.Duration
}

type apiResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Data    struct {
		Stations []apiStation `json:"stations"`
	} `json:"data"`
}

type apiStation struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	Brand         string  `json:"brand"`
	Address       string  `json:"address"`
	City          string  `json:"city"`
	DistanceKm    float64 `json:"distance_km"`
	PricePerLiter float64 `json:"price_per_liter"`
	ActiveCoupons []struct {
		Title       string `json:"title"`
		Description string `json:"description"`
	} `json:"active_coupons"`
}

// NewHTTP returns a HTTPClient for the given endpoint. A non-empty apiKey is sent as bearer
// token.
func NewHTTP(client *http.Client, endpoint, apiKey string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = http.DefaultTimeout
	}
	return &HTTPClient{
		http:     client,
		endpoint: endpoint,
		apiKey:   apiKey,
		timeout:  timeout,
	}
}

// Name returns the name of the lookup client.
func (c *HTTPClient) Name() string {
	return name
}

// Cheapest asks the backend for the cheapest station within the request radius.
func (c *HTTPClient) Cheapest(ctx context.Context, req Request) (Result, error) {
	query := url.Values{}
	query.Set("fuel_type", req.FuelType)
	query.Set("latitude", strconv.FormatFloat(req.Lat, 'f', 6, 64))
	query.Set("longitude", strconv.FormatFloat(req.Lon, 'f', 6, 64))
	query.Set("radius_km", strconv.FormatFloat(req.RadiusKm, 'f', -1, 64))
	query.Set("limit", defaultLimit)

	headers := map[string]string{"Accept": "application/json"}
	if c.apiKey != "" {
		headers["Authorization"] = "Bearer " + c.apiKey
	}

	var resp apiResponse
	code, err := c.http.GetWithTimeout(ctx, c.endpoint, &resp, query, headers, c.timeout)
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return Result{}, fmt.Errorf("%w: %w", ErrTimeout, err)
	case errors.Is(err, context.Canceled):
		return Result{}, err
	case err != nil && code == 0:
		return Result{}, fmt.Errorf("%w: %w", ErrNetwork, err)
	case code >= stdhttp.StatusInternalServerError:
		return Result{}, fmt.Errorf("%w: backend returned status %d", ErrNetwork, code)
	case code != stdhttp.StatusOK:
		return Result{}, fmt.Errorf("%w: status %d: %s", ErrBadResponse, code, resp.Error)
	case err != nil:
		return Result{}, fmt.Errorf("%w: %w", ErrBadResponse, err)
	case !resp.Success:
		return Result{}, fmt.Errorf("%w: %s", ErrBadResponse, resp.Error)
	}

	if len(resp.Data.Stations) == 0 {
		return Result{Found: false}, nil
	}
	return Result{Found: true, Station: toStation(resp.Data.Stations[0])}, nil
}

func toStation(s apiStation) *Station {
	station := &Station{
		ID:         s.ID,
		Name:       s.Name,
		Brand:      s.Brand,
		Address:    s.Address,
		DistanceKm: s.DistanceKm,
		Price:      s.PricePerLiter,
	}
	if station.Address != "" && s.City != "" {
		station.Address += ", " + s.City
	}
	if len(s.ActiveCoupons) > 0 {
		station.Coupon = s.ActiveCoupons[0].Title
		if desc := s.ActiveCoupons[0].Description; desc != "" {
			station.Coupon += " - " + desc
		}
	}
	return station
}
