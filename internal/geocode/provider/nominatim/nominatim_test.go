// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package nominatim

import (
	"errors"
	stdhttp "net/http"
	"strings"
	"testing"
	"time"

	"golang.org/x/text/language"

	"github.com/wneessen/fuelwatch/internal/geocode"
	"github.com/wneessen/fuelwatch/internal/http"
	"github.com/wneessen/fuelwatch/internal/logger"
	"github.com/wneessen/fuelwatch/internal/testhelper"
)

const (
	cityLat      = -26.9906
	cityLon      = -48.6356
	cityResponse = `{"place_id":123,"lat":"-26.9905","lon":"-48.6357","name":"Centro",
"display_name":"Centro, Itajaí, Região Geográfica Imediata de Itajaí, Santa Catarina, Brasil",
"address":{"suburb":"Centro","city":"Itajaí","state":"Santa Catarina","postcode":"88301-001","country":"Brasil"}}`
	townResponse = `{"lat":"-27.2","lon":"-48.6","display_name":"Porto Belo, Santa Catarina, Brasil",
"address":{"town":"Porto Belo","state":"Santa Catarina","country":"Brasil"}}`
	villageResponse = `{"lat":"-27.1","lon":"-48.7","display_name":"Zimbros, Bombinhas, Santa Catarina, Brasil",
"address":{"village":"Zimbros","state":"Santa Catarina","country":"Brasil"}}`
	seaResponse     = `{"error":"Unable to geocode"}`
	brokenLatitude  = `{"lat":"NaN?","lon":"-48.6","address":{"city":"Itajaí"}}`
	brokenLongitude = `{"lat":"-27.1","lon":"","address":{"city":"Itajaí"}}`
)

func testCoder(fn func(req *stdhttp.Request) (*stdhttp.Response, error)) *Nominatim {
	client := http.New(logger.Discard())
	client.Transport = testhelper.MockRoundTripper{Fn: fn}
	return New(client, language.BrazilianPortuguese)
}

func respond(body string) func(*stdhttp.Request) (*stdhttp.Response, error) {
	return func(*stdhttp.Request) (*stdhttp.Response, error) {
		return testhelper.JSONResponse(200, body), nil
	}
}

func TestNew(t *testing.T) {
	coder := New(http.New(logger.Discard()), language.English)
	if coder.Name() != name {
		t.Errorf("expected provider name to be %q, got %q", name, coder.Name())
	}
}

func TestNominatim_Reverse(t *testing.T) {
	t.Run("reverse geocoding succeeds", func(t *testing.T) {
		coder := testCoder(func(req *stdhttp.Request) (*stdhttp.Response, error) {
			query := req.URL.Query()
			if query.Get("lat") != "-26.990600" || query.Get("lon") != "-48.635600" {
				t.Errorf("unexpected coordinates in query %q", req.URL.RawQuery)
			}
			if query.Get("accept-language") != "pt-BR" {
				t.Errorf("expected accept-language pt-BR, got %q", query.Get("accept-language"))
			}
			return testhelper.JSONResponse(200, cityResponse), nil
		})
		addr, err := coder.Reverse(t.Context(), cityLat, cityLon)
		if err != nil {
			t.Fatal(err)
		}
		if !addr.AddressFound {
			t.Fatal("expected address to be found")
		}
		if addr.Label() != "Itajaí, Santa Catarina" {
			t.Errorf("unexpected label %q", addr.Label())
		}
		if addr.Latitude != -26.9905 || addr.Longitude != -48.6357 {
			t.Errorf("unexpected coordinates %f,%f", addr.Latitude, addr.Longitude)
		}
	})
	t.Run("reverse cached geocoding succeeds", func(t *testing.T) {
		calls := 0
		coder := geocode.NewCachedGeocoder(testCoder(func(*stdhttp.Request) (*stdhttp.Response, error) {
			calls++
			return testhelper.JSONResponse(200, cityResponse), nil
		}), time.Minute, time.Minute)
		for range 2 {
			if _, err := coder.Reverse(t.Context(), cityLat, cityLon); err != nil {
				t.Fatal(err)
			}
		}
		if calls != 1 {
			t.Errorf("expected one API call, got %d", calls)
		}
	})
	t.Run("town and village fill in the city", func(t *testing.T) {
		tests := []struct {
			name string
			body string
			city string
		}{
			{"town", townResponse, "Porto Belo"},
			{"village", villageResponse, "Zimbros"},
		}
		for _, tc := range tests {
			t.Run(tc.name, func(t *testing.T) {
				addr, err := testCoder(respond(tc.body)).Reverse(t.Context(), cityLat, cityLon)
				if err != nil {
					t.Fatal(err)
				}
				if addr.City != tc.city {
					t.Errorf("expected city to be %q, got %q", tc.city, addr.City)
				}
			})
		}
	})
	t.Run("unknown places are not found", func(t *testing.T) {
		addr, err := testCoder(respond(seaResponse)).Reverse(t.Context(), -27, -47)
		if err != nil {
			t.Fatal(err)
		}
		if addr.AddressFound {
			t.Error("expected address not to be found")
		}
	})
	t.Run("reverse geocoding fails", func(t *testing.T) {
		tests := []struct {
			name string
			fn   func(*stdhttp.Request) (*stdhttp.Response, error)
			want string
		}{
			{
				"request fails",
				func(*stdhttp.Request) (*stdhttp.Response, error) { return nil, errors.New("intentionally failing") },
				"failed to fetch",
			},
			{
				"rate limited",
				func(*stdhttp.Request) (*stdhttp.Response, error) {
					return testhelper.JSONResponse(429, `{}`), nil
				},
				"unexpected status 429",
			},
			{"broken latitude", respond(brokenLatitude), "failed to parse latitude"},
			{"broken longitude", respond(brokenLongitude), "failed to parse longitude"},
		}
		for _, tc := range tests {
			t.Run(tc.name, func(t *testing.T) {
				_, err := testCoder(tc.fn).Reverse(t.Context(), cityLat, cityLon)
				if err == nil {
					t.Fatal("expected reverse geocoding to fail")
				}
				if !strings.Contains(err.Error(), tc.want) {
					t.Errorf("expected error to contain %q, got %s", tc.want, err)
				}
			})
		}
	})
}

func TestNominatim_Reverse_integration(t *testing.T) {
	testhelper.PerformIntegrationTests(t)
	coder := New(http.New(logger.Discard()), language.English)
	addr, err := coder.Reverse(t.Context(), cityLat, cityLon)
	if err != nil {
		t.Fatal(err)
	}
	if !addr.AddressFound || addr.City == "" {
		t.Errorf("expected address to be found, got %+v", addr)
	}
}
