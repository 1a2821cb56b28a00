// Package routing fetches driving routes from an OSRM compatible server.
package routing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"backend-tanquecheio/internal/shared/geo"
)

var ErrNoRoute = errors.New("routing: no route found")

type Client struct {
	httpClient *http.Client
	baseURL    string
	profile    string
	timeout    time.Duration
}

func NewClient(httpClient *http.Client, baseURL string, timeout time.Duration) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		profile:    "driving",
		timeout:    timeout,
	}
}

type routeResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Routes  []struct {
		Distance float64 `json:"distance"`
		Duration float64 `json:"duration"`
		Geometry struct {
			Coordinates [][]float64 `json:"coordinates"`
		} `json:"geometry"`
	} `json:"routes"`
}

// Route returns the polyline of the first route between origin and destination.
func (c *Client) Route(ctx context.Context, origin, destination geo.Point) ([]geo.Point, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	endpoint := fmt.Sprintf("%s/route/v1/%s/%s;%s?overview=full&geometries=geojson",
		c.baseURL, c.profile, lngLat(origin), lngLat(destination))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("routing: build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("routing: do request: %w", err)
	}
	defer resp.Body.Close()

	var payload routeResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 8<<20)).Decode(&payload); err != nil {
		if resp.StatusCode >= 300 {
			return nil, fmt.Errorf("routing: http %s", resp.Status)
		}
		return nil, fmt.Errorf("routing: decode: %w", err)
	}
	if payload.Code == "NoRoute" {
		return nil, ErrNoRoute
	}
	if resp.StatusCode >= 300 || payload.Code != "Ok" {
		return nil, fmt.Errorf("routing: http %s: %s %s", resp.Status, payload.Code, payload.Message)
	}
	if len(payload.Routes) == 0 {
		return nil, ErrNoRoute
	}

	coords := payload.Routes[0].Geometry.Coordinates
	route := make([]geo.Point, 0, len(coords))
	for _, pair := range coords {
		if len(pair) < 2 {
			return nil, errors.New("routing: malformed coordinate")
		}
		route = append(route, geo.Point{Lat: pair[1], Lng: pair[0]})
	}
	return route, nil
}

func lngLat(p geo.Point) string {
	return strconv.FormatFloat(p.Lng, 'f', 6, 64) + "," + strconv.FormatFloat(p.Lat, 'f', 6, 64)
}
