// Package upstream talks to the Daegu city bus open-data API (dbmsapi02).
//
// The adapter never surfaces transport or schema errors to callers: every
// operation answers with a normalized record slice, falling back to a small
// fixed dataset when the provider is unreachable or returns garbage, so the
// layers above always have something renderable. Retry is deliberately left
// to the polling cadence.
package upstream

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"

	"github.com/koreameme/daegu-bus-realtime/internal/config"
	"github.com/koreameme/daegu-bus-realtime/internal/model"
)

const (
	formatJSON = "json"
	formatXML  = "xml"

	// The catalog is small enough to fit one page; pagination is never
	// exercised in practice.
	catalogPageSize = 10000

	arrivalsPageSize = 10

	unknownVehicleNo = "차량번호 없음"
	unknownStation   = "정보 없음"
)

// API is the four-operation gateway surface consumed by the resolver and
// the polling controller.
type API interface {
	Routes(ctx context.Context) []model.Route
	Positions(ctx context.Context, routeID string) []model.VehiclePosition
	Stations(ctx context.Context, routeID string) []model.Station
	Arrivals(ctx context.Context, stopID string) []model.Arrival
}

// Client implements API against the live provider.
type Client struct {
	httpClient *http.Client
	baseURL    string
	serviceKey string
	format     string
	fallback   *Fallback
}

// NewClient creates a gateway client. fallback may be nil, in which case
// the built-in degraded-mode dataset is used.
func NewClient(cfg *config.Config, fallback *Fallback) (*Client, error) {
	if cfg.ServiceKey == "" {
		return nil, config.ErrMissingServiceKey
	}
	format := cfg.ResponseFormat
	if format != formatXML {
		format = formatJSON
	}
	if fallback == nil {
		fallback = DefaultFallback()
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.RequestTimeout,
		},
		baseURL:    cfg.BaseURL,
		serviceKey: cfg.ServiceKey,
		format:     format,
		fallback:   fallback,
	}, nil
}

// Routes fetches the full route catalog (getBasic02).
func (c *Client) Routes(ctx context.Context) []model.Route {
	params := url.Values{}
	params.Set("pageNo", "1")
	params.Set("numOfRows", fmt.Sprintf("%d", catalogPageSize))

	items, err := fetch[routeItem](c, ctx, "getBasic02", params, decodeCatalog)
	if err != nil {
		log.Printf("Upstream: route catalog fetch failed, serving fallback: %v", err)
		return c.fallback.Routes()
	}

	routes := make([]model.Route, 0, len(items))
	for _, it := range items {
		routes = append(routes, model.Route{
			RouteNo: it.RouteNo.trimmed(),
			RouteID: it.RouteID.trimmed(),
			Note:    it.RouteNote.trimmed(),
		})
	}
	log.Printf("Upstream: route catalog fetched, %d entries", len(routes))
	return routes
}

// Positions fetches live bus positions for a route (getPos02). Records
// without a station id cannot be placed on the route display and are
// dropped with a warning.
func (c *Client) Positions(ctx context.Context, routeID string) []model.VehiclePosition {
	params := url.Values{}
	params.Set("routeId", routeID)

	items, err := fetch[posItem](c, ctx, "getPos02", params, decodeItems[posItem])
	if err != nil {
		log.Printf("Upstream: position fetch for %s failed, serving fallback: %v", routeID, err)
		return c.fallback.Positions()
	}

	positions := make([]model.VehiclePosition, 0, len(items))
	dropped := 0
	for _, it := range items {
		if it.BsID.trimmed() == "" {
			dropped++
			continue
		}
		vehNo := it.VhcNo.trimmed()
		if vehNo == "" {
			vehNo = it.VhcNo2.trimmed()
		}
		if vehNo == "" {
			vehNo = unknownVehicleNo
		}
		stationName := it.BsNm.trimmed()
		if stationName == "" {
			stationName = unknownStation
		}
		positions = append(positions, model.VehiclePosition{
			VehicleNo:         vehNo,
			AtStationID:       it.BsID.trimmed(),
			AtStationName:     stationName,
			Direction:         model.ParseDirection(string(it.MoveDir)),
			StationsRemaining: it.BsGap.toInt(),
			ArrivalClock:      it.ArTime.trimmed(),
			X:                 it.XPos.toFloat(),
			Y:                 it.YPos.toFloat(),
		})
	}
	if dropped > 0 {
		log.Printf("Upstream: dropped %d position records without a station id for %s", dropped, routeID)
	}
	log.Printf("Upstream: %d buses on route %s", len(positions), routeID)
	return positions
}

// Stations fetches the ordered station list for a route (getBs02).
func (c *Client) Stations(ctx context.Context, routeID string) []model.Station {
	params := url.Values{}
	params.Set("routeId", routeID)

	items, err := fetch[stationItem](c, ctx, "getBs02", params, decodeItems[stationItem])
	if err != nil {
		log.Printf("Upstream: station fetch for %s failed, serving fallback: %v", routeID, err)
		return c.fallback.Stations()
	}

	stations := make([]model.Station, 0, len(items))
	for _, it := range items {
		stations = append(stations, model.Station{
			StationID:     it.BsID.trimmed(),
			Name:          it.BsNm.trimmed(),
			Direction:     model.ParseDirection(string(it.MoveDir)),
			SequenceIndex: it.Seq.toInt(),
			X:             it.XPos.toFloat(),
			Y:             it.YPos.toFloat(),
		})
	}
	log.Printf("Upstream: %d stations on route %s", len(stations), routeID)
	return stations
}

// Arrivals fetches arrival predictions for one physical stop (getRealtime02).
func (c *Client) Arrivals(ctx context.Context, stopID string) []model.Arrival {
	params := url.Values{}
	params.Set("bsId", stopID)
	params.Set("pageNo", "1")
	params.Set("numOfRows", fmt.Sprintf("%d", arrivalsPageSize))

	items, err := fetch[arrivalItem](c, ctx, "getRealtime02", params, decodeItems[arrivalItem])
	if err != nil {
		log.Printf("Upstream: arrival fetch for stop %s failed, serving fallback: %v", stopID, err)
		return c.fallback.Arrivals()
	}

	arrivals := make([]model.Arrival, 0, len(items))
	for _, it := range items {
		arrivals = append(arrivals, model.Arrival{
			RouteNo:      it.RouteNo.trimmed(),
			RouteID:      it.RouteID.trimmed(),
			ArrivalSecs:  it.ArrTime.toInt(),
			StationsAway: it.BsGap.toInt(),
		})
	}
	log.Printf("Upstream: %d arrivals at stop %s", len(arrivals), stopID)
	return arrivals
}

// fetch performs one GET against the provider and decodes the envelope with
// the supplied decoder. It is the only place transport and sentinel errors
// are produced; the exported operations translate them into fallbacks.
func fetch[T any](c *Client, ctx context.Context, op string, params url.Values, decode func([]byte, string) ([]T, respHeader, error)) ([]T, error) {
	params.Set("serviceKey", c.serviceKey)

	reqURL := fmt.Sprintf("%s/%s?%s", c.baseURL, op, params.Encode())
	req, err := http.NewRequestWithContext(ctx, "GET", reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s request failed: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode == http.StatusTooManyRequests {
			return nil, fmt.Errorf("%s rate limited (status %d)", op, resp.StatusCode)
		}
		return nil, fmt.Errorf("%s returned status %d", op, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s response: %w", op, err)
	}

	items, header, err := decode(body, c.format)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s response: %w", op, err)
	}
	if !header.ok() {
		return nil, fmt.Errorf("%s result code %q: %s", op, header.ResultCode, header.ResultMsg)
	}
	return items, nil
}
