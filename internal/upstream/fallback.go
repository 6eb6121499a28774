package upstream

import "github.com/koreameme/daegu-bus-realtime/internal/model"

// Fallback is the degraded-mode dataset served when the provider is
// unreachable. It is injectable so tests can assert on fallback behavior
// without a real outage; the defaults mirror a handful of well-known Daegu
// routes and downtown stops.
type Fallback struct {
	RouteCatalog []model.Route
	RoutePos     []model.VehiclePosition
	RouteStops   []model.Station
	StopArrivals []model.Arrival
}

// DefaultFallback returns the built-in degraded-mode dataset.
func DefaultFallback() *Fallback {
	return &Fallback{
		RouteCatalog: []model.Route{
			{RouteNo: "급행1", RouteID: "1000001074"},
			{RouteNo: "401", RouteID: "1000000401"},
			{RouteNo: "937", RouteID: "3000937000"},
			{RouteNo: "649", RouteID: "3000649000"},
		},
		RoutePos: []model.VehiclePosition{
			{VehicleNo: "대구70자 1234", AtStationID: "7031011500", AtStationName: "대구역", Direction: model.DirectionUp, StationsRemaining: 1},
			{VehicleNo: "대구70자 5678", AtStationID: "7031011600", AtStationName: "중앙로역", Direction: model.DirectionUp, StationsRemaining: 4},
		},
		RouteStops: []model.Station{
			{StationID: "7031011500", Name: "대구역", Direction: model.DirectionUp, SequenceIndex: 1},
			{StationID: "7031011600", Name: "중앙로역", Direction: model.DirectionUp, SequenceIndex: 2},
			{StationID: "7031011700", Name: "반월당역", Direction: model.DirectionUp, SequenceIndex: 3},
		},
		StopArrivals: []model.Arrival{
			{RouteNo: "급행1", RouteID: "1000001074", ArrivalSecs: 320, StationsAway: 2},
			{RouteNo: "401", RouteID: "1000000401", ArrivalSecs: 540, StationsAway: 4},
			{RouteNo: "708", RouteID: "1000000708", ArrivalSecs: 900, StationsAway: 7},
		},
	}
}

// The accessors return copies so callers can mutate results freely.

func (f *Fallback) Routes() []model.Route {
	out := make([]model.Route, len(f.RouteCatalog))
	copy(out, f.RouteCatalog)
	return out
}

func (f *Fallback) Positions() []model.VehiclePosition {
	out := make([]model.VehiclePosition, len(f.RoutePos))
	copy(out, f.RoutePos)
	return out
}

func (f *Fallback) Stations() []model.Station {
	out := make([]model.Station, len(f.RouteStops))
	copy(out, f.RouteStops)
	return out
}

func (f *Fallback) Arrivals() []model.Arrival {
	out := make([]model.Arrival, len(f.StopArrivals))
	copy(out, f.StopArrivals)
	return out
}
