package tracker

import (
	"time"

	"github.com/koreameme/daegu-bus-realtime/internal/model"
)

// DirectionFilter selects which travel direction of a snapshot to show.
type DirectionFilter string

const (
	FilterAll  DirectionFilter = "all"
	FilterUp   DirectionFilter = DirectionFilter(model.DirectionUp)
	FilterDown DirectionFilter = DirectionFilter(model.DirectionDown)
)

// ParseFilter maps a query value onto a filter; anything unrecognized means
// no filtering.
func ParseFilter(s string) DirectionFilter {
	switch DirectionFilter(s) {
	case FilterUp:
		return FilterUp
	case FilterDown:
		return FilterDown
	default:
		return FilterAll
	}
}

// Snapshot is the most recent state of a tracked route. It only ever lives
// in memory; each publish replaces the previous one wholesale.
type Snapshot struct {
	SnapshotID string                  `json:"snapshotId"`
	RouteNo    string                  `json:"routeNo"`
	RouteID    string                  `json:"routeId"`
	Gyeongsan  bool                    `json:"gyeongsan"`
	Stations   []model.Station         `json:"stations"`
	Vehicles   []model.VehiclePosition `json:"vehicles"`
	PolledAt   time.Time               `json:"polledAt"`
	// Stale marks a snapshot whose timer is currently disarmed (hidden
	// surface or idle user); the UI dims it rather than dropping it.
	Stale bool `json:"stale"`
}

// Filtered projects the snapshot onto one direction. It is a pure
// projection over already-fetched data and never touches the network.
func (s Snapshot) Filtered(f DirectionFilter) Snapshot {
	out := s
	out.Stations = make([]model.Station, 0, len(s.Stations))
	out.Vehicles = make([]model.VehiclePosition, 0, len(s.Vehicles))
	for _, st := range s.Stations {
		if f == FilterAll || DirectionFilter(st.Direction) == f {
			out.Stations = append(out.Stations, st)
		}
	}
	for _, v := range s.Vehicles {
		if f == FilterAll || DirectionFilter(v.Direction) == f {
			out.Vehicles = append(out.Vehicles, v)
		}
	}
	return out
}

// VehiclesByStation joins vehicles onto stations by exact station id. A
// station may host zero or many buses in one poll (bunching); vehicles at
// stations outside the list are absent from the map but remain in the raw
// snapshot.
func (s Snapshot) VehiclesByStation() map[string][]model.VehiclePosition {
	known := make(map[string]struct{}, len(s.Stations))
	for _, st := range s.Stations {
		known[st.StationID] = struct{}{}
	}
	byStation := make(map[string][]model.VehiclePosition)
	for _, v := range s.Vehicles {
		if _, ok := known[v.AtStationID]; ok {
			byStation[v.AtStationID] = append(byStation[v.AtStationID], v)
		}
	}
	return byStation
}
