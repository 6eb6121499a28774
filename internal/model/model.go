package model

import (
	"fmt"
	"strings"
	"time"
)

// Direction is the travel direction along a route as reported by the
// Daegu open-data API ("moveDir" field).
type Direction string

const (
	DirectionUp   Direction = "0" // upbound (상행)
	DirectionDown Direction = "1" // downbound (하행)
)

// ParseDirection normalizes a wire moveDir value. Anything other than the
// two documented values is returned as-is so callers can still filter on it.
func ParseDirection(s string) Direction {
	return Direction(strings.TrimSpace(s))
}

// Route is one entry of the route catalog. Several catalog entries may
// share the same RouteNo (branch/express variants, legacy ids); RouteID is
// the unique system identifier.
type Route struct {
	RouteNo string `json:"routeNo"`
	RouteID string `json:"routeId"`
	Note    string `json:"routeNote,omitempty"`
}

// Station is one stop of a route, in sequence order.
type Station struct {
	StationID     string    `json:"stationId"`
	Name          string    `json:"name"`
	Direction     Direction `json:"direction"`
	SequenceIndex int       `json:"seq"`
	X             float64   `json:"x"`
	Y             float64   `json:"y"`
}

// VehiclePosition is a live bus position at poll time. It carries no
// identity across polls: the same bus may land on a different index on the
// next fetch.
type VehiclePosition struct {
	VehicleNo         string    `json:"vehicleNo"`
	AtStationID       string    `json:"atStationId"`
	AtStationName     string    `json:"atStationName,omitempty"`
	Direction         Direction `json:"direction"`
	StationsRemaining int       `json:"stationsRemaining"`
	ArrivalClock      string    `json:"arrivalClock,omitempty"` // HHMMSS, local time
	X                 float64   `json:"x"`
	Y                 float64   `json:"y"`
}

// Arrival is a per-stop arrival prediction.
type Arrival struct {
	RouteNo      string `json:"routeNo"`
	RouteID      string `json:"routeId,omitempty"`
	ArrivalSecs  int    `json:"arrivalSecs"`
	StationsAway int    `json:"stationsAway"`
}

// gyeongsanPrefix marks routeIds operated by neighboring Gyeongsan city,
// which the UI styles differently.
const gyeongsanPrefix = "360"

// IsGyeongsanRoute reports whether a routeId belongs to the Gyeongsan
// inter-city network.
func IsGyeongsanRoute(routeID string) bool {
	return strings.HasPrefix(routeID, gyeongsanPrefix)
}

// ArrivalClockStatus renders an HHMMSS pass-through stamp relative to now:
// "방금 도착" within the first minute, otherwise "HH:MM 통과". Empty input
// or a malformed stamp yields "".
func ArrivalClockStatus(clock string, now time.Time) string {
	t, err := ParseArrivalClock(clock, now)
	if err != nil {
		return ""
	}
	diff := now.Sub(t)
	if diff >= 0 && diff < time.Minute {
		return "방금 도착"
	}
	return fmt.Sprintf("%02d:%02d 통과", t.Hour(), t.Minute())
}

// ParseArrivalClock interprets an HHMMSS stamp on the calendar date of now,
// in now's location.
func ParseArrivalClock(clock string, now time.Time) (time.Time, error) {
	if len(clock) != 6 {
		return time.Time{}, fmt.Errorf("malformed arrival clock %q", clock)
	}
	var h, m, s int
	if _, err := fmt.Sscanf(clock, "%02d%02d%02d", &h, &m, &s); err != nil {
		return time.Time{}, fmt.Errorf("malformed arrival clock %q: %w", clock, err)
	}
	if h > 23 || m > 59 || s > 59 {
		return time.Time{}, fmt.Errorf("arrival clock %q out of range", clock)
	}
	return time.Date(now.Year(), now.Month(), now.Day(), h, m, s, 0, now.Location()), nil
}
