package records

import (
	"fmt"
	"sort"
	"strings"

	"github.com/danmuck/hxctl/internal/protocol/ascii"
	"github.com/danmuck/hxctl/internal/protocol/layout"
)

const routeModule = "routes"

// Route is a named sequence of waypoint ids in display order.
type Route struct {
	Name        string
	WaypointIDs []int
}

// rotateLeft moves the first element to the end.
func rotateLeft(ids []int) []int {
	if len(ids) < 2 {
		return append([]int(nil), ids...)
	}
	return append(append([]int(nil), ids[1:]...), ids[0])
}

// rotateRight moves the last element to the front.
func rotateRight(ids []int) []int {
	if len(ids) < 2 {
		return append([]int(nil), ids...)
	}
	out := make([]int, 0, len(ids))
	out = append(out, ids[len(ids)-1])
	return append(out, ids[:len(ids)-1]...)
}

func routeNameOffset(bytesPerRoute int) int {
	return bytesPerRoute / 2
}

// DecodeRoute decodes one route record. A record whose first waypoint slot is
// the pad byte is unused and reports ok=false.
func DecodeRoute(rec []byte, maxWaypoints int) (route Route, ok bool, err error) {
	nameAt := routeNameOffset(len(rec))
	if maxWaypoints <= 0 || maxWaypoints > nameAt || nameAt+layout.RouteNameLen > len(rec) {
		return Route{}, false, fmt.Errorf("records: route record of %d bytes cannot hold %d waypoints", len(rec), maxWaypoints)
	}
	if rec[0] == ascii.Pad {
		return Route{}, false, nil
	}
	stored := make([]int, 0, maxWaypoints)
	for _, b := range rec[:maxWaypoints] {
		if b == ascii.Pad {
			break
		}
		stored = append(stored, int(b))
	}
	return Route{
		Name:        ascii.DecodeName(rec[nameAt : nameAt+layout.RouteNameLen]),
		WaypointIDs: rotateLeft(stored),
	}, true, nil
}

// ValidateRoute checks the name length and the waypoint count.
func ValidateRoute(r Route, maxWaypoints int) error {
	if len(r.Name) > layout.MaxRouteNameChars {
		return invalid(routeModule, r.Name, "name longer than %d characters", layout.MaxRouteNameChars)
	}
	if len(r.WaypointIDs) == 0 {
		return invalid(routeModule, r.Name, "route has no waypoints")
	}
	if len(r.WaypointIDs) > maxWaypoints {
		return invalid(routeModule, r.Name, "too many waypoints (found %d, max is %d)", len(r.WaypointIDs), maxWaypoints)
	}
	for _, id := range r.WaypointIDs {
		if id < 0 || id >= int(ascii.Pad) {
			return invalid(routeModule, r.Name, "waypoint id %d does not fit a route slot", id)
		}
	}
	return nil
}

// EncodeRoute writes r into rec, which spans exactly one route record.
func EncodeRoute(r Route, rec []byte, maxWaypoints int) error {
	if err := ValidateRoute(r, maxWaypoints); err != nil {
		return err
	}
	nameAt := routeNameOffset(len(rec))
	if maxWaypoints > nameAt || nameAt+layout.RouteNameLen > len(rec) {
		return fmt.Errorf("records: route record of %d bytes cannot hold %d waypoints", len(rec), maxWaypoints)
	}
	for i := range rec {
		rec[i] = ascii.Pad
	}
	for i, id := range rotateRight(r.WaypointIDs) {
		rec[i] = byte(id)
	}
	if err := ascii.EncodeName(r.Name, rec[nameAt:nameAt+layout.RouteNameLen]); err != nil {
		return invalid(routeModule, r.Name, "name: %v", err)
	}
	return nil
}

// EncodeRoutes sorts routes by name and writes them into consecutive slots
// of table. Slots left over are filled with the pad byte.
func EncodeRoutes(routes []Route, table []byte, rt layout.RouteTable) error {
	if len(table) != rt.Count*rt.BytesPerRoute {
		return fmt.Errorf("records: route table is %d bytes, want %d", len(table), rt.Count*rt.BytesPerRoute)
	}
	if len(routes) > rt.Count {
		return invalid(routeModule, "", "too many routes (found %d, max is %d)", len(routes), rt.Count)
	}
	sorted := append([]Route(nil), routes...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return strings.Compare(sorted[i].Name, sorted[j].Name) < 0
	})
	for i := range table {
		table[i] = ascii.Pad
	}
	for i, r := range sorted {
		off := i * rt.BytesPerRoute
		if err := EncodeRoute(r, table[off:off+rt.BytesPerRoute], rt.WaypointsPerRoute); err != nil {
			return err
		}
	}
	return nil
}

// DecodeRoutes decodes every used slot of a route table in slot order.
func DecodeRoutes(table []byte, rt layout.RouteTable) ([]Route, error) {
	var out []Route
	for slot := 0; slot < rt.Count; slot++ {
		off := slot * rt.BytesPerRoute
		if off+rt.BytesPerRoute > len(table) {
			return nil, fmt.Errorf("records: route table truncated at slot %d", slot)
		}
		r, ok, err := DecodeRoute(table[off:off+rt.BytesPerRoute], rt.WaypointsPerRoute)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, r)
		}
	}
	return out, nil
}
