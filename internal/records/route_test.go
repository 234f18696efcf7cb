package records

import (
	"bytes"
	"errors"
	"reflect"
	"testing"

	"github.com/danmuck/hxctl/internal/protocol/layout"
	"github.com/danmuck/hxctl/internal/testutil/testlog"
)

var hx870Routes = layout.RouteTable{Start: 0x5c00, Count: 20, WaypointsPerRoute: 16, BytesPerRoute: 32}

func TestRouteRoundTripRotates(t *testing.T) {
	testlog.Start(t)
	route := Route{Name: "HARBOR LOOP", WaypointIDs: []int{3, 7, 11, 2}}
	rec := make([]byte, 32)
	if err := EncodeRoute(route, rec, 16); err != nil {
		t.Fatalf("encode: %v", err)
	}
	// stored one element after the displayed start
	if !bytes.Equal(rec[:5], []byte{2, 3, 7, 11, 0xFF}) {
		t.Fatalf("unexpected stored ids % X", rec[:5])
	}
	if string(rec[16:27]) != "HARBOR LOOP" || rec[27] != 0xFF {
		t.Fatalf("unexpected name field % X", rec[16:])
	}

	got, ok, err := DecodeRoute(rec, 16)
	if err != nil || !ok {
		t.Fatalf("decode ok=%v err=%v", ok, err)
	}
	if !reflect.DeepEqual(got, route) {
		t.Fatalf("round trip got=%+v want=%+v", got, route)
	}
}

func TestRouteSingleWaypoint(t *testing.T) {
	rec := make([]byte, 64)
	route := Route{Name: "ONE", WaypointIDs: []int{42}}
	if err := EncodeRoute(route, rec, 31); err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, ok, err := DecodeRoute(rec, 31)
	if err != nil || !ok || !reflect.DeepEqual(got, route) {
		t.Fatalf("got=%+v ok=%v err=%v", got, ok, err)
	}
	if string(rec[32:35]) != "ONE" {
		t.Fatalf("hx890 name field must start at byte 32")
	}
}

func TestDecodeRouteAbsent(t *testing.T) {
	rec := bytes.Repeat([]byte{0xFF}, 32)
	rec[1] = 0x04
	copy(rec[16:], "IGNORED")
	if _, ok, err := DecodeRoute(rec, 16); ok || err != nil {
		t.Fatalf("first slot pad must mean absent, ok=%v err=%v", ok, err)
	}
}

func TestEncodeRouteValidation(t *testing.T) {
	testlog.Start(t)
	tooMany := make([]int, 17)
	cases := map[string]Route{
		"empty":     {Name: "EMPTY"},
		"too many":  {Name: "LONG", WaypointIDs: tooMany},
		"long name": {Name: "SIXTEEN CHARS!!!", WaypointIDs: []int{1}},
		"bad id":    {Name: "BAD", WaypointIDs: []int{0xFF}},
	}
	for label, r := range cases {
		err := EncodeRoute(r, make([]byte, 32), 16)
		if !errors.Is(err, ErrValidation) {
			t.Fatalf("%s: expected ErrValidation, got %v", label, err)
		}
	}
	if err := EncodeRoute(Route{Name: "FIFTEEN CHARS!!", WaypointIDs: []int{1}}, make([]byte, 32), 16); err != nil {
		t.Fatalf("15 characters must be accepted: %v", err)
	}
}

func TestEncodeRoutesSortsAndPads(t *testing.T) {
	testlog.Start(t)
	table := make([]byte, hx870Routes.Count*hx870Routes.BytesPerRoute)
	routes := []Route{
		{Name: "b", WaypointIDs: []int{1, 2}},
		{Name: "B", WaypointIDs: []int{3}},
		{Name: "a", WaypointIDs: []int{4, 5, 6}},
	}
	if err := EncodeRoutes(routes, table, hx870Routes); err != nil {
		t.Fatalf("encode routes: %v", err)
	}
	got, err := DecodeRoutes(table, hx870Routes)
	if err != nil {
		t.Fatalf("decode routes: %v", err)
	}
	names := []string{}
	for _, r := range got {
		names = append(names, r.Name)
	}
	if !reflect.DeepEqual(names, []string{"B", "a", "b"}) {
		t.Fatalf("unexpected slot order %v", names)
	}
	if !bytes.Equal(table[3*32:], bytes.Repeat([]byte{0xFF}, len(table)-3*32)) {
		t.Fatalf("unused slots must be pad-filled")
	}
	if !reflect.DeepEqual(got[1].WaypointIDs, []int{4, 5, 6}) {
		t.Fatalf("unexpected ids %v", got[1].WaypointIDs)
	}
}

func TestEncodeRoutesTooMany(t *testing.T) {
	rt := layout.RouteTable{Count: 1, WaypointsPerRoute: 16, BytesPerRoute: 32}
	routes := []Route{{Name: "A", WaypointIDs: []int{1}}, {Name: "B", WaypointIDs: []int{2}}}
	if err := EncodeRoutes(routes, make([]byte, 32), rt); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}
