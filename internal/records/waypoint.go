package records

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/danmuck/hxctl/internal/protocol/ascii"
	"github.com/danmuck/hxctl/internal/protocol/layout"
)

const waypointModule = "waypoints"

// Waypoint record fields.
const (
	latOffset   = 0
	lonOffset   = 5
	coordBytes  = 5
	wpNameStart = 10
	wpNameEnd   = 26
	// MaxWaypointNameChars keeps one pad byte at the end of the name field.
	MaxWaypointNameChars = wpNameEnd - wpNameStart - 1
)

// Coordinate is a position on one axis in degrees and decimal minutes with
// four fractional digits, the resolution of the radio.
type Coordinate struct {
	Degrees int
	// Minutes is in ten-thousandths of a minute (0..599999).
	Minutes    int
	Hemisphere byte
}

func (c Coordinate) isLongitude() bool {
	return c.Hemisphere == 'E' || c.Hemisphere == 'W'
}

// String renders "DD MM.mmmm H" for latitudes and "DDD MM.mmmm H" for
// longitudes.
func (c Coordinate) String() string {
	width := 2
	if c.isLongitude() {
		width = 3
	}
	return fmt.Sprintf("%0*d %02d.%04d %c", width, c.Degrees, c.Minutes/10000, c.Minutes%10000, c.Hemisphere)
}

func (c Coordinate) validate() string {
	maxDeg := 90
	if c.isLongitude() {
		maxDeg = 180
	}
	switch {
	case c.Degrees < 0 || c.Degrees > maxDeg:
		return fmt.Sprintf("degrees %d out of range 0..%d", c.Degrees, maxDeg)
	case c.Minutes < 0 || c.Minutes >= 60*10000:
		return fmt.Sprintf("minutes %d.%04d out of range", c.Minutes/10000, c.Minutes%10000)
	case c.Degrees == maxDeg && c.Minutes != 0:
		return fmt.Sprintf("%s exceeds %d degrees", c, maxDeg)
	}
	return ""
}

// ParseLatitude parses "DD MM.mmmm N|S".
func ParseLatitude(s string) (Coordinate, error) {
	return parseCoordinate(s, "NS")
}

// ParseLongitude parses "DDD MM.mmmm E|W".
func ParseLongitude(s string) (Coordinate, error) {
	return parseCoordinate(s, "EW")
}

func parseCoordinate(s, hemispheres string) (Coordinate, error) {
	fields := strings.Fields(s)
	if len(fields) != 3 || len(fields[2]) != 1 || !strings.Contains(hemispheres, strings.ToUpper(fields[2])) {
		return Coordinate{}, invalid(waypointModule, s, "coordinate must look like \"DD MM.mmmm %c\"", hemispheres[0])
	}
	deg, err := strconv.Atoi(fields[0])
	if err != nil {
		return Coordinate{}, invalid(waypointModule, s, "degrees: %v", err)
	}
	whole, frac, _ := strings.Cut(fields[1], ".")
	if len(frac) > 4 {
		return Coordinate{}, invalid(waypointModule, s, "minutes carry more than 4 decimals")
	}
	frac += strings.Repeat("0", 4-len(frac))
	mins, err1 := strconv.Atoi(whole)
	fr, err2 := strconv.Atoi(frac)
	if err1 != nil || err2 != nil || fr < 0 {
		return Coordinate{}, invalid(waypointModule, s, "malformed minutes %q", fields[1])
	}
	c := Coordinate{Degrees: deg, Minutes: mins*10000 + fr, Hemisphere: strings.ToUpper(fields[2])[0]}
	if reason := c.validate(); reason != "" {
		return Coordinate{}, invalid(waypointModule, s, "%s", reason)
	}
	return c, nil
}

// Waypoint is one slot of the waypoint table. ID is the slot index routes
// refer to.
type Waypoint struct {
	ID        int
	Name      string
	Latitude  Coordinate
	Longitude Coordinate
	Address   int
}

// IsUnusedWaypoint reports whether a waypoint record marks an empty slot.
func IsUnusedWaypoint(rec []byte) bool {
	return len(rec) == 0 || rec[0] == ascii.Pad
}

// DecodeWaypoint decodes one waypoint record stored at address.
func DecodeWaypoint(rec []byte, id, address int) (Waypoint, bool, error) {
	if len(rec) != layout.WaypointBytes {
		return Waypoint{}, false, fmt.Errorf("records: waypoint record must be %d bytes, got %d", layout.WaypointBytes, len(rec))
	}
	if IsUnusedWaypoint(rec) {
		return Waypoint{}, false, nil
	}
	subject := fmt.Sprintf("waypoint %d at %#04x", id, address)
	lat, err := decodeCoordinate(rec[latOffset:latOffset+coordBytes], 2, "NS")
	if err != nil {
		return Waypoint{}, false, invalid(waypointModule, subject, "latitude: %v", err)
	}
	lon, err := decodeCoordinate(rec[lonOffset:lonOffset+coordBytes], 3, "EW")
	if err != nil {
		return Waypoint{}, false, invalid(waypointModule, subject, "longitude: %v", err)
	}
	return Waypoint{
		ID:        id,
		Name:      ascii.DecodeName(rec[wpNameStart:wpNameEnd]),
		Latitude:  lat,
		Longitude: lon,
		Address:   address,
	}, true, nil
}

// EncodeWaypoint writes w into rec, which spans exactly one waypoint record.
// Only the coordinate and name fields are written; the trailing bytes keep
// whatever rec already holds.
func EncodeWaypoint(w Waypoint, rec []byte) error {
	if len(rec) != layout.WaypointBytes {
		return fmt.Errorf("records: waypoint record must be %d bytes, got %d", layout.WaypointBytes, len(rec))
	}
	if w.Name == "" {
		return invalid(waypointModule, fmt.Sprintf("waypoint %d", w.ID), "name is empty")
	}
	if len(w.Name) > MaxWaypointNameChars {
		return invalid(waypointModule, w.Name, "name longer than %d characters", MaxWaypointNameChars)
	}
	for _, c := range []Coordinate{w.Latitude, w.Longitude} {
		if reason := c.validate(); reason != "" {
			return invalid(waypointModule, w.Name, "%s", reason)
		}
	}
	if err := encodeCoordinate(w.Latitude, 2, "NS", rec[latOffset:latOffset+coordBytes]); err != nil {
		return invalid(waypointModule, w.Name, "latitude: %v", err)
	}
	if err := encodeCoordinate(w.Longitude, 3, "EW", rec[lonOffset:lonOffset+coordBytes]); err != nil {
		return invalid(waypointModule, w.Name, "longitude: %v", err)
	}
	if err := ascii.EncodeName(w.Name, rec[wpNameStart:wpNameEnd]); err != nil {
		return invalid(waypointModule, w.Name, "name: %v", err)
	}
	return nil
}

// decodeCoordinate reads degrees, minutes and the hemisphere nibble from a
// packed digit field.
func decodeCoordinate(b []byte, degDigits int, hemispheres string) (Coordinate, error) {
	digits := ascii.HexBytes(b)
	n := degDigits + 6
	if !ascii.IsDecimal(digits[:n+1]) {
		return Coordinate{}, fmt.Errorf("%w: % X", ascii.ErrInvalidDigit, b)
	}
	deg, _ := strconv.Atoi(digits[:degDigits])
	mins, _ := strconv.Atoi(digits[degDigits:n])
	h := digits[n] - '0'
	if int(h) >= len(hemispheres) {
		return Coordinate{}, fmt.Errorf("hemisphere nibble %d", h)
	}
	c := Coordinate{Degrees: deg, Minutes: mins, Hemisphere: hemispheres[h]}
	if reason := c.validate(); reason != "" {
		return Coordinate{}, fmt.Errorf("%s", reason)
	}
	return c, nil
}

func encodeCoordinate(c Coordinate, degDigits int, hemispheres string, dst []byte) error {
	h := strings.IndexByte(hemispheres, c.Hemisphere)
	if h < 0 {
		return fmt.Errorf("hemisphere %q (want one of %s)", c.Hemisphere, hemispheres)
	}
	digits := fmt.Sprintf("%0*d%06d%d", degDigits, c.Degrees, c.Minutes, h)
	return ascii.EncodeDigits(digits, dst)
}
