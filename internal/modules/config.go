package modules

import (
	"slices"

	"github.com/danmuck/hxctl/internal/records"
)

// Config is the decoded state of one radio. Nil slices mean the table was
// not decoded; empty slices mean it was decoded and holds nothing.
type Config struct {
	MMSI string
	ATIS string

	Channels            []records.Channel
	Waypoints           []records.Waypoint
	Routes              []records.Route
	IndividualDirectory []records.DirectoryEntry
	GroupDirectory      []records.DirectoryEntry
}

// Clone returns a deep copy safe to hand to observers.
func (c *Config) Clone() *Config {
	if c == nil {
		return &Config{}
	}
	out := &Config{
		MMSI:                c.MMSI,
		ATIS:                c.ATIS,
		Channels:            slices.Clone(c.Channels),
		Waypoints:           slices.Clone(c.Waypoints),
		IndividualDirectory: slices.Clone(c.IndividualDirectory),
		GroupDirectory:      slices.Clone(c.GroupDirectory),
	}
	for i := range out.Channels {
		if s := out.Channels[i].Scrambler; s != nil {
			cp := *s
			out.Channels[i].Scrambler = &cp
		}
	}
	if c.Routes != nil {
		out.Routes = make([]records.Route, len(c.Routes))
		for i, r := range c.Routes {
			out.Routes[i] = records.Route{Name: r.Name, WaypointIDs: slices.Clone(r.WaypointIDs)}
		}
	}
	return out
}

// Empty reports whether nothing has been decoded yet.
func (c *Config) Empty() bool {
	return c.MMSI == "" && c.ATIS == "" && c.Channels == nil && c.Waypoints == nil &&
		c.Routes == nil && c.IndividualDirectory == nil && c.GroupDirectory == nil
}

// WaypointName resolves a waypoint id to its name.
func (c *Config) WaypointName(id int) (string, bool) {
	for _, w := range c.Waypoints {
		if w.ID == id {
			return w.Name, true
		}
	}
	return "", false
}
