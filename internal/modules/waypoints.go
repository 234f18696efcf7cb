package modules

import (
	"sort"

	"github.com/danmuck/hxctl/internal/batch"
	"github.com/danmuck/hxctl/internal/document"
	"github.com/danmuck/hxctl/internal/protocol/ascii"
	"github.com/danmuck/hxctl/internal/protocol/layout"
	"github.com/danmuck/hxctl/internal/records"
	"gopkg.in/yaml.v3"
)

const keyWaypoints = "waypoints"

type waypointEntry struct {
	ID   *int   `yaml:"id,omitempty"`
	Name string `yaml:"name"`
	Lat  string `yaml:"lat"`
	Lon  string `yaml:"lon"`
}

// Waypoints maps the waypoint table. The slot index is the waypoint id that
// routes refer to.
type Waypoints struct {
	table layout.WaypointTable
}

func NewWaypoints(l *layout.Layout) *Waypoints {
	return &Waypoints{table: l.Waypoints}
}

func (m *Waypoints) Name() string { return keyWaypoints }

func (m *Waypoints) AddRanges(r *batch.Reader) error {
	return r.AddRange(keyWaypoints, m.table.Start, m.table.Start+m.table.Count*layout.WaypointBytes)
}

func (m *Waypoints) Decode(res batch.Results, cfg *Config, doc *yaml.Node) error {
	data, ok := res.Get(keyWaypoints)
	if !ok {
		return nil
	}
	waypoints := make([]records.Waypoint, 0)
	entries := make([]waypointEntry, 0)
	for id := 0; id < m.table.Count; id++ {
		off := id * layout.WaypointBytes
		w, used, err := records.DecodeWaypoint(data[off:off+layout.WaypointBytes], id, m.table.Start+off)
		if err != nil {
			return err
		}
		if !used {
			continue
		}
		waypoints = append(waypoints, w)
		slot := id
		entries = append(entries, waypointEntry{ID: &slot, Name: w.Name, Lat: w.Latitude.String(), Lon: w.Longitude.String()})
	}
	cfg.Waypoints = waypoints
	if len(entries) == 0 {
		return nil
	}
	return appendValue(doc, keyWaypoints, entries)
}

// Encode places entries with an explicit id in that slot and the rest in the
// lowest free slots, in document order. Records start from the table as last
// read and used slots missing from the document are cleared.
func (m *Waypoints) Encode(doc *yaml.Node, wc *WriteContext) (bool, error) {
	node := document.Lookup(doc, keyWaypoints)
	if node == nil {
		return false, nil
	}
	if err := document.Expect(node, yaml.SequenceNode, keyWaypoints); err != nil {
		return false, err
	}
	t := m.table

	entries := make([]waypointEntry, len(node.Content))
	plan := make([]slotted, len(node.Content))
	for i, item := range node.Content {
		if err := document.Decode(item, &entries[i]); err != nil {
			return false, err
		}
		plan[i] = slotted{node: item, subject: entries[i].Name, slot: entries[i].ID}
	}
	ids, err := planSlots(keyWaypoints, "id", node, plan, t.Count)
	if err != nil {
		return false, err
	}

	data := wc.baseline(keyWaypoints, t.Count*layout.WaypointBytes, ascii.Pad)
	recordAt := func(id int) []byte {
		return data[id*layout.WaypointBytes : (id+1)*layout.WaypointBytes]
	}
	wanted := make(map[int]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}
	for id := 0; id < t.Count; id++ {
		if !wanted[id] && !records.IsUnusedWaypoint(recordAt(id)) {
			fill(recordAt(id), ascii.Pad)
		}
	}

	waypoints := make([]records.Waypoint, 0, len(entries))
	for i, e := range entries {
		item, id := node.Content[i], ids[i]
		lat, err := records.ParseLatitude(e.Lat)
		if err != nil {
			return false, document.At(item, err)
		}
		lon, err := records.ParseLongitude(e.Lon)
		if err != nil {
			return false, document.At(item, err)
		}
		w := records.Waypoint{ID: id, Name: e.Name, Latitude: lat, Longitude: lon, Address: t.Start + id*layout.WaypointBytes}
		if err := records.EncodeWaypoint(w, recordAt(id)); err != nil {
			return false, document.At(item, err)
		}
		waypoints = append(waypoints, w)
	}
	sort.Slice(waypoints, func(i, j int) bool { return waypoints[i].ID < waypoints[j].ID })

	if err := wc.Writer.Prepare(keyWaypoints, t.Start, data); err != nil {
		return false, err
	}
	wc.Out.Waypoints = waypoints
	wc.record(keyWaypoints, len(waypoints), t.Count)
	return true, nil
}
