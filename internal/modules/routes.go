package modules

import (
	"fmt"

	"github.com/danmuck/hxctl/internal/batch"
	"github.com/danmuck/hxctl/internal/document"
	"github.com/danmuck/hxctl/internal/protocol/layout"
	"github.com/danmuck/hxctl/internal/records"
	"gopkg.in/yaml.v3"
)

const keyRoutes = "routes"

// Routes maps the route table. Routes reference waypoints by id on the radio
// and by name in the document, so both directions need the waypoint table.
type Routes struct {
	table layout.RouteTable
}

func NewRoutes(l *layout.Layout) *Routes {
	return &Routes{table: l.Routes}
}

func (m *Routes) Name() string { return keyRoutes }

func (m *Routes) AddRanges(r *batch.Reader) error {
	return r.AddRange(keyRoutes, m.table.Start, m.table.Start+m.table.Count*m.table.BytesPerRoute)
}

func (m *Routes) Decode(res batch.Results, cfg *Config, doc *yaml.Node) error {
	data, ok := res.Get(keyRoutes)
	if !ok {
		return nil
	}
	if cfg.Waypoints == nil {
		return records.ValidationError{Module: keyRoutes, Reason: "waypoints must be decoded before routes"}
	}
	routes, err := records.DecodeRoutes(data, m.table)
	if err != nil {
		return err
	}
	if routes == nil {
		routes = []records.Route{}
	}
	cfg.Routes = routes
	if len(routes) == 0 {
		return nil
	}
	entries := make([]map[string][]string, 0, len(routes))
	for _, r := range routes {
		names := make([]string, 0, len(r.WaypointIDs))
		for _, id := range r.WaypointIDs {
			name, ok := cfg.WaypointName(id)
			if !ok {
				name = fmt.Sprintf("? (%d)", id)
			}
			names = append(names, name)
		}
		entries = append(entries, map[string][]string{r.Name: names})
	}
	return appendValue(doc, keyRoutes, entries)
}

func (m *Routes) Encode(doc *yaml.Node, wc *WriteContext) (bool, error) {
	node := document.Lookup(doc, keyRoutes)
	if node == nil {
		return false, nil
	}
	if err := document.Expect(node, yaml.SequenceNode, keyRoutes); err != nil {
		return false, err
	}
	if wc.Out.Waypoints == nil {
		return false, document.At(node, records.ValidationError{
			Module: keyRoutes,
			Reason: "waypoints must be declared before routes",
		})
	}

	routes := make([]records.Route, 0, len(node.Content))
	for _, item := range node.Content {
		r, err := m.parseRoute(item, wc.Out)
		if err != nil {
			return false, err
		}
		routes = append(routes, r)
	}

	data := make([]byte, m.table.Count*m.table.BytesPerRoute)
	if err := records.EncodeRoutes(routes, data, m.table); err != nil {
		return false, document.At(node, err)
	}
	if err := wc.Writer.Prepare(keyRoutes, m.table.Start, data); err != nil {
		return false, err
	}
	wc.Out.Routes = routes
	wc.record(keyRoutes, len(routes), m.table.Count)
	return true, nil
}

// parseRoute reads one `NAME: [waypoint, ...]` item.
func (m *Routes) parseRoute(item *yaml.Node, out *Config) (records.Route, error) {
	if item.Kind != yaml.MappingNode || len(item.Content) != 2 ||
		item.Content[0].Kind != yaml.ScalarNode || item.Content[1].Kind != yaml.SequenceNode {
		return records.Route{}, document.Errorf(item, "%w: route must be a single `name: [waypoints]` entry", document.ErrNodeType)
	}
	name := item.Content[0].Value
	seq := item.Content[1]
	r := records.Route{Name: name, WaypointIDs: make([]int, 0, len(seq.Content))}
	for _, wp := range seq.Content {
		if wp.Kind != yaml.ScalarNode {
			return records.Route{}, document.Errorf(wp, "%w: route %q waypoint must be a name", document.ErrNodeType, name)
		}
		id, err := resolveWaypoint(wp.Value, out.Waypoints)
		if err != nil {
			return records.Route{}, document.At(wp, err)
		}
		r.WaypointIDs = append(r.WaypointIDs, id)
	}
	if err := records.ValidateRoute(r, m.table.WaypointsPerRoute); err != nil {
		return records.Route{}, document.At(item, err)
	}
	return r, nil
}

func resolveWaypoint(name string, waypoints []records.Waypoint) (int, error) {
	found := -1
	for _, w := range waypoints {
		if w.Name != name {
			continue
		}
		if found >= 0 {
			return 0, records.ValidationError{Module: keyRoutes, Subject: name, Reason: "multiple waypoints with this name"}
		}
		found = w.ID
	}
	if found < 0 {
		return 0, records.ValidationError{Module: keyRoutes, Subject: name, Reason: "waypoint not found"}
	}
	return found, nil
}
