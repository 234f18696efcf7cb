// Package layout holds the static memory maps of the supported radios.
//
// Layouts are data, not behavior: every codec and module receives the layout
// of the connected model as an explicit parameter. Values are process-wide
// constants and must never be mutated.
package layout

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

const (
	MMSIBytes         = 6
	MMSIDigits        = 9
	ATISBytes         = 5
	ATISDigits        = 10
	WaypointBytes     = 32
	ChannelFlagBytes  = 4
	EnableBitmapBytes = 8
	DirectoryNumBytes = 5
	DirectoryNameLen  = 16
	RouteNameLen      = 16
	// MaxRouteNameChars leaves room for at least one pad byte in the name field.
	MaxRouteNameChars = 15
)

var ErrUnsupportedDevice = errors.New("layout: unsupported device")

// WaypointTable describes the fixed waypoint records.
type WaypointTable struct {
	Start int
	Count int
}

// RouteTable describes the fixed route records.
type RouteTable struct {
	Start             int
	Count             int
	WaypointsPerRoute int
	BytesPerRoute     int
}

// ChannelTable describes the channel flag records, the enable bitmap and the
// channel name records. Count is bounded by the 64-bit enable bitmap.
//
// No channel table address has been confirmed against a radio or a vendor
// memory map yet. Writers must treat the table as unverified.
type ChannelTable struct {
	FlagsStart   int
	EnabledStart int
	NamesStart   int
	Count        int
	NameBytes    int
}

// DirectoryTable describes an MMSI directory (numbers and names stored apart).
type DirectoryTable struct {
	NumbersStart int
	NamesStart   int
	Count        int
}

// Layout is the memory map of one radio model.
type Layout struct {
	Model        string
	USBVendorID  uint16
	USBProductID uint16

	MMSIAddress int
	// ATISAddress is 0 on models without an ATIS identifier. The HX890
	// address is unconfirmed and only ever read.
	ATISAddress int

	Waypoints           WaypointTable
	Routes              RouteTable
	Channels            ChannelTable
	IndividualDirectory DirectoryTable
	GroupDirectory      DirectoryTable

	ImageLength int
	// ImageMagic is the prefix of a memory image. Empty means images of this
	// model cannot be told apart and must be opened with an explicit model.
	ImageMagic string
}

// Region is one named address interval of a layout.
type Region struct {
	Name  string
	Start int
	End   int
}

var hx890 = Layout{
	Model:        "HX890",
	USBVendorID:  9898,
	USBProductID: 30,
	MMSIAddress:  0x00b0,
	ATISAddress:  0x00b6,
	Waypoints:    WaypointTable{Start: 0xd700, Count: 250},
	Routes:       RouteTable{Start: 0xc700, Count: 20, WaypointsPerRoute: 31, BytesPerRoute: 64},
	Channels: ChannelTable{
		FlagsStart:   0x0100,
		EnabledStart: 0x0200,
		NamesStart:   0x0300,
		Count:        64,
		NameBytes:    16,
	},
	IndividualDirectory: DirectoryTable{NumbersStart: 0x4200, NamesStart: 0x4500, Count: 100},
	GroupDirectory:      DirectoryTable{NumbersStart: 0x5000, NamesStart: 0x5100, Count: 20},
	ImageLength:         0x10000,
	ImageMagic:          "\x03\x7a",
}

var hx870 = Layout{
	Model:        "HX870",
	USBVendorID:  9898,
	USBProductID: 16,
	MMSIAddress:  0x00b0,
	Waypoints:    WaypointTable{Start: 0x4300, Count: 200},
	Routes:       RouteTable{Start: 0x5c00, Count: 20, WaypointsPerRoute: 16, BytesPerRoute: 32},
	Channels: ChannelTable{
		FlagsStart:   0x0100,
		EnabledStart: 0x0200,
		NamesStart:   0x0300,
		Count:        64,
		NameBytes:    16,
	},
	IndividualDirectory: DirectoryTable{NumbersStart: 0x3500, NamesStart: 0x3730, Count: 100},
	GroupDirectory:      DirectoryTable{NumbersStart: 0x3e00, NamesStart: 0x3e80, Count: 20},
	ImageLength:         0x8000,
	ImageMagic:          "\x03\x67",
}

// hx891bt shares the HX890 memory map but has no known image signature.
var hx891bt = func() Layout {
	l := hx890
	l.Model = "HX891BT"
	l.USBVendorID = 0
	l.USBProductID = 0
	l.ImageMagic = ""
	return l
}()

var all = []*Layout{&hx890, &hx870, &hx891bt}

// All returns every supported layout in lookup order.
func All() []*Layout {
	out := make([]*Layout, len(all))
	copy(out, all)
	return out
}

// Models lists supported model tags.
func Models() []string {
	out := make([]string, 0, len(all))
	for _, l := range all {
		out = append(out, l.Model)
	}
	return out
}

// ByModel resolves a model tag case-insensitively.
func ByModel(model string) (*Layout, error) {
	tag := strings.ToUpper(strings.TrimSpace(model))
	for _, l := range all {
		if l.Model == tag {
			return l, nil
		}
	}
	return nil, fmt.Errorf("%w: model %q (supported: %s)", ErrUnsupportedDevice, model, strings.Join(Models(), ", "))
}

// ByUSB resolves the layout advertised by a USB vendor/product pair.
func ByUSB(vendorID, productID uint16) (*Layout, error) {
	for _, l := range all {
		if l.USBVendorID != 0 && l.USBVendorID == vendorID && l.USBProductID == productID {
			return l, nil
		}
	}
	return nil, fmt.Errorf("%w: usb %04x:%04x", ErrUnsupportedDevice, vendorID, productID)
}

// DetectImage identifies a memory image by exact length and magic prefix.
func DetectImage(image []byte) (*Layout, error) {
	for _, l := range all {
		if l.ImageMagic == "" || len(image) != l.ImageLength {
			continue
		}
		if strings.HasPrefix(string(image[:len(l.ImageMagic)]), l.ImageMagic) {
			return l, nil
		}
	}
	prefix := image
	if len(prefix) > 2 {
		prefix = prefix[:2]
	}
	return nil, fmt.Errorf("%w: image length %d, magic % x", ErrUnsupportedDevice, len(image), prefix)
}

// Regions lists every table of the layout ordered by start address.
func (l *Layout) Regions() []Region {
	regions := []Region{
		{Name: "mmsi", Start: l.MMSIAddress, End: l.MMSIAddress + MMSIBytes},
		{Name: "waypoints", Start: l.Waypoints.Start, End: l.Waypoints.Start + l.Waypoints.Count*WaypointBytes},
		{Name: "routes", Start: l.Routes.Start, End: l.Routes.Start + l.Routes.Count*l.Routes.BytesPerRoute},
		{Name: "channel_flags", Start: l.Channels.FlagsStart, End: l.Channels.FlagsStart + l.Channels.Count*ChannelFlagBytes},
		{Name: "channel_enabled", Start: l.Channels.EnabledStart, End: l.Channels.EnabledStart + EnableBitmapBytes},
		{Name: "channel_names", Start: l.Channels.NamesStart, End: l.Channels.NamesStart + l.Channels.Count*l.Channels.NameBytes},
		{Name: "individual_numbers", Start: l.IndividualDirectory.NumbersStart, End: l.IndividualDirectory.NumbersStart + l.IndividualDirectory.Count*DirectoryNumBytes},
		{Name: "individual_names", Start: l.IndividualDirectory.NamesStart, End: l.IndividualDirectory.NamesStart + l.IndividualDirectory.Count*DirectoryNameLen},
		{Name: "group_numbers", Start: l.GroupDirectory.NumbersStart, End: l.GroupDirectory.NumbersStart + l.GroupDirectory.Count*DirectoryNumBytes},
		{Name: "group_names", Start: l.GroupDirectory.NamesStart, End: l.GroupDirectory.NamesStart + l.GroupDirectory.Count*DirectoryNameLen},
	}
	if l.ATISAddress != 0 {
		regions = append(regions, Region{Name: "atis", Start: l.ATISAddress, End: l.ATISAddress + ATISBytes})
	}
	sort.Slice(regions, func(i, j int) bool {
		return regions[i].Start < regions[j].Start
	})
	return regions
}

// Validate checks that every region fits the image and no two regions overlap.
func (l *Layout) Validate() error {
	if l.Channels.Count > EnableBitmapBytes*8 {
		return fmt.Errorf("layout %s: %d channels exceed the enable bitmap", l.Model, l.Channels.Count)
	}
	if l.Routes.WaypointsPerRoute > l.Routes.BytesPerRoute/2 {
		return fmt.Errorf("layout %s: route waypoint slots overlap the name field", l.Model)
	}
	regions := l.Regions()
	for i, r := range regions {
		if r.Start < 0 || r.End > l.ImageLength || r.Start >= r.End {
			return fmt.Errorf("layout %s: region %s [%#04x,%#04x) outside image", l.Model, r.Name, r.Start, r.End)
		}
		if i > 0 && regions[i-1].End > r.Start {
			return fmt.Errorf("layout %s: region %s overlaps %s", l.Model, r.Name, regions[i-1].Name)
		}
	}
	return nil
}
