package layout

import (
	"errors"
	"testing"
)

func TestEveryLayoutIsConsistent(t *testing.T) {
	for _, l := range All() {
		if err := l.Validate(); err != nil {
			t.Fatalf("layout %s invalid: %v", l.Model, err)
		}
	}
}

func TestByModelIsCaseInsensitive(t *testing.T) {
	l, err := ByModel(" hx870 ")
	if err != nil {
		t.Fatalf("by model: %v", err)
	}
	if l.Routes.WaypointsPerRoute != 16 || l.Routes.BytesPerRoute != 32 {
		t.Fatalf("unexpected route table: %+v", l.Routes)
	}
	if _, err := ByModel("HX400"); !errors.Is(err, ErrUnsupportedDevice) {
		t.Fatalf("expected ErrUnsupportedDevice, got %v", err)
	}
}

func TestByUSB(t *testing.T) {
	l, err := ByUSB(9898, 30)
	if err != nil || l.Model != "HX890" {
		t.Fatalf("by usb: model=%v err=%v", l, err)
	}
	if _, err := ByUSB(0, 0); !errors.Is(err, ErrUnsupportedDevice) {
		t.Fatalf("zero usb ids must not match the model without ids, got %v", err)
	}
}

func TestDetectImage(t *testing.T) {
	image := make([]byte, 0x8000)
	image[0], image[1] = 0x03, 0x67
	l, err := DetectImage(image)
	if err != nil || l.Model != "HX870" {
		t.Fatalf("detect hx870: model=%v err=%v", l, err)
	}

	image = make([]byte, 0x10000)
	image[0], image[1] = 0x03, 0x7a
	l, err = DetectImage(image)
	if err != nil || l.Model != "HX890" {
		t.Fatalf("detect hx890: model=%v err=%v", l, err)
	}

	image[1] = 0x67
	if _, err := DetectImage(image); !errors.Is(err, ErrUnsupportedDevice) {
		t.Fatalf("length/magic mismatch must be unsupported, got %v", err)
	}
	if _, err := DetectImage([]byte{0x03}); !errors.Is(err, ErrUnsupportedDevice) {
		t.Fatalf("short image must be unsupported, got %v", err)
	}
}

func TestRegionsSortedAndATISOptional(t *testing.T) {
	hx890, _ := ByModel("HX890")
	hx870, _ := ByModel("HX870")
	if len(hx890.Regions()) != len(hx870.Regions())+1 {
		t.Fatalf("expected atis region only on hx890")
	}
	regions := hx890.Regions()
	for i := 1; i < len(regions); i++ {
		if regions[i-1].Start > regions[i].Start {
			t.Fatalf("regions not sorted: %+v", regions)
		}
	}
}
