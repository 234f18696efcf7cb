package device

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/danmuck/hxctl/internal/protocol/layout"
	"github.com/danmuck/hxctl/internal/session"
	"github.com/danmuck/hxctl/internal/testutil/fakeradio"
	"github.com/danmuck/hxctl/internal/testutil/testlog"
	"github.com/danmuck/hxctl/internal/transport"
)

func testManager(t *testing.T, radio **fakeradio.Radio, openErr error) *Manager {
	t.Helper()
	m := NewManager(DefaultConfig())
	m.find = func() ([]transport.PortInfo, error) {
		return []transport.PortInfo{{Name: "/dev/ttyACM0", Model: "HX870"}}, nil
	}
	m.open = func(path string, cfg transport.SerialConfig) (Link, string, error) {
		if openErr != nil {
			return nil, "", openErr
		}
		r, conn := fakeradio.New(t, fakeradio.Blank(0x8000))
		if radio != nil {
			*radio = r
		}
		return transport.NewLive(conn, transport.Config{ReadyTimeout: 200 * time.Millisecond, StepTimeout: 100 * time.Millisecond}), "cp", nil
	}
	t.Cleanup(m.Disconnect)
	return m
}

func imageFor(t *testing.T, model string) []byte {
	t.Helper()
	l, err := layout.ByModel(model)
	if err != nil {
		t.Fatalf("layout: %v", err)
	}
	data := fakeradio.Blank(l.ImageLength)
	copy(data, l.ImageMagic)
	return data
}

func TestConnectSerialDetectsModelFromPort(t *testing.T) {
	testlog.Start(t)
	var radio *fakeradio.Radio
	m := testManager(t, &radio, nil)

	if err := m.ConnectSerial(context.Background(), "/dev/ttyACM0", ""); err != nil {
		t.Fatalf("connect: %v", err)
	}
	st := m.Status().Get()
	if st.State != StateSerialConnected || st.Model != "HX870" || st.Mode != "cp" {
		t.Fatalf("unexpected status %+v", st)
	}
	if m.Session().State() != session.StateBound {
		t.Fatalf("session not bound: %s", m.Session().State())
	}
	if _, err := m.Session().ReadAll(context.Background()); err != nil {
		t.Fatalf("read: %v", err)
	}
	if radio.Count("#CEPRD") == 0 {
		t.Fatalf("no reads reached the radio")
	}
	if _, err := m.Image(); !errors.Is(err, ErrNoImage) {
		t.Fatalf("serial connection has no image, got %v", err)
	}

	m.Disconnect()
	if m.Status().Get().State != StateDisconnected || m.Session().State() != session.StateIdle {
		t.Fatalf("disconnect did not reset state")
	}
	if !m.Session().Config().Empty() {
		t.Fatalf("disconnect must empty the config")
	}
}

func TestConnectSerialFailures(t *testing.T) {
	testlog.Start(t)
	m := testManager(t, nil, nil)
	if err := m.ConnectSerial(context.Background(), "/dev/ttyUSB9", ""); !errors.Is(err, ErrUnknownPort) {
		t.Fatalf("expected ErrUnknownPort, got %v", err)
	}
	if err := m.ConnectSerial(context.Background(), "/dev/ttyUSB9", "HX999"); !errors.Is(err, layout.ErrUnsupportedDevice) {
		t.Fatalf("expected ErrUnsupportedDevice, got %v", err)
	}

	m = testManager(t, nil, transport.ErrNotCPMode)
	if err := m.ConnectSerial(context.Background(), "/dev/ttyACM0", "HX870"); !errors.Is(err, transport.ErrNotCPMode) {
		t.Fatalf("expected ErrNotCPMode, got %v", err)
	}
	if m.Status().Get().State != StateDisconnected {
		t.Fatalf("failed connect must leave the manager disconnected")
	}
}

func TestConnectSerialNotReady(t *testing.T) {
	testlog.Start(t)
	m := NewManager(DefaultConfig())
	t.Cleanup(m.Disconnect)
	m.open = func(path string, cfg transport.SerialConfig) (Link, string, error) {
		r, conn := fakeradio.New(t, fakeradio.Blank(0x8000))
		r.SetBusy(1<<20, "01")
		return transport.NewLive(conn, transport.Config{ReadyTimeout: 50 * time.Millisecond, StepTimeout: 50 * time.Millisecond}), "cp", nil
	}
	err := m.ConnectSerial(context.Background(), "/dev/ttyACM0", "HX870")
	if !errors.Is(err, transport.ErrDeviceNotReady) {
		t.Fatalf("expected ErrDeviceNotReady, got %v", err)
	}
	if m.Status().Get().State != StateDisconnected {
		t.Fatalf("unexpected status %+v", m.Status().Get())
	}
}

func TestConnectImage(t *testing.T) {
	testlog.Start(t)
	m := testManager(t, nil, nil)

	if err := m.ConnectImage(imageFor(t, "HX890"), ""); err != nil {
		t.Fatalf("connect image: %v", err)
	}
	if st := m.Status().Get(); st.State != StateImageConnected || st.Model != "HX890" {
		t.Fatalf("unexpected status %+v", st)
	}
	in, err := m.Image()
	if err != nil || in.Len() != 0x10000 {
		t.Fatalf("image: %v", err)
	}

	// HX891BT images carry no signature
	plain := fakeradio.Blank(0x10000)
	if err := m.ConnectImage(plain, ""); !errors.Is(err, layout.ErrUnsupportedDevice) {
		t.Fatalf("expected ErrUnsupportedDevice, got %v", err)
	}
	if err := m.ConnectImage(plain, "hx891bt"); err != nil {
		t.Fatalf("explicit model: %v", err)
	}
	if m.Session().Layout().Model != "HX891BT" {
		t.Fatalf("bound %s", m.Session().Layout().Model)
	}
	if err := m.ConnectImage(plain[:100], "HX870"); !errors.Is(err, layout.ErrUnsupportedDevice) {
		t.Fatalf("short image must be rejected, got %v", err)
	}
}

func TestStatusSubscription(t *testing.T) {
	testlog.Start(t)
	m := testManager(t, nil, nil)
	updates, cancel := m.Status().Subscribe()
	defer cancel()
	<-updates

	if err := m.ConnectImage(imageFor(t, "HX870"), ""); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if st := <-updates; st.State != StateImageConnected {
		t.Fatalf("expected image-connected, got %+v", st)
	}
	m.Disconnect()
	if st := <-updates; st.State != StateDisconnected {
		t.Fatalf("expected disconnected, got %+v", st)
	}
}
