//go:build !baremetal

package drivers

import (
	"bytes"
	"testing"
)

func TestMaestroWritePosition(t *testing.T) {
	buf := &bytes.Buffer{}
	m := &Maestro{w: buf, channel: 2, attached: true, last: 90}

	if err := m.WritePosition(90); err != nil {
		t.Fatalf("WritePosition failed: %v", err)
	}

	// 90 degrees maps to 1472us = 5888 quarter-us, split into two
	// 7-bit payload bytes.
	want := []byte{0x84, 0x02, 0x00, 0x2E}
	if !bytes.Equal(buf.Bytes(), want) {
		t.Errorf("packet: got %X, want %X", buf.Bytes(), want)
	}
}

func TestMaestroClampsAngle(t *testing.T) {
	buf := &bytes.Buffer{}
	m := &Maestro{w: buf, channel: 0, attached: true}

	if err := m.WritePosition(500); err != nil {
		t.Fatalf("WritePosition failed: %v", err)
	}

	// 180 degrees maps to 2400us = 9600 quarter-us.
	want := []byte{0x84, 0x00, 0x00, 0x4B}
	if !bytes.Equal(buf.Bytes(), want) {
		t.Errorf("packet: got %X, want %X", buf.Bytes(), want)
	}
}

func TestMaestroDetachStopsPulses(t *testing.T) {
	buf := &bytes.Buffer{}
	m := &Maestro{w: buf, channel: 3, attached: true}

	if err := m.Detach(); err != nil {
		t.Fatalf("Detach failed: %v", err)
	}
	if m.Attached() {
		t.Error("still attached after Detach")
	}

	want := []byte{0x84, 0x03, 0x00, 0x00}
	if !bytes.Equal(buf.Bytes(), want) {
		t.Errorf("packet: got %X, want %X", buf.Bytes(), want)
	}
}

func TestMaestroLatchesWhileDetached(t *testing.T) {
	buf := &bytes.Buffer{}
	m := &Maestro{w: buf, channel: 1}

	// Detached writes are latched, not sent.
	if err := m.WritePosition(45); err != nil {
		t.Fatalf("WritePosition failed: %v", err)
	}
	if buf.Len() != 0 {
		t.Fatalf("unexpected traffic while detached: %X", buf.Bytes())
	}

	// Attach replays the latched position: 45 degrees = 1008us = 4032
	// quarter-us.
	if err := m.Attach(); err != nil {
		t.Fatalf("Attach failed: %v", err)
	}
	want := []byte{0x84, 0x01, 0x40, 0x1F}
	if !bytes.Equal(buf.Bytes(), want) {
		t.Errorf("packet: got %X, want %X", buf.Bytes(), want)
	}
}

func TestOpenMaestroValidatesConfig(t *testing.T) {
	if _, err := OpenMaestro(MaestroConfig{}); err == nil {
		t.Error("expected error for missing port")
	}
	if _, err := OpenMaestro(MaestroConfig{Port: "/dev/null", Channel: 99}); err == nil {
		t.Error("expected error for invalid channel")
	}
}
