package device

import (
	"bytes"
	"testing"
)

func TestJPEGAssembler_SplitFrame(t *testing.T) {
	a := newJPEGAssembler(1024)

	if _, ok := a.Push("cam1", []byte{0xFF, 0xD8, 1, 2}); ok {
		t.Fatal("frame should not be complete after first packet")
	}
	if _, ok := a.Push("cam1", []byte{3, 4}); ok {
		t.Fatal("frame should not be complete after middle packet")
	}
	img, ok := a.Push("cam1", []byte{5, 0xFF, 0xD9})
	if !ok {
		t.Fatal("frame should be complete after EOI")
	}

	expected := []byte{0xFF, 0xD8, 1, 2, 3, 4, 5, 0xFF, 0xD9}
	if !bytes.Equal(img, expected) {
		t.Errorf("got %v, expected %v", img, expected)
	}
}

func TestJPEGAssembler_SendersAreIndependent(t *testing.T) {
	a := newJPEGAssembler(1024)

	a.Push("cam1", []byte{0xFF, 0xD8, 1})
	a.Push("cam2", []byte{0xFF, 0xD8, 2})

	img, ok := a.Push("cam2", []byte{0xFF, 0xD9})
	if !ok || img[2] != 2 {
		t.Errorf("cam2 frame corrupted by cam1: %v", img)
	}
}

func TestJPEGAssembler_IgnoresOrphanedPackets(t *testing.T) {
	a := newJPEGAssembler(1024)

	if _, ok := a.Push("cam1", []byte{7, 0xFF, 0xD9}); ok {
		t.Error("packet without SOI should not produce a frame")
	}
}

func TestJPEGAssembler_RestartsOnNewHeader(t *testing.T) {
	a := newJPEGAssembler(1024)

	a.Push("cam1", []byte{0xFF, 0xD8, 1, 1, 1})
	a.Push("cam1", []byte{0xFF, 0xD8, 2})
	img, ok := a.Push("cam1", []byte{0xFF, 0xD9})
	if !ok || len(img) != 5 {
		t.Errorf("expected restarted 5-byte frame, got %v", img)
	}
}

func TestJPEGAssembler_DropsOversizedFrames(t *testing.T) {
	a := newJPEGAssembler(4)

	a.Push("cam1", []byte{0xFF, 0xD8, 1, 2, 3})
	if _, ok := a.Push("cam1", []byte{0xFF, 0xD9}); ok {
		t.Error("oversized frame should be discarded")
	}
}

func TestIsUDP(t *testing.T) {
	if !IsUDP("udp://:5000") {
		t.Error("udp://:5000 should be a UDP device")
	}
	if IsUDP("0") || IsUDP("rtsp://camera/stream") {
		t.Error("camera ids should not be UDP devices")
	}
}
