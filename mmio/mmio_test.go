package mmio

import "testing"

func TestFakeSpacePreinitialized(t *testing.T) {
	s := NewFakeSpace()
	w := s.Window(0xC000, 16)
	for i := 0; i < 16; i++ {
		if got := w.ReadByte(i); got != 0xAA {
			t.Fatalf("offset %d: got 0x%02X, want 0xAA", i, got)
		}
	}
}

func TestWindowReadWrite(t *testing.T) {
	s := NewFakeSpace()
	w := s.Window(0xC000, 0x8000)

	w.WriteByte(0x5555, 0xAA)
	w.WriteByte(0x2AAA, 0x55)

	if got := w.ReadByte(0x5555); got != 0xAA {
		t.Fatalf("0x5555: got 0x%02X, want 0xAA", got)
	}
	if got := w.ReadByte(0x2AAA); got != 0x55 {
		t.Fatalf("0x2AAA: got 0x%02X, want 0x55", got)
	}
}

func TestWindowSegmentAddressing(t *testing.T) {
	s := NewFakeSpace()
	w1 := s.Window(0xC000, 16)
	w1.WriteByte(0, 0x42)

	// 0xC000<<4 == 0xC0000; 0xC001<<4 == 0xC0010, 16 bytes later.
	w2 := s.Window(0xC001, 16)
	if got := w2.ReadByte(0); got == 0x42 {
		t.Fatalf("segments 0xC000 and 0xC001 should not alias at offset 0")
	}

	raw := s.Bytes()
	if raw[0xC0000] != 0x42 {
		t.Fatalf("expected byte at physical address 0xC0000 to be written")
	}
}

func TestWindowLen(t *testing.T) {
	s := NewFakeSpace()
	w := s.Window(0xA000, 32768)
	if got := w.Len(); got != 32768 {
		t.Fatalf("Len() = %d, want 32768", got)
	}
}
