package capture

import (
	"bytes"
	"testing"
)

func TestStripHeader(t *testing.T) {
	payload, ok := StripHeader([]byte{0x01, 0x02, 0x03, 0xAA, 0xBB})
	if !ok {
		t.Fatal("frame with payload should be accepted")
	}
	if !bytes.Equal(payload, []byte{0xAA, 0xBB}) {
		t.Errorf("expected payload after 3-byte header, got %v", payload)
	}
}

func TestStripHeader_TooShort(t *testing.T) {
	for _, raw := range [][]byte{nil, {}, {0x01}, {0x01, 0x02}, {0x01, 0x02, 0x03}} {
		if _, ok := StripHeader(raw); ok {
			t.Errorf("frame of %d bytes should be rejected", len(raw))
		}
	}
}

func TestPrependPlaceholderHeader(t *testing.T) {
	pcm := []byte{0x10, 0x20, 0x30}
	framed := PrependPlaceholderHeader(pcm)
	if len(framed) != HeaderSize+len(pcm) {
		t.Fatalf("expected %d bytes, got %d", HeaderSize+len(pcm), len(framed))
	}

	stripped, ok := StripHeader(framed)
	if !ok {
		t.Fatal("normalized frame should survive StripHeader")
	}
	if !bytes.Equal(stripped, pcm) {
		t.Errorf("round trip lost payload: %v", stripped)
	}
}

func TestPrependPlaceholderHeader_DoesNotAliasInput(t *testing.T) {
	pcm := []byte{0x01, 0x02}
	framed := PrependPlaceholderHeader(pcm)
	framed[HeaderSize] = 0xFF
	if pcm[0] == 0xFF {
		t.Error("normalization must copy the payload")
	}
}
