package artifact

import (
	"bytes"
	"testing"
)

func TestDataURIRoundTrip(t *testing.T) {
	src := Image{MIME: "image/png", Data: []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a, 0x00, 0x01}}
	uri := src.DataURI()

	got, err := ParseDataURI(uri)
	if err != nil {
		t.Fatalf("parse data URI: %v", err)
	}
	if got.MIME != "image/png" {
		t.Errorf("expected MIME image/png, got %s", got.MIME)
	}
	if !bytes.Equal(got.Data, src.Data) {
		t.Errorf("decoded payload differs from source: %v vs %v", got.Data, src.Data)
	}
}

func TestParseDataURIRejectsBadInput(t *testing.T) {
	cases := []string{
		"http://example.com/a.png",
		"data:image/png,rawbytes",
		"data:;base64,AAAA",
		"data:image/png;base64,@@not-base64@@",
	}
	for _, c := range cases {
		if _, err := ParseDataURI(c); err == nil {
			t.Errorf("expected error for %q", c)
		}
	}
}

func TestSniffMIME(t *testing.T) {
	png := []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a}
	if got := SniffMIME(png); got != "image/png" {
		t.Errorf("expected image/png, got %s", got)
	}
}
