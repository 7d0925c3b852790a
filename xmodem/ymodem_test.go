package xmodem

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestHeaderRoundTrip(t *testing.T) {
	h := Header{
		Name:    "report.txt",
		Size:    300,
		HasSize: true,
		ModTime: time.Unix(1700000000, 0),
		Mode:    0o644,
	}
	var buf [BlockSize1K]byte
	n, err := EncodeHeader(buf[:], h)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if n != BlockSize128 {
		t.Fatalf("short header encoded into %d bytes", n)
	}

	want := "report.txt\x00300 14524770400 100644\x00"
	if got := string(buf[:len(want)]); got != want {
		t.Fatalf("payload %q, want %q", got, want)
	}

	got, end, err := ParseHeader(buf[:n])
	if err != nil || end {
		t.Fatalf("parse: end=%v err=%v", end, err)
	}
	if got.Name != h.Name || got.Size != h.Size || !got.HasSize || !got.ModTime.Equal(h.ModTime) || got.Mode != h.Mode {
		t.Fatalf("parsed %+v, want %+v", got, h)
	}
}

func TestHeaderEndOfBatch(t *testing.T) {
	var buf [BlockSize128]byte
	for i := range buf {
		buf[i] = 0xAA
	}
	n, err := EncodeHeader(buf[:], Header{})
	if err != nil || n != BlockSize128 {
		t.Fatalf("encode: n=%d err=%v", n, err)
	}
	if !bytes.Equal(buf[:], make([]byte, BlockSize128)) {
		t.Fatalf("end-of-batch block must be all NUL")
	}
	if _, end, err := ParseHeader(buf[:]); !end || err != nil {
		t.Fatalf("end=%v err=%v", end, err)
	}
}

func TestHeaderSizes(t *testing.T) {
	var buf [BlockSize1K]byte

	long := Header{Name: strings.Repeat("n", 200), Size: 1, HasSize: true}
	n, err := EncodeHeader(buf[:], long)
	if err != nil || n != BlockSize1K {
		t.Fatalf("long name: n=%d err=%v", n, err)
	}

	huge := Header{Name: strings.Repeat("n", BlockSize1K)}
	if _, err := EncodeHeader(buf[:], huge); err == nil {
		t.Fatalf("oversized name accepted")
	} else {
		var xe *Error
		if !errors.As(err, &xe) || xe.Type != ErrHeader {
			t.Fatalf("error %v", err)
		}
	}
}

func TestEncodeHeaderRejects(t *testing.T) {
	var buf [BlockSize1K]byte
	for name, h := range map[string]Header{
		"nul in name":   {Name: "a\x00b", Size: 1, HasSize: true},
		"negative size": {Name: "a", Size: -5, HasSize: true},
	} {
		_, err := EncodeHeader(buf[:], h)
		var xe *Error
		if !errors.As(err, &xe) || xe.Type != ErrHeader {
			t.Fatalf("%s: error %v", name, err)
		}
	}
}

func TestParseHeaderLenient(t *testing.T) {
	cases := []struct {
		name    string
		payload string
		size    int64
		hasSize bool
	}{
		{"name only", "a.bin\x00", 0, false},
		{"size only", "a.bin\x00512\x00", 512, true},
		{"junk after size", "a.bin\x00512abc 777\x00", 512, true},
		{"bad mtime ignored", "a.bin\x0010 zz\x00", 10, true},
	}
	for _, tc := range cases {
		payload := make([]byte, BlockSize128)
		copy(payload, tc.payload)
		h, end, err := ParseHeader(payload)
		if err != nil || end {
			t.Fatalf("%s: end=%v err=%v", tc.name, end, err)
		}
		if h.Name != "a.bin" || h.Size != tc.size || h.HasSize != tc.hasSize {
			t.Fatalf("%s: parsed %+v", tc.name, h)
		}
		if tc.name == "bad mtime ignored" && !h.ModTime.IsZero() {
			t.Fatalf("%s: mtime %v", tc.name, h.ModTime)
		}
	}

	if _, _, err := ParseHeader(bytes.Repeat([]byte{'x'}, BlockSize128)); err == nil {
		t.Fatalf("unterminated name accepted")
	}
}
