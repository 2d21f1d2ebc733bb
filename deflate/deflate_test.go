package deflate

import (
	"bytes"
	"testing"

	"github.com/sunhaox/CompressedFileEditor/internal/bitio"
	"github.com/sunhaox/CompressedFileEditor/trace"
)

func decodeAll(t *testing.T, raw []byte) ([]byte, *trace.Sink) {
	t.Helper()
	sink := trace.NewSink("DEFLATE", true)
	win := NewWindow(make([]byte, 0, 64), nil)
	if err := New(bitio.NewReader(raw), win, sink).Decode(); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	return win.Bytes(), sink
}

// TestFixedHuffmanHello decodes the standard 7-byte raw DEFLATE encoding of
// "Hello" using the fixed Huffman tables (BFINAL=1, BTYPE=1): five literals
// followed by end-of-block, matching testable scenario 2.
func TestFixedHuffmanHello(t *testing.T) {
	raw := []byte{0xF3, 0x48, 0xCD, 0xC9, 0xC9, 0x07, 0x00}
	out, _ := decodeAll(t, raw)
	if !bytes.Equal(out, []byte("Hello")) {
		t.Fatalf("decoded = %q, want %q", out, "Hello")
	}
}

// TestStoredBlockEmpty exercises a stored block (BTYPE=0) with LEN=0: bit
// layout is BFINAL=1, BTYPE=00, byte-align, LEN=0x0000, NLEN=0xFFFF, no
// data bytes -- the boundary case "a stored block with LEN=0 is accepted
// and contributes nothing."
func TestStoredBlockEmpty(t *testing.T) {
	raw := []byte{0x01, 0x00, 0x00, 0xFF, 0xFF}
	out, _ := decodeAll(t, raw)
	if len(out) != 0 {
		t.Fatalf("decoded = %v, want empty", out)
	}
}

// TestStoredBlockWithData exercises a stored block carrying three raw
// bytes, confirming LEN/NLEN validation and byte-for-byte passthrough.
func TestStoredBlockWithData(t *testing.T) {
	// BFINAL=1, BTYPE=00 -> byte0 = 0x01. Then byte-align (discarding the
	// remaining 5 bits of byte0), LEN=3 LE, NLEN=0xFFFC LE, then the 3 data
	// bytes.
	raw := []byte{0x01, 0x03, 0x00, 0xFC, 0xFF, 'a', 'b', 'c'}
	out, _ := decodeAll(t, raw)
	if !bytes.Equal(out, []byte("abc")) {
		t.Fatalf("decoded = %q, want %q", out, "abc")
	}
}

func TestStoredLengthMismatchRejected(t *testing.T) {
	raw := []byte{0x01, 0x03, 0x00, 0x00, 0x00, 'a', 'b', 'c'}
	sink := trace.NewSink("DEFLATE", false)
	win := NewWindow(make([]byte, 0, 64), nil)
	err := New(bitio.NewReader(raw), win, sink).Decode()
	if err != ErrStoredLengthMismatch {
		t.Fatalf("err = %v, want ErrStoredLengthMismatch", err)
	}
}

func TestTruncatedInputReturnsPlusTwo(t *testing.T) {
	raw := []byte{0xF3, 0x48} // cut mid-stream
	sink := trace.NewSink("DEFLATE", false)
	win := NewWindow(make([]byte, 0, 64), nil)
	err := New(bitio.NewReader(raw), win, sink).Decode()
	if err != ErrTruncatedInput {
		t.Fatalf("err = %v, want ErrTruncatedInput", err)
	}
	if ExitCode(err) != 2 {
		t.Fatalf("ExitCode = %d, want 2", ExitCode(err))
	}
}

// TestOverlappingBackReference exercises the RLE-style self-reference
// boundary: distance=1, length=258 yields 258 copies of the last byte, and
// must not be implemented as a bulk copy since length exceeds distance.
func TestOverlappingBackReference(t *testing.T) {
	win := NewWindow(make([]byte, 0, 300), nil)
	if err := win.Emit('x'); err != nil {
		t.Fatal(err)
	}
	if err := win.CopyBack(1, 258); err != nil {
		t.Fatalf("CopyBack error = %v", err)
	}
	if win.Length() != 259 {
		t.Fatalf("length = %d, want 259", win.Length())
	}
	for i, b := range win.Bytes() {
		if b != 'x' {
			t.Fatalf("byte %d = %q, want 'x'", i, b)
		}
	}
}

// TestFourByteBackReference exercises distance=4, length=12: three copies
// of the last four bytes.
func TestFourByteBackReference(t *testing.T) {
	win := NewWindow(make([]byte, 0, 32), nil)
	for _, b := range []byte("abcd") {
		if err := win.Emit(b); err != nil {
			t.Fatal(err)
		}
	}
	if err := win.CopyBack(4, 12); err != nil {
		t.Fatalf("CopyBack error = %v", err)
	}
	want := "abcdabcdabcdabcd"
	if got := string(win.Bytes()); got != want {
		t.Fatalf("bytes = %q, want %q", got, want)
	}
}

func TestDistanceTooFarRejected(t *testing.T) {
	win := NewWindow(make([]byte, 0, 16), nil)
	win.Emit('a')
	if err := win.CopyBack(5, 1); err != ErrDistanceTooFar {
		t.Fatalf("err = %v, want ErrDistanceTooFar", err)
	}
}

// TestSizingModeMatchesDecodeLength is the sizing/decoding equivalence
// property: a scan-only pass (no output buffer) reports the same
// decompressed length as a full decode.
func TestSizingModeMatchesDecodeLength(t *testing.T) {
	raw := []byte{0xF3, 0x48, 0xCD, 0xC9, 0xC9, 0x07, 0x00}

	sizing := NewSizingWindow()
	if err := New(bitio.NewReader(raw), sizing, nil).Decode(); err != nil {
		t.Fatalf("sizing pass error = %v", err)
	}

	full := NewWindow(make([]byte, 0, sizing.Length()), nil)
	if err := New(bitio.NewReader(raw), full, nil).Decode(); err != nil {
		t.Fatalf("decode pass error = %v", err)
	}

	if sizing.Length() != full.Length() {
		t.Fatalf("sizing length %d != decode length %d", sizing.Length(), full.Length())
	}
	if sizing.Length() != len("Hello") {
		t.Fatalf("length = %d, want %d", sizing.Length(), len("Hello"))
	}
}

// TestOutputBufferTooSmall exercises the boundary where the caller
// supplies a buffer smaller than the decompressed size.
func TestOutputBufferTooSmall(t *testing.T) {
	raw := []byte{0xF3, 0x48, 0xCD, 0xC9, 0xC9, 0x07, 0x00}
	win := NewWindow(make([]byte, 0, 2), nil) // "Hello" needs 5 bytes
	err := New(bitio.NewReader(raw), win, nil).Decode()
	if err != ErrOutputBufferTooSmall {
		t.Fatalf("err = %v, want ErrOutputBufferTooSmall", err)
	}
}
