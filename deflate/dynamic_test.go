package deflate

import (
	"bytes"
	"testing"

	"github.com/sunhaox/CompressedFileEditor/internal/bitio"
	"github.com/sunhaox/CompressedFileEditor/internal/huffman"
	"github.com/sunhaox/CompressedFileEditor/trace"
)

// bitWriter assembles an LSB-first DEFLATE bit stream for test fixtures: a
// plain field (writeBits) packs its value the same way bitio.Reader.Read
// consumes one, while a Huffman-coded symbol (writeHuffman) is written
// MSB-first within itself, bit-reversed relative to the stream, mirroring
// huffman.Table.Decode's own bit-at-a-time reading.
type bitWriter struct {
	bits []int
}

func (w *bitWriter) writeBits(value uint32, n uint) {
	for i := uint(0); i < n; i++ {
		w.bits = append(w.bits, int((value>>i)&1))
	}
}

func (w *bitWriter) writeHuffman(t *huffman.Table, sym int) {
	value, length, ok := t.EncodedValue(sym)
	if !ok {
		panic("symbol has no assigned code")
	}
	for i := length - 1; i >= 0; i-- {
		w.bits = append(w.bits, (value>>uint(i))&1)
	}
}

func (w *bitWriter) bytes() []byte {
	var out []byte
	var cur byte
	var n uint
	for _, b := range w.bits {
		cur |= byte(b) << n
		n++
		if n == 8 {
			out = append(out, cur)
			cur, n = 0, 0
		}
	}
	if n > 0 {
		out = append(out, cur)
	}
	return out
}

// TestReadCodeLengthsRepeatAfterZeroRun is a direct unit test of the fix for
// the "16 after a zero-run" case: a code-length code over just {16, 17},
// each 1 bit, decoding the sequence 17 (zero-run, n=5) then 16 (repeat
// previous, n=4). The previous length is legitimately 0 (the zero-run just
// emitted), so repeating it must succeed rather than return
// ErrRepeatWithoutPrevious.
func TestReadCodeLengthsRepeatAfterZeroRun(t *testing.T) {
	clLengths := make([]int, 19)
	clLengths[16] = 1
	clLengths[17] = 1
	clTable, status := huffman.Construct(clLengths)
	if status != huffman.Complete {
		t.Fatalf("Construct() status = %v, want Complete", status)
	}

	w := &bitWriter{}
	w.writeHuffman(clTable, 17)
	w.writeBits(2, 3) // n = 3 + 2 = 5
	w.writeHuffman(clTable, 16)
	w.writeBits(1, 2) // n = 3 + 1 = 4

	d := &Decoder{br: bitio.NewReader(w.bytes())}
	lengths, err := d.readCodeLengths(clTable, 9)
	if err != nil {
		t.Fatalf("readCodeLengths() error = %v", err)
	}
	if len(lengths) != 9 {
		t.Fatalf("len(lengths) = %d, want 9", len(lengths))
	}
	for i, l := range lengths {
		if l != 0 {
			t.Fatalf("lengths[%d] = %d, want 0", i, l)
		}
	}
}

func TestReadCodeLengthsRepeatWithoutAnyPreviousRejected(t *testing.T) {
	clLengths := make([]int, 19)
	clLengths[16] = 1
	clLengths[0] = 1
	clTable, status := huffman.Construct(clLengths)
	if status != huffman.Complete {
		t.Fatalf("Construct() status = %v, want Complete", status)
	}

	w := &bitWriter{}
	w.writeHuffman(clTable, 16)
	w.writeBits(0, 2)

	d := &Decoder{br: bitio.NewReader(w.bytes())}
	if _, err := d.readCodeLengths(clTable, 5); err != ErrRepeatWithoutPrevious {
		t.Fatalf("err = %v, want ErrRepeatWithoutPrevious", err)
	}
}

// TestDynamicBlockRepeatingLiteralPattern builds a full dynamic block
// (scenario 4) by hand: a literal/length table over just 'a', 'b', and
// end-of-block, and a single-symbol distance table (unused, satisfying the
// permitted incomplete-table exception), transmitted through a code-length
// code whose zero-run encoding deliberately includes a 16-after-18 case
// (the same shape TestReadCodeLengthsRepeatAfterZeroRun exercises in
// isolation) to cover the dynamic path end to end.
func TestDynamicBlockRepeatingLiteralPattern(t *testing.T) {
	const hlit = 257 // literal/length alphabet only, no length symbols used
	const hdist = 1

	litLengths := make([]int, hlit)
	litLengths['a'] = 1
	litLengths['b'] = 2
	litLengths[256] = 2
	litTable, litStatus := huffman.Construct(litLengths)
	if litStatus != huffman.Complete {
		t.Fatalf("literal table status = %v, want Complete", litStatus)
	}

	distLengths := []int{1}
	distTable, distStatus := huffman.Construct(distLengths)
	if distStatus != huffman.Incomplete || !distTable.SingleZeroBitSymbol() {
		t.Fatalf("distance table status = %v (single-symbol exception), want Incomplete", distStatus)
	}

	// Code-length alphabet: symbols 1, 2, 16, 18 each get a 2-bit code
	// (a complete 4-leaf tree), transmitted through codeLengthOrder
	// positions 0..17 (HCLEN=18).
	clLengths := make([]int, 19)
	clLengths[1] = 2
	clLengths[2] = 2
	clLengths[16] = 2
	clLengths[18] = 2
	clTable, clStatus := huffman.Construct(clLengths)
	if clStatus != huffman.Complete {
		t.Fatalf("code-length table status = %v, want Complete", clStatus)
	}
	const hclen = 18
	orderedCLLengths := make([]int, hclen)
	for i := 0; i < hclen; i++ {
		orderedCLLengths[i] = clLengths[codeLengthOrder[i]]
	}

	w := &bitWriter{}
	w.writeBits(1, 1)          // BFINAL
	w.writeBits(2, 2)          // BTYPE = 2 (dynamic)
	w.writeBits(hlit-257, 5)   // HLIT
	w.writeBits(hdist-1, 5)    // HDIST
	w.writeBits(hclen-4, 4)    // HCLEN
	for _, l := range orderedCLLengths {
		w.writeBits(uint32(l), 3)
	}

	// Combined literal+distance length vector, as a run-length program:
	// 97 zeros, length 1 ('a'), length 2 ('b'), 157 zeros (split across an
	// 18/16/18 sequence to exercise 16-after-zero-run), length 2 (EOB),
	// length 1 (the lone distance symbol).
	w.writeHuffman(clTable, 18)
	w.writeBits(97-11, 7)
	w.writeHuffman(clTable, 1)
	w.writeHuffman(clTable, 2)
	w.writeHuffman(clTable, 18)
	w.writeBits(138-11, 7)
	w.writeHuffman(clTable, 16)
	w.writeBits(6-3, 2)
	w.writeHuffman(clTable, 18)
	w.writeBits(13-11, 7)
	w.writeHuffman(clTable, 2)
	w.writeHuffman(clTable, 1)

	pattern := "abababab"
	for _, ch := range pattern {
		w.writeHuffman(litTable, int(ch))
	}
	w.writeHuffman(litTable, 256) // end of block

	sink := trace.NewSink("DEFLATE", true)
	win := NewWindow(make([]byte, 0, 64), nil)
	if err := New(bitio.NewReader(w.bytes()), win, sink).Decode(); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if !bytes.Equal(win.Bytes(), []byte(pattern)) {
		t.Fatalf("decoded = %q, want %q", win.Bytes(), pattern)
	}
}
