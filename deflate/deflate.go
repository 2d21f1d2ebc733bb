// Package deflate implements the RFC 1951 DEFLATE core: the stored/fixed/
// dynamic block dispatcher and the length/distance back-reference engine,
// emitting a structural trace of every block, table, and symbol alongside
// the decompressed bytes. It is grounded on the bit-level algorithms of
// Mark Adler's puff.c (via _examples/JoshVarga-blast/reader.go, the closest
// existing Go translation of the same canonical-Huffman machinery) recast
// in the error-in-struct, StructuralError idiom of the bzip2 decoder this
// module was adapted from.
package deflate

import (
	"fmt"

	"github.com/sunhaox/CompressedFileEditor/internal/bitio"
	"github.com/sunhaox/CompressedFileEditor/internal/huffman"
	"github.com/sunhaox/CompressedFileEditor/trace"
)

// Decoder walks a DEFLATE bit stream to completion, dispatching each block
// to its stored/fixed/dynamic handler and resolving back-references against
// win. sink may be nil, in which case no trace is recorded (used by
// call sites that only want bytes, not a structural dump).
type Decoder struct {
	br   *bitio.Reader
	win  *Window
	sink *trace.Sink

	blockCount int
}

// New returns a Decoder reading from br, writing decompressed bytes (or
// just counting them) into win, and optionally recording a structural
// trace into sink.
func New(br *bitio.Reader, win *Window, sink *trace.Sink) *Decoder {
	return &Decoder{br: br, win: win, sink: sink}
}

// Decode runs the decoder to completion: repeatedly reading and dispatching
// blocks until one with BFINAL=1 has been processed. It returns a
// StructuralError from the table in errors.go, or nil on success.
func (d *Decoder) Decode() error {
	for {
		startPos := d.br.BitPosition()
		var block *trace.Node
		if d.sink != nil {
			block = d.sink.Open("BLOCK")
			block.Field("BLOCK_BIT_POSITION", startPos)
		}

		final := d.br.Read(1)
		btype := d.br.Read(2)
		if d.br.Err() != nil {
			return ErrTruncatedInput
		}
		if block != nil {
			block.Field("BFINAL", final)
			block.Field("BTYPE", btype)
		}

		var err error
		switch btype {
		case 0:
			err = d.stored(block)
		case 1:
			err = d.fixed(block)
		case 2:
			err = d.dynamic(block)
		default:
			err = ErrInvalidBlockType
		}
		if err != nil {
			return err
		}

		d.blockCount++
		if d.sink != nil {
			block.Field("BLOCK_BIT_SIZE", d.br.BitPosition()-startPos)
			d.sink.Close()
		}
		if final == 1 {
			break
		}
	}

	if d.sink != nil {
		summary := trace.NewRecord("BLOCK_SUMMARY")
		summary.Field("block_count", d.blockCount)
		summary.Field("decompressed_bytes", d.win.Length())
		d.sink.Field("BLOCK_SUMMARY", summary)
	}
	return nil
}

// stored handles BTYPE=0: a byte-aligned run of raw bytes bounded by a
// length/one's-complement-length pair.
func (d *Decoder) stored(block *trace.Node) error {
	discarded := d.br.BitsRemainingInByte()
	d.br.AlignToByte()
	if block != nil && discarded > 0 {
		block.Field("RESERVED", discarded)
	}

	lenBytes := d.br.ReadBytes(2)
	nlenBytes := d.br.ReadBytes(2)
	if d.br.Err() != nil {
		return ErrTruncatedInput
	}
	length := int(lenBytes[0]) | int(lenBytes[1])<<8
	nlength := int(nlenBytes[0]) | int(nlenBytes[1])<<8
	if length+nlength != 0xFFFF {
		return ErrStoredLengthMismatch
	}
	if block != nil {
		block.Field("LEN", length)
		block.Field("NLEN", nlength)
	}

	raw := d.br.ReadBytes(length)
	if d.br.Err() != nil {
		return ErrTruncatedInput
	}
	for _, b := range raw {
		if err := d.win.Emit(b); err != nil {
			return err
		}
	}
	if block != nil && d.sink.Verbose() {
		block.Field("DECOMPRESSED_DATA", raw)
	}
	return nil
}

// fixed handles BTYPE=1 using the module-scope fixed tables.
func (d *Decoder) fixed(block *trace.Node) error {
	return d.lengthDistanceLoop(fixedLiteralTable, fixedDistTable, block)
}

// dynamic handles BTYPE=2: read the code-length code, use it to decode the
// combined literal/length + distance length vector, split and build both
// tables, then run the same back-reference loop as a fixed block.
func (d *Decoder) dynamic(block *trace.Node) error {
	hlit := d.br.Read(5) + 257
	hdist := d.br.Read(5) + 1
	hclen := d.br.Read(4) + 4
	if d.br.Err() != nil {
		return ErrTruncatedInput
	}
	if hlit > 286 || hdist > 30 || hclen > 19 {
		return ErrBadCounts
	}
	if block != nil {
		block.Field("HLIT", hlit)
		block.Field("HDIST", hdist)
		block.Field("HCLEN", hclen)
	}

	clLengths := make([]int, 19)
	for i := 0; i < hclen; i++ {
		clLengths[codeLengthOrder[i]] = d.br.Read(3)
	}
	if d.br.Err() != nil {
		return ErrTruncatedInput
	}
	clTable, status := huffman.Construct(clLengths)
	if status != huffman.Complete {
		return ErrCodeLengthCodeIncomplete
	}
	if block != nil && d.sink.Verbose() {
		block.Array("CODE_LENGTH_TABLE", codeLengthTableRecords(clLengths, codeLengthOrder[:hclen]))
	}

	lengths, err := d.readCodeLengths(clTable, hlit+hdist)
	if err != nil {
		return err
	}

	litLengths := lengths[:hlit]
	distLengths := lengths[hlit:]

	litTable, litStatus := huffman.Construct(litLengths)
	if litStatus == huffman.Oversubscribed || (litStatus == huffman.Incomplete && !litTable.SingleZeroBitSymbol()) {
		return ErrInvalidLiteralLengthTable
	}
	if litTable.Length(256) == 0 {
		return ErrMissingEndOfBlock
	}

	distTable, distStatus := huffman.Construct(distLengths)
	if distStatus == huffman.Oversubscribed || (distStatus == huffman.Incomplete && !distTable.SingleZeroBitSymbol()) {
		return ErrInvalidDistanceTable
	}

	if block != nil && d.sink.Verbose() {
		block.Array("LITERAL_LENGTH_DISTANCE_TABLE", symbolTableRecords(litTable, len(litLengths)))
	}

	return d.lengthDistanceLoop(litTable, distTable, block)
}

// readCodeLengths decodes total code-length symbols through clTable into a
// combined literal/length + distance length vector, expanding repeat codes
// 16/17/18 per RFC 1951 section 3.2.7.
func (d *Decoder) readCodeLengths(clTable *huffman.Table, total int) ([]int, error) {
	lengths := make([]int, 0, total)
	for len(lengths) < total {
		sym := clTable.Decode(d.br)
		if d.br.Err() != nil {
			return nil, ErrTruncatedInput
		}
		switch {
		case sym < 0:
			return nil, ErrBadHuffmanSymbol
		case sym <= 15:
			lengths = append(lengths, sym)
		case sym == 16:
			// Repeat the previous length (3 + next 2 bits times). "No
			// previous length" means the vector is still empty -- after a
			// 17/18 zero-run the previous length is legitimately 0, and
			// repeating it is valid (puff.c: len = lengths[index-1]).
			if len(lengths) == 0 {
				return nil, ErrRepeatWithoutPrevious
			}
			prev := lengths[len(lengths)-1]
			n := 3 + d.br.Read(2)
			if len(lengths)+n > total {
				return nil, ErrRepeatOverrun
			}
			for i := 0; i < n; i++ {
				lengths = append(lengths, prev)
			}
		case sym == 17:
			n := 3 + d.br.Read(3)
			if len(lengths)+n > total {
				return nil, ErrRepeatOverrun
			}
			for i := 0; i < n; i++ {
				lengths = append(lengths, 0)
			}
		case sym == 18:
			n := 11 + d.br.Read(7)
			if len(lengths)+n > total {
				return nil, ErrRepeatOverrun
			}
			for i := 0; i < n; i++ {
				lengths = append(lengths, 0)
			}
		default:
			return nil, ErrBadHuffmanSymbol
		}
		if d.br.Err() != nil {
			return nil, ErrTruncatedInput
		}
	}
	return lengths, nil
}

// lengthDistanceLoop runs the shared back-reference engine (section 4.3.1):
// decode a literal/length symbol, either emit a literal, stop at
// end-of-block, or decode a length/distance pair and copy from the window.
// Symbols 286/287 exist in the fixed table but, like any literal/length
// symbol past 285, are never validly emitted and are rejected here.
func (d *Decoder) lengthDistanceLoop(litTable, distTable *huffman.Table, block *trace.Node) error {
	var symbols []*trace.Node
	verbose := d.sink != nil && d.sink.Verbose()

	for {
		symStart := d.br.BitPosition()
		sym := litTable.Decode(d.br)
		if d.br.Err() != nil {
			return ErrTruncatedInput
		}
		if sym < 0 || sym > 287 {
			return ErrBadHuffmanSymbol
		}

		switch {
		case sym < 256:
			if err := d.win.Emit(byte(sym)); err != nil {
				return err
			}
			if verbose {
				symbols = append(symbols, literalRecord(litTable, sym, d.br.BitPosition()-symStart))
			}

		case sym == 256:
			if verbose {
				symbols = append(symbols, endOfBlockRecord(litTable, sym, d.br.BitPosition()-symStart))
			}
			if block != nil && len(symbols) > 0 {
				block.Array("SYMBOLS", symbols)
			}
			return nil

		case sym <= 285:
			i := sym - 257
			length := lengthBase[i] + d.br.Read(uint(lengthExtra[i]))
			if d.br.Err() != nil {
				return ErrTruncatedInput
			}

			distSym := distTable.Decode(d.br)
			if d.br.Err() != nil {
				return ErrTruncatedInput
			}
			if distSym < 0 || distSym > 29 {
				return ErrBadHuffmanSymbol
			}
			distance := distBase[distSym] + d.br.Read(uint(distExtra[distSym]))
			if d.br.Err() != nil {
				return ErrTruncatedInput
			}

			if err := d.win.CopyBack(distance, length); err != nil {
				return err
			}
			if verbose {
				symbols = append(symbols, backReferenceRecord(litTable, distTable, sym, distSym, length, distance, d.br.BitPosition()-symStart))
			}

		default:
			return ErrBadHuffmanSymbol
		}
	}
}

func literalRecord(litTable *huffman.Table, sym int, bits int) *trace.Node {
	n := trace.NewRecord("LITERAL")
	value, _, _ := litTable.EncodedValue(sym)
	n.BitSize(uint(bits)).Value(value).DecodedValue(sym)
	desc := fmt.Sprintf("literal 0x%02x", sym)
	if sym >= 0x20 && sym < 0x7f {
		desc = fmt.Sprintf("literal '%c' (0x%02x)", byte(sym), sym)
	}
	n.Description(desc)
	return n
}

func endOfBlockRecord(litTable *huffman.Table, sym int, bits int) *trace.Node {
	n := trace.NewRecord("END_OF_BLOCK")
	value, _, _ := litTable.EncodedValue(sym)
	n.BitSize(uint(bits)).Value(value).DecodedValue(sym).Description("end of block")
	return n
}

func backReferenceRecord(litTable, distTable *huffman.Table, lenSym, distSym, length, distance, bits int) *trace.Node {
	n := trace.NewRecord("BACK_REFERENCE")
	value, _, _ := litTable.EncodedValue(lenSym)
	n.BitSize(uint(bits)).Value(value).DecodedValue(length)
	n.Field("length", length)
	n.Field("distance", distance)
	distValue, _, _ := distTable.EncodedValue(distSym)
	n.Field("distance_value", distValue)
	n.Description(fmt.Sprintf("copy %d bytes from %d bytes back", length, distance))
	return n
}

func symbolTableRecords(t *huffman.Table, n int) []*trace.Node {
	recs := make([]*trace.Node, 0, n)
	for sym := 0; sym < n; sym++ {
		value, length, ok := t.EncodedValue(sym)
		if !ok {
			continue
		}
		r := trace.NewRecord("SYMBOL")
		r.Field("symbol", sym)
		r.BitSize(uint(length)).Value(value)
		recs = append(recs, r)
	}
	return recs
}

func codeLengthTableRecords(lengths []int, order []int) []*trace.Node {
	recs := make([]*trace.Node, 0, len(order))
	for _, pos := range order {
		r := trace.NewRecord("CODE_LENGTH")
		r.Field("position", pos)
		r.Field("length", lengths[pos])
		recs = append(recs, r)
	}
	return recs
}
