// Package zstd parses a Zstandard frame header and walks its block headers
// without decompressing block bodies -- the other structural-only walker
// named by spec.md's Design note (iii). Grounded on the original
// zstd_dump.c's bit-accurate Frame Header Descriptor parsing, reworked into
// the same Walk(buf, sink) entry point as package lz4.
package zstd

import "github.com/sunhaox/CompressedFileEditor/trace"

// StructuralError mirrors deflate.StructuralError for this package's
// envelope-level failures.
type StructuralError string

func (s StructuralError) Error() string {
	return string(s)
}

// ErrHeaderInvalid is returned for a bad magic number.
var ErrHeaderInvalid = StructuralError("zstd frame header invalid")

// ErrTruncated is returned when the buffer ends before a declared field or
// block body is fully present.
var ErrTruncated = StructuralError("truncated zstd frame")

var dictIDFieldSize = [4]int{0, 1, 2, 4}

// Walk parses a zstd frame from buf and records its header fields and block
// sequence into sink (nil suppresses tracing). It does not decompress block
// bodies; RLE and compressed blocks are advanced past using their declared
// on-wire size.
func Walk(buf []byte, sink *trace.Sink) error {
	if len(buf) < 5 || buf[0] != 0x28 || buf[1] != 0xB5 || buf[2] != 0x2F || buf[3] != 0xFD {
		return ErrHeaderInvalid
	}
	pos := 4

	fhd := buf[pos]
	pos++

	dictIDFlag := int(fhd & 0x3)
	contentChecksum := (fhd >> 2) & 0x1
	singleSegment := (fhd >> 5) & 0x1
	fcsFlag := int((fhd >> 6) & 0x3)

	var header *trace.Node
	if sink != nil {
		header = sink.Open("ZSTD_FRAME_HEADER")
		header.Field("FRAME_HEADER_DESCRIPTOR", fhd)
		header.Field("DICTIONARY_ID_FLAG", dictIDFlag)
		header.Field("CONTENT_CHECKSUM_FLAG", contentChecksum)
		header.Field("SINGLE_SEGMENT_FLAG", singleSegment)
		header.Field("FRAME_CONTENT_SIZE_FLAG", fcsFlag)
	}

	if singleSegment == 0 {
		if len(buf) < pos+1 {
			return ErrTruncated
		}
		wd := buf[pos]
		pos++
		mantissa := int(wd & 0x7)
		exponent := int(wd >> 3)
		windowLog := 10 + exponent
		windowBase := 1 << uint(windowLog)
		windowSize := windowBase + (windowBase/8)*mantissa
		if header != nil {
			header.Field("WINDOW_DESCRIPTOR", wd)
			header.Field("WINDOW_SIZE", windowSize)
		}
	}

	dictIDSize := dictIDFieldSize[dictIDFlag]
	if dictIDSize > 0 {
		if len(buf) < pos+dictIDSize {
			return ErrTruncated
		}
		var id uint32
		for i := dictIDSize - 1; i >= 0; i-- {
			id = id<<8 | uint32(buf[pos+i])
		}
		if header != nil {
			header.Field("DICTIONARY_ID", id)
		}
		pos += dictIDSize
	}

	// Frame Content Size field size: the special case is FCS flag 0 with
	// Single_Segment set, which still carries a 1-byte size.
	fcsSize := 0
	switch fcsFlag {
	case 0:
		if singleSegment == 1 {
			fcsSize = 1
		}
	case 1:
		fcsSize = 2
	case 2:
		fcsSize = 4
	case 3:
		fcsSize = 8
	}
	if fcsSize > 0 {
		if len(buf) < pos+fcsSize {
			return ErrTruncated
		}
		var size uint64
		for i := fcsSize - 1; i >= 0; i-- {
			size = size<<8 | uint64(buf[pos+i])
		}
		if fcsSize == 2 {
			size += 256
		}
		if header != nil {
			header.Field("FRAME_CONTENT_SIZE", size)
		}
		pos += fcsSize
	}

	if header != nil {
		sink.Close()
	}

	var blocks []*trace.Node
	for {
		if len(buf) < pos+3 {
			return ErrTruncated
		}
		word := uint32(buf[pos]) | uint32(buf[pos+1])<<8 | uint32(buf[pos+2])<<16
		blockStart := pos
		pos += 3

		last := word&0x1 != 0
		blockType := (word >> 1) & 0x3
		blockSize := int(word >> 3)

		onWireSize := blockSize
		if blockType == 1 { // RLE: one byte on disk regardless of declared size
			onWireSize = 1
		}
		if len(buf) < pos+onWireSize {
			return ErrTruncated
		}
		pos += onWireSize

		if sink != nil {
			blocks = append(blocks, blockRecord(blockStart, last, blockType, blockSize))
		}
		if last {
			break
		}
	}

	if contentChecksum == 1 {
		if len(buf) < pos+4 {
			return ErrTruncated
		}
		checksum := uint32(buf[pos]) | uint32(buf[pos+1])<<8 | uint32(buf[pos+2])<<16 | uint32(buf[pos+3])<<24
		if sink != nil {
			t := sink.Open("ZSTD_TRAILER")
			t.Field("CONTENT_CHECKSUM", checksum)
			sink.Close()
		}
		pos += 4
	}

	if sink != nil {
		sink.Array("BLOCKS", blocks)
	}
	return nil
}

var blockTypeNames = map[uint32]string{0: "raw", 1: "RLE", 2: "compressed", 3: "reserved"}

func blockRecord(bitPos int, last bool, blockType uint32, size int) *trace.Node {
	n := trace.NewRecord("BLOCK")
	n.Field("BLOCK_BIT_POSITION", bitPos*8)
	n.Field("LAST_BLOCK", last)
	n.Field("BLOCK_TYPE", blockType)
	n.Field("BLOCK_SIZE", size)
	n.Description(blockTypeNames[blockType])
	return n
}
