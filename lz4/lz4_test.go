package lz4

import (
	"encoding/json"
	"testing"

	"github.com/sunhaox/CompressedFileEditor/trace"
)

// minimalFrame builds a frame with FLG version=1 and no optional fields
// (no content size, no dict id), one uncompressed 3-byte block, then the
// zero-word EndMark.
func minimalFrame(blockChecksum bool) []byte {
	flg := byte(1 << 6) // version=1, all other flag bits 0
	if blockChecksum {
		flg |= 1 << 4
	}
	bd := byte(6 << 4) // block max size code 6 ("1 MiB"), arbitrary

	buf := []byte{0x04, 0x22, 0x4D, 0x18, flg, bd, 0x00 /* header checksum, unchecked */}

	body := []byte{'a', 'b', 'c'}
	word := uint32(0x80000000) | uint32(len(body)) // uncompressed flag set
	buf = append(buf, byte(word), byte(word>>8), byte(word>>16), byte(word>>24))
	buf = append(buf, body...)
	if blockChecksum {
		buf = append(buf, 0, 0, 0, 0)
	}
	buf = append(buf, 0, 0, 0, 0) // EndMark
	return buf
}

func TestWalkUncompressedBlock(t *testing.T) {
	sink := trace.NewSink("LZ4", false)
	if err := Walk(minimalFrame(false), sink); err != nil {
		t.Fatalf("Walk() error = %v", err)
	}
	out, err := sink.Serialize()
	if err != nil {
		t.Fatal(err)
	}
	var parsed map[string]interface{}
	if err := json.Unmarshal(out, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, out)
	}
	blocks, ok := parsed["BLOCKS"].([]interface{})
	if !ok || len(blocks) != 2 { // one data block + EndMark
		t.Fatalf("BLOCKS = %v, want 2 entries", parsed["BLOCKS"])
	}
	block := blocks[0].(map[string]interface{})
	if block["COMPRESSED_FLAG"] != "UNCOMPRESSED" {
		t.Fatalf("COMPRESSED_FLAG = %v, want UNCOMPRESSED", block["COMPRESSED_FLAG"])
	}
	if block["BLOCK_SIZE"].(float64) != 3 {
		t.Fatalf("BLOCK_SIZE = %v, want 3", block["BLOCK_SIZE"])
	}
}

func TestWalkBlockChecksumAdvancesCorrectly(t *testing.T) {
	sink := trace.NewSink("LZ4", false)
	if err := Walk(minimalFrame(true), sink); err != nil {
		t.Fatalf("Walk() error = %v", err)
	}
}

func TestWalkBadMagicRejected(t *testing.T) {
	buf := []byte{0x00, 0x00, 0x00, 0x00, 0, 0, 0}
	if err := Walk(buf, nil); err != ErrHeaderInvalid {
		t.Fatalf("err = %v, want ErrHeaderInvalid", err)
	}
}

func TestWalkTruncatedRejected(t *testing.T) {
	buf := []byte{0x04, 0x22, 0x4D, 0x18, 1 << 6, 0, 0}
	if err := Walk(buf, nil); err != ErrTruncated {
		t.Fatalf("err = %v, want ErrTruncated", err)
	}
}
