// Package gzip parses the RFC 1952 gzip envelope: a variable-length header
// (optional extra/name/comment/header-CRC fields) around a raw DEFLATE
// payload, followed by a CRC-32 + ISIZE trailer. Structurally identical in
// shape to package zlib, duplicated rather than shared because the two
// headers share no fields -- the same judgment call the reference's
// separate zlib_dump.c/gzip_dump.c source files made.
package gzip

import (
	"github.com/sunhaox/CompressedFileEditor/deflate"
	"github.com/sunhaox/CompressedFileEditor/internal/bitio"
	"github.com/sunhaox/CompressedFileEditor/internal/checksum"
	"github.com/sunhaox/CompressedFileEditor/trace"
)

// StructuralError mirrors deflate.StructuralError for envelope-level
// failures.
type StructuralError string

func (s StructuralError) Error() string {
	return string(s)
}

// ErrHeaderInvalid corresponds to EnvelopeHeaderInvalid (exit code -1): bad
// magic, a compression method other than 8, or reserved flag bits 5-7 set.
var ErrHeaderInvalid = StructuralError("gzip header invalid")

var osNames = map[byte]string{
	0: "FAT filesystem", 1: "Amiga", 2: "VMS", 3: "Unix", 4: "VM/CMS",
	5: "Atari TOS", 6: "HPFS filesystem", 7: "Macintosh", 8: "Z-System",
	9: "CP/M", 10: "TOPS-20", 11: "NTFS filesystem", 12: "QDOS",
	13: "Acorn RISCOS",
}

func osName(b byte) string {
	if n, ok := osNames[b]; ok {
		return n
	}
	return "unknown"
}

// Decode parses a gzip-wrapped DEFLATE stream from buf, decoding into win
// and recording the header, payload, and trailer trace into sink (which may
// be nil to suppress tracing).
func Decode(buf []byte, win *deflate.Window, sink *trace.Sink) error {
	if len(buf) < 10 {
		return deflate.ErrTruncatedInput
	}
	if buf[0] != 0x1f || buf[1] != 0x8b {
		return ErrHeaderInvalid
	}
	method := buf[2]
	if method != 8 {
		return ErrHeaderInvalid
	}
	flags := buf[3]
	if flags&0xE0 != 0 {
		return ErrHeaderInvalid
	}
	mtime := uint32(buf[4]) | uint32(buf[5])<<8 | uint32(buf[6])<<16 | uint32(buf[7])<<24
	xfl := buf[8]
	osByte := buf[9]

	var header *trace.Node
	if sink != nil {
		header = sink.Open("GZIP_HEADER")
		header.Field("ID1", buf[0])
		header.Field("ID2", buf[1])
		header.Field("COMPRESSION_METHOD", method)
		header.Field("FLG", flags)
		header.Field("FTEXT", flags&0x1)
		header.Field("FHCRC", (flags>>1)&0x1)
		header.Field("FEXTRA", (flags>>2)&0x1)
		header.Field("FNAME", (flags>>3)&0x1)
		header.Field("FCOMMENT", (flags>>4)&0x1)
		header.Field("MTIME", mtime)
		header.Field("XFL", xfl)
		header.Field("OS", osByte)
		header.Description(osName(osByte))
	}

	pos := 10
	if flags&0x04 != 0 { // FEXTRA
		if len(buf) < pos+2 {
			return deflate.ErrTruncatedInput
		}
		xlen := int(buf[pos]) | int(buf[pos+1])<<8
		pos += 2
		if len(buf) < pos+xlen {
			return deflate.ErrTruncatedInput
		}
		if header != nil {
			header.Field("XLEN", xlen)
			if sink.Verbose() {
				header.Field("EXTRA_FIELD", buf[pos:pos+xlen])
			}
		}
		pos += xlen
	}
	if flags&0x08 != 0 { // FNAME
		name, n, err := readNulTerminated(buf, pos)
		if err != nil {
			return err
		}
		if header != nil {
			header.Field("FNAME_VALUE", name)
		}
		// Advance by strlen+1: the reference leaves an uninitialized
		// string_len on this path in one branch; the corrected
		// behavior (used here) always advances by the field's own
		// length plus its NUL terminator.
		pos += n
	}
	if flags&0x10 != 0 { // FCOMMENT
		comment, n, err := readNulTerminated(buf, pos)
		if err != nil {
			return err
		}
		if header != nil {
			header.Field("FCOMMENT_VALUE", comment)
		}
		pos += n
	}
	if flags&0x02 != 0 { // FHCRC
		if len(buf) < pos+2 {
			return deflate.ErrTruncatedInput
		}
		hcrc := int(buf[pos]) | int(buf[pos+1])<<8
		if header != nil {
			header.Field("FHCRC_VALUE", hcrc)
		}
		pos += 2
	}

	if header != nil {
		sink.Close()
	}

	if len(buf) < pos+8 {
		return deflate.ErrTruncatedInput
	}
	payload := buf[pos : len(buf)-8]
	trailer := buf[len(buf)-8:]

	br := bitio.NewReader(payload)
	dec := deflate.New(br, win, sink)
	if err := dec.Decode(); err != nil {
		return err
	}

	var calculatedCRC uint32
	var isize uint32
	if win != nil {
		crc := checksum.NewCRC32()
		crc.Write(win.Bytes())
		calculatedCRC = crc.Sum32()
		isize = uint32(win.Length())
	}

	crcInFile := uint32(trailer[0]) | uint32(trailer[1])<<8 | uint32(trailer[2])<<16 | uint32(trailer[3])<<24
	isizeInFile := uint32(trailer[4]) | uint32(trailer[5])<<8 | uint32(trailer[6])<<16 | uint32(trailer[7])<<24

	if sink != nil {
		t := sink.Open("GZIP_TRAILER")
		t.Field("CRC32_IN_FILE", crcInFile)
		t.Field("CRC32_CALCULATED", calculatedCRC)
		t.Field("INPUT_SIZE", isizeInFile)
		t.Field("DECOMPRESSED_SIZE", isize)
		sink.Close()
	}
	return nil
}

// readNulTerminated reads a NUL-terminated string starting at pos, and
// returns the number of bytes to advance by: len(string) + 1 for the
// terminator.
func readNulTerminated(buf []byte, pos int) (string, int, error) {
	end := pos
	for end < len(buf) && buf[end] != 0 {
		end++
	}
	if end >= len(buf) {
		return "", 0, deflate.ErrTruncatedInput
	}
	return string(buf[pos:end]), end - pos + 1, nil
}
