// Package zlib parses the RFC 1950 zlib envelope -- a 2-byte header, an
// optional preset-dictionary id, and a 4-byte big-endian Adler-32 trailer --
// around a raw DEFLATE payload, delegating the payload itself to package
// deflate. Structured the way package deflate's own caller expects: a
// Decode(buf, win, sink) entry point over an already-loaded buffer.
package zlib

import (
	"github.com/sunhaox/CompressedFileEditor/deflate"
	"github.com/sunhaox/CompressedFileEditor/internal/bitio"
	"github.com/sunhaox/CompressedFileEditor/internal/checksum"
	"github.com/sunhaox/CompressedFileEditor/trace"
)

// StructuralError mirrors deflate.StructuralError's typed-string pattern
// for envelope-level failures (bad header, as opposed to bad DEFLATE data).
type StructuralError string

func (s StructuralError) Error() string {
	return string(s)
}

// ErrHeaderInvalid corresponds to the reference's EnvelopeHeaderInvalid
// kind (exit code -1): the CMF method isn't 8, or compression info isn't 7.
var ErrHeaderInvalid = StructuralError("zlib header invalid")

// Decode parses a zlib-wrapped DEFLATE stream from buf, decoding into win
// and recording the header, payload, and trailer trace into sink (which may
// be nil to suppress tracing).
func Decode(buf []byte, win *deflate.Window, sink *trace.Sink) error {
	if len(buf) < 2 {
		return deflate.ErrTruncatedInput
	}

	cmf, flg := buf[0], buf[1]
	method := cmf & 0x0f
	info := cmf >> 4

	var header *trace.Node
	if sink != nil {
		header = sink.Open("ZLIB_HEADER")
		header.Field("CMF", cmf)
		header.Field("compression_method", method)
		header.Field("compression_info", info)
	}

	if method != 8 || info != 7 {
		if header != nil {
			sink.Close()
		}
		return ErrHeaderInvalid
	}

	fcheck := flg & 0x1f
	fdict := (flg >> 5) & 0x1
	flevel := (flg >> 6) & 0x3
	checkWord := int(cmf)<<8 | int(flg)

	if header != nil {
		header.Field("FLG", flg)
		header.Field("FCHECK", fcheck)
		header.Field("FDICT", fdict)
		header.Field("FLEVEL", flevel)
		if checkWord%31 != 0 {
			header.Description("check failed")
		}
	}

	pos := 2
	if fdict == 1 {
		if len(buf) < pos+4 {
			if header != nil {
				sink.Close()
			}
			return deflate.ErrTruncatedInput
		}
		dictID := uint32(buf[pos])<<24 | uint32(buf[pos+1])<<16 | uint32(buf[pos+2])<<8 | uint32(buf[pos+3])
		if header != nil {
			header.Field("DICTID", dictID)
			header.Description("preset dictionary present, unsupported; continuing")
		}
		pos += 4
	}

	if header != nil {
		sink.Close()
	}

	if len(buf) < pos+4 {
		return deflate.ErrTruncatedInput
	}
	payload := buf[pos : len(buf)-4]
	trailer := buf[len(buf)-4:]

	br := bitio.NewReader(payload)
	dec := deflate.New(br, win, sink)
	if err := dec.Decode(); err != nil {
		return err
	}

	var calculated uint32
	if win != nil {
		adler := checksum.NewAdler32()
		adler.Write(win.Bytes())
		calculated = adler.Sum32()
	}

	embedded := uint32(trailer[0])<<24 | uint32(trailer[1])<<16 | uint32(trailer[2])<<8 | uint32(trailer[3])
	if sink != nil {
		t := sink.Open("ZLIB_TRAILER")
		t.Field("ADLER32_IN_FILE", embedded)
		t.Field("ADLER32_CALCULATED", calculated)
		sink.Close()
	}
	return nil
}
