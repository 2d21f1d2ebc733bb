// Package checksum accumulates the trailer checksums used by the zlib and
// gzip envelopes. Both wrap a standard library hash, the same way
// internal/bzip2's crc accumulator wraps hash/crc32 -- bzip2's own checksum
// needs bit-reversal around the stdlib table, these don't, so the wrapping
// here is a thinner pass-through.
package checksum

import (
	"hash"
	"hash/adler32"
	"hash/crc32"
)

// Adler32 accumulates an RFC 1950 Adler-32 checksum incrementally across
// however many chunks of decompressed output the caller produces.
type Adler32 struct {
	h hash.Hash32
}

// NewAdler32 returns an accumulator seeded at the Adler-32 identity value.
func NewAdler32() *Adler32 {
	return &Adler32{h: adler32.New()}
}

// Write folds buf into the running checksum.
func (a *Adler32) Write(buf []byte) {
	a.h.Write(buf)
}

// Sum32 returns the checksum accumulated so far.
func (a *Adler32) Sum32() uint32 {
	return a.h.Sum32()
}

// CRC32 accumulates an RFC 1952 CRC-32 (IEEE polynomial) checksum, the same
// checksum gzip's trailer uses.
type CRC32 struct {
	h uint32
}

// NewCRC32 returns an accumulator seeded at the CRC-32 identity value.
func NewCRC32() *CRC32 {
	return &CRC32{}
}

// Write folds buf into the running checksum.
func (c *CRC32) Write(buf []byte) {
	c.h = crc32.Update(c.h, crc32.IEEETable, buf)
}

// Sum32 returns the checksum accumulated so far.
func (c *CRC32) Sum32() uint32 {
	return c.h
}
