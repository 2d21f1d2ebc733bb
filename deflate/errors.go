package deflate

// A StructuralError is returned when the DEFLATE bit stream is structurally
// invalid, following internal/bzip2.StructuralError's typed-string pattern
// rather than ad hoc errors.New calls.
type StructuralError string

func (s StructuralError) Error() string {
	return string(s)
}

// Sentinel errors, one per row of the error kind table. Values are matched
// by ExitCode via equality, not errors.Is, since StructuralError is a plain
// comparable string type.
var (
	ErrTruncatedInput             = StructuralError("truncated input")
	ErrOutputBufferTooSmall       = StructuralError("output buffer too small")
	ErrInvalidBlockType           = StructuralError("invalid block type")
	ErrStoredLengthMismatch       = StructuralError("stored block LEN/NLEN mismatch")
	ErrBadCounts                  = StructuralError("HLIT/HDIST/HCLEN out of range")
	ErrCodeLengthCodeIncomplete   = StructuralError("code length code incomplete")
	ErrRepeatWithoutPrevious      = StructuralError("repeat code with no previous length to repeat")
	ErrRepeatOverrun              = StructuralError("repeat extends past HLIT+HDIST")
	ErrInvalidLiteralLengthTable  = StructuralError("invalid literal/length table")
	ErrInvalidDistanceTable       = StructuralError("invalid distance table")
	ErrMissingEndOfBlock          = StructuralError("literal/length table has no end-of-block symbol")
	ErrBadHuffmanSymbol           = StructuralError("bad huffman symbol")
	ErrDistanceTooFar             = StructuralError("back-reference distance exceeds output produced so far")
)

var exitCodeByError = map[StructuralError]int{
	ErrTruncatedInput:            2,
	ErrOutputBufferTooSmall:      1,
	ErrInvalidBlockType:          -1,
	ErrStoredLengthMismatch:      -2,
	ErrBadCounts:                 -3,
	ErrCodeLengthCodeIncomplete:  -4,
	ErrRepeatWithoutPrevious:     -5,
	ErrRepeatOverrun:             -6,
	ErrInvalidLiteralLengthTable: -7,
	ErrInvalidDistanceTable:      -8,
	ErrMissingEndOfBlock:         -9,
	ErrBadHuffmanSymbol:          -10,
	ErrDistanceTooFar:            -11,
}

// ExitCode maps a decode error to the reference process exit/return code;
// it returns 0 for a nil error and -1 for any error this package didn't
// originate.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	if se, ok := err.(StructuralError); ok {
		if code, ok := exitCodeByError[se]; ok {
			return code
		}
	}
	return -1
}
