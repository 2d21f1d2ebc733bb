package deflate

import "github.com/sunhaox/CompressedFileEditor/internal/huffman"

// Length and distance extra-bits tables, RFC 1951 section 3.2.5.
var (
	lengthBase  = [29]int{3, 4, 5, 6, 7, 8, 9, 10, 11, 13, 15, 17, 19, 23, 27, 31, 35, 43, 51, 59, 67, 83, 99, 115, 131, 163, 195, 227, 258}
	lengthExtra = [29]int{0, 0, 0, 0, 0, 0, 0, 0, 1, 1, 1, 1, 2, 2, 2, 2, 3, 3, 3, 3, 4, 4, 4, 4, 5, 5, 5, 5, 0}

	distBase  = [30]int{1, 2, 3, 4, 5, 7, 9, 13, 17, 25, 33, 49, 65, 97, 129, 193, 257, 385, 513, 769, 1025, 1537, 2049, 3073, 4097, 6145, 8193, 12289, 16385, 24577}
	distExtra = [30]int{0, 0, 0, 0, 1, 1, 2, 2, 3, 3, 4, 4, 5, 5, 6, 6, 7, 7, 8, 8, 9, 9, 10, 10, 11, 11, 12, 12, 13, 13}
)

// codeLengthOrder is the fixed permutation mapping a dynamic block's HCLEN
// code-length-code lengths to their code-length-alphabet position.
var codeLengthOrder = [19]int{16, 17, 18, 0, 8, 7, 9, 6, 10, 5, 11, 4, 12, 3, 13, 2, 14, 1, 15}

// Fixed Huffman tables (RFC 1951 section 3.2.6) are built once, eagerly, at
// package init, following the reference's lazily-built-once "virgin" flag
// reimagined as a module-scope constant rather than mutable global state.
var (
	fixedLiteralTable *huffman.Table
	fixedDistTable    *huffman.Table
)

func init() {
	lens := make([]int, 288)
	for i := 0; i <= 143; i++ {
		lens[i] = 8
	}
	for i := 144; i <= 255; i++ {
		lens[i] = 9
	}
	for i := 256; i <= 279; i++ {
		lens[i] = 7
	}
	for i := 280; i <= 287; i++ {
		lens[i] = 8
	}
	fixedLiteralTable, _ = huffman.Construct(lens)

	distLens := make([]int, 30)
	for i := range distLens {
		distLens[i] = 5
	}
	fixedDistTable, _ = huffman.Construct(distLens)
}
