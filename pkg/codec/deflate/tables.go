package deflate

import "sort"

const (
	endOfBlock  = 256
	numLitLen   = 286
	numDist     = 30
	numCodeLen  = 19
	maxCodeBits = 15
	maxCLBits   = 7
)

var (
	lengthBase = [29]uint16{
		3, 4, 5, 6, 7, 8, 9, 10, 11, 13, 15, 17, 19, 23, 27, 31,
		35, 43, 51, 59, 67, 83, 99, 115, 131, 163, 195, 227, 258,
	}
	lengthExtra = [29]uint8{
		0, 0, 0, 0, 0, 0, 0, 0, 1, 1, 1, 1, 2, 2, 2, 2,
		3, 3, 3, 3, 4, 4, 4, 4, 5, 5, 5, 5, 0,
	}
	distBase = [30]uint16{
		1, 2, 3, 4, 5, 7, 9, 13, 17, 25, 33, 49, 65, 97, 129, 193,
		257, 385, 513, 769, 1025, 1537, 2049, 3073, 4097, 6145, 8193, 12289, 16385, 24577,
	}
	distExtra = [30]uint8{
		0, 0, 0, 0, 1, 1, 2, 2, 3, 3, 4, 4, 5, 5, 6, 6,
		7, 7, 8, 8, 9, 9, 10, 10, 11, 11, 12, 12, 13, 13,
	}

	// Order in which code length code lengths are transmitted.
	codeLenOrder = [numCodeLen]int{16, 17, 18, 0, 8, 7, 9, 6, 10, 5, 11, 4, 12, 3, 13, 2, 14, 1, 15}

	// lengthCodes maps a match length (3..258) to its index in lengthBase.
	lengthCodes = func() [259]uint8 {
		var t [259]uint8
		code := 0
		for l := 3; l <= 258; l++ {
			if code+1 < len(lengthBase) && l >= int(lengthBase[code+1]) {
				code++
			}
			t[l] = uint8(code)
		}
		return t
	}()
)

// distCode returns the index in distBase for a match distance.
func distCode(d int) int {
	return sort.Search(len(distBase), func(i int) bool { return int(distBase[i]) > d }) - 1
}
