package protocol

// Checksum returns the 8-bit checksum over the concatenation of ranges.
// The checksum is chosen so that the byte sum of all ranges plus the
// checksum is 0 modulo 256.
func Checksum(ranges ...[]byte) byte {
	var sum byte
	for _, r := range ranges {
		for _, b := range r {
			sum += b
		}
	}
	return -sum
}

// Verify reports whether sum is the checksum of ranges.
func Verify(sum byte, ranges ...[]byte) bool {
	return Checksum(ranges...) == sum
}
