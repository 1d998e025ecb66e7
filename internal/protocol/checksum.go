package protocol

// Checksum calculates the Internet Checksum (RFC 1071).
// This is used for ICMP, IP, UDP, and TCP header checksums.
func Checksum(data []byte) uint16 {
	return ChecksumParts(data)
}

// ChecksumParts calculates the Internet Checksum over the concatenation of
// parts, typically a pseudo-header followed by a transport segment.
func ChecksumParts(parts ...[]byte) uint16 {
	return ^fold(sum(parts...))
}

// ValidateChecksum verifies that data, checksum field included, sums to 0xFFFF.
func ValidateChecksum(parts ...[]byte) bool {
	return fold(sum(parts...)) == 0xffff
}

// OnesAdd adds two 16-bit words in one's complement arithmetic.
func OnesAdd(a, b uint16) uint16 {
	return fold(uint32(a) + uint32(b))
}

func sum(parts ...[]byte) uint32 {
	var s uint32
	odd := false
	for _, p := range parts {
		for _, b := range p {
			if odd {
				s += uint32(b)
			} else {
				s += uint32(b) << 8
			}
			odd = !odd
			// Each step adds at most 0xff00, so folding once the top bit
			// is set keeps the sum from wrapping.
			if s&0x80000000 != 0 {
				s = (s >> 16) + (s & 0xffff)
			}
		}
	}
	return s
}

func fold(s uint32) uint16 {
	for s > 0xffff {
		s = (s >> 16) + (s & 0xffff)
	}
	return uint16(s)
}
