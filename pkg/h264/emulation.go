package h264

// EmulationPreventionRemove - convert NAL unit payload to RBSP
// 0x00 0x00 0x03 0xXX -> 0x00 0x00 0xXX
// returns original slice if there is nothing to remove
func EmulationPreventionRemove(b []byte) []byte {
	n := len(b)
	for i := 2; i < len(b); i++ {
		if b[i-2] == 0 && b[i-1] == 0 && b[i] == 3 {
			n--
			i += 2 // 0x03 can't be first zero of next sequence
		}
	}

	if n == len(b) {
		return b
	}

	rbsp := make([]byte, 0, n)
	start := 0
	for i := 2; i < len(b); i++ {
		if b[i-2] == 0 && b[i-1] == 0 && b[i] == 3 {
			rbsp = append(rbsp, b[start:i]...)
			start = i + 1
			i += 2
		}
	}

	return append(rbsp, b[start:]...)
}

// EmulationPreventionInsert - convert RBSP to NAL unit payload
func EmulationPreventionInsert(rbsp []byte) []byte {
	b := make([]byte, 0, len(rbsp)+len(rbsp)/64)

	var zeros int
	for _, c := range rbsp {
		if zeros == 2 && c <= 3 {
			b = append(b, 3)
			zeros = 0
		}
		b = append(b, c)
		if c == 0 {
			zeros++
		} else {
			zeros = 0
		}
	}

	return b
}
