package gf256

// Polynomials are stored highest degree first, so p[0] is the leading
// coefficient. This matches the order in which codeword bytes are sent.

// PolyMul returns the product p * q
func PolyMul(p, q []byte) []byte {
	if len(p) == 0 || len(q) == 0 {
		return nil
	}
	r := make([]byte, len(p)+len(q)-1)
	for j, qj := range q {
		if qj == 0 {
			continue
		}
		for i, pi := range p {
			r[i+j] ^= Mul(pi, qj)
		}
	}
	return r
}

// PolyEval evaluates p at x using Horner's scheme
func PolyEval(p []byte, x byte) byte {
	if len(p) == 0 {
		return 0
	}
	y := p[0]
	for _, c := range p[1:] {
		y = Mul(y, x) ^ c
	}
	return y
}
