package seal

import (
	"crypto/rand"
	"fmt"
)

// Shamir secret sharing over GF(2^8), byte-wise. Share i carries the
// evaluations of per-byte polynomials at x = i+1; x never equals zero, so
// the secret (the value at zero) is never a share.

const gfPoly = 0x11b

func gfMul(a, b byte) byte {
	var p byte
	x, y := int(a), int(b)
	for y > 0 {
		if y&1 == 1 {
			p ^= byte(x)
		}
		x <<= 1
		if x&0x100 != 0 {
			x ^= gfPoly
		}
		y >>= 1
	}
	return p
}

func gfPow(a byte, n int) byte {
	out := byte(1)
	for i := 0; i < n; i++ {
		out = gfMul(out, a)
	}
	return out
}

func gfInv(a byte) byte {
	if a == 0 {
		panic("seal: inverse of zero")
	}
	// a^254 in GF(2^8).
	return gfPow(a, 254)
}

// splitSecret splits secret into n shares with threshold t. Each share is
// len(secret)+1 bytes: the evaluation point followed by the evaluations.
func splitSecret(secret []byte, n, t int) ([][]byte, error) {
	if t < 1 || t > n || n > 255 {
		return nil, fmt.Errorf("invalid sharing parameters n=%d t=%d", n, t)
	}

	shares := make([][]byte, n)
	for i := range shares {
		shares[i] = make([]byte, len(secret)+1)
		shares[i][0] = byte(i + 1)
	}

	coeffs := make([]byte, t-1)
	for pos, b := range secret {
		if _, err := rand.Read(coeffs); err != nil {
			return nil, fmt.Errorf("sample polynomial: %w", err)
		}
		for i := range shares {
			x := shares[i][0]
			y := b
			xp := byte(1)
			for _, c := range coeffs {
				xp = gfMul(xp, x)
				y ^= gfMul(c, xp)
			}
			shares[i][pos+1] = y
		}
	}
	return shares, nil
}

// combineShares reconstructs the secret from at least threshold shares via
// Lagrange interpolation at zero.
func combineShares(shares [][]byte) ([]byte, error) {
	if len(shares) == 0 {
		return nil, fmt.Errorf("no shares")
	}
	length := len(shares[0]) - 1
	for _, s := range shares {
		if len(s) != length+1 {
			return nil, fmt.Errorf("inconsistent share lengths")
		}
	}

	secret := make([]byte, length)
	for pos := 0; pos < length; pos++ {
		var acc byte
		for i, si := range shares {
			num, den := byte(1), byte(1)
			for j, sj := range shares {
				if i == j {
					continue
				}
				num = gfMul(num, sj[0])
				den = gfMul(den, si[0]^sj[0])
			}
			acc ^= gfMul(si[pos+1], gfMul(num, gfInv(den)))
		}
		secret[pos] = acc
	}
	return secret, nil
}
