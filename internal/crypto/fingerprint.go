package crypto

import (
	"crypto/sha256"
	"fmt"
	"strings"
)

// Extra hash rounds applied to the fingerprint digest to raise the cost of
// collision search against the truncated numeric form.
const fingerprintRounds = 5199

// CalculateFingerprint derives the safety number for a pair of identities.
// The (label, key) pairs are ordered by label first, so both parties compute
// the same value regardless of who calls.
//
// The result is 12 space-separated groups of 5 decimal digits, each group
// read from 5 digest bytes modulo 100000.
func CalculateFingerprint(
	localIdentity IdentityPublicKey,
	localLabel string,
	remoteIdentity IdentityPublicKey,
	remoteLabel string,
) string {
	firstLabel, firstKey := localLabel, localIdentity
	secondLabel, secondKey := remoteLabel, remoteIdentity
	if remoteLabel < localLabel {
		firstLabel, firstKey = remoteLabel, remoteIdentity
		secondLabel, secondKey = localLabel, localIdentity
	}

	h := sha256.New()
	h.Write([]byte(firstLabel))
	h.Write(firstKey[:])
	h.Write([]byte(secondLabel))
	h.Write(secondKey[:])
	digest := h.Sum(nil)

	for i := 0; i < fingerprintRounds; i++ {
		h := sha256.New()
		h.Write(digest)
		h.Write(firstKey[:])
		h.Write(secondKey[:])
		digest = h.Sum(nil)
	}

	var b strings.Builder
	b.Grow(71)
	for i := 0; i < 12; i++ {
		offset := i * 5 % 30
		var num uint64
		for j := 0; j < 5; j++ {
			num = num<<8 | uint64(digest[(offset+j)%sha256.Size])
		}
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%05d", num%100000)
	}
	return b.String()
}
