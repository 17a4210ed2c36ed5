package link

import (
	"crypto/sha1"
	"crypto/subtle"

	"golang.org/x/crypto/pbkdf2"
)

// passwordSalt mirrors the SALT constant the source tool derives its KCP
// session key from; here it seeds a verifier for the admission password
// instead of a cipher key, since payload/secret encryption is an explicit
// non-goal.
const passwordSalt = "udpconn"

func derivePasswordVerifier(secret string) []byte {
	return pbkdf2.Key([]byte(secret), []byte(passwordSalt), 4096, 32, sha1.New)
}

// passwordsEqual reports whether two admission secrets match, compared in
// constant time over their derived verifiers rather than the raw strings.
func passwordsEqual(a, b string) bool {
	va := derivePasswordVerifier(a)
	vb := derivePasswordVerifier(b)
	return subtle.ConstantTimeCompare(va, vb) == 1
}
