package crypto

import (
	"crypto/md5"
	"encoding/hex"
	"strings"
)

func Md5(in []byte) string {
	m := md5.Sum(in)
	return hex.EncodeToString(m[:])
}

// Md5Lines hashes lines joined by '\n', used for schema fingerprints
func Md5Lines(lines []string) string {
	return Md5([]byte(strings.Join(lines, "\n")))
}
