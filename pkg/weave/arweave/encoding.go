// Package arweave implements the parts of the Arweave protocol the publisher
// needs: base64url encoding, tags, JWK wallets, format 2 transaction
// signing, and an HTTP client for the gateway API.
package arweave

import (
	"encoding/base64"
	"fmt"
)

// EncodeB64 encodes b as unpadded base64url, the encoding used for every
// binary field on the wire.
func EncodeB64(b []byte) string {
	return base64.RawURLEncoding.EncodeToString(b)
}

// DecodeB64 decodes an unpadded base64url string. Padding, if present, is
// tolerated.
func DecodeB64(s string) ([]byte, error) {
	for len(s) > 0 && s[len(s)-1] == '=' {
		s = s[:len(s)-1]
	}
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decoding base64url: %w", err)
	}
	return b, nil
}

// mustDecodeB64 decodes fields that were produced by EncodeB64 locally.
func mustDecodeB64(s string) []byte {
	b, err := DecodeB64(s)
	if err != nil {
		return nil
	}
	return b
}
