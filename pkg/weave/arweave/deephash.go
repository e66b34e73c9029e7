package arweave

import (
	"crypto/sha512"
	"strconv"
)

// DeepHash computes the Arweave deep hash of a nested structure of byte
// slices. Each element must be a []byte or a []any of further elements.
// It is the message signed for format 2 transactions and ANS-104 data items.
func DeepHash(data any) []byte {
	switch v := data.(type) {
	case []byte:
		tag := sha384(append([]byte("blob"), strconv.Itoa(len(v))...))
		return sha384(append(tag, sha384(v)...))
	case []any:
		acc := sha384(append([]byte("list"), strconv.Itoa(len(v))...))
		for _, child := range v {
			acc = sha384(append(acc, DeepHash(child)...))
		}
		return acc
	case [][]byte:
		list := make([]any, len(v))
		for i := range v {
			list[i] = v[i]
		}
		return DeepHash(list)
	case string:
		return DeepHash([]byte(v))
	default:
		panic("arweave: unsupported deep hash element")
	}
}

func sha384(b []byte) []byte {
	sum := sha512.Sum384(b)
	return sum[:]
}
