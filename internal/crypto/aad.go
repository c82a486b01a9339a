// Package icrypto builds the associated data bound into sealed store records.
package icrypto

import (
	"encoding/binary"
)

const (
	aadValue   = "VALUE"
	aadDataKey = "DATAKEY"
)

// AADValue binds a sealed value to its namespace, key name and format version.
func AADValue(namespace, key string, ver int) []byte {
	return buildAAD(aadValue, namespace, key, ver)
}

// AADDataKey binds the wrapped data key to its namespace and format version.
func AADDataKey(namespace string, ver int) []byte {
	return buildAAD(aadDataKey, namespace, ver)
}

// buildAAD length-prefixes strings so ("ab","c") and ("a","bc") differ.
func buildAAD(parts ...any) []byte {
	var res []byte
	for _, p := range parts {
		switch v := p.(type) {
		case string:
			res = appendLenPrefix(res, []byte(v))
		case int:
			res = binary.BigEndian.AppendUint32(res, uint32(v))
		}
	}
	return res
}

func appendLenPrefix(b, data []byte) []byte {
	b = binary.BigEndian.AppendUint32(b, uint32(len(data)))
	return append(b, data...)
}
