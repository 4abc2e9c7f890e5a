package cache

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/fxamacker/cbor/v2"

	errs "tschart/pkg/error"
)

// keyMode 确定性编码，相同请求总是得到相同字节
var keyMode = mustEncMode(cbor.CoreDetEncOptions())

func mustEncMode(opts cbor.EncOptions) cbor.EncMode {
	mode, err := opts.EncMode()
	if err != nil {
		panic(err)
	}
	return mode
}

// Encode 把值编码为 CBOR
func Encode(v interface{}) ([]byte, error) {
	data, err := cbor.Marshal(v)
	if err != nil {
		return nil, errs.WrapError(ErrCacheCorrupted, "cbor encode", err)
	}
	return data, nil
}

// Decode 从 CBOR 解码
func Decode(data []byte, v interface{}) error {
	if err := cbor.Unmarshal(data, v); err != nil {
		return errs.WrapError(ErrCacheCorrupted, "cbor decode", err)
	}
	return nil
}

// Key 由命名空间和任意请求值生成定长缓存键
func Key(namespace string, v interface{}) (string, error) {
	data, err := keyMode.Marshal(v)
	if err != nil {
		return "", errs.WrapError(ErrCacheCorrupted, "cbor key encode", err)
	}
	sum := sha256.Sum256(data)
	return namespace + ":" + hex.EncodeToString(sum[:16]), nil
}
