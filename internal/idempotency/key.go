package idempotency

import (
	"errors"
	"fmt"
)

// MaxKeyLength 幂等键长度上限（字节），防止客户端滥用
const MaxKeyLength = 256

var ErrEmptyKey = errors.New("idempotency key cannot be empty")

// Key 客户端提交的幂等键；原始字节即身份，不做任何归一化
type Key string

// ParseKey 校验并包装客户端提交的键
func ParseKey(raw string) (Key, error) {
	if raw == "" {
		return "", ErrEmptyKey
	}
	if len(raw) > MaxKeyLength {
		return "", fmt.Errorf("idempotency key exceeds %d bytes", MaxKeyLength)
	}
	return Key(raw), nil
}

func (k Key) String() string { return string(k) }
