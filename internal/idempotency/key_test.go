package idempotency

import (
	"strings"
	"testing"
)

func TestParseKey(t *testing.T) {
	key, err := ParseKey("abc")
	if err != nil {
		t.Fatalf("parse valid key: %v", err)
	}
	if key.String() != "abc" {
		t.Fatalf("key bytes changed: %q", key)
	}

	// 原始字节即身份，不做归一化
	key, err = ParseKey("  MiXeD CaSe  ")
	if err != nil {
		t.Fatalf("parse key with spaces: %v", err)
	}
	if key.String() != "  MiXeD CaSe  " {
		t.Fatalf("key was normalized: %q", key)
	}
}

func TestParseKeyEmpty(t *testing.T) {
	if _, err := ParseKey(""); err != ErrEmptyKey {
		t.Fatalf("expected ErrEmptyKey, got %v", err)
	}
}

func TestParseKeyLength(t *testing.T) {
	if _, err := ParseKey(strings.Repeat("a", MaxKeyLength)); err != nil {
		t.Fatalf("key at max length rejected: %v", err)
	}
	if _, err := ParseKey(strings.Repeat("a", MaxKeyLength+1)); err == nil {
		t.Fatal("oversized key accepted")
	}
}
