package config

import "testing"

func TestHashBytesEmpty(t *testing.T) {
	if h := hashBytes(nil); h != 0 {
		t.Fatalf("hashBytes(nil) = %d, want 0", h)
	}
	if h := hashBytes([]byte{}); h != 0 {
		t.Fatalf("hashBytes(empty) = %d, want 0", h)
	}
}

func TestHashBytesStable(t *testing.T) {
	a := hashBytes([]byte("hello"))
	b := hashBytes([]byte("hello"))
	if a != b {
		t.Fatalf("hash not stable: %d != %d", a, b)
	}
}

func TestHashBytesDiffersOnContent(t *testing.T) {
	a := hashBytes([]byte("hello"))
	b := hashBytes([]byte("world"))
	if a == b {
		t.Fatal("expected different hashes for different content")
	}
}
