package authkit

import (
	"bytes"
	"errors"
	"testing"
)

type failingRandomSource struct{}

func (f failingRandomSource) Read(p []byte) (int, error) {
	return 0, errors.New("forced failure")
}

func TestGenerateRefreshOpaqueError(t *testing.T) {
	original := refreshTokenRandomSource
	refreshTokenRandomSource = failingRandomSource{}
	defer func() { refreshTokenRandomSource = original }()

	_, _, err := generateRefreshOpaque()
	if err == nil {
		t.Fatalf("expected error when random source fails")
	}
}

func TestGenerateRefreshOpaqueDeterministicSource(t *testing.T) {
	original := refreshTokenRandomSource
	refreshTokenRandomSource = bytes.NewReader(bytes.Repeat([]byte{1}, refreshOpaqueByteLength))
	defer func() { refreshTokenRandomSource = original }()

	opaque, hashValue, err := generateRefreshOpaque()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(opaque) != 2*refreshOpaqueByteLength {
		t.Fatalf("expected %d hex characters, got %d", 2*refreshOpaqueByteLength, len(opaque))
	}
	if hashValue != HashRefreshToken(opaque) {
		t.Fatalf("expected hash of opaque value")
	}
}

func TestGenerateRefreshOpaqueShortSource(t *testing.T) {
	original := refreshTokenRandomSource
	refreshTokenRandomSource = bytes.NewReader([]byte{1, 2, 3})
	defer func() { refreshTokenRandomSource = original }()

	if _, _, err := generateRefreshOpaque(); err == nil {
		t.Fatalf("expected error when random source is exhausted")
	}
}

func TestHashRefreshTokenIsStableAndDistinct(t *testing.T) {
	first := HashRefreshToken("token-a")
	if first != HashRefreshToken("token-a") {
		t.Fatalf("expected stable hash")
	}
	if first == HashRefreshToken("token-b") {
		t.Fatalf("expected distinct hashes for distinct tokens")
	}
	if first == "token-a" {
		t.Fatalf("hash must not equal the raw token")
	}
}
