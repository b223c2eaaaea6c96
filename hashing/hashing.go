// Package hashing computes content digests used to decide whether a remote
// chat photo still carries the canonical image.
//
// The digests are a change-detection signal only. MD5 (the default) and
// xxhash are both non-cryptographic choices here: nothing relies on them to
// resist a deliberate collision, they only have to tell two different images
// apart.
package hashing

import (
	"crypto/md5" //nolint:gosec // G501: change detection, not a security boundary
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// BufferSize is the chunk size used when streaming input into the digest.
const BufferSize = 8192

// Algorithm names a supported digest.
type Algorithm string

const (
	MD5    Algorithm = "md5"
	XXHash Algorithm = "xxhash"
)

// ParseAlgorithm maps a config value to an Algorithm. Empty means MD5.
func ParseAlgorithm(s string) (Algorithm, error) {
	switch Algorithm(strings.ToLower(strings.TrimSpace(s))) {
	case "", MD5:
		return MD5, nil
	case XXHash:
		return XXHash, nil
	default:
		return "", fmt.Errorf("unknown hash algorithm %q (want md5 or xxhash)", s)
	}
}

// Hasher streams byte sources into a hex digest.
type Hasher struct {
	Algorithm Algorithm
}

// New returns a Hasher for the given algorithm.
func New(alg Algorithm) *Hasher {
	return &Hasher{Algorithm: alg}
}

func (h *Hasher) digest() hash.Hash {
	if h != nil && h.Algorithm == XXHash {
		return xxhash.New()
	}
	return md5.New() //nolint:gosec // G401: see package doc
}

// Sum reads r to completion in BufferSize chunks and returns the hex digest.
func (h *Hasher) Sum(r io.Reader) (string, error) {
	d := h.digest()
	buf := make([]byte, BufferSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			_, _ = d.Write(buf[:n])
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("read input: %w", err)
		}
	}
	return hex.EncodeToString(d.Sum(nil)), nil
}

// SumFile hashes the file at path.
func (h *Hasher) SumFile(path string) (string, error) {
	f, err := os.Open(path) //nolint:gosec // G304: path comes from operator config
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer func() {
		if err := f.Close(); err != nil {
			slog.Warn("failed to close hashed file", slog.String("path", path), slog.Any("err", err))
		}
	}()
	sum, err := h.Sum(f)
	if err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	slog.Debug("file hashed", slog.String("path", path), slog.String("algorithm", string(h.algorithm())), slog.String("sum", sum))
	return sum, nil
}

func (h *Hasher) algorithm() Algorithm {
	if h == nil || h.Algorithm == "" {
		return MD5
	}
	return h.Algorithm
}
