// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package backup

import (
	"bytes"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
)

// Algorithm tags which Compressor produced (or should consume) a
// snapshot body. It is a single byte on the wire.
type Algorithm byte

const (
	AlgorithmNone   Algorithm = 0
	AlgorithmGzip   Algorithm = 1
	AlgorithmZstd   Algorithm = 2
	AlgorithmLZ4    Algorithm = 3
	AlgorithmBrotli Algorithm = 4
)

func (a Algorithm) String() string {
	switch a {
	case AlgorithmNone:
		return "none"
	case AlgorithmGzip:
		return "gzip"
	case AlgorithmZstd:
		return "zstd"
	case AlgorithmLZ4:
		return "lz4"
	case AlgorithmBrotli:
		return "brotli"
	default:
		return fmt.Sprintf("algorithm(%d)", byte(a))
	}
}

// ErrUnsupportedAlgorithm is returned by a Compressor stub for an
// algorithm this fabric names but does not implement: nothing in the
// retrieved example pack imports a zstd, lz4, or brotli library, so
// there is no grounded implementation to build these three against.
var ErrUnsupportedAlgorithm = errors.New("backup: compression algorithm not implemented")

// Compressor compresses and decompresses a snapshot body for one
// Algorithm.
type Compressor interface {
	Algorithm() Algorithm
	Compress(raw []byte) ([]byte, error)
	Decompress(compressed []byte) ([]byte, error)
}

// noneCompressor is the identity Compressor.
type noneCompressor struct{}

func (noneCompressor) Algorithm() Algorithm                 { return AlgorithmNone }
func (noneCompressor) Compress(raw []byte) ([]byte, error)   { return raw, nil }
func (noneCompressor) Decompress(raw []byte) ([]byte, error) { return raw, nil }

// gzipCompressor wraps the standard library's compress/gzip.
type gzipCompressor struct{}

func (gzipCompressor) Algorithm() Algorithm { return AlgorithmGzip }

func (gzipCompressor) Compress(raw []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(raw); err != nil {
		return nil, fmt.Errorf("backup: gzip compress: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("backup: gzip compress: %w", err)
	}
	return buf.Bytes(), nil
}

func (gzipCompressor) Decompress(compressed []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, fmt.Errorf("backup: gzip decompress: %w", err)
	}
	defer r.Close()
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("backup: gzip decompress: %w", err)
	}
	return raw, nil
}

// unsupportedCompressor stubs an algorithm this fabric names but cannot
// ground an implementation for.
type unsupportedCompressor struct{ algo Algorithm }

func (u unsupportedCompressor) Algorithm() Algorithm { return u.algo }

func (u unsupportedCompressor) Compress([]byte) ([]byte, error) {
	return nil, fmt.Errorf("%s: %w", u.algo, ErrUnsupportedAlgorithm)
}

func (u unsupportedCompressor) Decompress([]byte) ([]byte, error) {
	return nil, fmt.Errorf("%s: %w", u.algo, ErrUnsupportedAlgorithm)
}

// NewCompressor returns the Compressor for algo. zstd, lz4, and brotli
// return a stub whose Compress/Decompress always fail with
// ErrUnsupportedAlgorithm.
func NewCompressor(algo Algorithm) Compressor {
	switch algo {
	case AlgorithmNone:
		return noneCompressor{}
	case AlgorithmGzip:
		return gzipCompressor{}
	default:
		return unsupportedCompressor{algo: algo}
	}
}
