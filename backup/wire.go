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
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jws"
)

// magic is the 8-byte prefix every encoded backup carries.
var magic = [8]byte{'F', 'A', 'B', 'R', 'I', 'C', 'B', 'K'}

// header layout (fixed-size prefix before the optionally-signed,
// optionally-compressed snapshot body):
//
//	[8]byte  magic
//	uint16   schema version
//	byte     compression algorithm tag
//	byte     1 if a JWS signature block follows, else 0
//	uint64   uncompressed body size
const headerSize = 8 + 2 + 1 + 1 + 8

// SigningKey bundles the JWK and the JWS algorithm it signs/verifies
// under — jwx/v2's jwk.Key does not itself fix an algorithm, so the
// caller states it explicitly rather than this package guessing one.
type SigningKey struct {
	Algorithm jwa.SignatureAlgorithm
	Key       jwk.Key
}

// encode serializes snapshot to the wire format: JSON-encode, optionally
// sign with signingKey, then compress with the given Compressor.
func encode(snapshot *BackupSnapshot, compressor Compressor, signingKey *SigningKey) ([]byte, error) {
	body, err := json.Marshal(snapshot)
	if err != nil {
		return nil, fmt.Errorf("backup: marshal snapshot: %w", err)
	}
	plainSize := uint64(len(body))

	var signature []byte
	signed := false
	if signingKey != nil {
		signature, err = jws.Sign(body, jws.WithKey(signingKey.Algorithm, signingKey.Key))
		if err != nil {
			return nil, fmt.Errorf("backup: sign snapshot: %w", err)
		}
		signed = true
	}

	compressed, err := compressor.Compress(body)
	if err != nil {
		return nil, fmt.Errorf("backup: compress snapshot: %w", err)
	}

	var buf bytes.Buffer
	buf.Write(magic[:])
	_ = binary.Write(&buf, binary.BigEndian, SchemaVersion)
	buf.WriteByte(byte(compressor.Algorithm()))
	if signed {
		buf.WriteByte(1)
	} else {
		buf.WriteByte(0)
	}
	_ = binary.Write(&buf, binary.BigEndian, plainSize)

	if signed {
		_ = binary.Write(&buf, binary.BigEndian, uint32(len(signature)))
		buf.Write(signature)
	}
	buf.Write(compressed)

	return buf.Bytes(), nil
}

// decode parses the wire format back into a BackupSnapshot, verifying
// the signature against verifyKey when one was embedded and a key was
// supplied. It rejects a schema version newer than SchemaVersion, since
// a fabric this old cannot know what it would silently drop.
func decode(data []byte, verifyKey *SigningKey) (*BackupSnapshot, error) {
	if len(data) < headerSize {
		return nil, fmt.Errorf("backup: truncated header (%d bytes)", len(data))
	}
	if !bytes.Equal(data[:8], magic[:]) {
		return nil, fmt.Errorf("backup: bad magic, not a fabric backup")
	}
	version := binary.BigEndian.Uint16(data[8:10])
	if version > SchemaVersion {
		return nil, fmt.Errorf("backup: snapshot schema version %d is newer than this fabric's %d", version, SchemaVersion)
	}
	algo := Algorithm(data[10])
	signed := data[11] != 0
	plainSize := binary.BigEndian.Uint64(data[12:20])

	rest := data[headerSize:]

	var signature []byte
	if signed {
		if len(rest) < 4 {
			return nil, fmt.Errorf("backup: truncated signature length")
		}
		sigLen := binary.BigEndian.Uint32(rest[:4])
		rest = rest[4:]
		if uint32(len(rest)) < sigLen {
			return nil, fmt.Errorf("backup: truncated signature block")
		}
		signature = rest[:sigLen]
		rest = rest[sigLen:]
	}

	compressor := NewCompressor(algo)
	body, err := compressor.Decompress(rest)
	if err != nil {
		return nil, fmt.Errorf("backup: decompress snapshot: %w", err)
	}
	if uint64(len(body)) != plainSize {
		return nil, fmt.Errorf("backup: decompressed size %d does not match header %d", len(body), plainSize)
	}

	if signed && verifyKey != nil {
		payload, err := jws.Verify(signature, jws.WithKey(verifyKey.Algorithm, verifyKey.Key))
		if err != nil {
			return nil, fmt.Errorf("backup: signature verification failed: %w", err)
		}
		if !bytes.Equal(payload, body) {
			return nil, fmt.Errorf("backup: signed payload does not match snapshot body")
		}
	}

	var snapshot BackupSnapshot
	if err := json.Unmarshal(body, &snapshot); err != nil {
		return nil, fmt.Errorf("backup: unmarshal snapshot: %w", err)
	}
	return &snapshot, nil
}
