package backup

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
)

func testSnapshot() *BackupSnapshot {
	return &BackupSnapshot{
		BackupID:  "b1",
		CreatedAt: time.Now(),
		Entries: []Entry{
			{Key: "foo", Value: json.RawMessage(`{"a":1}`), Version: 1, LastModified: time.Now()},
		},
	}
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	snap := testSnapshot()
	data, err := encode(snap, NewCompressor(AlgorithmNone), nil)
	if err != nil {
		t.Fatalf("encode() error = %v", err)
	}
	got, err := decode(data, nil)
	if err != nil {
		t.Fatalf("decode() error = %v", err)
	}
	if got.BackupID != snap.BackupID || len(got.Entries) != 1 {
		t.Errorf("decode() = %+v, want round-trip of %+v", got, snap)
	}
}

func TestEncodeDecode_WithGzip(t *testing.T) {
	snap := testSnapshot()
	data, err := encode(snap, NewCompressor(AlgorithmGzip), nil)
	if err != nil {
		t.Fatalf("encode() error = %v", err)
	}
	got, err := decode(data, nil)
	if err != nil {
		t.Fatalf("decode() error = %v", err)
	}
	if got.BackupID != snap.BackupID {
		t.Errorf("BackupID = %q, want %q", got.BackupID, snap.BackupID)
	}
}

func TestEncodeDecode_Signed(t *testing.T) {
	key, err := jwk.FromRaw([]byte("test-signing-secret-at-least-32-bytes-long"))
	if err != nil {
		t.Fatalf("jwk.FromRaw() error = %v", err)
	}
	signingKey := &SigningKey{Algorithm: jwa.HS256, Key: key}

	snap := testSnapshot()
	data, err := encode(snap, NewCompressor(AlgorithmNone), signingKey)
	if err != nil {
		t.Fatalf("encode() error = %v", err)
	}
	got, err := decode(data, signingKey)
	if err != nil {
		t.Fatalf("decode() error = %v", err)
	}
	if got.BackupID != snap.BackupID {
		t.Errorf("BackupID = %q, want %q", got.BackupID, snap.BackupID)
	}
}

func TestDecode_RejectsBadMagic(t *testing.T) {
	if _, err := decode([]byte("not a backup at all, way too short"), nil); err == nil {
		t.Fatal("decode() error = nil, want error for bad magic")
	}
}

func TestDecode_RejectsNewerSchemaVersion(t *testing.T) {
	snap := testSnapshot()
	data, err := encode(snap, NewCompressor(AlgorithmNone), nil)
	if err != nil {
		t.Fatalf("encode() error = %v", err)
	}
	// Bump the schema-version bytes (offset 8-9) past what this fabric knows.
	data[8] = 0xFF
	data[9] = 0xFF
	if _, err := decode(data, nil); err == nil {
		t.Fatal("decode() error = nil, want error for a schema version newer than this fabric's")
	}
}
