package snapshotdb

import (
	"bytes"
	"compress/gzip"
	"encoding/gob"
	"fmt"

	"github.com/banshee-data/febid/internal/febid/process"
)

// encodeSnapshot compresses a snapshot into a gob+gzip blob.
func encodeSnapshot(s *process.Snapshot) ([]byte, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if err := gob.NewEncoder(gz).Encode(s); err != nil {
		gz.Close()
		return nil, err
	}
	if err := gz.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// decodeSnapshot reverses encodeSnapshot and checks the field lengths
// against the stored dimensions.
func decodeSnapshot(blob []byte) (*process.Snapshot, error) {
	if len(blob) == 0 {
		return nil, fmt.Errorf("empty snapshot blob")
	}
	gz, err := gzip.NewReader(bytes.NewReader(blob))
	if err != nil {
		return nil, fmt.Errorf("failed to create gzip reader: %w", err)
	}
	defer gz.Close()

	var s process.Snapshot
	if err := gob.NewDecoder(gz).Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	n := s.Nx * s.Ny * s.Nz
	if len(s.Deposit) != n || len(s.Precursor) != n {
		return nil, fmt.Errorf("snapshot fields hold %d/%d cells, want %d", len(s.Deposit), len(s.Precursor), n)
	}
	return &s, nil
}
