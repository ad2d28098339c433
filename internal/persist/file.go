package persist

import (
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/hobgoblin/qao/internal/codec"
)

// snapshotFileMagic opens the metadata frame of an exported snapshot.
const snapshotFileMagic = "QAOSNAP1"

// WriteFile exports s as two frames: metadata, then the saved runtime data.
func WriteFile(w io.Writer, s *Snapshot) error {
	meta := codec.NewWriter()
	meta.WriteS(snapshotFileMagic)
	meta.WriteBytes(s.ID[:])
	meta.WriteS(s.Name)
	meta.WriteQ(s.StepCounter)
	meta.WriteQ(s.Iteration)
	meta.WriteD(int32(s.ObjectCount))
	meta.WriteBlob(s.Digest)
	meta.WriteQ(s.CreatedAt.UnixMilli())

	if err := codec.WriteFrame(w, meta.Bytes()); err != nil {
		return fmt.Errorf("export snapshot %s: %w", s.ID, err)
	}
	if err := codec.WriteFrame(w, s.Data); err != nil {
		return fmt.Errorf("export snapshot %s: %w", s.ID, err)
	}
	return nil
}

// ReadFile imports a snapshot written by WriteFile and verifies its digest.
func ReadFile(r io.Reader) (*Snapshot, error) {
	raw, err := codec.ReadFrame(r)
	if err != nil {
		return nil, fmt.Errorf("import snapshot: %w", err)
	}
	meta := codec.NewReader(raw)
	if magic := meta.ReadS(); magic != snapshotFileMagic {
		return nil, fmt.Errorf("import snapshot: not a snapshot file")
	}
	var s Snapshot
	id, err := uuid.FromBytes(meta.ReadBytes(16))
	if err != nil {
		return nil, fmt.Errorf("import snapshot: id: %w", err)
	}
	s.ID = id
	s.Name = meta.ReadS()
	s.StepCounter = meta.ReadQ()
	s.Iteration = meta.ReadQ()
	s.ObjectCount = int(meta.ReadD())
	s.Digest = meta.ReadBlob()
	s.CreatedAt = time.UnixMilli(meta.ReadQ()).UTC()
	if err := meta.Err(); err != nil {
		return nil, fmt.Errorf("import snapshot: %w", err)
	}

	if s.Data, err = codec.ReadFrame(r); err != nil {
		return nil, fmt.Errorf("import snapshot %s: %w", s.ID, err)
	}
	if err := s.Verify(); err != nil {
		return nil, err
	}
	return &s, nil
}
