package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/kluzzebass/filemesh/internal/metadata"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(":memory:")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveAndFind(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	row := metadata.Row{
		FileID: "f1", ChunkID: 0, Filename: "hello.txt", Size: 5,
		WorkerID: "w1", WorkerAddress: "host1:9000", UploadTime: time.Now().UTC(),
	}
	if err := s.Save(ctx, row, false); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := s.FindByFileIDAndChunkID(ctx, "f1", 0)
	if err != nil {
		t.Fatalf("FindByFileIDAndChunkID: %v", err)
	}
	if got.WorkerID != "w1" || got.Filename != "hello.txt" {
		t.Errorf("unexpected row: %+v", got)
	}
}

func TestSaveDuplicateFailsIntegrity(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	row := metadata.Row{FileID: "f1", ChunkID: 0, Filename: "a", WorkerID: "w1", WorkerAddress: "h1", UploadTime: time.Now()}
	if err := s.Save(ctx, row, false); err != nil {
		t.Fatal(err)
	}
	row2 := row
	row2.WorkerID = "w2"
	err := s.Save(ctx, row2, false)
	if err != metadata.ErrIntegrityViolation {
		t.Fatalf("expected ErrIntegrityViolation, got %v", err)
	}

	got, _ := s.FindByFileIDAndChunkID(ctx, "f1", 0)
	if got.WorkerID != "w1" {
		t.Errorf("row should be unchanged, got worker %q", got.WorkerID)
	}
}

func TestPlaceholderMergesWithRealAssignment(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	placeholder := metadata.Row{FileID: "f1", ChunkID: 0, Filename: "big.bin", Size: 1000, UploadTime: time.Now()}
	if err := s.Save(ctx, placeholder, true); err != nil {
		t.Fatal(err)
	}

	real := metadata.Row{FileID: "f1", ChunkID: 0, Filename: "big.bin", Size: 1000, WorkerID: "w1", WorkerAddress: "h1", UploadTime: time.Now()}
	if err := s.Save(ctx, real, true); err != nil {
		t.Fatal(err)
	}

	got, err := s.FindByFileIDAndChunkID(ctx, "f1", 0)
	if err != nil {
		t.Fatal(err)
	}
	if got.WorkerID != "w1" {
		t.Errorf("expected merged row to carry worker assignment, got %+v", got)
	}
}

func TestFindByFilenameDeterministic(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	s.Save(ctx, metadata.Row{FileID: "fB", ChunkID: 0, Filename: "dup.txt", UploadTime: time.Now()}, false)
	s.Save(ctx, metadata.Row{FileID: "fA", ChunkID: 0, Filename: "dup.txt", UploadTime: time.Now()}, false)

	got, err := s.FindByFilename(ctx, "dup.txt")
	if err != nil {
		t.Fatal(err)
	}
	if got.FileID != "fA" {
		t.Errorf("expected lowest file_id fA, got %s", got.FileID)
	}
}

func TestFindAllByFileIDSortable(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	for _, c := range []int{2, 0, 1} {
		s.Save(ctx, metadata.Row{FileID: "f1", ChunkID: c, Filename: "x", WorkerID: "w1", WorkerAddress: "h1", UploadTime: time.Now()}, false)
	}
	rows, err := s.FindAllByFileID(ctx, "f1")
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
}

func TestFindNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.FindByFileIDAndChunkID(context.Background(), "nope", 0)
	if err != metadata.ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
