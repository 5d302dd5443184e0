package storage

import (
	"context"
	"errors"
	"testing"
)

func TestLocalBackendStoreRetrieve(t *testing.T) {
	b, err := NewLocalBackend(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	key := Key{FileID: "f1", ChunkID: 3}

	if err := b.Store(ctx, key, []byte("hello")); err != nil {
		t.Fatalf("Store: %v", err)
	}
	got, err := b.Retrieve(ctx, key)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if string(got) != "hello" {
		t.Errorf("got %q, want %q", got, "hello")
	}
}

func TestLocalBackendNotFound(t *testing.T) {
	b, err := NewLocalBackend(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	_, err = b.Retrieve(context.Background(), Key{FileID: "missing", ChunkID: 0})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestLocalBackendNoCrossFileCollision(t *testing.T) {
	b, err := NewLocalBackend(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	if err := b.Store(ctx, Key{FileID: "a", ChunkID: 0}, []byte("A")); err != nil {
		t.Fatal(err)
	}
	if err := b.Store(ctx, Key{FileID: "b", ChunkID: 0}, []byte("B")); err != nil {
		t.Fatal(err)
	}

	gotA, err := b.Retrieve(ctx, Key{FileID: "a", ChunkID: 0})
	if err != nil {
		t.Fatal(err)
	}
	gotB, err := b.Retrieve(ctx, Key{FileID: "b", ChunkID: 0})
	if err != nil {
		t.Fatal(err)
	}
	if string(gotA) != "A" || string(gotB) != "B" {
		t.Errorf("chunk 0 of distinct files collided: gotA=%q gotB=%q", gotA, gotB)
	}
}

type fakeBackend struct {
	stored map[Key][]byte
}

func newFakeBackend() *fakeBackend { return &fakeBackend{stored: map[Key][]byte{}} }

func (f *fakeBackend) Store(_ context.Context, key Key, data []byte) error {
	cp := append([]byte(nil), data...)
	f.stored[key] = cp
	return nil
}

func (f *fakeBackend) Retrieve(_ context.Context, key Key) ([]byte, error) {
	data, ok := f.stored[key]
	if !ok {
		return nil, ErrNotFound
	}
	return data, nil
}

func TestEngineStoreChunkRejectsWrongWorker(t *testing.T) {
	e := NewEngine("worker-1", newFakeBackend())
	err := e.StoreChunk(context.Background(), "worker-2", "f1", 0, []byte("x"))
	if !errors.Is(err, ErrWorkerIDMismatch) {
		t.Fatalf("expected ErrWorkerIDMismatch, got %v", err)
	}
}

func TestEngineStoreChunkAcceptsEmptyOrMatchingWorker(t *testing.T) {
	e := NewEngine("worker-1", newFakeBackend())
	if err := e.StoreChunk(context.Background(), "", "f1", 0, []byte("x")); err != nil {
		t.Fatalf("empty workerId should be accepted: %v", err)
	}
	if err := e.StoreChunk(context.Background(), "worker-1", "f1", 1, []byte("y")); err != nil {
		t.Fatalf("matching workerId should be accepted: %v", err)
	}
}

func TestEngineRetrieveChunkFoundFalseOnMissing(t *testing.T) {
	e := NewEngine("worker-1", newFakeBackend())
	data, found := e.RetrieveChunk(context.Background(), "missing", 0)
	if found || data != nil {
		t.Fatalf("expected not found, got data=%v found=%v", data, found)
	}
}

type erroringBackend struct{}

func (erroringBackend) Store(context.Context, Key, []byte) error { return nil }
func (erroringBackend) Retrieve(context.Context, Key) ([]byte, error) {
	return nil, errors.New("disk exploded")
}

func TestEngineRetrieveChunkCollapsesIOErrorsToNotFound(t *testing.T) {
	e := NewEngine("worker-1", erroringBackend{})
	data, found := e.RetrieveChunk(context.Background(), "f1", 0)
	if found || data != nil {
		t.Fatalf("expected found=false on backend I/O error, got data=%v found=%v", data, found)
	}
}

func TestCompressedBackendRoundTrip(t *testing.T) {
	cb, err := NewCompressedBackend(newFakeBackend())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	key := Key{FileID: "f1", ChunkID: 0}
	payload := []byte("the quick brown fox jumps over the lazy dog, repeatedly, for compressibility")

	if err := cb.Store(ctx, key, payload); err != nil {
		t.Fatalf("Store: %v", err)
	}
	got, err := cb.Retrieve(ctx, key)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if string(got) != string(payload) {
		t.Errorf("got %q, want %q", got, payload)
	}
}
