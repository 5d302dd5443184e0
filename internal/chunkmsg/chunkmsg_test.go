package chunkmsg

import (
	"bytes"
	"testing"
)

func TestCount(t *testing.T) {
	cases := []struct {
		size int64
		want int
	}{
		{0, 0},
		{1, 1},
		{ChunkSize - 1, 1},
		{ChunkSize, 1},
		{ChunkSize + 1, 2},
		{10 * ChunkSize, 10},
	}
	for _, c := range cases {
		if got := Count(c.size); got != c.want {
			t.Errorf("Count(%d) = %d, want %d", c.size, got, c.want)
		}
	}
}

func TestSplitRoundTrip(t *testing.T) {
	data := bytes.Repeat([]byte{0xAB}, 2*ChunkSize+1000)
	var reassembled []byte
	gotChunks := 0
	err := Split(data, func(chunkID int, chunk []byte) error {
		if chunkID != gotChunks {
			t.Fatalf("chunkID %d out of order (expected %d)", chunkID, gotChunks)
		}
		reassembled = append(reassembled, chunk...)
		gotChunks++
		return nil
	})
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	if gotChunks != Count(int64(len(data))) {
		t.Errorf("got %d chunks, want %d", gotChunks, Count(int64(len(data))))
	}
	if !bytes.Equal(reassembled, data) {
		t.Error("reassembled bytes do not match original")
	}
}

func TestSplitEmpty(t *testing.T) {
	calls := 0
	if err := Split(nil, func(int, []byte) error { calls++; return nil }); err != nil {
		t.Fatal(err)
	}
	if calls != 0 {
		t.Errorf("expected zero chunks for empty input, got %d", calls)
	}
}

func TestMessageRoundTrip(t *testing.T) {
	original := []byte("hello world")
	msg := NewMessage("file-1", 3, original)
	got, err := msg.Bytes()
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, original) {
		t.Errorf("got %q, want %q", got, original)
	}
}
