// Package ingest is the public-facing upload/download HTTP surface
// (C4): it accepts file uploads, splits them into chunks, publishes
// them to the broker, and serves downloads by fanning out to whatever
// workers hold each chunk.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/kluzzebass/filemesh/internal/broker"
	"github.com/kluzzebass/filemesh/internal/chunkmsg"
	"github.com/kluzzebass/filemesh/internal/logging"
	"github.com/kluzzebass/filemesh/internal/metadata"
	"github.com/kluzzebass/filemesh/internal/rpcpool"
	"github.com/kluzzebass/filemesh/internal/workerrpc"
)

// maxUploadBytes caps the in-memory multipart buffer; large files
// still stream to disk via the standard library's multipart reader
// beyond this threshold.
const maxUploadBytes = 32 << 20

// Publisher is the broker capability ingest needs. Satisfied by
// *broker.Publisher.
type Publisher interface {
	Publish(ctx context.Context, msg chunkmsg.Message) error
}

// ChunkFetcher is the worker-RPC capability ingest needs to assemble a
// download. Satisfied by *workerrpc.Client.
type ChunkFetcher interface {
	RetrieveChunk(ctx context.Context, addr, fileID string, chunkID int) ([]byte, bool)
}

var _ Publisher = (*broker.Publisher)(nil)
var _ ChunkFetcher = (*workerrpc.Client)(nil)

// Handler serves the upload/download HTTP endpoints.
type Handler struct {
	gateway      metadata.Gateway
	publisher    Publisher
	workerClient ChunkFetcher
	rl           *rateLimiter
	logger       *slog.Logger
}

// New creates a Handler. pool is shared with any other component that
// talks to workers over RPC, so connections are reused.
func New(gateway metadata.Gateway, publisher Publisher, pool *rpcpool.Pool, logger *slog.Logger) *Handler {
	return &Handler{
		gateway:      gateway,
		publisher:    publisher,
		workerClient: workerrpc.NewClient(pool),
		rl:           newRateLimiter(rate.Limit(5), 10),
		logger:       logging.Default(logger).With("component", "ingest"),
	}
}

// Mux returns the HTTP handler for the upload/download endpoints,
// wrapped in CORS and per-IP upload throttling.
func (h *Handler) Mux() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/files/uploadFile", rateLimitUploads(h.rl)(http.HandlerFunc(h.handleUpload)))
	mux.HandleFunc("/files/getFile", h.handleDownload)
	return corsMiddleware(mux)
}

func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		http.Error(w, fmt.Sprintf("parse upload: %v", err), http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, fmt.Sprintf("missing file field: %v", err), http.StatusBadRequest)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, fmt.Sprintf("read upload: %v", err), http.StatusInternalServerError)
		return
	}

	fileID := uuid.New().String()
	ctx := r.Context()

	// Placeholder row so the filename resolves and the directory
	// listing has an entry even before the oracle places any chunk.
	if err := h.gateway.Save(ctx, metadata.Row{
		FileID:   fileID,
		ChunkID:  0,
		Filename: header.Filename,
		Size:     int64(len(data)),
	}, true); err != nil {
		h.logger.Error("write placeholder metadata failed", "file_id", fileID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	total := 0
	err = chunkmsg.Split(data, func(chunkID int, chunk []byte) error {
		msg := chunkmsg.NewMessage(fileID, chunkID, chunk)
		if err := h.publisher.Publish(ctx, msg); err != nil {
			return fmt.Errorf("publish chunk %d: %w", chunkID, err)
		}
		total++
		return nil
	})
	if err != nil {
		h.logger.Error("publish chunks failed", "file_id", fileID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	h.logger.Info("file uploaded", "file_id", fileID, "filename", header.Filename, "chunks", total)
	fmt.Fprintf(w, "Upload successful. Total chunks sent: %d", total)
}

func (h *Handler) handleDownload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	name := r.URL.Query().Get("name")
	if name == "" {
		http.Error(w, "missing name query parameter", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	directory, err := h.gateway.FindByFilename(ctx, name)
	if err != nil {
		if errors.Is(err, metadata.ErrNotFound) {
			http.Error(w, "file not found", http.StatusNotFound)
			return
		}
		h.logger.Error("resolve filename failed", "filename", name, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	rows, err := h.gateway.FindAllByFileID(ctx, directory.FileID)
	if err != nil {
		h.logger.Error("list chunks failed", "file_id", directory.FileID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].ChunkID < rows[j].ChunkID })

	chunks := make([][]byte, len(rows))
	group, gctx := errgroup.WithContext(ctx)
	for i, row := range rows {
		i, row := i, row
		group.Go(func() error {
			if row.WorkerAddress == "" {
				return fmt.Errorf("chunk %d of %s has no placement yet", row.ChunkID, directory.FileID)
			}
			data, found := h.workerClient.RetrieveChunk(gctx, row.WorkerAddress, directory.FileID, row.ChunkID)
			if !found {
				return fmt.Errorf("chunk %d of %s not found on worker %s", row.ChunkID, directory.FileID, row.WorkerID)
			}
			chunks[i] = data
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		h.logger.Error("fetch chunks failed", "file_id", directory.FileID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, directory.Filename))
	for _, chunk := range chunks {
		if _, err := w.Write(chunk); err != nil {
			h.logger.Warn("write response failed", "file_id", directory.FileID, "error", err)
			return
		}
	}
}

// StartRateLimiterCleanup runs the periodic stale-IP eviction sweep
// until ctx is cancelled. wg is released once the sweep goroutine
// exits, so callers can wait for clean shutdown.
func (h *Handler) StartRateLimiterCleanup(ctx context.Context, wg *sync.WaitGroup) {
	h.rl.startCleanup(ctx, wg, 3*time.Minute, 5*time.Minute)
}
