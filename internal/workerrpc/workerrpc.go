// Package workerrpc exposes a worker's storage engine over HTTP/2
// cleartext (h2c) with JSON bodies, and provides a client for callers
// (the consumer, or peer workers forwarding a chunk) to reach it.
package workerrpc

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/kluzzebass/filemesh/internal/logging"
	"github.com/kluzzebass/filemesh/internal/rpcpool"
	"github.com/kluzzebass/filemesh/internal/storage"
)

const (
	storeChunkPath    = "/worker.v1.WorkerService/StoreChunk"
	retrieveChunkPath = "/worker.v1.WorkerService/RetrieveChunk"
)

type storeChunkRequest struct {
	WorkerID string `json:"workerId"`
	FileID   string `json:"fileId"`
	ChunkID  int    `json:"chunkId"`
	Data     string `json:"data"` // base64
}

type storeChunkResponse struct {
	Success bool `json:"success"`
}

type retrieveChunkRequest struct {
	FileID  string `json:"fileId"`
	ChunkID int    `json:"chunkId"`
}

type retrieveChunkResponse struct {
	Data  string `json:"data"` // base64, empty when not found
	Found bool   `json:"found"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Handler serves a worker's storage.Engine as JSON-over-h2c RPCs.
type Handler struct {
	engine *storage.Engine
	logger *slog.Logger
}

// NewHandler wraps engine for serving.
func NewHandler(engine *storage.Engine, logger *slog.Logger) *Handler {
	return &Handler{engine: engine, logger: logging.Default(logger).With("component", "workerrpc")}
}

// Mux returns an http.Handler ready to be wrapped in h2c.NewHandler.
func (h *Handler) Mux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(storeChunkPath, h.handleStoreChunk)
	mux.HandleFunc(retrieveChunkPath, h.handleRetrieveChunk)
	return mux
}

// H2CHandler wraps Mux in an h2c handler suitable for http.Server.Handler.
func (h *Handler) H2CHandler() http.Handler {
	return h2c.NewHandler(h.Mux(), &http2.Server{})
}

func (h *Handler) handleStoreChunk(w http.ResponseWriter, r *http.Request) {
	var req storeChunkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	data, err := base64.StdEncoding.DecodeString(req.Data)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode chunk data: %w", err))
		return
	}

	if err := h.engine.StoreChunk(r.Context(), req.WorkerID, req.FileID, req.ChunkID, data); err != nil {
		h.logger.Warn("store chunk failed", "file_id", req.FileID, "chunk_id", req.ChunkID, "error", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, http.StatusOK, storeChunkResponse{Success: true})
}

func (h *Handler) handleRetrieveChunk(w http.ResponseWriter, r *http.Request) {
	var req retrieveChunkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	data, found := h.engine.RetrieveChunk(r.Context(), req.FileID, req.ChunkID)
	if !found {
		writeJSON(w, http.StatusOK, retrieveChunkResponse{Found: false})
		return
	}

	writeJSON(w, http.StatusOK, retrieveChunkResponse{
		Data:  base64.StdEncoding.EncodeToString(data),
		Found: true,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

// Client calls a remote worker's StoreChunk/RetrieveChunk RPCs.
type Client struct {
	pool *rpcpool.Pool
}

// NewClient returns a Client backed by pool.
func NewClient(pool *rpcpool.Pool) *Client {
	return &Client{pool: pool}
}

// StoreChunk sends chunk bytes to the worker at addr.
func (c *Client) StoreChunk(ctx context.Context, addr, workerID, fileID string, chunkID int, data []byte) error {
	req := storeChunkRequest{
		WorkerID: workerID,
		FileID:   fileID,
		ChunkID:  chunkID,
		Data:     base64.StdEncoding.EncodeToString(data),
	}

	var resp storeChunkResponse
	if err := c.call(ctx, addr, storeChunkPath, req, &resp); err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("worker %s refused chunk %s/%d", addr, fileID, chunkID)
	}
	return nil
}

// RetrieveChunk fetches chunk bytes from the worker at addr. found is
// false both when the chunk is absent and when the remote call fails,
// matching storage.Engine.RetrieveChunk's own in-band semantics.
func (c *Client) RetrieveChunk(ctx context.Context, addr, fileID string, chunkID int) ([]byte, bool) {
	req := retrieveChunkRequest{FileID: fileID, ChunkID: chunkID}

	var resp retrieveChunkResponse
	if err := c.call(ctx, addr, retrieveChunkPath, req, &resp); err != nil {
		c.pool.Invalidate(addr)
		return nil, false
	}
	if !resp.Found {
		return nil, false
	}

	data, err := base64.StdEncoding.DecodeString(resp.Data)
	if err != nil {
		return nil, false
	}
	return data, true
}

func (c *Client) call(ctx context.Context, addr, path string, reqBody, respBody any) error {
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	url := "http://" + addr + path
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.pool.Client(addr).Do(httpReq)
	if err != nil {
		return fmt.Errorf("call %s %s: %w", addr, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errResp errorResponse
		_ = json.NewDecoder(resp.Body).Decode(&errResp)
		return fmt.Errorf("worker %s returned %d: %s", addr, resp.StatusCode, errResp.Error)
	}

	if err := json.NewDecoder(resp.Body).Decode(respBody); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
