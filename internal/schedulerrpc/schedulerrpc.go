// Package schedulerrpc exposes the scheduler's registry and oracle
// over HTTP/2 cleartext (h2c) with JSON bodies: SendHeartbeat for
// workers, AssignWorkerForChunk for consumers placing chunks.
package schedulerrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/kluzzebass/filemesh/internal/logging"
	"github.com/kluzzebass/filemesh/internal/oracle"
	"github.com/kluzzebass/filemesh/internal/registry"
	"github.com/kluzzebass/filemesh/internal/rpcpool"
)

const (
	heartbeatPath = "/scheduler.v1.SchedulerService/SendHeartbeat"
	assignPath    = "/scheduler.v1.SchedulerService/AssignWorkerForChunk"
)

// Error codes mirror the RPC-level codes a generated service would
// use; plain strings here since there are no generated stubs.
const (
	codeUnavailable = "UNAVAILABLE"
	codeInternal    = "INTERNAL"
)

type heartbeatRequest struct {
	WorkerID string `json:"workerId"`
	Address  string `json:"address"`
}

type heartbeatResponse struct {
	Success bool `json:"success"`
}

type assignRequest struct {
	WorkerID string `json:"workerId"`
	FileID   string `json:"fileId"`
	ChunkID  int    `json:"chunkId"`
}

type assignResponse struct {
	WorkerID      string `json:"workerId"`
	WorkerAddress string `json:"workerAddress"`
}

type rpcError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Handler serves the registry/oracle pair as JSON-over-h2c RPCs.
type Handler struct {
	registry *registry.Registry
	oracle   *oracle.Oracle
	now      func() time.Time
	logger   *slog.Logger
}

// NewHandler wraps reg and o for serving. now defaults to time.Now.
func NewHandler(reg *registry.Registry, o *oracle.Oracle, now func() time.Time, logger *slog.Logger) *Handler {
	if now == nil {
		now = time.Now
	}
	return &Handler{
		registry: reg,
		oracle:   o,
		now:      now,
		logger:   logging.Default(logger).With("component", "schedulerrpc"),
	}
}

// Mux returns an http.Handler ready to be wrapped in h2c.NewHandler.
func (h *Handler) Mux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(heartbeatPath, h.handleHeartbeat)
	mux.HandleFunc(assignPath, h.handleAssign)
	return mux
}

// H2CHandler wraps Mux in an h2c handler suitable for http.Server.Handler.
func (h *Handler) H2CHandler() http.Handler {
	return h2c.NewHandler(h.Mux(), &http2.Server{})
}

func (h *Handler) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	var req heartbeatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeRPCError(w, http.StatusBadRequest, codeInternal, err.Error())
		return
	}
	h.registry.Upsert(req.WorkerID, req.Address, h.now())
	writeJSON(w, http.StatusOK, heartbeatResponse{Success: true})
}

func (h *Handler) handleAssign(w http.ResponseWriter, r *http.Request) {
	var req assignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeRPCError(w, http.StatusBadRequest, codeInternal, err.Error())
		return
	}

	decision, err := h.oracle.AssignWorker(r.Context(), req.WorkerID, req.FileID, req.ChunkID)
	if err != nil {
		var already *oracle.AlreadyAssignedError
		switch {
		case errors.As(err, &already):
			writeJSON(w, http.StatusOK, assignResponse{WorkerID: already.WorkerID, WorkerAddress: already.WorkerAddress})
		case errors.Is(err, oracle.ErrNoActiveWorkers):
			writeRPCError(w, http.StatusServiceUnavailable, codeUnavailable, err.Error())
		default:
			h.logger.Error("assign worker failed", "file_id", req.FileID, "chunk_id", req.ChunkID, "error", err)
			writeRPCError(w, http.StatusInternalServerError, codeInternal, err.Error())
		}
		return
	}

	writeJSON(w, http.StatusOK, assignResponse{WorkerID: decision.WorkerID, WorkerAddress: decision.WorkerAddress})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeRPCError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, rpcError{Code: code, Message: message})
}

// ErrNoActiveWorkers mirrors oracle.ErrNoActiveWorkers for clients that
// only see it through the RPC code.
var ErrNoActiveWorkers = errors.New("schedulerrpc: no active workers")

// Client calls a scheduler's SendHeartbeat/AssignWorkerForChunk RPCs.
type Client struct {
	addr string
	pool *rpcpool.Pool
}

// NewClient returns a Client addressing the scheduler at addr, using
// pool for connection reuse.
func NewClient(addr string, pool *rpcpool.Pool) *Client {
	return &Client{addr: addr, pool: pool}
}

// SendHeartbeat reports this worker as alive at address.
func (c *Client) SendHeartbeat(ctx context.Context, workerID, address string) error {
	var resp heartbeatResponse
	return c.call(ctx, heartbeatPath, heartbeatRequest{WorkerID: workerID, Address: address}, &resp)
}

// AssignWorkerForChunk asks the scheduler to place (fileID, chunkID),
// or to report the existing placement. Note: unlike the oracle's own
// AssignWorker, idempotent redelivery is not distinguished from a
// fresh assignment at this layer — both return the placement decision
// plainly, since this RPC boundary has no channel for the caller to
// act differently on the two cases (both simply use the returned
// worker).
func (c *Client) AssignWorkerForChunk(ctx context.Context, requesterWorkerID, fileID string, chunkID int) (workerID, workerAddress string, err error) {
	req := assignRequest{WorkerID: requesterWorkerID, FileID: fileID, ChunkID: chunkID}
	var resp assignResponse
	if err := c.call(ctx, assignPath, req, &resp); err != nil {
		return "", "", err
	}
	return resp.WorkerID, resp.WorkerAddress, nil
}

func (c *Client) call(ctx context.Context, path string, reqBody, respBody any) error {
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	url := "http://" + c.addr + path
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.pool.Client(c.addr).Do(httpReq)
	if err != nil {
		c.pool.Invalidate(c.addr)
		return fmt.Errorf("call %s %s: %w", c.addr, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var rpcErr rpcError
		_ = json.NewDecoder(resp.Body).Decode(&rpcErr)
		switch rpcErr.Code {
		case codeUnavailable:
			return ErrNoActiveWorkers
		default:
			return fmt.Errorf("scheduler returned %s: %s", rpcErr.Code, rpcErr.Message)
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(respBody); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
