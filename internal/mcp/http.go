// Streamable HTTP transport per MCP spec 2025-03-26.
package mcp

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"
)

// maxBodyBytes bounds one POST body; matches the stdio scanner's cap.
const maxBodyBytes = 10 * 1024 * 1024

// HTTPServer exposes a Server's dispatch over a single MCP endpoint:
// POST carries JSON-RPC messages, GET would carry an SSE stream (this
// server has no server-initiated messages, so GET answers 405), DELETE
// ends a session.
//
// Sessions here are only the Mcp-Session-Id bookkeeping the transport
// spec asks for; project binding still happens through connect_project,
// so HTTP mode carries no auth layer of its own — it's meant for a
// trusted local network, not multi-tenant exposure.
type HTTPServer struct {
	server   *Server
	cors     string
	logger   *slog.Logger
	sessions sync.Map // session id -> creation time
}

// NewHTTPServer wraps server with the Streamable HTTP transport.
func NewHTTPServer(server *Server, corsOrigins string, logger *slog.Logger) *HTTPServer {
	return &HTTPServer{server: server, cors: corsOrigins, logger: logger}
}

// Handler returns the http.Handler serving /mcp plus a /health probe.
func (h *HTTPServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/mcp", h.handleMCP)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})
	return mux
}

func (h *HTTPServer) handleMCP(w http.ResponseWriter, r *http.Request) {
	h.setCORS(w, r)

	switch r.Method {
	case http.MethodOptions:
		w.WriteHeader(http.StatusNoContent)
	case http.MethodPost:
		h.handlePost(w, r)
	case http.MethodGet:
		h.handleGet(w, r)
	case http.MethodDelete:
		h.handleDelete(w, r)
	default:
		w.Header().Set("Allow", "GET, POST, DELETE, OPTIONS")
		http.Error(w, `{"error":"method not allowed"}`, http.StatusMethodNotAllowed)
	}
}

// peeked is the minimal projection of a JSON-RPC message the transport
// needs before handing it to the Server: whether it expects a response,
// and whether it opens a session.
type peeked struct {
	isNotification bool
	isInitialize   bool
}

func peekMessage(raw []byte) (peeked, error) {
	var p struct {
		ID     json.RawMessage `json:"id,omitempty"`
		Method string          `json:"method,omitempty"`
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return peeked{}, err
	}
	return peeked{
		isNotification: p.ID == nil || string(p.ID) == "null",
		isInitialize:   p.Method == "initialize",
	}, nil
}

func (h *HTTPServer) handlePost(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, `{"error":"failed to read request body"}`, http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	trimmed := strings.TrimSpace(string(body))
	switch {
	case trimmed == "":
		http.Error(w, `{"error":"empty request body"}`, http.StatusBadRequest)
	case strings.HasPrefix(trimmed, "["):
		h.handleBatch(w, r, body)
	default:
		h.handleSingle(w, r, body)
	}
}

func (h *HTTPServer) handleSingle(w http.ResponseWriter, r *http.Request, body []byte) {
	pk, err := peekMessage(body)
	if err != nil {
		h.writeJSONError(w, http.StatusBadRequest, ErrCodeParse, "Parse error", err.Error())
		return
	}

	// An Mcp-Session-Id on a non-initialize request must name a session
	// this process actually created.
	if !pk.isInitialize {
		if id := r.Header.Get("Mcp-Session-Id"); id != "" {
			if _, ok := h.sessions.Load(id); !ok {
				http.Error(w, `{"error":"session not found"}`, http.StatusNotFound)
				return
			}
		}
	}

	if pk.isNotification {
		// Still processed (e.g. notifications/initialized), but only
		// acknowledged at the transport level.
		_ = h.server.HandleMessage(r.Context(), body)
		w.WriteHeader(http.StatusAccepted)
		return
	}

	resp := h.server.HandleMessage(r.Context(), body)
	if resp == nil {
		w.WriteHeader(http.StatusAccepted)
		return
	}
	if pk.isInitialize && resp.Error == nil {
		w.Header().Set("Mcp-Session-Id", h.createSession())
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *HTTPServer) handleBatch(w http.ResponseWriter, r *http.Request, body []byte) {
	var messages []json.RawMessage
	if err := json.Unmarshal(body, &messages); err != nil {
		h.writeJSONError(w, http.StatusBadRequest, ErrCodeParse, "Parse error", err.Error())
		return
	}
	if len(messages) == 0 {
		h.writeJSONError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "Empty batch", nil)
		return
	}

	var responses []*Response
	for _, msg := range messages {
		if resp := h.server.HandleMessage(r.Context(), msg); resp != nil {
			responses = append(responses, resp)
		}
	}
	if len(responses) == 0 {
		w.WriteHeader(http.StatusAccepted)
		return
	}
	h.writeJSON(w, http.StatusOK, responses)
}

// handleGet answers the SSE slot. This server never sends unsolicited
// messages, so per the transport spec it may refuse the stream outright.
func (h *HTTPServer) handleGet(w http.ResponseWriter, r *http.Request) {
	if !strings.Contains(r.Header.Get("Accept"), "text/event-stream") {
		http.Error(w, `{"error":"Accept header must include text/event-stream"}`, http.StatusBadRequest)
		return
	}
	w.Header().Set("Allow", "POST, DELETE, OPTIONS")
	http.Error(w, `{"error":"SSE stream not supported; use POST for requests"}`, http.StatusMethodNotAllowed)
}

func (h *HTTPServer) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := r.Header.Get("Mcp-Session-Id")
	if id == "" {
		http.Error(w, `{"error":"Mcp-Session-Id header required"}`, http.StatusBadRequest)
		return
	}
	if _, ok := h.sessions.LoadAndDelete(id); !ok {
		http.Error(w, `{"error":"session not found"}`, http.StatusNotFound)
		return
	}
	h.logger.Info("session terminated", "session_id", id)
	w.WriteHeader(http.StatusOK)
}

func (h *HTTPServer) createSession() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		// Should never happen; a timestamp id keeps the transport alive.
		return fmt.Sprintf("session-%d", time.Now().UnixNano())
	}
	id := hex.EncodeToString(b)
	h.sessions.Store(id, time.Now())
	h.logger.Info("session created", "session_id", id)
	return id
}

func (h *HTTPServer) setCORS(w http.ResponseWriter, r *http.Request) {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return
	}
	if h.cors == "*" {
		w.Header().Set("Access-Control-Allow-Origin", "*")
	} else {
		for _, a := range strings.Split(h.cors, ",") {
			if strings.TrimSpace(a) == origin {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				break
			}
		}
	}
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Accept, Mcp-Session-Id")
	w.Header().Set("Access-Control-Expose-Headers", "Mcp-Session-Id")
}

func (h *HTTPServer) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to write JSON response", "error", err)
	}
}

func (h *HTTPServer) writeJSONError(w http.ResponseWriter, httpStatus int, code int, message string, data any) {
	h.writeJSON(w, httpStatus, &Response{
		JSONRPC: "2.0",
		Error:   &RPCError{Code: code, Message: message, Data: data},
	})
}
