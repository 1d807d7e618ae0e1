package testutil

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/ybbus/jsonrpc"
)

// RPCHandler produces the result, or error, for a JSON-RPC call.
type RPCHandler func(params []json.RawMessage) (interface{}, *jsonrpc.RPCError)

// SubscriptionHandler produces the notifications sent for a subscription.
// Each notification is sent as the result of a <name>Notification message. A
// time.Duration entry pauses before the next notification.
type SubscriptionHandler func(params []json.RawMessage) []interface{}

// RPCRequest is a request received by an RPCServer.
type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	ID      json.RawMessage   `json:"id"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
}

type rpcResponse struct {
	JSONRPC string            `json:"jsonrpc"`
	ID      json.RawMessage   `json:"id"`
	Result  json.RawMessage   `json:"result,omitempty"`
	Error   *jsonrpc.RPCError `json:"error,omitempty"`
}

// RPCServer is a scripted JSON-RPC server, with WebSocket subscriptions,
// for tests that have no external dependencies.
type RPCServer struct {
	log    *logrus.Entry
	server *httptest.Server

	mu            sync.Mutex
	handlers      map[string]RPCHandler
	subscriptions map[string]SubscriptionHandler
	requests      []RPCRequest
	batchOrder    []int
	httpStatus    int
	nextSubID     int
	openConns     int
}

// NewRPCServer starts a server that is closed when the test completes.
func NewRPCServer(t *testing.T) *RPCServer {
	s := &RPCServer{
		log:           logrus.StandardLogger().WithField("type", "testutil/rpc_server"),
		handlers:      make(map[string]RPCHandler),
		subscriptions: make(map[string]SubscriptionHandler),
	}

	s.server = httptest.NewServer(http.HandlerFunc(s.serveHTTP))
	t.Cleanup(s.server.Close)

	return s
}

// URL is the HTTP endpoint of the server.
func (s *RPCServer) URL() string {
	return s.server.URL
}

// WebSocketURL is the pub/sub endpoint of the server.
func (s *RPCServer) WebSocketURL() string {
	return "ws" + strings.TrimPrefix(s.server.URL, "http")
}

// Handle sets the handler for method.
func (s *RPCServer) Handle(method string, h RPCHandler) {
	s.mu.Lock()
	s.handlers[method] = h
	s.mu.Unlock()
}

// HandleResult always responds to method with result.
func (s *RPCServer) HandleResult(method string, result interface{}) {
	s.Handle(method, func(_ []json.RawMessage) (interface{}, *jsonrpc.RPCError) {
		return result, nil
	})
}

// HandleError always responds to method with an error object.
func (s *RPCServer) HandleError(method string, code int, message string, data interface{}) {
	s.Handle(method, func(_ []json.RawMessage) (interface{}, *jsonrpc.RPCError) {
		return nil, &jsonrpc.RPCError{Code: code, Message: message, Data: data}
	})
}

// HandleSubscription sets the handler for a pub/sub subscribe method.
func (s *RPCServer) HandleSubscription(method string, h SubscriptionHandler) {
	s.mu.Lock()
	s.subscriptions[method] = h
	s.mu.Unlock()
}

// SetBatchOrder makes batch responses be written in the given order of
// request positions, simulating a transport that reorders responses.
func (s *RPCServer) SetBatchOrder(order []int) {
	s.mu.Lock()
	s.batchOrder = order
	s.mu.Unlock()
}

// SetHTTPStatus makes every HTTP response use code and carry no body. Zero
// restores normal behavior.
func (s *RPCServer) SetHTTPStatus(code int) {
	s.mu.Lock()
	s.httpStatus = code
	s.mu.Unlock()
}

// OpenConnections returns the number of WebSocket connections the server
// has not yet seen closed.
func (s *RPCServer) OpenConnections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.openConns
}

// Requests returns the received requests for method, or all requests if
// method is empty.
func (s *RPCServer) Requests(method string) []RPCRequest {
	s.mu.Lock()
	defer s.mu.Unlock()

	var requests []RPCRequest
	for _, r := range s.requests {
		if method == "" || r.Method == method {
			requests = append(requests, r)
		}
	}
	return requests
}

func (s *RPCServer) serveHTTP(w http.ResponseWriter, r *http.Request) {
	if websocket.IsWebSocketUpgrade(r) {
		s.serveWebSocket(w, r)
		return
	}

	s.mu.Lock()
	status := s.httpStatus
	s.mu.Unlock()

	if status != 0 {
		w.WriteHeader(status)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	body = bytes.TrimSpace(body)
	w.Header().Set("Content-Type", "application/json")

	if len(body) > 0 && body[0] == '[' {
		var requests []RPCRequest
		if err := json.Unmarshal(body, &requests); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		responses := make([]rpcResponse, len(requests))
		for i, req := range requests {
			responses[i] = s.dispatch(req)
		}

		s.mu.Lock()
		order := s.batchOrder
		s.mu.Unlock()

		if len(order) == len(responses) {
			reordered := make([]rpcResponse, len(responses))
			for i, pos := range order {
				reordered[i] = responses[pos]
			}
			responses = reordered
		}

		_ = json.NewEncoder(w).Encode(responses)
		return
	}

	var req RPCRequest
	if err := json.Unmarshal(body, &req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	_ = json.NewEncoder(w).Encode(s.dispatch(req))
}

func (s *RPCServer) dispatch(req RPCRequest) rpcResponse {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	h, ok := s.handlers[req.Method]
	s.mu.Unlock()

	resp := rpcResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
	}
	if len(resp.ID) == 0 {
		resp.ID = json.RawMessage("null")
	}

	if !ok {
		resp.Error = &jsonrpc.RPCError{Code: -32601, Message: "Method not found"}
		return resp
	}

	result, rpcErr := h(req.Params)
	if rpcErr != nil {
		resp.Error = rpcErr
		return resp
	}

	encoded, err := json.Marshal(result)
	if err != nil {
		resp.Error = &jsonrpc.RPCError{Code: -32603, Message: err.Error()}
		return resp
	}
	resp.Result = encoded

	return resp
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func (s *RPCServer) serveWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WithError(err).Debug("failed to upgrade")
		return
	}
	defer conn.Close()

	s.mu.Lock()
	s.openConns++
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.openConns--
		s.mu.Unlock()
	}()

	for {
		var req RPCRequest
		if err := conn.ReadJSON(&req); err != nil {
			return
		}

		s.mu.Lock()
		s.requests = append(s.requests, req)
		h, ok := s.subscriptions[req.Method]
		s.nextSubID++
		subID := s.nextSubID
		s.mu.Unlock()

		if !ok {
			_ = conn.WriteJSON(rpcResponse{
				JSONRPC: "2.0",
				ID:      req.ID,
				Error:   &jsonrpc.RPCError{Code: -32601, Message: "Method not found"},
			})
			continue
		}

		if err := conn.WriteJSON(rpcResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Result:  json.RawMessage(strconv.Itoa(subID)),
		}); err != nil {
			return
		}

		notificationMethod := strings.TrimSuffix(req.Method, "Subscribe") + "Notification"
		for _, n := range h(req.Params) {
			if d, ok := n.(time.Duration); ok {
				time.Sleep(d)
				continue
			}

			if err := conn.WriteJSON(map[string]interface{}{
				"jsonrpc": "2.0",
				"method":  notificationMethod,
				"params": map[string]interface{}{
					"result":       n,
					"subscription": subID,
				},
			}); err != nil {
				return
			}
		}
	}
}
