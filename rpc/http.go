package rpc

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"golang.org/x/time/rate"

	"datamarket/core"
	"datamarket/native/accounts"
	"datamarket/native/market"
	"datamarket/native/registry"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB

	jwtSecretEnv = "DATAMARKET_RPC_JWT_SECRET"
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeUnauthorized   = -32001
	codeServerError    = -32000
	codeRateLimited    = -32020

	codeNotFound  = -32030
	codeForbidden = -32031
	codeConflict  = -32032
)

// Options tunes the per-client rate limits and the optional JWT bearer auth.
type Options struct {
	RequestsPerMinute float64
	Burst             int
	AuthIssuer        string
	AuthAudience      string
}

type Server struct {
	node *core.Node
	opts Options

	mu       sync.Mutex
	limiters map[string]*rate.Limiter

	jwtSecret []byte
}

func NewServer(node *core.Node, opts Options) *Server {
	if opts.RequestsPerMinute <= 0 {
		opts.RequestsPerMinute = 600
	}
	if opts.Burst <= 0 {
		opts.Burst = 20
	}
	secret := strings.TrimSpace(os.Getenv(jwtSecretEnv))
	return &Server{
		node:      node,
		opts:      opts,
		limiters:  make(map[string]*rate.Limiter),
		jwtSecret: []byte(secret),
	}
}

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      interface{}       `json:"id"`
}

type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func writeError(w http.ResponseWriter, status int, id interface{}, code int, message string, data interface{}) {
	if status <= 0 {
		status = http.StatusBadRequest
	}
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	errObj := &RPCError{Code: code, Message: message}
	if data != nil {
		errObj.Data = data
	}
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: errObj}
	_ = json.NewEncoder(w).Encode(resp)
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result}
	_ = json.NewEncoder(w).Encode(resp)
}

func (s *Server) limiter(client string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()
	limiter, ok := s.limiters[client]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(s.opts.RequestsPerMinute/60.0), s.opts.Burst)
		s.limiters[client] = limiter
	}
	return limiter
}

func clientID(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// authorize validates the bearer token when a JWT secret is configured. An
// empty secret disables authentication, matching local development use.
func (s *Server) authorize(r *http.Request) error {
	if len(s.jwtSecret) == 0 {
		return nil
	}
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return errors.New("missing bearer token")
	}
	tokenString := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
		jwt.WithLeeway(2 * time.Minute),
	}
	if s.opts.AuthIssuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(s.opts.AuthIssuer))
	}
	if s.opts.AuthAudience != "" {
		parserOpts = append(parserOpts, jwt.WithAudience(s.opts.AuthAudience))
	}
	_, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		return s.jwtSecret, nil
	}, parserOpts...)
	if err != nil {
		return fmt.Errorf("invalid token: %w", err)
	}
	return nil
}

// ServeHTTP dispatches a single JSON-RPC request.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, nil, codeInvalidRequest, "POST required", nil)
		return
	}
	if !s.limiter(clientID(r)).Allow() {
		writeError(w, http.StatusTooManyRequests, nil, codeRateLimited, "rate limit exceeded", nil)
		return
	}
	if err := s.authorize(r); err != nil {
		writeError(w, http.StatusUnauthorized, nil, codeUnauthorized, err.Error(), nil)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "unable to read request body", nil)
		return
	}
	var req RPCRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "invalid JSON payload", nil)
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "unsupported jsonrpc version", nil)
		return
	}

	result, rpcErr := s.dispatch(&req)
	if rpcErr != nil {
		writeError(w, httpStatusFor(rpcErr.Code), req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	writeResult(w, req.ID, result)
}

func httpStatusFor(code int) int {
	switch code {
	case codeNotFound:
		return http.StatusNotFound
	case codeForbidden:
		return http.StatusForbidden
	case codeConflict:
		return http.StatusConflict
	case codeInvalidParams, codeInvalidRequest, codeParseError:
		return http.StatusBadRequest
	case codeUnauthorized:
		return http.StatusUnauthorized
	case codeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) dispatch(req *RPCRequest) (interface{}, *RPCError) {
	switch req.Method {
	case "market_prepare":
		return s.handleMarketPrepare(req)
	case "market_addDataIds":
		return s.handleMarketAddDataIDs(req)
	case "market_order":
		return s.handleMarketOrder(req)
	case "market_cancel":
		return s.handleMarketCancel(req)
	case "market_settle":
		return s.handleMarketSettle(req)
	case "market_reject":
		return s.handleMarketReject(req)
	case "market_offerExists":
		return s.handleMarketOfferExists(req)
	case "market_getOffer":
		return s.handleMarketGetOffer(req)
	case "market_getOfferMembers":
		return s.handleMarketGetOfferMembers(req)
	case "market_events":
		return s.handleMarketEvents(req)
	case "registry_register":
		return s.handleRegistryRegister(req)
	case "registry_transfer":
		return s.handleRegistryTransfer(req)
	case "registry_exists":
		return s.handleRegistryExists(req)
	case "registry_get":
		return s.handleRegistryGet(req)
	case "registry_isOwner":
		return s.handleRegistryIsOwner(req)
	case "accounts_create":
		return s.handleAccountsCreate(req)
	case "accounts_createTemporary":
		return s.handleAccountsCreateTemporary(req)
	case "accounts_unlockTemporary":
		return s.handleAccountsUnlockTemporary(req)
	case "accounts_fromSignature":
		return s.handleAccountsFromSignature(req)
	case "accounts_get":
		return s.handleAccountsGet(req)
	default:
		return nil, &RPCError{Code: codeMethodNotFound, Message: fmt.Sprintf("method %q not found", req.Method)}
	}
}

func singleParam(req *RPCRequest, out interface{}) *RPCError {
	if len(req.Params) != 1 {
		return &RPCError{Code: codeInvalidParams, Message: "expected a single parameter object"}
	}
	if err := json.Unmarshal(req.Params[0], out); err != nil {
		return &RPCError{Code: codeInvalidParams, Message: fmt.Sprintf("invalid params: %v", err)}
	}
	return nil
}

// errorToRPC maps engine errors onto stable RPC codes. Authorization errors
// and state-precondition errors stay distinguishable by code and message.
func errorToRPC(err error) *RPCError {
	switch {
	case errors.Is(err, market.ErrOfferNotFound),
		errors.Is(err, registry.ErrAppNotFound),
		errors.Is(err, accounts.ErrAccountNotFound):
		return &RPCError{Code: codeNotFound, Message: err.Error()}
	case errors.Is(err, market.ErrNotProvider),
		errors.Is(err, market.ErrNotConsumer),
		errors.Is(err, registry.ErrNotOwner):
		return &RPCError{Code: codeForbidden, Message: err.Error()}
	case errors.Is(err, market.ErrOfferNotNeutral),
		errors.Is(err, market.ErrOfferNotPending),
		errors.Is(err, market.ErrOfferExists),
		errors.Is(err, market.ErrBundleLimit),
		errors.Is(err, market.ErrReentrancy),
		errors.Is(err, registry.ErrNameTaken),
		errors.Is(err, accounts.ErrNotTemporary):
		return &RPCError{Code: codeConflict, Message: err.Error()}
	case errors.Is(err, market.ErrUnknownApplication),
		errors.Is(err, market.ErrNoHandler),
		errors.Is(err, registry.ErrInvalidName),
		errors.Is(err, accounts.ErrIdentityMismatch),
		errors.Is(err, accounts.ErrInvalidSignature),
		errors.Is(err, accounts.ErrUnknownProofKey):
		return &RPCError{Code: codeInvalidParams, Message: err.Error()}
	default:
		return &RPCError{Code: codeServerError, Message: err.Error()}
	}
}
