package rpc

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"datamarket/core"
	"datamarket/core/types"
	"datamarket/crypto"
	"datamarket/native/market"
	"datamarket/storage"
)

func newTestNode(t *testing.T) *core.Node {
	t.Helper()
	node, err := core.NewNode(storage.NewMemDB(), core.Config{})
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	node.Handlers().Register(market.TokenHandlerAddress(), market.NewTokenHandler(node.State()))
	return node
}

func newTestServer(t *testing.T) (*Server, *core.Node) {
	t.Helper()
	node := newTestNode(t)
	return NewServer(node, Options{}), node
}

func bech32Addr(fill byte) string {
	var addr [20]byte
	for i := range addr {
		addr[i] = fill
	}
	return crypto.NewAddress(crypto.DXPrefix, addr[:]).String()
}

func rawAddr(fill byte) [20]byte {
	var addr [20]byte
	for i := range addr {
		addr[i] = fill
	}
	return addr
}

func call(t *testing.T, server *Server, method string, params interface{}) (*httptest.ResponseRecorder, *RPCResponse) {
	t.Helper()
	req := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
	}
	if params != nil {
		req["params"] = []interface{}{params}
	} else {
		req["params"] = []interface{}{}
	}
	body, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	httpReq := httptest.NewRequest(http.MethodPost, "/rpc", bytes.NewReader(body))
	httpReq.RemoteAddr = "10.0.0.1:12345"
	recorder := httptest.NewRecorder()
	server.ServeHTTP(recorder, httpReq)

	resp := new(RPCResponse)
	if err := json.Unmarshal(recorder.Body.Bytes(), resp); err != nil {
		t.Fatalf("decode response: %v (%s)", err, recorder.Body.String())
	}
	return recorder, resp
}

func mustResult(t *testing.T, resp *RPCResponse, out interface{}) {
	t.Helper()
	if resp.Error != nil {
		t.Fatalf("unexpected rpc error: %d %s", resp.Error.Code, resp.Error.Message)
	}
	encoded, err := json.Marshal(resp.Result)
	if err != nil {
		t.Fatalf("re-encode result: %v", err)
	}
	if err := json.Unmarshal(encoded, out); err != nil {
		t.Fatalf("decode result: %v", err)
	}
}

func TestRejectsNonPost(t *testing.T) {
	server, _ := newTestServer(t)
	recorder := httptest.NewRecorder()
	server.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/rpc", nil))
	if recorder.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status: %d", recorder.Code)
	}
}

func TestRejectsMalformedJSON(t *testing.T) {
	server, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/rpc", bytes.NewReader([]byte("{not json")))
	recorder := httptest.NewRecorder()
	server.ServeHTTP(recorder, req)
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("status: %d", recorder.Code)
	}
	resp := new(RPCResponse)
	if err := json.Unmarshal(recorder.Body.Bytes(), resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Error == nil || resp.Error.Code != codeParseError {
		t.Fatalf("expected parse error, got %+v", resp.Error)
	}
}

func TestUnknownMethod(t *testing.T) {
	server, _ := newTestServer(t)
	_, resp := call(t, server, "market_doesNotExist", nil)
	if resp.Error == nil || resp.Error.Code != codeMethodNotFound {
		t.Fatalf("expected method-not-found, got %+v", resp.Error)
	}
}

func TestMarketLifecycleOverRPC(t *testing.T) {
	server, node := newTestServer(t)

	provider := bech32Addr(0x01)
	consumer := bech32Addr(0x02)
	if err := node.SetLedgerAccount(rawAddr(0x02), &types.Account{Balance: big.NewInt(1000)}); err != nil {
		t.Fatalf("fund consumer: %v", err)
	}

	_, resp := call(t, server, "registry_register", map[string]interface{}{
		"name":  "me",
		"owner": provider,
	})
	var app struct {
		Name string `json:"name"`
	}
	mustResult(t, resp, &app)
	if app.Name != "me" {
		t.Fatalf("registered name: %q", app.Name)
	}

	handlerAddr := market.TokenHandlerAddress()
	args, err := market.EncodeTokenTransferArgs(market.TokenTransferArgs{
		From:   rawAddr(0x02),
		To:     rawAddr(0x01),
		Amount: big.NewInt(100),
	})
	if err != nil {
		t.Fatalf("encode args: %v", err)
	}

	_, resp = call(t, server, "market_prepare", map[string]interface{}{
		"caller":         provider,
		"provider":       "me",
		"consumer":       consumer,
		"escrowHandler":  crypto.NewAddress(crypto.DXPrefix, handlerAddr[:]).String(),
		"escrowSelector": hex.EncodeToString(market.TokenTransferSelector[:]),
		"escrowArgs":     hex.EncodeToString(args),
		"dataIds":        []string{hex.EncodeToString(bytes.Repeat([]byte{0x0A}, 20))},
	})
	var offer struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	mustResult(t, resp, &offer)
	if offer.Status != "neutral" {
		t.Fatalf("prepared status: %q", offer.Status)
	}

	_, resp = call(t, server, "market_order", map[string]interface{}{
		"caller": provider,
		"id":     offer.ID,
	})
	var ok bool
	mustResult(t, resp, &ok)
	if !ok {
		t.Fatalf("order result: %v", ok)
	}

	_, resp = call(t, server, "market_settle", map[string]interface{}{
		"caller": consumer,
		"id":     offer.ID,
	})
	var settled struct {
		Settled bool   `json:"settled"`
		Receipt string `json:"receipt"`
	}
	mustResult(t, resp, &settled)
	if !settled.Settled || settled.Receipt == "" {
		t.Fatalf("settle result: %+v", settled)
	}

	_, resp = call(t, server, "market_getOffer", map[string]interface{}{"id": offer.ID})
	var final struct {
		Status string `json:"status"`
	}
	mustResult(t, resp, &final)
	if final.Status != "settled" {
		t.Fatalf("final status: %q", final.Status)
	}
}

func TestErrorCodeMapping(t *testing.T) {
	server, _ := newTestServer(t)
	provider := bech32Addr(0x01)

	// Unknown offers surface as not-found with a 404.
	recorder, resp := call(t, server, "market_getOffer", map[string]interface{}{
		"id": "ffffffffffffffff",
	})
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("status: %d", recorder.Code)
	}
	if resp.Error == nil || resp.Error.Code != codeNotFound {
		t.Fatalf("expected not-found, got %+v", resp.Error)
	}

	// Duplicate registrations conflict.
	if _, resp := call(t, server, "registry_register", map[string]interface{}{"name": "me", "owner": provider}); resp.Error != nil {
		t.Fatalf("register: %+v", resp.Error)
	}
	recorder, resp = call(t, server, "registry_register", map[string]interface{}{"name": "me", "owner": provider})
	if recorder.Code != http.StatusConflict || resp.Error == nil || resp.Error.Code != codeConflict {
		t.Fatalf("expected conflict, got status=%d err=%+v", recorder.Code, resp.Error)
	}

	// A stranger acting on another provider's offer is forbidden.
	_, resp = call(t, server, "market_prepare", map[string]interface{}{
		"caller":         provider,
		"provider":       "me",
		"consumer":       bech32Addr(0x02),
		"escrowHandler":  bech32Addr(0xEE),
		"escrowSelector": "00000000",
	})
	var offer struct {
		ID string `json:"id"`
	}
	mustResult(t, resp, &offer)
	recorder, resp = call(t, server, "market_order", map[string]interface{}{
		"caller": bech32Addr(0x09),
		"id":     offer.ID,
	})
	if recorder.Code != http.StatusForbidden || resp.Error == nil || resp.Error.Code != codeForbidden {
		t.Fatalf("expected forbidden, got status=%d err=%+v", recorder.Code, resp.Error)
	}

	// Malformed addresses fail parameter validation.
	recorder, resp = call(t, server, "market_order", map[string]interface{}{
		"caller": "not-an-address",
		"id":     offer.ID,
	})
	if recorder.Code != http.StatusBadRequest || resp.Error == nil || resp.Error.Code != codeInvalidParams {
		t.Fatalf("expected invalid params, got status=%d err=%+v", recorder.Code, resp.Error)
	}
}

func TestRateLimiting(t *testing.T) {
	node := newTestNode(t)
	server := NewServer(node, Options{RequestsPerMinute: 60, Burst: 2})

	var lastCode int
	for i := 0; i < 3; i++ {
		recorder, _ := call(t, server, "registry_exists", map[string]interface{}{"name": "me"})
		lastCode = recorder.Code
	}
	if lastCode != http.StatusTooManyRequests {
		t.Fatalf("expected rate limiting, got status %d", lastCode)
	}
}

func TestJWTAuthorization(t *testing.T) {
	t.Setenv("DATAMARKET_RPC_JWT_SECRET", "test-secret")
	node := newTestNode(t)
	server := NewServer(node, Options{})

	// No token: unauthorized.
	recorder, resp := call(t, server, "registry_exists", map[string]interface{}{"name": "me"})
	if recorder.Code != http.StatusUnauthorized || resp.Error == nil || resp.Error.Code != codeUnauthorized {
		t.Fatalf("expected unauthorized, got status=%d err=%+v", recorder.Code, resp.Error)
	}

	// A valid HS256 token passes.
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	body, _ := json.Marshal(map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "registry_exists",
		"params":  []interface{}{map[string]interface{}{"name": "me"}},
	})
	httpReq := httptest.NewRequest(http.MethodPost, "/rpc", bytes.NewReader(body))
	httpReq.RemoteAddr = "10.0.0.2:1000"
	httpReq.Header.Set("Authorization", "Bearer "+token)
	authRecorder := httptest.NewRecorder()
	server.ServeHTTP(authRecorder, httpReq)
	if authRecorder.Code != http.StatusOK {
		t.Fatalf("authorized request failed: %d %s", authRecorder.Code, authRecorder.Body.String())
	}

	// A token signed with the wrong key fails.
	bad, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("wrong-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	httpReq = httptest.NewRequest(http.MethodPost, "/rpc", bytes.NewReader(body))
	httpReq.RemoteAddr = "10.0.0.3:1000"
	httpReq.Header.Set("Authorization", "Bearer "+bad)
	badRecorder := httptest.NewRecorder()
	server.ServeHTTP(badRecorder, httpReq)
	if badRecorder.Code != http.StatusUnauthorized {
		t.Fatalf("forged token accepted: %d", badRecorder.Code)
	}
}
