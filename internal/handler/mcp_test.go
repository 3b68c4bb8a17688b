package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"storefront/internal/model"
	"storefront/internal/remote"
)

// jsonrpcRequest is a JSON-RPC 2.0 request structure for testing.
type jsonrpcRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
}

// jsonrpcResponse is a JSON-RPC 2.0 response structure for testing.
type jsonrpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *jsonrpcError   `json:"error,omitempty"`
}

type jsonrpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// toolCallParams represents the params for tools/call method.
type toolCallParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// callToolResult is the expected result structure from a tool call.
type callToolResult struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text,omitempty"`
	} `json:"content"`
	StructuredContent json.RawMessage `json:"structuredContent,omitempty"`
	IsError           bool            `json:"isError,omitempty"`
}

func TestMCPServerCreation(t *testing.T) {
	h, _ := testHandler(&remote.Mock{})
	if server := h.NewMCPServer(); server == nil {
		t.Fatal("NewMCPServer returned nil")
	}
}

func TestMCPHandlerCreation(t *testing.T) {
	h, _ := testHandler(&remote.Mock{})
	if handler := h.NewMCPHandler(); handler == nil {
		t.Fatal("NewMCPHandler returned nil")
	}
}

func TestMCPInitialize(t *testing.T) {
	_, mux := testHandler(&remote.Mock{})

	req := jsonrpcRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "initialize",
		Params: map[string]interface{}{
			"protocolVersion": "2025-06-18",
			"clientInfo":      map[string]string{"name": "test", "version": "1.0"},
			"capabilities":    map[string]interface{}{},
		},
	}

	body, _ := json.Marshal(req)
	httpReq := httptest.NewRequest("POST", "/mcp", bytes.NewReader(body))
	setMCPHeaders(httpReq, "")
	w := httptest.NewRecorder()

	mux.ServeHTTP(w, httpReq)

	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d, want %d\nBody: %s", w.Code, http.StatusOK, w.Body.String())
	}

	jsonData, err := parseSSEResponse(w.Body.String())
	if err != nil {
		t.Fatalf("Failed to parse SSE response: %v", err)
	}

	var resp jsonrpcResponse
	if err := json.Unmarshal(jsonData, &resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.Error != nil {
		t.Errorf("Unexpected error: %+v", resp.Error)
	}

	var result struct {
		ServerInfo struct {
			Name string `json:"name"`
		} `json:"serverInfo"`
	}
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		t.Fatalf("Failed to parse result: %v", err)
	}
	if result.ServerInfo.Name != "storefront" {
		t.Errorf("server name = %q, want storefront", result.ServerInfo.Name)
	}
}

func TestMCPToolsList(t *testing.T) {
	_, mux := testHandler(&remote.Mock{})
	sessionID := initMCPSession(t, mux)

	resp := mcpCall(t, mux, sessionID, jsonrpcRequest{
		JSONRPC: "2.0",
		ID:      2,
		Method:  "tools/list",
	})

	var toolsResult struct {
		Tools []struct {
			Name        string `json:"name"`
			Description string `json:"description"`
		} `json:"tools"`
	}
	if err := json.Unmarshal(resp.Result, &toolsResult); err != nil {
		t.Fatalf("Failed to parse tools result: %v", err)
	}

	expectedTools := map[string]bool{
		"create_session":                false,
		"login":                         false,
		"logout":                        false,
		"get_cart":                      false,
		"add_item":                      false,
		"update_quantity":               false,
		"remove_item":                   false,
		"clear_cart":                    false,
		"add_customization":             false,
		"update_customization_quantity": false,
		"toggle_wishlist":               false,
		"get_wishlist":                  false,
		"view_product":                  false,
		"recently_viewed":               false,
	}

	for _, tool := range toolsResult.Tools {
		if _, ok := expectedTools[tool.Name]; ok {
			expectedTools[tool.Name] = true
		}
	}

	for name, found := range expectedTools {
		if !found {
			t.Errorf("Expected tool %q not found in tools list", name)
		}
	}
}

func TestMCPCartTools(t *testing.T) {
	_, mux := testHandler(&remote.Mock{})
	sessionID := initMCPSession(t, mux)

	var sess SessionOutput
	callToolOK(t, mux, sessionID, "create_session", map[string]interface{}{}, &sess)
	if sess.Session == "" || sess.Mode != "guest" {
		t.Fatalf("session = %+v", sess)
	}
	meta := map[string]string{"session": sess.Session}

	var cart CartOutput
	callToolOK(t, mux, sessionID, "add_item", map[string]interface{}{
		"meta": meta, "product_id": "P1", "size": "M", "quantity": 2,
	}, &cart)
	if cart.Count != 2 || cart.Total != "30.00" {
		t.Errorf("after add_item cart = %+v", cart)
	}

	callToolOK(t, mux, sessionID, "add_customization", map[string]interface{}{
		"meta": meta, "id": "c-1", "price": 5000, "fabric": "linen",
	}, &cart)
	if cart.Count != 3 || len(cart.Lines) != 2 {
		t.Errorf("after add_customization cart = %+v", cart)
	}

	callToolOK(t, mux, sessionID, "update_quantity", map[string]interface{}{
		"meta": meta, "product_id": "P1", "size": "M", "quantity": 0,
	}, &cart)
	if cart.Count != 1 || cart.Lines[0].Kind != "custom" || cart.Lines[0].Fabric != "linen" {
		t.Errorf("after update_quantity cart = %+v", cart)
	}

	callToolOK(t, mux, sessionID, "clear_cart", map[string]interface{}{"meta": meta}, &cart)
	if cart.Count != 0 || len(cart.Lines) != 0 {
		t.Errorf("after clear_cart cart = %+v", cart)
	}
}

func TestMCPRecentlyViewed(t *testing.T) {
	_, mux := testHandler(&remote.Mock{})
	sessionID := initMCPSession(t, mux)

	var sess SessionOutput
	callToolOK(t, mux, sessionID, "create_session", map[string]interface{}{}, &sess)
	meta := map[string]string{"session": sess.Session}

	var recent RecentOutput
	callToolOK(t, mux, sessionID, "view_product", map[string]interface{}{"meta": meta, "product_id": "P2"}, &recent)
	if len(recent.Items) != 1 || recent.Items[0].Name != "Hoodie" || recent.Items[0].ViewedAt == "" {
		t.Errorf("recent = %+v", recent.Items)
	}

	result := callTool(t, mux, sessionID, "view_product", map[string]interface{}{"meta": meta, "product_id": "nope"})
	if !result.IsError {
		t.Error("expected error for unknown product")
	}
}

func TestMCPGuestWishlist(t *testing.T) {
	_, mux := testHandler(&remote.Mock{})
	sessionID := initMCPSession(t, mux)

	var sess SessionOutput
	callToolOK(t, mux, sessionID, "create_session", map[string]interface{}{}, &sess)

	result := callTool(t, mux, sessionID, "toggle_wishlist", map[string]interface{}{
		"meta":       map[string]string{"session": sess.Session},
		"product_id": "P1",
	})
	if !result.IsError {
		t.Fatal("expected error for guest wishlist toggle")
	}
	if len(result.Content) == 0 || !strings.Contains(result.Content[0].Text, "LOGIN_REQUIRED") {
		t.Errorf("content = %+v", result.Content)
	}
	if !strings.Contains(result.Content[0].Text, "redirect: /login") {
		t.Errorf("content missing redirect: %q", result.Content[0].Text)
	}
}

func TestMCPWishlistAfterLogin(t *testing.T) {
	mock := &remote.Mock{
		ToggleWishlistFunc: func(ctx context.Context, token, productID string) ([]string, error) {
			return []string{productID}, nil
		},
	}
	_, mux := testHandler(mock)
	sessionID := initMCPSession(t, mux)

	var sess SessionOutput
	callToolOK(t, mux, sessionID, "create_session", map[string]interface{}{}, &sess)
	meta := map[string]string{"session": sess.Session}

	callToolOK(t, mux, sessionID, "login", map[string]interface{}{"meta": meta, "token": "opaque"}, &sess)
	if sess.Mode != "authenticated" {
		t.Fatalf("Mode = %s, want authenticated", sess.Mode)
	}

	var wl WishlistOutput
	callToolOK(t, mux, sessionID, "toggle_wishlist", map[string]interface{}{"meta": meta, "product_id": "P1"}, &wl)
	if !wl.Wishlisted || len(wl.Items) != 1 {
		t.Errorf("wishlist = %+v", wl)
	}
}

func TestMCPMissingSession(t *testing.T) {
	_, mux := testHandler(&remote.Mock{})
	sessionID := initMCPSession(t, mux)

	result := callTool(t, mux, sessionID, "get_cart", map[string]interface{}{
		"meta": map[string]string{"session": ""},
	})
	if !result.IsError {
		t.Error("expected error for empty meta.session")
	}

	result = callTool(t, mux, sessionID, "get_cart", map[string]interface{}{
		"meta": map[string]string{"session": "bogus"},
	})
	if !result.IsError {
		t.Error("expected error for unknown session")
	}
	if len(result.Content) == 0 || !strings.Contains(result.Content[0].Text, "NOT_FOUND") {
		t.Errorf("content = %+v", result.Content)
	}
}

func TestMCPErrorFormatting(t *testing.T) {
	h, _ := testHandler(&remote.Mock{})

	err := h.mcpError(nil, model.NewValidationError("size", "please select a size"))
	if got := err.Error(); got != "VALIDATION_ERROR: invalid size: please select a size" {
		t.Errorf("mcpError = %q", got)
	}

	err = h.mcpError(nil, context.DeadlineExceeded)
	if got := err.Error(); got != "internal error" {
		t.Errorf("mcpError = %q, want internal error", got)
	}
}

// setMCPHeaders sets the required headers for MCP Streamable HTTP requests.
func setMCPHeaders(req *http.Request, sessionID string) {
	req.Header.Set("Content-Type", "application/json")
	// MCP Streamable HTTP requires Accept header with both json and event-stream
	req.Header.Set("Accept", "application/json, text/event-stream")
	if sessionID != "" {
		req.Header.Set("Mcp-Session-Id", sessionID)
	}
}

// parseSSEResponse extracts JSON data from SSE formatted response.
// SSE format: "event: message\ndata: {json}\n\n"
func parseSSEResponse(body string) ([]byte, error) {
	lines := strings.Split(body, "\n")
	for _, line := range lines {
		if strings.HasPrefix(line, "data: ") {
			return []byte(strings.TrimPrefix(line, "data: ")), nil
		}
	}
	// If no SSE format found, assume plain JSON
	return []byte(body), nil
}

// initMCPSession initializes an MCP session and returns the session ID.
func initMCPSession(t *testing.T, mux *http.ServeMux) string {
	t.Helper()

	initReq := jsonrpcRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "initialize",
		Params: map[string]interface{}{
			"protocolVersion": "2025-06-18",
			"clientInfo":      map[string]string{"name": "test", "version": "1.0"},
			"capabilities":    map[string]interface{}{},
		},
	}

	body, _ := json.Marshal(initReq)
	httpReq := httptest.NewRequest("POST", "/mcp", bytes.NewReader(body))
	setMCPHeaders(httpReq, "")
	w := httptest.NewRecorder()

	mux.ServeHTTP(w, httpReq)

	if w.Code != http.StatusOK {
		t.Fatalf("Failed to initialize MCP session: %s", w.Body.String())
	}

	sessionID := w.Header().Get("Mcp-Session-Id")

	notify, _ := json.Marshal(map[string]string{
		"jsonrpc": "2.0",
		"method":  "notifications/initialized",
	})
	notifyReq := httptest.NewRequest("POST", "/mcp", bytes.NewReader(notify))
	setMCPHeaders(notifyReq, sessionID)
	mux.ServeHTTP(httptest.NewRecorder(), notifyReq)

	return sessionID
}

// mcpCall posts a JSON-RPC request and decodes the response.
func mcpCall(t *testing.T, mux *http.ServeMux, sessionID string, req jsonrpcRequest) jsonrpcResponse {
	t.Helper()

	body, _ := json.Marshal(req)
	httpReq := httptest.NewRequest("POST", "/mcp", bytes.NewReader(body))
	setMCPHeaders(httpReq, sessionID)
	w := httptest.NewRecorder()

	mux.ServeHTTP(w, httpReq)

	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d, want %d\nBody: %s", w.Code, http.StatusOK, w.Body.String())
	}

	jsonData, err := parseSSEResponse(w.Body.String())
	if err != nil {
		t.Fatalf("Failed to parse SSE response: %v", err)
	}

	var resp jsonrpcResponse
	if err := json.Unmarshal(jsonData, &resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.Error != nil {
		t.Fatalf("Unexpected error: %+v", resp.Error)
	}
	return resp
}

// callTool invokes tool with args and returns the tool result.
func callTool(t *testing.T, mux *http.ServeMux, sessionID, tool string, args interface{}) callToolResult {
	t.Helper()

	raw, _ := json.Marshal(args)
	resp := mcpCall(t, mux, sessionID, jsonrpcRequest{
		JSONRPC: "2.0",
		ID:      2,
		Method:  "tools/call",
		Params:  toolCallParams{Name: tool, Arguments: raw},
	})

	var result callToolResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		t.Fatalf("Failed to parse result: %v", err)
	}
	return result
}

// callToolOK invokes tool, requires success and decodes its output into out.
func callToolOK(t *testing.T, mux *http.ServeMux, sessionID, tool string, args, out interface{}) {
	t.Helper()

	result := callTool(t, mux, sessionID, tool, args)
	if result.IsError {
		t.Fatalf("%s: unexpected tool error: %+v", tool, result.Content)
	}

	payload := []byte(result.StructuredContent)
	if len(payload) == 0 && len(result.Content) > 0 && result.Content[0].Type == "text" {
		payload = []byte(result.Content[0].Text)
	}
	if err := json.Unmarshal(payload, out); err != nil {
		t.Fatalf("%s: decode output: %v\npayload: %s", tool, err, payload)
	}
}
