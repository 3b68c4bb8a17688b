package remote

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"storefront/internal/model"
)

// newTestServer serves handler and returns a client pointed at it.
func newTestServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewClient(Config{BaseURL: srv.URL, APIKey: "store-key", APIVersion: "v1.2.0"})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func writeEnvelope(w http.ResponseWriter, status int, success bool, msg string, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Api-Version", "1.4.0")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": success,
		"message": msg,
		"data":    data,
	})
}

func TestNewClientValidation(t *testing.T) {
	if _, err := NewClient(Config{}); err == nil {
		t.Error("expected error for missing base URL")
	}
	if _, err := NewClient(Config{BaseURL: "http://x", APIVersion: "one"}); err == nil {
		t.Error("expected error for invalid version")
	}
}

func TestRequestHeaders(t *testing.T) {
	var got *http.Request
	var body ItemRequest
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		got = r
		json.NewDecoder(r.Body).Decode(&body)
		writeEnvelope(w, 200, true, "", nil)
	})

	ctx := WithSeq(context.Background(), 42)
	if err := c.AddItem(ctx, "tok-1", ItemRequest{ProductID: "P1", Size: "M", Quantity: 2}); err != nil {
		t.Fatalf("AddItem: %v", err)
	}

	if got.Method != http.MethodPost || got.URL.Path != "/cart/items" {
		t.Errorf("request = %s %s", got.Method, got.URL.Path)
	}
	if h := got.Header.Get("Authorization"); h != "Bearer tok-1" {
		t.Errorf("Authorization = %q", h)
	}
	if h := got.Header.Get("X-Api-Key"); h != "store-key" {
		t.Errorf("X-Api-Key = %q", h)
	}
	if h := got.Header.Get("Sync-Seq"); h != "42" {
		t.Errorf("Sync-Seq = %q, want 42", h)
	}
	if body != (ItemRequest{ProductID: "P1", Size: "M", Quantity: 2}) {
		t.Errorf("body = %+v", body)
	}
}

func TestGetCartDecodesEnvelope(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, 200, true, "", map[string]interface{}{
			"items": map[string]map[string]int{"P1": {"M": 2}},
		})
	})

	st, err := c.GetCart(context.Background(), "tok")
	if err != nil {
		t.Fatalf("GetCart: %v", err)
	}
	if st.Items["P1"]["M"] != 2 {
		t.Errorf("Items = %+v", st.Items)
	}
	if st.Customizations == nil {
		t.Error("Customizations is nil, want empty map")
	}
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantErr error
	}{
		{"unauthorized", 401, model.ErrUnauthorized},
		{"forbidden", 403, model.ErrUnauthorized},
		{"bad request", 400, model.ErrInvalidRequest},
		{"not found", 404, model.ErrNotFound},
		{"conflict", 409, model.ErrConflict},
		{"rate limited", 429, model.ErrRateLimited},
		{"server error", 500, model.ErrUpstreamError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
				writeEnvelope(w, tt.status, false, "nope", nil)
			})
			_, err := c.GetWishlist(context.Background(), "tok")
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestUnsuccessfulEnvelopeIsAnError(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, 200, false, "cart locked", nil)
	})

	err := c.ClearCart(context.Background(), "tok")
	if !errors.Is(err, model.ErrUpstreamError) {
		t.Fatalf("error = %v, want upstream error", err)
	}
	if model.UserMessage(err) != "cart locked" {
		t.Errorf("message = %q", model.UserMessage(err))
	}
}

func TestIncompatibleAPIVersion(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Api-Version", "v2.0.0")
		w.WriteHeader(200)
		io.WriteString(w, `{"success":true,"data":[]}`)
	})

	if _, err := c.GetWishlist(context.Background(), "tok"); !errors.Is(err, model.ErrUpstreamError) {
		t.Errorf("error = %v, want upstream error", err)
	}
}

func TestPathSegmentsAreEscaped(t *testing.T) {
	var gotPath string
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		writeEnvelope(w, 200, true, "", nil)
	})

	if err := c.RemoveItem(context.Background(), "tok", "P/1", "X L"); err != nil {
		t.Fatalf("RemoveItem: %v", err)
	}
	if gotPath != "/cart/items/P%2F1/X%20L" {
		t.Errorf("path = %s", gotPath)
	}
}

func TestListProductsParsesPrices(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "" {
			t.Error("catalog request carried a token")
		}
		writeEnvelope(w, 200, true, "", []map[string]interface{}{
			{"id": "P1", "name": "Tee", "price": "19.99", "category": "tops"},
			{"id": "P2", "name": "Cap", "price": ""},
		})
	})

	got, err := c.ListProducts(context.Background())
	if err != nil {
		t.Fatalf("ListProducts: %v", err)
	}
	want := []model.Product{
		{ID: "P1", Name: "Tee", Price: 1999, Category: "tops"},
		{ID: "P2", Name: "Cap", Price: 0},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ListProducts() = %+v, want %+v", got, want)
	}
}

func TestSaveCustomizationChoosesMethod(t *testing.T) {
	var calls []string
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, r.Method+" "+r.URL.Path)
		var rec model.Customization
		json.NewDecoder(r.Body).Decode(&rec)
		if rec.ID == "" {
			rec.ID = "C9"
		}
		writeEnvelope(w, 200, true, "", rec)
	})

	created, err := c.SaveCustomization(context.Background(), "tok", &model.Customization{Name: "mine"})
	if err != nil || created.ID != "C9" {
		t.Fatalf("create = %+v, %v", created, err)
	}
	if _, err := c.SaveCustomization(context.Background(), "tok", created); err != nil {
		t.Fatalf("update: %v", err)
	}

	want := []string{"POST /customizations", "PUT /customizations/C9"}
	if !reflect.DeepEqual(calls, want) {
		t.Errorf("calls = %v, want %v", calls, want)
	}
}
