package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHTTPVerifier_Success(t *testing.T) {
	var gotAssertion string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		var req struct {
			Assertion string `json:"assertion"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		gotAssertion = req.Assertion
		json.NewEncoder(w).Encode(map[string]any{
			"status":     "success",
			"attributes": map[string]string{"name": "Alice", "birthdate": "1990-01-01"},
		})
	}))
	defer srv.Close()

	v := NewHTTPVerifier(srv.URL)
	attrs, err := v.VerifyAssertion(context.Background(), "assertion-blob")
	if err != nil {
		t.Fatalf("VerifyAssertion() error = %v", err)
	}
	if gotAssertion != "assertion-blob" {
		t.Errorf("posted assertion = %q", gotAssertion)
	}
	if attrs["name"] != "Alice" || attrs["birthdate"] != "1990-01-01" {
		t.Errorf("attributes = %v", attrs)
	}
}

func TestHTTPVerifier_ProviderUnreachable(t *testing.T) {
	t.Run("server error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer srv.Close()

		v := NewHTTPVerifier(srv.URL)
		if _, err := v.VerifyAssertion(context.Background(), "a"); !errors.Is(err, ErrProviderUnreachable) {
			t.Errorf("error = %v, want ErrProviderUnreachable", err)
		}
	})

	t.Run("connection refused", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		srv.Close() // nothing listens anymore

		v := NewHTTPVerifier(srv.URL)
		if _, err := v.VerifyAssertion(context.Background(), "a"); !errors.Is(err, ErrProviderUnreachable) {
			t.Errorf("error = %v, want ErrProviderUnreachable", err)
		}
	})
}

func TestHTTPVerifier_AssertionRejected(t *testing.T) {
	testCases := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"bad request", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "invalid assertion", http.StatusBadRequest)
		}},
		{"unauthorized", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		}},
		{"non-success status field", func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(map[string]any{"status": "denied"})
		}},
		{"missing attributes", func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(map[string]any{"status": "success"})
		}},
		{"garbage body", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("not json"))
		}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(tc.handler)
			defer srv.Close()

			v := NewHTTPVerifier(srv.URL)
			if _, err := v.VerifyAssertion(context.Background(), "a"); !errors.Is(err, ErrAssertionRejected) {
				t.Errorf("error = %v, want ErrAssertionRejected", err)
			}
		})
	}
}

func TestHTTPVerifier_ContextCanceled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	v := NewHTTPVerifier(srv.URL)
	if _, err := v.VerifyAssertion(ctx, "a"); err == nil {
		t.Error("VerifyAssertion() with canceled context should return error")
	}
}
