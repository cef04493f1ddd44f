package nodegw

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) (*Client, func()) {
	t.Helper()
	srv := httptest.NewServer(handler)
	c, err := New(srv.URL)
	if err != nil {
		srv.Close()
		t.Fatalf("New() error = %v", err)
	}
	return c, srv.Close
}

func TestTipHeight(t *testing.T) {
	c, closeSrv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"chain":"main","blocks":884123}`))
	})
	defer closeSrv()

	height, err := c.TipHeight()
	if err != nil {
		t.Fatalf("TipHeight() error = %v", err)
	}
	if height != 884123 {
		t.Fatalf("TipHeight() = %d, want 884123", height)
	}
}

func TestBlockHashAtHeightTrimsWhitespace(t *testing.T) {
	const hash = "00000000000000000001b7bcbaa29b2b3e5b5d50c4b3c5c6e1f2a3d4e5f6a7b8"
	c, closeSrv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/rest/chaininfo.json":
			w.Write([]byte(`{"chain":"main","blocks":1}`))
		default:
			w.Write([]byte(hash + "\n"))
		}
	})
	defer closeSrv()

	got, err := c.BlockHashAtHeight(884123)
	if err != nil {
		t.Fatalf("BlockHashAtHeight() error = %v", err)
	}
	if got.String() != hash {
		t.Fatalf("BlockHashAtHeight() = %s, want %s", got, hash)
	}
}

func TestGetMapsNon2xxToErrUpstream(t *testing.T) {
	c, closeSrv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/rest/chaininfo.json" {
			w.Write([]byte(`{"chain":"main","blocks":1}`))
			return
		}
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte("block not found"))
	})
	defer closeSrv()

	_, err := c.BlockHashAtHeight(999999999)
	if !errors.Is(err, ErrUpstream) {
		t.Fatalf("expected ErrUpstream, got %v", err)
	}
}

func TestNewFailsOnUnreachableNode(t *testing.T) {
	if _, err := New("http://127.0.0.1:1"); err == nil {
		t.Fatal("expected error constructing client against an unreachable node")
	}
}
