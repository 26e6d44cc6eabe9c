package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/modra-dev/modra/engine"
	"github.com/modra-dev/modra/sandbox"
)

func newTestServerMux(t *testing.T) (*httptest.Server, *contextManager) {
	t.Helper()
	cm := newContextManager(15 * time.Minute)
	t.Cleanup(cm.closeAll)

	mux := newServeMux(cm, func() (*engine.Runtime, error) {
		return engine.New(sandbox.Default())
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, cm
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("post %s: %v", url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func createContext(t *testing.T, srv *httptest.Server) string {
	t.Helper()
	resp := postJSON(t, srv.URL+"/contexts", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("create context: status %d", resp.StatusCode)
	}
	var out createContextResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out.ContextID == "" {
		t.Fatal("empty context_id")
	}
	return out.ContextID
}

func TestServerHealth(t *testing.T) {
	srv, _ := newTestServerMux(t)

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func TestServerLoadAndCall(t *testing.T) {
	srv, _ := newTestServerMux(t)
	ctxID := createContext(t, srv)

	resp := postJSON(t, fmt.Sprintf("%s/contexts/%s/modules", srv.URL, ctxID), loadRequest{
		Name:   "double.js",
		Source: `export default function(n) { return n * 2; }`,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("load: status %d", resp.StatusCode)
	}
	var loaded loadResponse
	if err := json.NewDecoder(resp.Body).Decode(&loaded); err != nil {
		t.Fatal(err)
	}

	resp = postJSON(t, fmt.Sprintf("%s/contexts/%s/call", srv.URL, ctxID), callRequest{
		Handle: loaded.Handle,
		Args:   []json.RawMessage{json.RawMessage(`21`)},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("call: status %d", resp.StatusCode)
	}
	var called callResponse
	if err := json.NewDecoder(resp.Body).Decode(&called); err != nil {
		t.Fatal(err)
	}
	if called.Error != "" {
		t.Fatalf("call error: %s", called.Error)
	}
	if string(called.Result) != "42" {
		t.Errorf("result = %s, want 42", called.Result)
	}
}

func TestServerCallByName(t *testing.T) {
	srv, _ := newTestServerMux(t)
	ctxID := createContext(t, srv)

	resp := postJSON(t, fmt.Sprintf("%s/contexts/%s/modules", srv.URL, ctxID), loadRequest{
		Name:   "m.js",
		Source: `export function greet(name) { return "hi " + name; }`,
	})
	var loaded loadResponse
	json.NewDecoder(resp.Body).Decode(&loaded)

	resp = postJSON(t, fmt.Sprintf("%s/contexts/%s/call", srv.URL, ctxID), callRequest{
		Handle: loaded.Handle,
		Fn:     "greet",
		Args:   []json.RawMessage{json.RawMessage(`"there"`)},
	})
	var called callResponse
	json.NewDecoder(resp.Body).Decode(&called)
	if string(called.Result) != `"hi there"` {
		t.Errorf("result = %s", called.Result)
	}
}

func TestServerScriptErrorReported(t *testing.T) {
	srv, _ := newTestServerMux(t)
	ctxID := createContext(t, srv)

	resp := postJSON(t, fmt.Sprintf("%s/contexts/%s/modules", srv.URL, ctxID), loadRequest{
		Name:   "boom.js",
		Source: `export default function() { throw new Error("nope"); }`,
	})
	var loaded loadResponse
	json.NewDecoder(resp.Body).Decode(&loaded)

	resp = postJSON(t, fmt.Sprintf("%s/contexts/%s/call", srv.URL, ctxID), callRequest{
		Handle: loaded.Handle,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("call: status %d", resp.StatusCode)
	}
	var called callResponse
	json.NewDecoder(resp.Body).Decode(&called)
	if called.Error == "" {
		t.Error("script error should be reported in the response")
	}
}

func TestServerBadLoad(t *testing.T) {
	srv, _ := newTestServerMux(t)
	ctxID := createContext(t, srv)

	// Inline source without a name
	resp := postJSON(t, fmt.Sprintf("%s/contexts/%s/modules", srv.URL, ctxID), loadRequest{
		Source: `export default () => 1`,
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("nameless inline load: status %d, want 400", resp.StatusCode)
	}

	// Broken source
	resp = postJSON(t, fmt.Sprintf("%s/contexts/%s/modules", srv.URL, ctxID), loadRequest{
		Name:   "bad.js",
		Source: `export default function( {`,
	})
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("parse failure: status %d, want 422", resp.StatusCode)
	}
}

func TestServerUnknownContextAndHandle(t *testing.T) {
	srv, _ := newTestServerMux(t)

	resp := postJSON(t, srv.URL+"/contexts/nope/call", callRequest{Handle: "x"})
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown context: status %d, want 404", resp.StatusCode)
	}

	ctxID := createContext(t, srv)
	resp = postJSON(t, fmt.Sprintf("%s/contexts/%s/call", srv.URL, ctxID), callRequest{Handle: "bogus"})
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown handle: status %d, want 404", resp.StatusCode)
	}
}

func TestServerContextsAreIsolated(t *testing.T) {
	srv, _ := newTestServerMux(t)
	ctx1 := createContext(t, srv)
	ctx2 := createContext(t, srv)

	resp := postJSON(t, fmt.Sprintf("%s/contexts/%s/modules", srv.URL, ctx1), loadRequest{
		Name:   "m.js",
		Source: `export default () => 1`,
	})
	var loaded loadResponse
	json.NewDecoder(resp.Body).Decode(&loaded)

	// A handle from one context is meaningless in another.
	resp = postJSON(t, fmt.Sprintf("%s/contexts/%s/call", srv.URL, ctx2), callRequest{
		Handle: loaded.Handle,
	})
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("foreign handle: status %d, want 404", resp.StatusCode)
	}
}

func TestServerDeleteContext(t *testing.T) {
	srv, cm := newTestServerMux(t)
	ctxID := createContext(t, srv)

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/contexts/"+ctxID, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("delete: status %d, want 204", resp.StatusCode)
	}
	if _, ok := cm.get(ctxID); ok {
		t.Error("context should be gone after delete")
	}

	req, _ = http.NewRequest(http.MethodDelete, srv.URL+"/contexts/"+ctxID, nil)
	resp, _ = http.DefaultClient.Do(req)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("double delete: status %d, want 404", resp.StatusCode)
	}
}
