package main

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/modra-dev/modra/codec"
	"github.com/modra-dev/modra/engine"
	"github.com/modra-dev/modra/registry"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start HTTP server for module execution",
	Long: `Start an HTTP server that provides REST endpoints for loading and
calling script modules.

Endpoints:
  POST   /contexts                 Create context, returns {"context_id":"..."}
  POST   /contexts/{id}/modules    Load module, returns {"handle":"..."}
  POST   /contexts/{id}/call       Call an exported function
  DELETE /contexts/{id}            Close context
  GET    /health                   Health check

Every context created through the API shares the sandbox policy given on
the command line.`,
	Run: runServe,
}

func init() {
	serveCmd.Flags().IntP("port", "p", 8080, "Port to listen on")
	addSessionFlags(serveCmd)
	rootCmd.AddCommand(serveCmd)
}

type contextManager struct {
	contexts map[string]*serverContext
	mu       sync.RWMutex
	ttl      time.Duration
}

type serverContext struct {
	rt       *engine.Runtime
	lastUsed time.Time
}

func newContextManager(ttl time.Duration) *contextManager {
	cm := &contextManager{
		contexts: make(map[string]*serverContext),
		ttl:      ttl,
	}
	go cm.cleanup()
	return cm
}

func (cm *contextManager) create(rt *engine.Runtime) string {
	id := generateContextID()
	cm.mu.Lock()
	cm.contexts[id] = &serverContext{rt: rt, lastUsed: time.Now()}
	cm.mu.Unlock()
	return id
}

func (cm *contextManager) get(id string) (*engine.Runtime, bool) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	sc, ok := cm.contexts[id]
	if !ok {
		return nil, false
	}
	sc.lastUsed = time.Now()
	return sc.rt, true
}

func (cm *contextManager) close(id string) bool {
	cm.mu.Lock()
	sc, ok := cm.contexts[id]
	if ok {
		sc.rt.Close()
		delete(cm.contexts, id)
	}
	cm.mu.Unlock()
	return ok
}

func (cm *contextManager) cleanup() {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		cm.mu.Lock()
		now := time.Now()
		for id, sc := range cm.contexts {
			if now.Sub(sc.lastUsed) > cm.ttl {
				sc.rt.Close()
				delete(cm.contexts, id)
			}
		}
		cm.mu.Unlock()
	}
}

func (cm *contextManager) closeAll() {
	cm.mu.Lock()
	for id, sc := range cm.contexts {
		sc.rt.Close()
		delete(cm.contexts, id)
	}
	cm.mu.Unlock()
}

func generateContextID() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return fmt.Sprintf("%x", b)
}

type createContextResponse struct {
	ContextID string `json:"context_id"`
}

type loadRequest struct {
	Path   string `json:"path,omitempty"`
	Name   string `json:"name,omitempty"`
	Source string `json:"source,omitempty"`
}

type loadResponse struct {
	Handle string `json:"handle"`
}

type callRequest struct {
	Handle string            `json:"handle"`
	Fn     string            `json:"fn,omitempty"`
	Args   []json.RawMessage `json:"args,omitempty"`
}

type callResponse struct {
	Result     json.RawMessage `json:"result,omitempty"`
	DurationMs int64           `json:"duration_ms"`
	Error      string          `json:"error,omitempty"`
}

func newServeMux(cm *contextManager, newRuntime func() (*engine.Runtime, error)) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/contexts", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		rt, err := newRuntime()
		if err != nil {
			http.Error(w, fmt.Sprintf("failed to create context: %v", err), http.StatusInternalServerError)
			return
		}
		id := cm.create(rt)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(createContextResponse{ContextID: id})
	})

	mux.HandleFunc("/contexts/", func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimPrefix(r.URL.Path, "/contexts/")
		parts := strings.SplitN(path, "/", 2)
		contextID := parts[0]
		if contextID == "" {
			http.Error(w, "context_id required", http.StatusBadRequest)
			return
		}

		if r.Method == http.MethodDelete {
			if cm.close(contextID) {
				w.WriteHeader(http.StatusNoContent)
			} else {
				http.Error(w, "context not found", http.StatusNotFound)
			}
			return
		}

		if r.Method != http.MethodPost || len(parts) != 2 {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		rt, ok := cm.get(contextID)
		if !ok {
			http.Error(w, "context not found", http.StatusNotFound)
			return
		}

		switch parts[1] {
		case "modules":
			handleLoad(w, r, rt)
		case "call":
			handleCall(w, r, rt)
		default:
			http.Error(w, "not found", http.StatusNotFound)
		}
	})

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	return mux
}

func handleLoad(w http.ResponseWriter, r *http.Request, rt *engine.Runtime) {
	var req loadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	var src registry.Source
	switch {
	case req.Source != "":
		name := req.Name
		if name == "" {
			http.Error(w, "name required for inline source", http.StatusBadRequest)
			return
		}
		src = registry.Inline(name, req.Source)
	case req.Path != "":
		src = registry.File(req.Path)
	default:
		http.Error(w, "path or source required", http.StatusBadRequest)
		return
	}

	handle, err := rt.LoadModule(src)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(loadResponse{Handle: handle.String()})
}

func handleCall(w http.ResponseWriter, r *http.Request, rt *engine.Runtime) {
	var req callRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.Handle == "" {
		http.Error(w, "handle required", http.StatusBadRequest)
		return
	}
	handle, ok := rt.HandleFor(req.Handle)
	if !ok {
		http.Error(w, "unknown handle", http.StatusNotFound)
		return
	}

	args := make([]codec.Value, 0, len(req.Args))
	for _, raw := range req.Args {
		var tree any
		if err := json.Unmarshal(raw, &tree); err != nil {
			http.Error(w, "invalid argument json", http.StatusBadRequest)
			return
		}
		v, err := codec.Encode(tree)
		if err != nil {
			http.Error(w, fmt.Sprintf("invalid argument: %v", err), http.StatusBadRequest)
			return
		}
		args = append(args, v)
	}

	start := time.Now()
	var result codec.Value
	var callErr error
	if req.Fn != "" {
		result, callErr = rt.Call(handle, req.Fn, args...)
	} else {
		result, callErr = rt.CallEntrypoint(handle, args...)
	}
	duration := time.Since(start)

	resp := callResponse{DurationMs: duration.Milliseconds()}
	if callErr != nil {
		resp.Error = callErr.Error()
	} else if !result.IsUndefined() {
		if encoded, err := json.Marshal(result); err == nil {
			resp.Result = encoded
		}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func runServe(cmd *cobra.Command, args []string) {
	port, _ := cmd.Flags().GetInt("port")

	policy, err := buildPolicy(cmd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	opts := buildOptions(cmd)

	contexts := newContextManager(15 * time.Minute)
	defer contexts.closeAll()

	mux := newServeMux(contexts, func() (*engine.Runtime, error) {
		return engine.New(policy, opts...)
	})

	addr := fmt.Sprintf(":%d", port)
	fmt.Fprintf(os.Stderr, "modra server listening on %s\n", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
