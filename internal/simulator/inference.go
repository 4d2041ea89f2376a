package simulator

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
)

// service is a simulated inference server. Its HTTP endpoint is real so
// health checks exercise the network path.
type service struct {
	id        string
	model     string
	backend   string
	port      int
	readyAt   time.Time
	unhealthy bool
	now       func() time.Time
	server    *http.Server
}

func (s *service) ready() bool {
	return !s.unhealthy && !s.now().Before(s.readyAt)
}

func (s *service) router() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.requireReady)
	r.HandleFunc("/", s.handleRoot).Methods(http.MethodGet)
	r.HandleFunc("/health", s.handleRoot).Methods(http.MethodGet)
	r.HandleFunc("/v1/models", s.handleModels).Methods(http.MethodGet)
	r.HandleFunc("/v1/chat/completions", s.handleChat).Methods(http.MethodPost)
	r.HandleFunc("/inference", s.handleTranscription).Methods(http.MethodPost)
	return r
}

func (s *service) requireReady(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.ready() {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "loading model"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *service) handleRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "backend": s.backend})
}

func (s *service) handleModels(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"object": "list",
		"data":   []map[string]string{{"id": s.model, "object": "model"}},
	})
}

func (s *service) handleChat(w http.ResponseWriter, _ *http.Request) {
	if s.backend != "llama-cpp" {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "chat completions not supported by " + s.backend})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"object": "chat.completion",
		"model":  s.model,
		"choices": []map[string]interface{}{{
			"index":         0,
			"finish_reason": "stop",
			"message":       map[string]string{"role": "assistant", "content": "Hello from the simulated lab."},
		}},
	})
}

func (s *service) handleTranscription(w http.ResponseWriter, _ *http.Request) {
	if s.backend != "whisper-cpp" {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "transcription not supported by " + s.backend})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"text": "simulated transcription"})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
