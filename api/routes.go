package api

import (
	"net/http"
	"strings"

	"github.com/meme-cmd/memexp2000/telemetry"
)

// registerRoutes binds every endpoint onto the mux. Resources are
// addressed with query parameters rather than path segments.
func registerRoutes(mux *http.ServeMux, h *Handlers) {
	mux.HandleFunc("/health", byMethod(map[string]http.HandlerFunc{
		http.MethodGet: h.Health,
	}))
	mux.Handle("/metrics", telemetry.Handler())

	mux.HandleFunc("/api/v1/payments/verify", byMethod(map[string]http.HandlerFunc{
		http.MethodPost: h.VerifyPayment,
	}))
	mux.HandleFunc("/api/v1/payments/status", byMethod(map[string]http.HandlerFunc{
		http.MethodGet: h.PaymentStatus,
	}))
	mux.HandleFunc("/api/v1/payments/agent", byMethod(map[string]http.HandlerFunc{
		http.MethodGet: h.AgentPaymentStatus,
	}))

	mux.HandleFunc("/api/v1/agents", byMethod(map[string]http.HandlerFunc{
		http.MethodPost: h.CreateAgent,
		http.MethodGet:  h.ListAgents,
	}))
	mux.HandleFunc("/api/v1/agent", byMethod(map[string]http.HandlerFunc{
		http.MethodGet: h.GetAgent,
	}))
	mux.HandleFunc("/api/v1/agent/message", byMethod(map[string]http.HandlerFunc{
		http.MethodPost: h.AgentMessage,
	}))
	mux.HandleFunc("/api/v1/agent/messages", byMethod(map[string]http.HandlerFunc{
		http.MethodGet: h.AgentMessages,
	}))

	mux.HandleFunc("/api/v1/backrooms", byMethod(map[string]http.HandlerFunc{
		http.MethodPost: h.CreateBackroom,
		http.MethodGet:  h.ListBackrooms,
	}))
	mux.HandleFunc("/api/v1/backroom", byMethod(map[string]http.HandlerFunc{
		http.MethodGet: h.GetBackroom,
	}))
	mux.HandleFunc("/api/v1/backroom/start", byMethod(map[string]http.HandlerFunc{
		http.MethodPost: h.StartBackroom,
	}))
	mux.HandleFunc("/api/v1/backroom/message", byMethod(map[string]http.HandlerFunc{
		http.MethodPost: h.BackroomMessage,
	}))
	mux.HandleFunc("/api/v1/backroom/next-message", byMethod(map[string]http.HandlerFunc{
		http.MethodPost: h.BackroomNextMessage,
	}))
	mux.HandleFunc("/api/v1/backroom/launch-token", byMethod(map[string]http.HandlerFunc{
		http.MethodPost: h.LaunchToken,
	}))
	mux.HandleFunc("/api/v1/backroom/token-result", byMethod(map[string]http.HandlerFunc{
		http.MethodPost: h.TokenResult,
	}))

	mux.HandleFunc("/api/v1/profile", h.Profile)
}

func byMethod(handlers map[string]http.HandlerFunc) http.HandlerFunc {
	allowed := make([]string, 0, len(handlers))
	for method := range handlers {
		allowed = append(allowed, method)
	}
	allow := strings.Join(allowed, ", ")

	return func(w http.ResponseWriter, r *http.Request) {
		handler, ok := handlers[r.Method]
		if !ok {
			w.Header().Set("Allow", allow)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		handler(w, r)
	}
}
