package httpserver

import (
	"net/http"
	"sort"
	"strings"

	"stsemulator/backend/services/sts-emulator/internal/http/handlers"
	"stsemulator/backend/services/sts-emulator/internal/http/middleware"
)

// RouterDeps collects handler dependencies.
type RouterDeps struct {
	AuthHandlers      *handlers.AuthHandlers
	ConfigHandlers    *handlers.ConfigHandlers
	TallyHandlers     *handlers.TallyHandlers
	InjectionHandlers *handlers.InjectionHandlers
	ServerHandlers    *handlers.ServerHandlers
	EventsHandler     http.HandlerFunc
	HealthHandler     http.HandlerFunc
}

// NewRouter wires control API routes with middleware.
func NewRouter(deps RouterDeps, authMiddleware func(http.Handler) http.Handler) http.Handler {
	mux := http.NewServeMux()

	mux.Handle("/health", method(http.MethodGet, deps.HealthHandler))
	mux.Handle("/api/auth/login", method(http.MethodPost, http.HandlerFunc(deps.AuthHandlers.Login)))

	authenticated := func(expected string, handler http.HandlerFunc) http.Handler {
		return method(expected, middleware.Chain(handler, authMiddleware))
	}

	mux.Handle("/api/config", authenticated(http.MethodGet, deps.ConfigHandlers.Get))
	mux.Handle("/api/config/port", authenticated(http.MethodPut, deps.ConfigHandlers.SetPort))
	mux.Handle("/api/config/model", authenticated(http.MethodPut, deps.ConfigHandlers.SetModel))
	mux.Handle("/api/config/credentials", authenticated(http.MethodPut, deps.ConfigHandlers.SetCredentials))

	mux.Handle("/api/channels", authenticated(http.MethodGet, deps.TallyHandlers.Channels))
	mux.Handle("/api/channels/reset", authenticated(http.MethodPost, deps.TallyHandlers.ResetChannels))
	mux.Handle("/api/channels/{channel}", authenticated(http.MethodPut, deps.TallyHandlers.SetChannel))
	mux.Handle("/api/cycle", authenticated(http.MethodPut, deps.TallyHandlers.SetCycle))

	clients := map[string]http.Handler{
		http.MethodGet:    middleware.Chain(http.HandlerFunc(deps.TallyHandlers.Clients), authMiddleware),
		http.MethodDelete: middleware.Chain(http.HandlerFunc(deps.TallyHandlers.ClearClients), authMiddleware),
	}
	mux.Handle("/api/clients", methods(clients))
	mux.Handle("/api/clients/mode", authenticated(http.MethodPut, deps.TallyHandlers.SetClientMode))
	mux.Handle("/api/clients/{address}", authenticated(http.MethodPut, deps.TallyHandlers.SetClient))

	injection := map[string]http.Handler{
		http.MethodGet: middleware.Chain(http.HandlerFunc(deps.InjectionHandlers.Get), authMiddleware),
		http.MethodPut: middleware.Chain(http.HandlerFunc(deps.InjectionHandlers.Set), authMiddleware),
	}
	mux.Handle("/api/injection", methods(injection))
	mux.Handle("/api/injection/ignore/arm", authenticated(http.MethodPost, deps.InjectionHandlers.Arm))
	mux.Handle("/api/injection/ignore/disarm", authenticated(http.MethodPost, deps.InjectionHandlers.Disarm))
	mux.Handle("/api/injection/reset", authenticated(http.MethodPost, deps.InjectionHandlers.Reset))

	mux.Handle("/api/server/start", authenticated(http.MethodPost, deps.ServerHandlers.Start))
	mux.Handle("/api/server/stop", authenticated(http.MethodPost, deps.ServerHandlers.Stop))
	mux.Handle("/api/stats", authenticated(http.MethodGet, deps.ServerHandlers.Stats))
	mux.Handle("/api/state", authenticated(http.MethodGet, deps.ServerHandlers.State))

	mux.Handle("/api/events", authenticated(http.MethodGet, deps.EventsHandler))

	return mux
}

func method(expected string, handler http.Handler) http.Handler {
	return methods(map[string]http.Handler{expected: handler})
}

func methods(byMethod map[string]http.Handler) http.Handler {
	allowed := make([]string, 0, len(byMethod))
	for m := range byMethod {
		allowed = append(allowed, m)
	}
	sort.Strings(allowed)
	allow := strings.Join(allowed, ", ")

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handler, ok := byMethod[r.Method]
		if !ok {
			w.Header().Set("Allow", allow)
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		handler.ServeHTTP(w, r)
	})
}
