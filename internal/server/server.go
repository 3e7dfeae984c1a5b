// Package server wires the hub's services behind one chi router.
package server

import (
	"context"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/strefethen/dlna-hub-go/internal/api"
	"github.com/strefethen/dlna-hub-go/internal/config"
	"github.com/strefethen/dlna-hub-go/internal/db"
	"github.com/strefethen/dlna-hub-go/internal/discovery"
	"github.com/strefethen/dlna-hub-go/internal/mediaserver"
	"github.com/strefethen/dlna-hub-go/internal/playsession"
	"github.com/strefethen/dlna-hub-go/internal/profile"
	"github.com/strefethen/dlna-hub-go/internal/registry"
	"github.com/strefethen/dlna-hub-go/internal/upnp/soap"
)

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

// requestLoggerMiddleware logs all incoming HTTP requests. It runs inside
// RequestIDMiddleware so the line carries the request id.
func requestLoggerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		log.Printf("%s %s %d %s rid=%s", r.Method, r.URL.Path, wrapped.status,
			time.Since(start).Round(time.Millisecond), api.RequestIDFrom(r.Context()))
	})
}

// Options controls server wiring.
type Options struct {
	DisableDiscovery bool
}

// NewHandler builds the HTTP handler and returns a shutdown function.
func NewHandler(cfg config.Config, options Options) (http.Handler, func(context.Context) error, error) {
	log.Printf("Using database: %s", cfg.SQLiteDBPath)
	dbPair, err := db.Init(cfg.SQLiteDBPath)
	if err != nil {
		return nil, nil, err
	}

	router := chi.NewRouter()
	router.Use(middleware.StripSlashes)
	router.Use(api.RequestIDMiddleware)
	router.Use(requestLoggerMiddleware)
	router.Use(api.RecovererMiddleware)

	registerHealthRoutes(router)

	profiles, err := profile.NewRepository(dbPair, nil)
	if err != nil {
		dbPair.Close()
		return nil, nil, err
	}
	registerProfileRoutes(router, profiles)

	hub := playsession.NewHub(nil)
	manager := playsession.NewManager(hub, nil, cfg.EnablePlayToDebug)
	router.HandleFunc("/v1/sessions/ws", hub.HandleWS)

	soapClient := soap.NewClient(
		time.Duration(cfg.CommunicationTimeoutMs)*time.Millisecond,
		cfg.UserAgent, cfg.FriendlyName)

	source := mediaserver.NewClient(cfg.MediaServerURL, cfg.MediaServerAPIKey,
		time.Duration(cfg.CommunicationTimeoutMs)*time.Millisecond, nil)

	serverURL := cfg.ServerURL
	if serverURL == "" {
		serverURL = guessServerURL(cfg.Port)
	}

	reg := registry.NewRegistry(soapClient, profiles, manager, source, registry.Options{
		ServerURL:          serverURL,
		MediaServerURL:     cfg.MediaServerURL,
		APIKey:             cfg.MediaServerAPIKey,
		QueueInterval:      time.Duration(cfg.QueueProcessingIntervalMs) * time.Millisecond,
		PollInterval:       time.Duration(cfg.DevicePollingIntervalMs) * time.Millisecond,
		PhotoInterval:      time.Duration(cfg.PhotoTransitionTimeoutSec) * time.Second,
		MaxResumePct:       cfg.MaxResumePct,
		AutoCreateProfiles: cfg.AutoCreateProfiles,
		Debug:              cfg.EnablePlayToDebug,
	})
	registerSessionRoutes(router, reg, manager)
	registerEventingRoutes(router, reg)

	var disco *discovery.Service
	if !options.DisableDiscovery {
		portLow, portHigh, err := config.ParsePortRange(cfg.UDPPortRange)
		if err != nil {
			// Load already validated the range; a bad value here means the
			// config was built by hand, so fall back to ephemeral ports.
			log.Printf("DISCOVERY: ignoring UDP port range %q: %v", cfg.UDPPortRange, err)
			portLow, portHigh = 0, 0
		}
		disco = discovery.NewService(discovery.Options{
			InitialInterval:  time.Duration(cfg.ClientDiscoveryInitialIntervalSec) * time.Second,
			Interval:         time.Duration(cfg.ClientDiscoveryIntervalSec) * time.Second,
			Disable:          cfg.DisableDiscovery,
			StaticDeviceURLs: cfg.StaticDeviceURLs,
			UDPPortLow:       portLow,
			UDPPortHigh:      portHigh,
			TraceSSDP:        cfg.EnableSSDPTracing,
			TraceFilter:      cfg.SSDPTracingFilter,
		}, func(location, usn string) {
			go reg.OnDeviceLocation(location, usn)
		}, reg.OnByeBye)
	}

	shutdown := func(context.Context) error {
		if disco != nil {
			disco.Stop()
		}
		reg.Close()
		hub.Close()
		source.Close()
		profiles.Close()
		return dbPair.Close()
	}

	if disco != nil {
		if err := disco.Start(context.Background()); err != nil {
			shutdown(context.Background())
			return nil, nil, err
		}
	}

	return router, shutdown, nil
}

func registerHealthRoutes(router chi.Router) {
	router.Method(http.MethodGet, "/v1/health", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		response := map[string]any{
			"status":    "healthy",
			"service":   "dlna-hub",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		}
		return api.WriteJSON(w, http.StatusOK, response)
	}))
	router.Method(http.MethodGet, "/v1/health/live", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		return api.WriteJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	}))
	router.Method(http.MethodGet, "/v1/health/ready", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		return api.WriteJSON(w, http.StatusOK, map[string]any{"status": "ready"})
	}))
}

// guessServerURL derives the hub's reachable base URL from the default route.
func guessServerURL(port string) string {
	conn, err := net.Dial("udp4", "8.8.8.8:80")
	if err != nil {
		return "http://127.0.0.1:" + port
	}
	defer conn.Close()
	host, _, err := net.SplitHostPort(conn.LocalAddr().String())
	if err != nil {
		return "http://127.0.0.1:" + port
	}
	return "http://" + host + ":" + port
}
