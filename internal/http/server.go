package httpapi

import (
	"errors"
	"log/slog"
	"net/http"
	"net/netip"
	"sync/atomic"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/rocket-deliveries/internal/config"
	"github.com/example/rocket-deliveries/internal/dispatch"
	"github.com/example/rocket-deliveries/internal/payments"
	"github.com/example/rocket-deliveries/internal/pilots"
	"github.com/example/rocket-deliveries/internal/session"
)

// Options wires the server's collaborators. Limiter and WSReg are optional.
type Options struct {
	Config   config.ServerConfig
	Pilots   *pilots.Service
	Platform payments.Platform
	Sessions *session.Manager
	WSReg    *dispatch.WSRegistry
	Limiter  *RateLimiter
	Logger   *slog.Logger
}

type Server struct {
	cfg      config.ServerConfig
	pilots   *pilots.Service
	platform payments.Platform
	sessions *session.Manager
	wsreg    *dispatch.WSRegistry
	limiter  *RateLimiter
	views    *views
	logger   *slog.Logger
	upgrader websocket.Upgrader

	webhookSecret  atomic.Pointer[string]
	trustedProxies []netip.Prefix

	mux *mux.Router
}

func NewServer(opts Options) (*Server, error) {
	if opts.Pilots == nil || opts.Platform == nil || opts.Sessions == nil {
		return nil, errors.New("httpapi: pilots, platform and sessions are required")
	}
	trusted, err := opts.Config.TrustedProxyPrefixes()
	if err != nil {
		return nil, err
	}
	v, err := loadViews()
	if err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	wsreg := opts.WSReg
	if wsreg == nil {
		wsreg = dispatch.NewWSRegistry(logger)
	}
	limiter := opts.Limiter
	if limiter == nil {
		limiter = NewRateLimiter(nil, opts.Config.LoginRateLimit, logger)
	}
	s := &Server{
		cfg:      opts.Config,
		pilots:   opts.Pilots,
		platform: opts.Platform,
		sessions: opts.Sessions,
		wsreg:    wsreg,
		limiter:  limiter,
		views:    v,
		logger:   logger,
		mux:      mux.NewRouter(),

		trustedProxies: trusted,
	}
	s.SetWebhookSecret(opts.Config.StripeWebhookSecret)
	s.registerMiddleware()
	s.routes()
	return s, nil
}

// SetWebhookSecret replaces the secret used to verify webhook signatures.
func (s *Server) SetWebhookSecret(secret string) {
	s.webhookSecret.Store(&secret)
}

func (s *Server) WebhookSecret() string {
	if p := s.webhookSecret.Load(); p != nil {
		return *p
	}
	return ""
}

func (s *Server) routes() {
	s.mux.HandleFunc("/", s.handleIndex).Methods(http.MethodGet)
	s.mux.HandleFunc("/_ah/health", s.handleHealth).Methods(http.MethodGet)
	s.mux.Handle("/metrics", promhttp.Handler())

	p := s.mux.PathPrefix("/pilots").Subrouter()
	p.HandleFunc("/signup", s.handleSignupPage).Methods(http.MethodGet)
	p.Handle("/signup", s.limiter.Middleware(http.HandlerFunc(s.handleSignup))).Methods(http.MethodPost)
	p.HandleFunc("/login", s.handleLoginPage).Methods(http.MethodGet)
	p.Handle("/login", s.limiter.Middleware(http.HandlerFunc(s.handleLogin))).Methods(http.MethodPost)
	p.HandleFunc("/logout", s.handleLogout).Methods(http.MethodGet)
	p.HandleFunc("/dashboard", s.pilotRequired(s.handleDashboard)).Methods(http.MethodGet)
	p.HandleFunc("/verified", s.pilotRequired(s.handleVerified)).Methods(http.MethodGet)
	p.HandleFunc("/rides", s.pilotRequired(s.handleRide)).Methods(http.MethodPost)
	p.HandleFunc("/financings/{id}/delivered", s.pilotRequired(s.handleFinancingDelivered)).Methods(http.MethodPost)
	p.HandleFunc("/ws", s.pilotRequired(s.handleWS)).Methods(http.MethodGet)

	p.HandleFunc("/stripe/verify", s.pilotRequired(s.handleStripeVerify)).Methods(http.MethodGet)
	p.HandleFunc("/stripe/webhooks", s.handleStripeWebhook).Methods(http.MethodPost)
	p.HandleFunc("/stripe/payout", s.pilotRequired(s.handleStripePayout)).Methods(http.MethodPost)

	api := s.mux.PathPrefix("/api").Subrouter()
	api.HandleFunc("/settings", s.handleAPISettings).Methods(http.MethodGet)
	api.HandleFunc("/passengers", s.handleAPIPassengers).Methods(http.MethodGet)
	api.HandleFunc("/rides", s.handleAPIRides).Methods(http.MethodGet)

	s.mux.NotFoundHandler = s.sessionMiddleware(http.HandlerFunc(s.handleNotFound))
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }
