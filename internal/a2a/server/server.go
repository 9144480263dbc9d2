package server

import (
	"net"
	"net/http"
	"strings"

	"github.com/KafClaw/KafClaw/internal/a2a/collab"
	"github.com/KafClaw/KafClaw/internal/a2a/convstore"
	"github.com/KafClaw/KafClaw/internal/a2a/credentials"
	"github.com/KafClaw/KafClaw/internal/a2a/logstore"
	"github.com/KafClaw/KafClaw/internal/a2a/notify"
	"github.com/KafClaw/KafClaw/internal/a2a/ratelimit"
	"github.com/KafClaw/KafClaw/internal/a2a/watchdog"
	"github.com/google/uuid"
)

// Server is the call lifecycle HTTP service tying every component
// together. It holds no HTTP state itself beyond what's needed to
// route requests; all durable state lives in the wrapped stores.
type Server struct {
	Credentials   *credentials.Store
	RateLimits    ratelimit.Limits
	Limiter       *ratelimit.Limiter
	Conversations *convstore.Store
	Collab        *collab.Engine
	Watchdog      *watchdog.Watchdog
	Notifier      *notify.Dispatcher
	Log           *logstore.Logger
	ReplyProducer ReplyProducer
	TierProvider  credentials.TierDefaultsProvider
	Summarizer    convstore.Summarizer
	OwnerContext  string

	AdminToken string
	Version    string
}

// Config bundles the constructor inputs for New.
type Config struct {
	Credentials   *credentials.Store
	RateLimits    ratelimit.Limits
	Limiter       *ratelimit.Limiter
	Conversations *convstore.Store
	Watchdog      *watchdog.Watchdog
	Notifier      *notify.Dispatcher
	Log           *logstore.Logger
	ReplyProducer ReplyProducer
	TierProvider  credentials.TierDefaultsProvider
	Summarizer    convstore.Summarizer
	OwnerContext  string
	CollabOptions collab.Options
	AdminToken    string
	Version       string
}

// New wires a Server together, including the collab engine's durable
// persister adapter over Conversations.
func New(cfg Config) *Server {
	engine := collab.NewEngine(newCollabPersister(cfg.Conversations), cfg.CollabOptions)
	limits := cfg.RateLimits
	if limits == (ratelimit.Limits{}) {
		limits = ratelimit.DefaultLimits
	}
	return &Server{
		Credentials:   cfg.Credentials,
		RateLimits:    limits,
		Limiter:       cfg.Limiter,
		Conversations: cfg.Conversations,
		Collab:        engine,
		Watchdog:      cfg.Watchdog,
		Notifier:      cfg.Notifier,
		Log:           cfg.Log,
		ReplyProducer: cfg.ReplyProducer,
		TierProvider:  cfg.TierProvider,
		Summarizer:    cfg.Summarizer,
		OwnerContext:  cfg.OwnerContext,
		AdminToken:    cfg.AdminToken,
		Version:       cfg.Version,
	}
}

// Mux builds the routed http.Handler for this server, mirroring
// cmd/channelbridge's http.NewServeMux + mux.HandleFunc wiring.
func (s *Server) Mux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/a2a/ping", s.handlePing)
	mux.HandleFunc("/api/a2a/status", s.handleStatus)
	mux.HandleFunc("/api/a2a/invoke", s.handleInvoke)
	mux.HandleFunc("/api/a2a/end", s.handleEnd)
	mux.HandleFunc("/api/a2a/conversations", s.handleListConversations)
	mux.HandleFunc("/api/a2a/conversations/", s.handleGetConversation)
	return mux
}

// traceIDFromRequest reads x-trace-id (trimmed, capped), generating a
// fresh one if absent or oversized.
func traceIDFromRequest(r *http.Request) string {
	id := strings.TrimSpace(r.Header.Get("x-trace-id"))
	if id != "" && len(id) <= maxTraceIDLength {
		return id
	}
	return newTraceID()
}

// newTraceID mints a fresh trace id when the caller didn't supply one,
// using uuid.New() the way the teacher's internal/agent task ids are
// generated.
func newTraceID() string {
	return "trace_" + uuid.New().String()
}

// isLoopback reports whether r originates from a loopback address,
// per spec §4.5's admin-endpoint authorization rule.
func isLoopback(r *http.Request) bool {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// rejectIfNotAdmin enforces loopback-or-admin-token on dashboard routes.
// Returns true and writes a 401 if the request is not authorized.
func (s *Server) rejectIfNotAdmin(w http.ResponseWriter, r *http.Request) bool {
	if isLoopback(r) {
		return false
	}
	if s.AdminToken != "" && r.Header.Get("x-admin-token") == s.AdminToken {
		return false
	}
	writeError(w, traceIDFromRequest(r), http.StatusUnauthorized, "unauthorized", "admin access requires loopback origin or x-admin-token")
	return true
}
