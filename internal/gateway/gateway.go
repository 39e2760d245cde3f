// ABOUTME: Gateway orchestrator that wires the voice agent and runs its servers
// ABOUTME: Owns the HTTP and gRPC health servers, the session store and optional tsnet node

package gateway

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"tailscale.com/ipn/ipnstate"
	"tailscale.com/tsnet"

	"github.com/2389/coven-voice/internal/auth"
	"github.com/2389/coven-voice/internal/config"
	"github.com/2389/coven-voice/internal/conversation"
	"github.com/2389/coven-voice/internal/dedupe"
	"github.com/2389/coven-voice/internal/llm"
	"github.com/2389/coven-voice/internal/prompts"
	"github.com/2389/coven-voice/internal/stages"
	"github.com/2389/coven-voice/internal/store"
	"github.com/2389/coven-voice/internal/supervisor"
	"github.com/2389/coven-voice/internal/twilio"
)

// HealthService is the gRPC health service name reported alongside "".
const HealthService = "coven.voice.Conversation"

const shutdownTimeout = 5 * time.Second

// Gateway runs the voice agent: webhooks, relay socket, admin API and health.
type Gateway struct {
	config       *config.Config
	store        store.Store
	conversation *conversation.Service
	events       *conversation.EventBroadcaster
	dedupe       *dedupe.Cache
	twilio       *twilio.Client
	grpcServer   *grpc.Server
	health       *health.Server
	httpServer   *http.Server
	tsnetServer  *tsnet.Server
	logger       *slog.Logger

	mu        sync.RWMutex
	publicURL string
}

// Option customizes New.
type Option func(*options)

type options struct {
	model llm.Client
	store store.Store
}

// WithModelClient uses client instead of building one from model config.
func WithModelClient(client llm.Client) Option {
	return func(o *options) { o.model = client }
}

// WithStore uses s instead of opening sessions.backend. The gateway closes
// it on shutdown.
func WithStore(s store.Store) Option {
	return func(o *options) { o.store = s }
}

// newSupervisor builds the router selected by supervisor.mode.
func newSupervisor(cfg *config.Config, client llm.Client, logger *slog.Logger) supervisor.Supervisor {
	policy := supervisor.Policy{MaxTurns: cfg.Conversation.MaxTurns}
	if cfg.Supervisor.Mode == config.SupervisorRules {
		logger.Info("using rule-based supervisor")
		return supervisor.NewRules(policy)
	}
	return supervisor.NewModel(client, policy, logger)
}

// newGRPCServer creates a gRPC server carrying only the standard health service.
func newGRPCServer(hs *health.Server) *grpc.Server {
	server := grpc.NewServer(
		grpc.KeepaliveParams(keepalive.ServerParameters{
			Time:    15 * time.Second,
			Timeout: 5 * time.Second,
		}),
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             5 * time.Second,
			PermitWithoutStream: true,
		}),
	)
	healthpb.RegisterHealthServer(server, hs)
	return server
}

// New creates a Gateway from cfg. Nothing listens until Run.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) (*Gateway, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	model := o.model
	if model == nil {
		if cfg.Model.APIKey == "" {
			logger.Warn("model.api_key is empty; stage replies will fail over to the apology line")
		}
		var err error
		model, err = llm.New(context.Background(), cfg.Model)
		if err != nil {
			return nil, fmt.Errorf("creating model client: %w", err)
		}
	}

	sessions := o.store
	if sessions == nil {
		var err error
		sessions, err = store.Open(cfg.Sessions)
		if err != nil {
			return nil, fmt.Errorf("opening session store: %w", err)
		}
	}

	var twilioClient *twilio.Client
	if cfg.TwilioEnabled() {
		c, err := twilio.NewClient(twilio.ClientConfig{
			AccountSID: cfg.Twilio.AccountSID,
			AuthToken:  cfg.Twilio.AuthToken,
			From:       cfg.Twilio.PhoneNumber,
			BaseURL:    cfg.Twilio.BaseURL,
		})
		if err != nil {
			_ = sessions.Close()
			return nil, fmt.Errorf("creating twilio client: %w", err)
		}
		twilioClient = c
	}

	events := conversation.NewEventBroadcaster(logger)
	registry := stages.NewRegistry(model, prompts.DefaultCatalog(), logger)
	convService := conversation.New(
		sessions,
		newSupervisor(cfg, model, logger),
		registry,
		events,
		conversation.Options{Greeting: cfg.Conversation.Greeting},
		logger,
	)

	hs := health.NewServer()
	gw := &Gateway{
		config:       cfg,
		store:        sessions,
		conversation: convService,
		events:       events,
		dedupe:       dedupe.New(cfg.Dedupe.TTL, cfg.Dedupe.MaxSize),
		twilio:       twilioClient,
		grpcServer:   newGRPCServer(hs),
		health:       hs,
		logger:       logger.With("component", "gateway"),
		publicURL:    strings.TrimRight(cfg.Server.PublicURL, "/"),
	}

	gw.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           gw.routes(auth.VerifierFromSecret(cfg.Auth.JWTSecret)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return gw, nil
}

// routes builds the HTTP handler tree.
func (g *Gateway) routes(verifier auth.TokenVerifier) http.Handler {
	mux := http.NewServeMux()

	// Health endpoints - no auth required
	mux.HandleFunc("GET /health", g.handleHealth)
	mux.HandleFunc("GET /health/ready", g.handleReady)

	api := http.NewServeMux()
	api.HandleFunc("GET /api/calls", g.handleListCalls)
	api.HandleFunc("POST /api/calls", g.handleCreateCall)
	api.HandleFunc("GET /api/calls/{id}", g.handleGetCall)
	api.HandleFunc("DELETE /api/calls/{id}", g.handleEndCall)
	api.HandleFunc("POST /api/calls/{id}/start", g.handleStartCall)
	api.HandleFunc("POST /api/calls/{id}/turns", g.handleTurn)
	api.HandleFunc("GET /api/calls/{id}/events", g.handleCallEvents)
	api.HandleFunc("GET /api/events", g.handleAllEvents)
	mux.Handle("/api/", auth.Middleware(verifier, g.logger)(api))

	var wrap func(http.Handler) http.Handler
	if g.config.Twilio.ValidateSignatures {
		wrap = twilio.SignatureMiddleware(g.config.Twilio.AuthToken, g.config.Server.PublicURL, g.logger)
	} else {
		g.logger.Warn("twilio signature validation disabled")
	}

	speech := twilio.Speech{Voice: g.config.Twilio.Voice, Language: g.config.Twilio.Language}
	twilio.NewWebhooks(g.conversation, twilio.WebhookConfig{
		PublicURL: g.config.Server.PublicURL,
		Speech:    speech,
		Replay:    g.dedupe,
	}, g.logger).Register(mux, wrap)

	relay := http.Handler(twilio.NewRelay(g.conversation, g.logger))
	if wrap != nil {
		relay = wrap(relay)
	}
	mux.Handle("GET "+twilio.PathRelayWS, relay)

	return mux
}

// Handler returns the HTTP handler, for tests and embedding.
func (g *Gateway) Handler() http.Handler {
	return g.httpServer.Handler
}

// Conversation returns the turn controller.
func (g *Gateway) Conversation() *conversation.Service {
	return g.conversation
}

// PublicURL is the externally reachable base URL, if known.
func (g *Gateway) PublicURL() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.publicURL
}

func (g *Gateway) setPublicURL(u string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.publicURL = u
}

// setupTCPListeners creates standard TCP listeners for gRPC and HTTP.
func (g *Gateway) setupTCPListeners() (grpcLn, httpLn net.Listener, err error) {
	g.logger.Info("starting gateway",
		"grpc_addr", g.config.Server.GRPCAddr,
		"http_addr", g.config.Server.HTTPAddr,
	)

	grpcLn, err = net.Listen("tcp", g.config.Server.GRPCAddr)
	if err != nil {
		return nil, nil, fmt.Errorf("listening on gRPC address: %w", err)
	}

	httpLn, err = net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		_ = grpcLn.Close()
		return nil, nil, fmt.Errorf("listening on HTTP address: %w", err)
	}

	return grpcLn, httpLn, nil
}

// warnIgnoredAddresses logs a warning if server addresses are configured but Tailscale is enabled.
func (g *Gateway) warnIgnoredAddresses() {
	if g.config.Server.GRPCAddr != "" || g.config.Server.HTTPAddr != "" {
		g.logger.Warn("server.grpc_addr and server.http_addr are ignored when tailscale is enabled",
			"grpc_addr", g.config.Server.GRPCAddr,
			"http_addr", g.config.Server.HTTPAddr,
		)
	}
}

// setupListeners creates listeners based on configuration (Tailscale or TCP).
func (g *Gateway) setupListeners(ctx context.Context) (grpcLn, httpLn net.Listener, err error) {
	if g.config.Tailscale.Enabled {
		g.warnIgnoredAddresses()
		return g.setupTailscaleListeners(ctx)
	}
	return g.setupTCPListeners()
}

// startServers starts gRPC and HTTP servers in goroutines, returning error channel.
func (g *Gateway) startServers(grpcLn, httpLn net.Listener) chan error {
	errCh := make(chan error, 2)

	go func() {
		g.logger.Info("gRPC health server listening", "addr", grpcLn.Addr().String())
		if err := g.grpcServer.Serve(grpcLn); err != nil {
			errCh <- fmt.Errorf("gRPC server: %w", err)
		}
	}()

	go func() {
		g.logger.Info("HTTP server listening", "addr", httpLn.Addr().String())
		if err := g.httpServer.Serve(httpLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	return errCh
}

// waitForShutdownSignal waits for context cancellation or server error.
func (g *Gateway) waitForShutdownSignal(ctx context.Context, errCh chan error) error {
	select {
	case <-ctx.Done():
		g.logger.Info("context canceled, initiating shutdown")
		return nil
	case err := <-errCh:
		g.logger.Error("server error", "error", err)
		g.drainErrors(errCh)
		return err
	}
}

// drainErrors drains any remaining errors from the channel.
func (g *Gateway) drainErrors(errCh chan error) {
	select {
	case additionalErr := <-errCh:
		g.logger.Error("additional server error", "error", additionalErr)
	default:
	}
}

// Run starts the servers and the session sweeper and blocks until ctx is
// canceled or a server fails. Returns nil on graceful shutdown.
func (g *Gateway) Run(ctx context.Context) error {
	grpcListener, httpListener, err := g.setupListeners(ctx)
	if err != nil {
		return err
	}

	sweepCtx, stopSweeper := context.WithCancel(ctx)
	defer stopSweeper()
	go store.RunSweeper(sweepCtx, g.store, g.config.Sessions.SweepInterval, g.logger)

	g.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	g.health.SetServingStatus(HealthService, healthpb.HealthCheckResponse_SERVING)

	errCh := g.startServers(grpcListener, httpListener)
	serverErr := g.waitForShutdownSignal(ctx, errCh)

	stopSweeper()
	shutdownErr := g.gracefulShutdown()

	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// gracefulShutdown runs Shutdown with a fresh context, since the run
// context is already canceled.
func (g *Gateway) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return g.Shutdown(ctx)
}

// resolveTailscaleStateDir returns the state directory, using default if not configured.
func resolveTailscaleStateDir(configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory for tailscale state (set tailscale.state_dir explicitly): %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "coven-voice", "tailscale"), nil
}

// resolveTailscaleAuthKey returns the auth key from config or environment.
func resolveTailscaleAuthKey(configured string) (string, error) {
	authKey := configured
	if authKey == "" {
		authKey = os.Getenv("TS_AUTHKEY")
	}
	if authKey == "" {
		return "", errors.New("tailscale auth key required: set auth_key in config or TS_AUTHKEY environment variable (get one at https://login.tailscale.com/admin/settings/keys)")
	}
	return authKey, nil
}

// setupTailscaleListeners creates a tsnet server and returns listeners for gRPC and HTTP.
func (g *Gateway) setupTailscaleListeners(ctx context.Context) (grpcLn, httpLn net.Listener, err error) {
	tsCfg := g.config.Tailscale

	stateDir, err := resolveTailscaleStateDir(tsCfg.StateDir)
	if err != nil {
		return nil, nil, err
	}
	if err := os.MkdirAll(stateDir, 0700); err != nil {
		return nil, nil, fmt.Errorf("creating tailscale state dir: %w", err)
	}

	authKey, err := resolveTailscaleAuthKey(tsCfg.AuthKey)
	if err != nil {
		return nil, nil, err
	}

	g.tsnetServer = &tsnet.Server{
		Hostname:  tsCfg.Hostname,
		Dir:       stateDir,
		Ephemeral: tsCfg.Ephemeral,
		AuthKey:   authKey,
	}

	g.logger.Info("starting tailscale node", "hostname", tsCfg.Hostname, "state_dir", stateDir, "ephemeral", tsCfg.Ephemeral)
	status, err := g.tsnetServer.Up(ctx)
	if err != nil {
		_ = g.tsnetServer.Close()
		return nil, nil, fmt.Errorf("starting tailscale: %w", err)
	}

	g.logTailscaleStatus(tsCfg.Hostname, status)
	g.updatePublicURLFromStatus(status)

	grpcLn, err = g.tsnetServer.Listen("tcp", ":50051")
	if err != nil {
		_ = g.tsnetServer.Close()
		return nil, nil, fmt.Errorf("listening on tailscale gRPC port: %w", err)
	}

	httpLn, err = g.createTailscaleHTTPListener(tsCfg, grpcLn)
	if err != nil {
		return nil, nil, err
	}
	return grpcLn, httpLn, nil
}

// logTailscaleStatus logs info about the tailscale node status.
func (g *Gateway) logTailscaleStatus(hostname string, status *ipnstate.Status) {
	var tsAddr, dnsName string
	if len(status.TailscaleIPs) > 0 {
		tsAddr = status.TailscaleIPs[0].String()
	} else {
		g.logger.Warn("tailscale node has no IP addresses assigned")
	}
	if status.Self != nil {
		dnsName = status.Self.DNSName
	}
	g.logger.Info("tailscale node ready", "hostname", hostname, "tailscale_ip", tsAddr, "dns_name", dnsName)
}

// updatePublicURLFromStatus fills in the public URL from the node's DNS
// name when none is configured and the node serves HTTPS.
func (g *Gateway) updatePublicURLFromStatus(status *ipnstate.Status) {
	if g.PublicURL() != "" || status.Self == nil || status.Self.DNSName == "" {
		return
	}
	if !g.config.Tailscale.Funnel && !g.config.Tailscale.HTTPS {
		return
	}
	u := "https://" + strings.TrimSuffix(status.Self.DNSName, ".")
	g.logger.Info("using tailscale DNS name as public URL", "public_url", u)
	g.setPublicURL(u)
}

// createTailscaleHTTPListener creates the appropriate HTTP listener based on config.
func (g *Gateway) createTailscaleHTTPListener(tsCfg config.TailscaleConfig, grpcLn net.Listener) (net.Listener, error) {
	switch {
	case tsCfg.Funnel:
		g.logger.Info("enabling tailscale funnel (public HTTPS) on :443 for twilio webhooks")
		ln, err := g.tsnetServer.ListenFunnel("tcp", ":443")
		if err != nil {
			_ = grpcLn.Close()
			_ = g.tsnetServer.Close()
			return nil, fmt.Errorf("listening on tailscale funnel port: %w", err)
		}
		return ln, nil
	case tsCfg.HTTPS:
		return g.createTailscaleTLSListener(grpcLn)
	default:
		ln, err := g.tsnetServer.Listen("tcp", ":80")
		if err != nil {
			_ = grpcLn.Close()
			_ = g.tsnetServer.Close()
			return nil, fmt.Errorf("listening on tailscale HTTP port: %w", err)
		}
		return ln, nil
	}
}

// createTailscaleTLSListener creates a TLS listener using Tailscale's auto-provisioned certs.
func (g *Gateway) createTailscaleTLSListener(grpcLn net.Listener) (net.Listener, error) {
	g.logger.Info("enabling HTTPS with Tailscale certs on :443")
	ln, err := g.tsnetServer.Listen("tcp", ":443")
	if err != nil {
		_ = grpcLn.Close()
		_ = g.tsnetServer.Close()
		return nil, fmt.Errorf("listening on tailscale HTTPS port: %w", err)
	}
	lc, err := g.tsnetServer.LocalClient()
	if err != nil {
		_ = ln.Close()
		_ = grpcLn.Close()
		_ = g.tsnetServer.Close()
		return nil, fmt.Errorf("getting tailscale local client: %w", err)
	}
	return tls.NewListener(ln, &tls.Config{
		GetCertificate: lc.GetCertificate,
		MinVersion:     tls.VersionTLS12,
	}), nil
}

// shutdownGRPCServer gracefully stops the gRPC server or force-stops on context cancel.
func (g *Gateway) shutdownGRPCServer(ctx context.Context) {
	stopped := make(chan struct{})
	go func() {
		g.grpcServer.GracefulStop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-ctx.Done():
		g.grpcServer.Stop()
	}
}

// appendCloseError appends an error with label if err is non-nil.
func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

// Shutdown reports NOT_SERVING, stops both servers and releases the store.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down gateway")
	g.health.Shutdown()

	var errs []error
	errs = appendCloseError(errs, "HTTP shutdown", g.httpServer.Shutdown(ctx))

	g.shutdownGRPCServer(ctx)

	if g.tsnetServer != nil {
		errs = appendCloseError(errs, "tailscale shutdown", g.tsnetServer.Close())
	}
	g.events.Close()
	g.dedupe.Close()
	errs = appendCloseError(errs, "store close", g.store.Close())

	return errors.Join(errs...)
}

// handleHealth returns 200 OK if the server is alive.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady returns 200 with the live session count, or 503 when the
// session store cannot answer.
func (g *Gateway) handleReady(w http.ResponseWriter, r *http.Request) {
	n, err := g.conversation.Count(r.Context())
	if err != nil {
		g.logger.Warn("readiness check failed", "error", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("session store unavailable"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "ready (%d active sessions)", n)
}
