// Command bot is the process entry point for one deployed voice agent
// (spec.md §6's external interface). It always runs a small HTTP server
// exposing POST /start and GET /health, mirroring the original's FastAPI
// local-dev fallback; each accepted POST /start runs one call session in
// the background. There is no separate per-call mode without the server.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	goredis "github.com/redis/go-redis/v9"

	"github.com/Adam-Behun/optimalbot-portal-sub000/config"
	"github.com/Adam-Behun/optimalbot-portal-sub000/core"
	"github.com/Adam-Behun/optimalbot-portal-sub000/flow"
	"github.com/Adam-Behun/optimalbot-portal-sub000/llm"
	"github.com/Adam-Behun/optimalbot-portal-sub000/o11y"
	"github.com/Adam-Behun/optimalbot-portal-sub000/session"
	"github.com/Adam-Behun/optimalbot-portal-sub000/store"
	"github.com/Adam-Behun/optimalbot-portal-sub000/transport"

	_ "github.com/Adam-Behun/optimalbot-portal-sub000/llm/providers/anthropic"
	_ "github.com/Adam-Behun/optimalbot-portal-sub000/llm/providers/bedrock"
	_ "github.com/Adam-Behun/optimalbot-portal-sub000/llm/providers/ollama"
	_ "github.com/Adam-Behun/optimalbot-portal-sub000/llm/providers/openai"
	_ "github.com/Adam-Behun/optimalbot-portal-sub000/transport/providers/livekit"
	_ "github.com/Adam-Behun/optimalbot-portal-sub000/transport/providers/pipecat"
	_ "github.com/Adam-Behun/optimalbot-portal-sub000/transport/providers/twilio"
)

// dialinSettings mirrors the original's dialin_settings sub-object: only
// the fields this module actually reads from it.
type dialinSettings struct {
	CallID string `json:"call_id"`
	From   string `json:"from"`
}

// dialoutTarget mirrors one entry of the original's dialout_targets list.
type dialoutTarget struct {
	PhoneNumber string `json:"phoneNumber"`
}

// startRequest is the bot-start request body (spec.md §6): the session and
// organization identifiers, patient_id, call_data, client_name, exactly one
// of dialin_settings or dialout_targets, and room_url/token for local mode.
// A transfer_config object in the body is not decoded.
type startRequest struct {
	SessionID        string           `json:"session_id"`
	PatientID        string           `json:"patient_id"`
	CallData         map[string]any   `json:"call_data"`
	ClientName       string           `json:"client_name"`
	OrganizationID   string           `json:"organization_id"`
	OrganizationSlug string           `json:"organization_slug"`
	DialinSettings   *dialinSettings  `json:"dialin_settings"`
	DialoutTargets   []dialoutTarget  `json:"dialout_targets"`
	RoomURL          string           `json:"room_url"`
	Token            string           `json:"token"`
}

func main() {
	logger := o11y.NewLogger(o11y.WithJSON())
	ctx := context.Background()

	if err := config.LoadConfig(); err != nil {
		logger.Error(ctx, "failed to load config", "error", err)
		os.Exit(1)
	}

	if os.Getenv("ENABLE_TRACING") == "true" {
		shutdown, err := o11y.InitTracer("optimalbot-voice-agent")
		if err != nil {
			logger.Error(ctx, "failed to initialize tracing", "error", err)
		} else {
			defer shutdown()
		}
	}

	sessionStore, err := buildSessionStore()
	if err != nil {
		logger.Error(ctx, "failed to connect to session store", "error", err)
		os.Exit(1)
	}
	stateCache, err := buildStateCache()
	if err != nil {
		logger.Warn(ctx, "state cache unavailable, handoffs will not survive a restart", "error", err)
	}

	srv := &botServer{
		logger:     logger,
		store:      sessionStore,
		stateCache: stateCache,
	}

	port := os.Getenv("BOT_PORT")
	if port == "" {
		port = "7860"
	}

	router := mux.NewRouter()
	router.HandleFunc("/start", srv.handleStart).Methods(http.MethodPost)
	router.HandleFunc("/health", srv.handleHealth).Methods(http.MethodGet)

	httpServer := &http.Server{
		Addr:    ":" + port,
		Handler: router,
	}

	logger.Info(ctx, "starting local bot server", "port", port)

	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error(ctx, "bot server failed", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	logger.Info(ctx, "shutting down bot server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error(ctx, "graceful shutdown failed", "error", err)
	}
}

func buildSessionStore() (*store.SessionStore, error) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		return nil, nil
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	s, err := store.NewSessionStore(store.PostgresConfig{DB: db})
	if err != nil {
		return nil, err
	}
	if err := s.EnsureSchema(context.Background()); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return s, nil
}

func buildStateCache() (*store.StateCache, error) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		return nil, nil
	}
	client := goredis.NewClient(&goredis.Options{Addr: addr})
	return store.NewStateCache(store.StateCacheConfig{Client: client})
}

// botServer holds the long-lived dependencies every bot-start request
// wires into a fresh session.CallSession.
type botServer struct {
	logger     *o11y.Logger
	store      *store.SessionStore
	stateCache *store.StateCache
}

func (s *botServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
}

func (s *botServer) handleStart(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	if req.DialinSettings == nil && len(req.DialoutTargets) == 0 {
		http.Error(w, "either dialin_settings or dialout_targets required", http.StatusBadRequest)
		return
	}
	if req.DialinSettings != nil && len(req.DialoutTargets) > 0 {
		http.Error(w, "only one of dialin_settings or dialout_targets may be set", http.StatusBadRequest)
		return
	}
	if req.SessionID == "" || req.OrganizationID == "" || req.OrganizationSlug == "" {
		http.Error(w, "missing required: session_id, organization_id, organization_slug", http.StatusBadRequest)
		return
	}
	if req.ClientName == "" {
		req.ClientName = "eligibility_verification"
	}

	ctx := r.Context()
	s.logger.Info(ctx, "bot start requested", "session_id", req.SessionID, "client_name", req.ClientName)

	go s.runBot(context.Background(), req)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "started", "session_id": req.SessionID})
}

// runBot builds and runs one CallSession for the life of the call,
// recording the final outcome the way the original's bot() coroutine's
// try/except/finally block does.
func (s *botServer) runBot(ctx context.Context, req startRequest) {
	logger := s.logger.With("session_id", req.SessionID)

	if s.store != nil {
		if err := s.store.CreateSession(ctx, req.SessionID, req.OrganizationID); err != nil {
			logger.Error(ctx, "failed to create session record", "error", err)
		}
		if err := s.store.UpdateStatus(ctx, req.SessionID, "running"); err != nil {
			logger.Error(ctx, "failed to mark session running", "error", err)
		}
	}

	cs, err := s.buildSession(req, logger)
	if err != nil {
		logger.Error(ctx, "failed to build call session", "error", err)
		if s.store != nil {
			_ = s.store.UpdateStatus(ctx, req.SessionID, "failed")
		}
		return
	}

	if err := cs.Run(ctx); err != nil {
		logger.Error(ctx, "call session ended with error", "error", err)
	}
}

// buildSession resolves the configured providers (spec.md §6's workflow
// services schema) and the requested flow, and wires them into a fresh
// session.CallSession. Grounded on the original's CallSession constructor
// call in bot().
func (s *botServer) buildSession(req startRequest, logger *o11y.Logger) (*session.CallSession, error) {
	f, err := flow.New(req.ClientName)
	if err != nil {
		return nil, err
	}

	mainLLM, err := llm.New(config.Cfg.Services.LLM.Provider, config.Cfg.Services.LLM)
	if err != nil {
		return nil, fmt.Errorf("main llm: %w", err)
	}

	callType := session.DialIn
	phoneNumber := "unknown"
	tr, transportErr := buildTransport(req)
	if transportErr != nil {
		return nil, transportErr
	}
	if len(req.DialoutTargets) > 0 {
		callType = session.DialOut
		phoneNumber = req.DialoutTargets[0].PhoneNumber
	} else if req.DialinSettings != nil {
		phoneNumber = req.DialinSettings.From
	}

	sessionOpts := []core.Option{
		session.WithSessionID(req.SessionID),
		session.WithOrganization(req.OrganizationID, req.OrganizationSlug),
		session.WithClientName(req.ClientName),
		session.WithPatientID(req.PatientID),
		session.WithCallType(callType),
		session.WithPhoneNumber(phoneNumber),
		session.WithCallData(req.CallData),
		session.WithConfig(config.Cfg),
		session.WithTransport(tr),
		session.WithMainLLM(mainLLM),
		session.WithFlow(f),
		session.WithLogger(logger),
	}

	if s.store != nil {
		sessionOpts = append(sessionOpts, session.WithStore(s.store))
	}
	if s.stateCache != nil {
		sessionOpts = append(sessionOpts, session.WithStateCache(s.stateCache))
	}
	if config.Cfg.Services.ClassifierLLM.Provider != "" {
		classifierLLM, err := llm.New(config.Cfg.Services.ClassifierLLM.Provider, config.Cfg.Services.ClassifierLLM)
		if err != nil {
			return nil, fmt.Errorf("classifier llm: %w", err)
		}
		sessionOpts = append(sessionOpts, session.WithClassifierLLM(classifierLLM))
	}
	if config.Cfg.Services.FallbackLLM.Provider != "" {
		fallbackLLM, err := llm.New(config.Cfg.Services.FallbackLLM.Provider, config.Cfg.Services.FallbackLLM)
		if err != nil {
			return nil, fmt.Errorf("fallback llm: %w", err)
		}
		sessionOpts = append(sessionOpts, session.WithFallbackLLM(fallbackLLM))
	}
	if config.Cfg.SafetyMonitors.SafetyLLM.Provider != "" {
		safetyLLM, err := llm.New(config.Cfg.SafetyMonitors.SafetyLLM.Provider, config.Cfg.SafetyMonitors.SafetyLLM)
		if err != nil {
			return nil, fmt.Errorf("safety llm: %w", err)
		}
		sessionOpts = append(sessionOpts, session.WithSafetyLLM(safetyLLM))
	}

	return session.New(sessionOpts...)
}

// buildTransport resolves the transport provider named in config and joins
// the room/call described by the request, mirroring the original's
// DailyRunnerArguments(room_url, token) construction.
func buildTransport(req startRequest) (transport.Transport, error) {
	providerName := config.Cfg.Services.Transport.Provider
	if providerName == "" {
		providerName = "pipecat"
	}
	room := req.SessionID
	if req.DialinSettings != nil && req.DialinSettings.CallID != "" {
		room = req.DialinSettings.CallID
	}
	return transport.New(providerName, transport.Config{
		URL:   req.RoomURL,
		Token: req.Token,
		Room:  room,
	})
}
