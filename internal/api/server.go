package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	tg "github.com/OvyFlash/telegram-bot-api"
	"github.com/gorilla/mux"
	"github.com/pborman/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"go.uber.org/zap"

	"github.com/Jasonzhang2023/group-assist-bot/internal/bot"
	"github.com/Jasonzhang2023/group-assist-bot/internal/config"
	"github.com/Jasonzhang2023/group-assist-bot/internal/db"
	"github.com/Jasonzhang2023/group-assist-bot/internal/handlers/chat"
	"github.com/Jasonzhang2023/group-assist-bot/internal/handlers/moderation"
	"github.com/Jasonzhang2023/group-assist-bot/internal/observability"
)

// serverOps is the slice of bot operations the REST surface needs.
type serverOps interface {
	SendText(ctx context.Context, chatID int64, text string) (tg.Message, error)
	SendHTML(ctx context.Context, chatID int64, text string) (tg.Message, error)
	BanMember(ctx context.Context, chatID, userID int64, until time.Time) error
	UnbanMember(ctx context.Context, chatID, userID int64) error
}

// Server exposes the webhook endpoint Telegram posts updates to and the
// management REST surface for chat settings and moderation actions.
type Server struct {
	router     *mux.Router
	srv        *http.Server
	processor  *bot.UpdateProcessor
	store      db.Client
	ops        serverOps
	mutes      *moderation.MuteService
	gatekeeper *chat.Gatekeeper
	cfg        config.Config
}

func NewServer(processor *bot.UpdateProcessor, store db.Client, ops serverOps, mutes *moderation.MuteService, gatekeeper *chat.Gatekeeper) *Server {
	s := &Server{
		router:     mux.NewRouter(),
		processor:  processor,
		store:      store,
		ops:        ops,
		mutes:      mutes,
		gatekeeper: gatekeeper,
		cfg:        config.Get(),
	}
	s.routes()
	s.srv = &http.Server{
		Addr:         s.cfg.ListenAddr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s
}

func (s *Server) routes() {
	s.router.Use(requestIDMiddleware)

	s.router.HandleFunc("/webhook", s.handleWebhook).Methods(http.MethodPost)
	s.router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)

	admin := s.router.PathPrefix("/api").Subrouter()
	admin.HandleFunc("/chats", s.handleListChats).Methods(http.MethodGet)
	admin.HandleFunc("/messages", s.handleListMessages).Methods(http.MethodGet)

	chats := admin.PathPrefix("/chats/{chat_id:-?[0-9]+}").Subrouter()
	chats.HandleFunc("/mute_user", s.handleMuteUser).Methods(http.MethodPost)
	chats.HandleFunc("/unmute_user", s.handleUnmuteUser).Methods(http.MethodPost)
	chats.HandleFunc("/mute_all", s.handleMuteAll).Methods(http.MethodPost)
	chats.HandleFunc("/unmute_all", s.handleUnmuteAll).Methods(http.MethodPost)
	chats.HandleFunc("/send", s.handleSendMessage).Methods(http.MethodPost)
	chats.HandleFunc("/ban_user", s.handleBanUser).Methods(http.MethodPost)
	chats.HandleFunc("/unban_user", s.handleUnbanUser).Methods(http.MethodPost)
	chats.HandleFunc("/verify_member", s.handleVerifyMember).Methods(http.MethodPost)
	chats.HandleFunc("/pending_members", s.handlePendingMembers).Methods(http.MethodGet)
	chats.HandleFunc("/join_settings", s.handleGetJoinSettings).Methods(http.MethodGet)
	chats.HandleFunc("/join_settings", s.handlePutJoinSettings).Methods(http.MethodPut)
	chats.HandleFunc("/auto_mute", s.handleGetAutoMute).Methods(http.MethodGet)
	chats.HandleFunc("/auto_mute", s.handlePutAutoMute).Methods(http.MethodPut)
	chats.HandleFunc("/auto_mute", s.handleDeleteAutoMute).Methods(http.MethodDelete)
	chats.HandleFunc("/spam_filter", s.handleGetSpamFilter).Methods(http.MethodGet)
	chats.HandleFunc("/spam_filter", s.handlePutSpamFilter).Methods(http.MethodPut)
	chats.HandleFunc("/whitelist", s.handleListWhitelist).Methods(http.MethodGet)
	chats.HandleFunc("/whitelist", s.handleAddWhitelist).Methods(http.MethodPost)
	chats.HandleFunc("/whitelist/{user_id:[0-9]+}", s.handleRemoveWhitelist).Methods(http.MethodDelete)
}

func (s *Server) Start(ctx context.Context) error {
	go func() {
		log.WithField("addr", s.srv.Addr).Info("http server listening")
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("http server failed")
		}
	}()
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return s.srv.Shutdown(shutdownCtx)
}

// Router exposes the mux for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	var update tg.Update
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		respondError(w, http.StatusBadRequest, "malformed update payload")
		return
	}
	if err := s.processor.Process(r.Context(), &update); err != nil {
		log.WithError(err).WithField("update", update.UpdateID).Error("update processing failed")
		// Telegram re-delivers on non-2xx, a handler failure must not loop.
	}
	respondOK(w, nil)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondOK(w, map[string]string{"state": "healthy"})
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewRandom().String()
		}
		w.Header().Set("X-Request-ID", requestID)
		// Access logs go to the structured sink, separate from app logs.
		if logger := observability.Logger; logger != nil {
			logger.Debug("http request",
				zap.String("request_id", requestID),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
			)
		}
		next.ServeHTTP(w, r)
	})
}

type envelope struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

func respondOK(w http.ResponseWriter, data interface{}) {
	respondJSON(w, http.StatusOK, envelope{Status: "ok", Data: data})
}

func respondError(w http.ResponseWriter, code int, message string) {
	respondJSON(w, code, envelope{Status: "error", Message: message})
}

func respondJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.WithError(err).Error("cant encode response")
	}
}
