package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/chatlink-app/chatlink/internal/config"
	"github.com/chatlink-app/chatlink/internal/database"
	"github.com/chatlink-app/chatlink/internal/presence"
	"github.com/chatlink-app/chatlink/internal/server"
	"github.com/chatlink-app/chatlink/internal/stats"
	"github.com/chatlink-app/chatlink/internal/storage"
	"github.com/gorilla/handlers"
	"github.com/teris-io/shortid"
)

type ChatLinkApp struct {
	log            *log.Logger
	db             database.ChatLinkRepository
	mux            *http.Server
	cs             *server.ChatServer
	stats          stats.StatsProvider
	presence       *presence.Tracker
	store          storage.BlobStore
	limiter        *requestLimiter
	signingKey     []byte
	allowedOrigins []string

	// overridable in tests
	generateShortId func() (string, error)
}

func NewChatLinkApp(mux *http.ServeMux, logger *log.Logger, cs *server.ChatServer, db database.ChatLinkRepository, sp stats.StatsProvider, tracker *presence.Tracker, store storage.BlobStore, cfg *config.Config) *ChatLinkApp {
	s := &ChatLinkApp{
		log:             logger,
		db:              db,
		cs:              cs,
		stats:           sp,
		presence:        tracker,
		store:           store,
		limiter:         newRequestLimiter(20, 40, 2*time.Minute),
		signingKey:      cfg.SigningKey,
		allowedOrigins:  cfg.AllowedOrigins,
		generateShortId: shortid.Generate,
	}

	mux.HandleFunc("POST /api/auth/register", s.createAccount)
	mux.HandleFunc("POST /api/auth/login", s.login)
	mux.HandleFunc("POST /api/auth/guest", s.createGuestAccount)
	mux.HandleFunc("GET /api/auth/session", s.authMiddleware(s.session))
	mux.Handle("GET /api/auth/logout", s.authMiddleware(s.logout))
	mux.Handle("/api/account", s.authMiddleware(s.account))
	mux.Handle("PUT /api/profile", s.authMiddleware(s.updateProfile))

	mux.Handle("POST /api/rooms", s.authMiddleware(s.createRoom))
	mux.Handle("GET /api/rooms", s.authMiddleware(s.getRoom))
	mux.Handle("PUT /api/rooms", s.authMiddleware(s.updateRoom))
	mux.Handle("DELETE /api/rooms", s.authMiddleware(s.deleteRoom))
	mux.Handle("GET /api/rooms/public", s.authMiddleware(s.listPublicRooms))
	mux.Handle("POST /api/rooms/join", s.authMiddleware(s.joinByInviteCode))
	mux.Handle("POST /api/rooms/invite", s.authMiddleware(s.regenerateInviteCode))
	mux.Handle("PUT /api/rooms/members/role", s.authMiddleware(s.updateMemberRole))
	mux.Handle("POST /api/rooms/members/kick", s.authMiddleware(s.kickMember))
	mux.Handle("POST /api/rooms/members/ban", s.authMiddleware(s.banMember))

	mux.Handle("GET /api/messages", s.authMiddleware(s.getMessages))
	mux.Handle("POST /api/messages/report", s.authMiddleware(s.reportMessage))

	mux.Handle("POST /api/posts", s.authMiddleware(s.createPost))
	mux.Handle("GET /api/posts", s.authMiddleware(s.listPosts))
	mux.Handle("POST /api/posts/like", s.authMiddleware(s.likePost))
	mux.Handle("DELETE /api/posts/like", s.authMiddleware(s.unlikePost))
	mux.Handle("POST /api/posts/comments", s.authMiddleware(s.createPostComment))
	mux.Handle("GET /api/posts/comments", s.authMiddleware(s.listPostComments))

	mux.Handle("POST /api/blocks", s.authMiddleware(s.blockUser))
	mux.Handle("DELETE /api/blocks", s.authMiddleware(s.unblockUser))

	mux.Handle("POST /api/conversations", s.authMiddleware(s.getOrCreateConversation))
	mux.Handle("GET /api/conversations", s.authMiddleware(s.listConversations))
	mux.Handle("POST /api/conversations/messages", s.authMiddleware(s.sendDirectMessage))
	mux.Handle("GET /api/conversations/messages", s.authMiddleware(s.getDirectMessages))

	mux.Handle("GET /api/presence", s.authMiddleware(s.userPresence))

	mux.Handle("POST /api/uploads/avatar", s.authMiddleware(s.uploadAvatar))
	mux.Handle("POST /api/uploads/attachment", s.authMiddleware(s.uploadAttachment))

	mux.Handle("GET /api/admin/reports", s.authMiddleware(s.listReports))
	mux.Handle("POST /api/admin/reports/resolve", s.authMiddleware(s.resolveReport))

	mux.HandleFunc("GET /healthz", s.healthz)
	mux.Handle("GET /ws", s.authMiddleware(s.serveWs))

	h := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept"}),
		handlers.AllowCredentials(),
	)(mux)

	h = s.rateLimitMiddleware(h)
	h = s.errorHandler(h)

	srv := &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: h,
	}

	s.mux = srv
	return s
}

func (s *ChatLinkApp) Start() error {
	s.log.Printf("starting server on %s\n", s.mux.Addr)
	return s.mux.ListenAndServe()
}

func (s *ChatLinkApp) Shutdown(ctx context.Context) error {
	s.log.Println("shutting down HTTP server...")
	s.limiter.Stop()
	if err := s.mux.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}

func (s *ChatLinkApp) writeJson(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Printf("json encode: %v", err)
	}
}

func (s *ChatLinkApp) healthz(w http.ResponseWriter, _ *http.Request) {
	if err := s.db.Ping(); err != nil {
		s.log.Printf("health check: %v", err)
		errResp := &ApiError{
			StatusCode: http.StatusServiceUnavailable,
			Message:    lower(http.StatusText(http.StatusServiceUnavailable)),
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, map[string]string{"status": "ok"})
}
