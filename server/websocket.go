package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"mentor-voice/auth"
	"mentor-voice/config"
	"mentor-voice/messages"
	"mentor-voice/policy"
	"mentor-voice/session"
	"mentor-voice/upstream"
)

// Session modes, one per endpoint.
const (
	ModeTutor    = "tutor"
	ModeLearn    = "learn"
	ModeBriefing = "briefing"
)

type Server struct {
	httpServer *http.Server
	upgrader   websocket.Upgrader

	cfg      *config.Config
	logger   *zap.Logger
	verifier *auth.Verifier
	manager  *session.Manager

	connector upstream.Connector
	content   policy.ContentStore
	plans     policy.PlanStore
}

func New(cfg *config.Config, logger *zap.Logger, verifier *auth.Verifier, manager *session.Manager, connector upstream.Connector, content policy.ContentStore, plans policy.PlanStore) *Server {
	s := &Server{
		cfg:       cfg,
		logger:    logger,
		verifier:  verifier,
		manager:   manager,
		connector: connector,
		content:   content,
		plans:     plans,
		upgrader: websocket.Upgrader{
			ReadBufferSize:    64 * 1024, // 64KB for audio chunks
			WriteBufferSize:   64 * 1024,
			EnableCompression: true,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				for _, allowed := range cfg.AllowedOrigins {
					if allowed == "*" || allowed == origin {
						return true
					}
				}
				return false
			},
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws/tutor", s.handleMode(ModeTutor))
	mux.HandleFunc("/ws/learn", s.handleMode(ModeLearn))
	mux.HandleFunc("/ws/briefing", s.handleMode(ModeBriefing))
	mux.HandleFunc("/health", s.handleHealth)

	s.httpServer = &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.Port),
		Handler:     mux,
		ReadTimeout: 10 * time.Second,
	}

	return s
}

// Start begins listening for connections.
func (s *Server) Start() error {
	s.logger.Info("WebSocket server starting", zap.Int("port", s.cfg.Port))
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the server and every live session.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down server")
	s.manager.Shutdown()
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"ok","sessions":%d}`, s.manager.ActiveCount())
}

func (s *Server) handleMode(mode string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(w, r, nil)
		if err != nil {
			s.logger.Warn("WebSocket upgrade failed", zap.Error(err))
			return
		}
		s.serve(r.Context(), conn, mode)
	}
}

// serve runs the authentication handshake and then hands the socket to a
// supervised session. Every exit path closes the socket with a code that
// tells the client why.
func (s *Server) serve(ctx context.Context, conn *websocket.Conn, mode string) {
	user, bootstrap, err := s.authenticate(conn)
	if err != nil {
		var ce *closeError
		if errors.As(err, &ce) {
			s.warn(mode, "Authentication failed", err)
			_ = conn.WriteJSON(messages.NewError("", messages.ErrCodeAuthFailed, ce.reason))
			s.closeWith(conn, ce.code, ce.reason)
		} else {
			_ = conn.WriteJSON(messages.NewError("", messages.ErrCodeAuthFailed, "authentication failed"))
			s.closeWith(conn, messages.CloseInternalError, "authentication failed")
		}
		return
	}

	pol, err := s.buildPolicy(mode, user, bootstrap)
	if err != nil {
		if errors.Is(err, policy.ErrMissingPrecondition) {
			s.warn(mode, "Session bootstrap incomplete", err)
			_ = conn.WriteJSON(messages.NewError("", messages.ErrCodeMissingPrecondition, err.Error()))
			s.closeWith(conn, messages.CloseMissingPrecondition, err.Error())
			return
		}
		s.warn(mode, "Failed to build session policy", err)
		_ = conn.WriteJSON(messages.NewError("", messages.ErrCodeSessionFailed, "failed to prepare session"))
		s.closeWith(conn, messages.CloseInternalError, "failed to prepare session")
		return
	}

	sessionID := session.NewID()
	if err := conn.WriteJSON(messages.NewAuthSuccess(sessionID)); err != nil {
		conn.Close()
		return
	}

	sess := session.New(sessionID, conn, user, pol, s.connector, session.Options{
		Mode:           mode,
		Model:          s.cfg.GeminiModel,
		TextQueueSize:  s.cfg.TextQueueSize,
		AudioQueueSize: s.cfg.AudioQueueSize,
		DrainTimeout:   s.cfg.DrainTimeout,
	}, s.logger)

	if err := s.manager.Register(ctx, sess); err != nil {
		s.warn(mode, "Session rejected", err)
		_ = conn.WriteJSON(messages.NewError(sessionID, messages.ErrCodeSessionFailed, err.Error()))
		s.closeWith(conn, messages.CloseInternalError, "session capacity reached")
		return
	}
	defer s.manager.Remove(context.Background(), sessionID)

	if err := sess.Run(ctx); err != nil {
		switch {
		case errors.Is(err, session.ErrUpstreamUnavailable):
			s.warn(mode, "Upstream connection failed", err)
			_ = conn.WriteJSON(messages.NewError(sessionID, messages.ErrCodeUpstreamError, "model connection failed"))
			s.closeWith(conn, messages.CloseUpstreamUnavailable, "upstream unavailable")
		default:
			s.warn(mode, "Session setup failed", err)
			_ = conn.WriteJSON(messages.NewError(sessionID, messages.ErrCodeSessionFailed, "session setup failed"))
			s.closeWith(conn, messages.CloseInternalError, "internal error")
		}
	}
}

type closeError struct {
	code   int
	reason string
}

func (e *closeError) Error() string { return e.reason }

// authenticate enforces the first-frame contract: a JSON authenticate frame
// carrying a valid token must arrive before the auth deadline. No other
// frame, and no binary data, is accepted beforehand.
func (s *Server) authenticate(conn *websocket.Conn) (auth.UserContext, *messages.ClientMessage, error) {
	deadline := time.Now().Add(s.cfg.AuthTimeout)
	if err := conn.SetReadDeadline(deadline); err != nil {
		return auth.UserContext{}, nil, err
	}

	messageType, data, err := conn.ReadMessage()
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return auth.UserContext{}, nil, &closeError{messages.CloseAuthTimeout, "authentication timed out"}
		}
		return auth.UserContext{}, nil, &closeError{messages.CloseMissingAuth, "connection closed before authentication"}
	}
	if messageType != websocket.TextMessage {
		return auth.UserContext{}, nil, &closeError{messages.CloseMissingAuth, "first frame must be an authenticate message"}
	}

	msg, err := messages.Decode(data)
	if err != nil || msg.Type != messages.TypeAuthenticate || msg.Token == "" {
		return auth.UserContext{}, nil, &closeError{messages.CloseMissingAuth, "first frame must be an authenticate message"}
	}

	user, err := s.verifier.Verify(msg.Token)
	if err != nil {
		return auth.UserContext{}, nil, &closeError{messages.CloseInvalidToken, "invalid token"}
	}

	if err := conn.SetReadDeadline(time.Time{}); err != nil {
		return auth.UserContext{}, nil, err
	}
	return user, msg, nil
}

// buildPolicy selects the session policy for an endpoint, validating the
// bootstrap fields the authenticate frame must carry for that mode.
func (s *Server) buildPolicy(mode string, user auth.UserContext, bootstrap *messages.ClientMessage) (policy.Policy, error) {
	switch mode {
	case ModeTutor:
		return policy.NewPracticeTutor(bootstrap.TopicContext)
	case ModeLearn:
		return policy.NewPackageLearn(bootstrap.PackageID, s.content)
	case ModeBriefing:
		studentID := bootstrap.StudentID
		if studentID == "" {
			studentID = user.UserID
		}
		return policy.NewDailyBriefing(studentID, s.plans)
	default:
		return nil, fmt.Errorf("unknown session mode %q", mode)
	}
}

func (s *Server) closeWith(conn *websocket.Conn, code int, reason string) {
	deadline := time.Now().Add(time.Second)
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
	_ = conn.Close()
}

func (s *Server) warn(mode, msg string, err error) {
	s.logger.Warn(msg, zap.String("mode", mode), zap.Error(err))
}

func isTimeout(err error) bool {
	var ne interface{ Timeout() bool }
	return errors.As(err, &ne) && ne.Timeout()
}
