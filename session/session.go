package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"mentor-voice/auth"
	"mentor-voice/messages"
	"mentor-voice/policy"
	"mentor-voice/upstream"
)

// Setup errors returned by Run before any loop has started. The server maps
// them to close codes on the client socket.
var (
	ErrSetupFailed         = errors.New("session setup failed")
	ErrUpstreamUnavailable = errors.New("upstream connection failed")
)

// ClientConn is the subset of *websocket.Conn a session drives. Narrowed so
// tests can substitute a scripted connection.
type ClientConn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// writeWait bounds every client write so a stalled client cannot park the
// writer forever.
const writeWait = 10 * time.Second

// Options carries the per-session tunables the supervisor needs.
type Options struct {
	Mode           string
	Model          string
	TextQueueSize  int
	AudioQueueSize int
	OutQueueSize   int
	DrainTimeout   time.Duration
}

// Session supervises one client connection bridged to one upstream model
// stream. Four loops run concurrently: client reader, upstream sender,
// upstream receiver and client writer. The first loop to finish, or an
// external Stop, ends the session; the remaining loops are cancelled and
// given a bounded grace period to unwind.
type Session struct {
	ID   string
	User auth.UserContext
	Mode string

	conn      ClientConn
	policy    policy.Policy
	connector upstream.Connector
	opts      Options
	logger    *zap.Logger

	mux *InputMux
	out chan *messages.ServerMessage

	channel   upstream.Channel
	closeOnce sync.Once

	stop     chan struct{}
	stopOnce sync.Once

	mu           sync.RWMutex
	createdAt    time.Time
	lastActivity time.Time
}

func New(id string, conn ClientConn, user auth.UserContext, pol policy.Policy, connector upstream.Connector, opts Options, logger *zap.Logger) *Session {
	if opts.OutQueueSize <= 0 {
		opts.OutQueueSize = 256
	}
	now := time.Now()
	logger = logger.With(zap.String("session_id", id), zap.String("mode", opts.Mode))
	return &Session{
		ID:           id,
		User:         user,
		Mode:         opts.Mode,
		conn:         conn,
		policy:       pol,
		connector:    connector,
		opts:         opts,
		logger:       logger,
		mux:          NewInputMux(opts.TextQueueSize, opts.AudioQueueSize, logger),
		out:          make(chan *messages.ServerMessage, opts.OutQueueSize),
		stop:         make(chan struct{}),
		createdAt:    now,
		lastActivity: now,
	}
}

func (s *Session) CreatedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.createdAt
}

func (s *Session) LastActivity() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastActivity
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

// Stop requests session teardown from outside the loops. Safe to call any
// number of times, before or after Run returns.
func (s *Session) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
}

type loopResult struct {
	name string
	err  error
}

// Run drives the session to completion. It connects upstream, announces
// readiness, spawns the four loops and blocks until the session ends. The
// client socket is closed before Run returns; the upstream channel is closed
// exactly once on every exit path.
func (s *Session) Run(ctx context.Context) error {
	instruction, err := s.policy.BuildSystemInstruction(ctx)
	if err != nil {
		return fmt.Errorf("%w: building system instruction: %v", ErrSetupFailed, err)
	}

	channel, err := s.connector.Connect(ctx, upstream.ModelConfig{
		Model:             s.opts.Model,
		Voice:             s.policy.Voice(),
		SystemInstruction: instruction,
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	s.channel = channel
	defer s.closeUpstream()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Queued before the loops start so it is first in the text queue.
	if prompt := s.policy.InitialPrompt(); prompt != "" {
		if err := s.mux.PushText(ctx, prompt); err != nil {
			return fmt.Errorf("%w: queueing initial prompt: %v", ErrSetupFailed, err)
		}
	}

	s.queue(messages.NewSessionReady(s.ID))
	s.logger.Info("Session started", zap.String("user_id", s.User.UserID))

	done := make(chan loopResult, 4)
	go func() { done <- loopResult{"reader", s.readLoop(ctx)} }()
	go func() { done <- loopResult{"sender", s.sendLoop(ctx)} }()
	go func() { done <- loopResult{"receiver", s.receiveLoop(ctx)} }()
	go func() { done <- loopResult{"writer", s.writeLoop(ctx)} }()

	finished := 0
	var first loopResult
	select {
	case first = <-done:
		finished++
		s.logLoopExit(first)
	case <-s.stop:
		first = loopResult{name: "stop"}
		s.logger.Info("Session stop requested")
	}

	cancel()
	s.closeUpstream()

	// Bounded drain: loops that miss the grace period are abandoned, not
	// waited on. The writer closes the client socket on its way out, which
	// unblocks a reader parked in ReadMessage.
	timer := time.NewTimer(s.opts.DrainTimeout)
	defer timer.Stop()
	for finished < 4 {
		select {
		case r := <-done:
			finished++
			s.logLoopExit(r)
		case <-timer.C:
			s.logger.Warn("Session loops did not unwind within grace period",
				zap.Int("stragglers", 4-finished))
			// Force the socket shut so a reader or writer parked on it
			// unblocks instead of leaking with the connection.
			_ = s.conn.Close()
			finished = 4
		}
	}

	s.logger.Info("Session ended", zap.Duration("lifetime", time.Since(s.CreatedAt())))
	return nil
}

func (s *Session) logLoopExit(r loopResult) {
	err := r.err
	switch {
	case err == nil, errors.Is(err, context.Canceled), errors.Is(err, io.EOF):
		s.logger.Debug("Session loop finished", zap.String("loop", r.name))
	default:
		s.logger.Info("Session loop finished", zap.String("loop", r.name), zap.Error(err))
	}
}

// closeUpstream closes the model channel exactly once. Called both on the
// normal teardown path and deferred from Run as a backstop.
func (s *Session) closeUpstream() {
	s.closeOnce.Do(func() {
		if s.channel == nil {
			return
		}
		if err := s.channel.Close(); err != nil {
			s.logger.Warn("Failed to close upstream channel", zap.Error(err))
		}
	})
}

// queue hands a frame to the writer without blocking the producing loop. A
// full writer queue means the client is not draining; the frame is dropped
// and logged since every frame is self-contained.
func (s *Session) queue(msg *messages.ServerMessage) {
	select {
	case s.out <- msg:
	default:
		s.logger.Warn("Client write queue full, dropping frame", zap.String("type", msg.Type))
	}
}

// readLoop pulls frames off the client socket. Binary frames are audio and
// bypass JSON handling entirely; text frames are decoded and routed through
// the policy. Malformed input is reported and skipped, never fatal.
func (s *Session) readLoop(ctx context.Context) error {
	for {
		messageType, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Info("Client connection closed unexpectedly", zap.Error(err))
			}
			return err
		}
		s.touch()

		switch messageType {
		case websocket.BinaryMessage:
			frame := messages.NewIngressFrame(data)
			if err := frame.ValidateIngress(); err != nil {
				s.logger.Warn("Rejected client audio frame", zap.Error(err))
				s.queue(messages.NewError(s.ID, messages.ErrCodeUnsupportedAudio, err.Error()))
				continue
			}
			if err := s.mux.PushAudio(ctx, frame); err != nil {
				return err
			}

		case websocket.TextMessage:
			msg, err := messages.Decode(data)
			if err != nil {
				s.logger.Warn("Rejected client frame", zap.Error(err))
				s.queue(messages.NewError(s.ID, messages.ErrCodeInvalidMessage, err.Error()))
				continue
			}
			if err := s.policy.HandleClientMessage(ctx, msg, s.mux); err != nil {
				if errors.Is(err, policy.ErrSessionEnded) {
					s.queue(messages.NewSessionEnd(s.ID))
					return nil
				}
				if ctx.Err() != nil {
					return ctx.Err()
				}
				s.logger.Warn("Failed to handle client frame",
					zap.String("type", msg.Type), zap.Error(err))
				s.queue(messages.NewError(s.ID, messages.ErrCodeInvalidMessage, err.Error()))
			}

		default:
			s.logger.Debug("Ignoring client frame", zap.Int("message_type", messageType))
		}
	}
}

// sendLoop drains the merged input queues into the upstream channel. A send
// failure means the upstream stream is gone and the session is over.
func (s *Session) sendLoop(ctx context.Context) error {
	for {
		item, err := s.mux.Next(ctx)
		if err != nil {
			return err
		}
		if item.Frame != nil {
			if err := s.channel.SendAudio(item.Frame.Data); err != nil {
				return fmt.Errorf("sending audio upstream: %w", err)
			}
		} else {
			if err := s.channel.SendText(item.Text, true); err != nil {
				return fmt.Errorf("sending text upstream: %w", err)
			}
		}
	}
}

// receiveLoop fans upstream events out to the client. If the stream ends
// while a turn is still open a turn boundary is synthesized so the client
// never waits on one that will not come.
func (s *Session) receiveLoop(ctx context.Context) error {
	turnOpen := false
	for {
		ev, err := s.channel.Receive()
		if err != nil {
			if turnOpen {
				s.queue(messages.NewTurnComplete(s.ID))
			}
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("receiving from upstream: %w", err)
		}

		for _, msg := range demuxEvent(ev, s.ID) {
			s.queue(msg)
		}
		if ev.TurnComplete {
			turnOpen = false
		} else if !ev.Empty() {
			turnOpen = true
		}
	}
}

// writeLoop is the sole writer on the client socket. It serializes queued
// frames and, on exit, sends a close frame and closes the socket so the
// reader unblocks.
func (s *Session) writeLoop(ctx context.Context) error {
	defer func() {
		_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
		_ = s.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		_ = s.conn.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			s.flush()
			return ctx.Err()
		case msg := <-s.out:
			if err := s.writeFrame(msg); err != nil {
				return err
			}
		}
	}
}

// flush delivers frames already queued at cancellation time, so a final
// session_end or turn boundary still reaches the client.
func (s *Session) flush() {
	for {
		select {
		case msg := <-s.out:
			if err := s.writeFrame(msg); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (s *Session) writeFrame(msg *messages.ServerMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		s.logger.Error("Failed to marshal outbound frame", zap.Error(err))
		return nil
	}
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("writing to client: %w", err)
	}
	return nil
}
