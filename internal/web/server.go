// Package web serves the browser chat page and streams turns to it over
// server-sent events.
package web

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"copilot-chat/internal/card"
	"copilot-chat/internal/markup"
	"copilot-chat/internal/session"
)

const (
	cookieName      = "copilot_chat_session"
	shutdownTimeout = 10 * time.Second
	defaultTitle    = "Copilot Studio"

	// DefaultIdleTimeout is how long a browser session survives without a
	// request before Serve drops it.
	DefaultIdleTimeout = 30 * time.Minute
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

type Options struct {
	Sessions *Sessions
	Cards    *card.Renderer
	Logger   *zap.Logger
	Title    string
	// IdleTimeout defaults to DefaultIdleTimeout.
	IdleTimeout time.Duration
}

type Server struct {
	echo        *echo.Echo
	sessions    *Sessions
	cards       *card.Renderer
	logger      *zap.Logger
	title       string
	idleTimeout time.Duration
}

func New(opts Options) *Server {
	s := &Server{
		sessions:    opts.Sessions,
		cards:       opts.Cards,
		logger:      opts.Logger,
		title:       opts.Title,
		idleTimeout: opts.IdleTimeout,
	}
	if s.idleTimeout <= 0 {
		s.idleTimeout = DefaultIdleTimeout
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.cards == nil {
		s.cards = card.NewRenderer(s.logger)
	}
	if s.title == "" {
		s.title = defaultTitle
	}

	e := echo.New()
	e.Use(middleware.Recover())
	e.Use(requestLogger(s.logger))
	s.registerRoutes(e)
	s.echo = e
	return s
}

func (s *Server) registerRoutes(e *echo.Echo) {
	e.GET("/", s.handleIndex)
	e.GET("/healthz", s.handleHealth)

	g := e.Group("/api")
	g.POST("/chat", s.handleChat)
	g.POST("/new", s.handleNew)
	g.POST("/end", s.handleEnd)
	g.GET("/history", s.handleHistory)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

// Run listens on addr until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.echo,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("web server listening", zap.String("addr", ln.Addr().String()))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serving http: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		s.logger.Info("web server shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		s.sweepSessions(ctx)
		return nil
	})
	return g.Wait()
}

// sweepSessions drops idle sessions until ctx is done.
func (s *Server) sweepSessions(ctx context.Context) {
	ticker := time.NewTicker(max(s.idleTimeout/4, 10*time.Millisecond))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if ids := s.sessions.Sweep(s.idleTimeout); len(ids) > 0 {
				s.logger.Info("idle sessions dropped", zap.Int("count", len(ids)))
			}
		}
	}
}

func requestLogger(logger *zap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c *echo.Context) error {
			start := time.Now()
			err := next(c)
			logger.Debug("request",
				zap.String("method", c.Request().Method),
				zap.String("path", c.Request().URL.Path),
				zap.Duration("took", time.Since(start)),
				zap.Error(err),
			)
			return err
		}
	}
}

// ─── Sessions ───

// current returns the session named by the request cookie.
func (s *Server) current(c *echo.Context) (string, *session.Session, bool) {
	ck, err := c.Request().Cookie(cookieName)
	if err != nil {
		return "", nil, false
	}
	sess, ok := s.sessions.Get(ck.Value)
	return ck.Value, sess, ok
}

// currentOrNew returns the request's session, creating one and setting the
// cookie when there is none.
func (s *Server) currentOrNew(c *echo.Context) *session.Session {
	if _, sess, ok := s.current(c); ok {
		return sess
	}
	id, sess := s.sessions.Create()
	http.SetCookie(c.Response(), &http.Cookie{
		Name:     cookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	s.logger.Debug("session created", zap.String("session", id))
	return sess
}

// connectFailure turns a Connect error into a headline and a hint.
func connectFailure(err error) (int, string, string) {
	if errors.Is(err, session.ErrConnectTimeout) {
		return http.StatusGatewayTimeout,
			"Connection to Copilot Studio timed out.",
			"Please check your network connection and try again."
	}
	var ce *session.ConnectError
	if errors.As(err, &ce) {
		err = ce.Err
	}
	return http.StatusBadGateway,
		"Failed to connect to Copilot Studio: " + err.Error(),
		"Please check your configuration and ensure the agent is published in Copilot Studio."
}

// ─── Page ───

type messageView struct {
	ID         string        `json:"id"`
	Role       string        `json:"role"`
	HTML       template.HTML `json:"html"`
	Suggestion string        `json:"suggestion,omitempty"`
	Cards      []cardView    `json:"cards,omitempty"`
}

type pageData struct {
	Title    string
	Messages []messageView
	Error    string
	Hint     string
}

func (s *Server) views(history []session.Message) []messageView {
	views := make([]messageView, 0, len(history))
	for _, m := range history {
		v := messageView{ID: m.ID, Role: string(m.Role), Suggestion: m.Suggestion}
		if m.Role == session.RoleUser {
			v.HTML = template.HTML(markup.Literal(m.Content))
		} else {
			v.HTML = template.HTML(markup.Render(m.Content))
			v.Cards = s.renderCards(m.Cards)
		}
		views = append(views, v)
	}
	return views
}

func (s *Server) render(c *echo.Context, code int, data pageData) error {
	data.Title = s.title
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, "index.html", data); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.HTML(code, buf.String())
}

func (s *Server) handleIndex(c *echo.Context) error {
	sess := s.currentOrNew(c)
	if err := sess.Connect(c.Request().Context()); err != nil {
		code, headline, hint := connectFailure(err)
		return s.render(c, code, pageData{Error: headline, Hint: hint})
	}
	return s.render(c, http.StatusOK, pageData{Messages: s.views(sess.History())})
}

func (s *Server) handleHealth(c *echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":   "ok",
		"sessions": s.sessions.Len(),
	})
}

// ─── API ───

type chatRequest struct {
	Prompt string `json:"prompt"`
}

type historyResponse struct {
	State    string        `json:"state"`
	Messages []messageView `json:"messages"`
}

func (s *Server) handleHistory(c *echo.Context) error {
	_, sess, ok := s.current(c)
	if !ok {
		return c.JSON(http.StatusOK, historyResponse{State: session.StateUninitialized.String(), Messages: []messageView{}})
	}
	return c.JSON(http.StatusOK, historyResponse{
		State:    sess.State().String(),
		Messages: s.views(sess.History()),
	})
}

// handleNew discards the conversation and connects a fresh one.
func (s *Server) handleNew(c *echo.Context) error {
	sess := s.currentOrNew(c)
	sess.Reset()
	if err := sess.Connect(c.Request().Context()); err != nil {
		code, headline, hint := connectFailure(err)
		return echo.NewHTTPError(code, headline+" "+hint)
	}
	return c.JSON(http.StatusOK, historyResponse{
		State:    sess.State().String(),
		Messages: s.views(sess.History()),
	})
}

// handleEnd tears down the browser's session and clears its cookie.
func (s *Server) handleEnd(c *echo.Context) error {
	if id, _, ok := s.current(c); ok {
		s.sessions.Drop(id)
		s.logger.Debug("session ended", zap.String("session", id))
	}
	http.SetCookie(c.Response(), &http.Cookie{
		Name:     cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return c.JSON(http.StatusOK, map[string]string{"status": "ended"})
}

func (s *Server) handleChat(c *echo.Context) error {
	var req chatRequest
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.Prompt) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "prompt required")
	}
	_, sess, ok := s.current(c)
	if !ok {
		return echo.NewHTTPError(http.StatusBadRequest, "no conversation; reload the page")
	}

	w := newSSEWriter(c.Response())
	res, err := sess.Submit(c.Request().Context(), req.Prompt, &sseObserver{w: w})
	if err != nil {
		// Submit fails before any event is written.
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}

	w.emit(sseEvent{
		Type:       "final",
		HTML:       markup.Render(res.Text),
		Suggestion: res.Suggestion,
		Cards:      s.renderCards(res.Cards),
		Failed:     res.Err != nil,
	})
	w.emit(sseEvent{Type: "done"})
	return nil
}
