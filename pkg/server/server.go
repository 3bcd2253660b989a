// Package server exposes the Bot Framework messaging endpoint over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/knowbot/pkg/adapter/botframework"
	"github.com/m-mizutani/knowbot/pkg/interfaces"
	"github.com/m-mizutani/knowbot/pkg/model"
	"github.com/m-mizutani/knowbot/pkg/utils/logging"
)

const (
	DefaultTurnTimeout     = 2 * time.Minute
	DefaultShutdownTimeout = 30 * time.Second
)

// TurnHandler runs the conversation logic for inbound activities.
type TurnHandler interface {
	HandleTurn(ctx context.Context, turn *model.Turn, replier interfaces.Replier) model.Outcome
	Welcome(ctx context.Context, replier interfaces.Replier) error
}

type Server struct {
	echo    *echo.Echo
	handler TurnHandler
	sender  botframework.Sender
	auth    *botframework.Authenticator
	metrics http.Handler

	turnTimeout     time.Duration
	shutdownTimeout time.Duration
	streamInterval  time.Duration

	inflight sync.WaitGroup
}

type Option func(*Server)

// WithAuthenticator enables token verification on the messaging endpoint.
func WithAuthenticator(a *botframework.Authenticator) Option {
	return func(s *Server) {
		s.auth = a
	}
}

// WithMetricsHandler serves h on GET /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) {
		s.metrics = h
	}
}

func WithTurnTimeout(d time.Duration) Option {
	return func(s *Server) {
		s.turnTimeout = d
	}
}

func WithShutdownTimeout(d time.Duration) Option {
	return func(s *Server) {
		s.shutdownTimeout = d
	}
}

func WithStreamInterval(d time.Duration) Option {
	return func(s *Server) {
		s.streamInterval = d
	}
}

func New(handler TurnHandler, sender botframework.Sender, opts ...Option) *Server {
	s := &Server{
		echo:            echo.New(),
		handler:         handler,
		sender:          sender,
		turnTimeout:     DefaultTurnTimeout,
		shutdownTimeout: DefaultShutdownTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}

	e := s.echo
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURIPath: true,
		LogStatus:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			logging.From(c.Request().Context()).Debug("http_request",
				"method", v.Method,
				"path", v.URIPath,
				"status", v.Status,
				"latency", v.Latency)
			return nil
		},
	}))

	e.POST("/api/messages", s.handleMessages)
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "healthy"})
	})
	if s.metrics != nil {
		e.GET("/metrics", echo.WrapHandler(s.metrics))
	}

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

func (s *Server) handleMessages(c echo.Context) error {
	req := c.Request()
	ctx := req.Context()
	logger := logging.From(ctx)

	if !strings.Contains(req.Header.Get(echo.HeaderContentType), echo.MIMEApplicationJSON) {
		return c.NoContent(http.StatusUnsupportedMediaType)
	}

	var activity botframework.Activity
	if err := json.NewDecoder(req.Body).Decode(&activity); err != nil {
		logger.Warn("invalid_activity", "error", err)
		return c.NoContent(http.StatusBadRequest)
	}

	if s.auth != nil {
		if err := s.auth.Verify(ctx, req.Header.Get(echo.HeaderAuthorization), activity.ServiceURL); err != nil {
			logger.Warn("auth_failed", "error", err, "channel_id", activity.ChannelID)
			return c.NoContent(http.StatusUnauthorized)
		}
	}

	switch activity.Type {
	case botframework.ActivityMessage, botframework.ActivityConversationUpdate:
		s.dispatch(ctx, &activity)
	default:
		logger.Debug("activity_ignored", "type", activity.Type)
	}

	return c.NoContent(http.StatusAccepted)
}

// dispatch runs the activity on its own goroutine so the channel gets its
// acknowledgement before the backend answers.
func (s *Server) dispatch(parent context.Context, activity *botframework.Activity) {
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()

		ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), s.turnTimeout)
		defer cancel()
		logger := logging.From(ctx)

		defer func() {
			if r := recover(); r != nil {
				logger.Error("turn_panic", "panic", r, "activity_id", activity.ID)
			}
		}()

		var convOpts []botframework.ConversationOption
		if s.streamInterval > 0 {
			convOpts = append(convOpts, botframework.WithStreamInterval(s.streamInterval))
		}
		conv := botframework.NewConversation(s.sender, activity, convOpts...)

		switch activity.Type {
		case botframework.ActivityMessage:
			s.handler.HandleTurn(ctx, activity.Turn(), conv)

		case botframework.ActivityConversationUpdate:
			for _, member := range activity.AddedMembers() {
				if err := s.handler.Welcome(ctx, conv); err != nil {
					logger.Error("welcome_failed", "error", err, "member_id", member.ID)
				}
			}
		}
	}()
}

// Wait blocks until every dispatched activity has finished.
func (s *Server) Wait() {
	s.inflight.Wait()
}

// Run serves on addr until ctx is cancelled, then shuts down and waits for
// in-flight turns.
func (s *Server) Run(ctx context.Context, addr string) error {
	logger := logging.From(ctx)
	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		logger.Info("server_started", "addr", addr)
		if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return goerr.Wrap(err, "failed to serve", goerr.V("addr", addr))
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.shutdownTimeout)
	defer cancel()
	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		return goerr.Wrap(err, "failed to shut down server")
	}
	s.Wait()
	logger.Info("server_stopped")
	return nil
}
