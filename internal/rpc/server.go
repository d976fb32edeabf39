package rpc

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/ChamsBouzaiene/trailblaze/internal/engine"
	"github.com/ChamsBouzaiene/trailblaze/internal/session"
	"github.com/ChamsBouzaiene/trailblaze/internal/tools"
	"github.com/ChamsBouzaiene/trailblaze/internal/trail"
)

// Executor runs a decoded trail. *engine.TrailRunner implements it.
type Executor interface {
	Run(ctx context.Context, items []trail.Item, opts engine.RunOptions) engine.TrailResult
}

// History is durable session storage, such as *session.Store.
type History interface {
	Events(ctx context.Context, id string) ([]session.Event, error)
	List(ctx context.Context, limit int) ([]session.Session, error)
}

// Options wires a Server to one device's run stack.
type Options struct {
	Executor Executor
	Repo     *tools.Repo
	Sessions *session.Manager
	Events   *session.Logger
	Hub      *session.Hub
	// History is optional; it serves events the hub no longer retains.
	History History
	// Metrics is served on /metrics when set.
	Metrics http.Handler
	// Job is the device's run slot, e.g. from Jobs.For. A new slot with
	// JoinTimeout is created when nil.
	Job         *Job
	JoinTimeout time.Duration
	Logger      *zap.Logger
}

// Server is the HTTP surface of one device.
type Server struct {
	opts Options
	echo *echo.Echo
	job  *Job
	log  *zap.Logger
	now  func() time.Time
}

// NewServer creates the server and registers its routes.
func NewServer(opts Options) *Server {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("rpc")

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler(log)
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			log.Debug("request",
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency))
			return nil
		},
	}))

	job := opts.Job
	if job == nil {
		job = NewJob(opts.JoinTimeout, log)
	}
	s := &Server{
		opts: opts,
		echo: e,
		job:  job,
		log:  log,
		now:  time.Now,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.echo.GET("/health", s.health)
	if s.opts.Metrics != nil {
		s.echo.GET("/metrics", echo.WrapHandler(s.opts.Metrics))
	}

	v1 := s.echo.Group("/v1")
	v1.POST("/run", s.run)
	v1.GET("/status", s.status)
	v1.POST("/cancel", s.cancel)
	v1.GET("/tools", s.listTools)
	v1.POST("/tools", s.setTools)
	v1.GET("/sessions", s.listSessions)
	v1.GET("/sessions/:id/events", s.events)
	v1.GET("/sessions/:id/stream", s.stream)
}

// ServeHTTP makes the server usable with httptest and custom listeners.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.echo.ServeHTTP(w, r) }

// Job returns the run slot of this server's device.
func (s *Server) Job() *Job { return s.job }

// Start serves on addr until Shutdown.
func (s *Server) Start(addr string) error {
	s.log.Info("listening", zap.String("addr", addr))
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and cancels the running trail.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.echo.Shutdown(ctx)
	if jerr := s.job.Close(ctx); err == nil {
		err = jerr
	}
	return err
}

// RunRequest starts a trail.
type RunRequest struct {
	YAML             string `json:"yaml"`
	UseRecordedSteps bool   `json:"useRecordedSteps"`
	SessionID        string `json:"sessionId,omitempty"`
	TestClass        string `json:"testClass,omitempty"`
	TestMethod       string `json:"testMethod,omitempty"`
}

type RunResponse struct {
	SessionID string `json:"sessionId"`
}

type StatusResponse struct {
	SessionID string `json:"sessionId,omitempty"`
	Running   bool   `json:"running"`
}

type CancelResponse struct {
	SessionID string `json:"sessionId,omitempty"`
	Cancelled bool   `json:"cancelled"`
}

type EventsResponse struct {
	Events []session.Event `json:"events"`
}

type ToolInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	JSONSchema  string `json:"jsonSchema"`
}

type ToolsResponse struct {
	Tools []ToolInfo `json:"tools"`
}

type ToolsRequest struct {
	Names []string `json:"names"`
}

type SessionsResponse struct {
	Sessions []session.Session `json:"sessions"`
}

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) run(c echo.Context) error {
	var req RunRequest
	if err := c.Bind(&req); err != nil {
		return serializationError("invalid run request", err)
	}
	if req.YAML == "" {
		return serializationError("yaml is required", nil)
	}
	items, err := trail.DecodeBytes([]byte(req.YAML), s.opts.Repo.Codec())
	if err != nil {
		return serializationError("invalid trail yaml", err)
	}

	id := req.SessionID
	if id == "" {
		id = uuid.NewString()
	}
	if s.job.Running() {
		s.opts.Sessions.CancelCurrentSession()
	}
	opts := engine.RunOptions{
		SessionID:        id,
		TestClass:        req.TestClass,
		TestMethod:       req.TestMethod,
		UseRecordedSteps: req.UseRecordedSteps,
	}
	s.job.Start(id, func(ctx context.Context) {
		res := s.opts.Executor.Run(ctx, items, opts)
		s.log.Info("trail finished", zap.String("session", res.SessionID), zap.Stringer("status", res.Status))
	}, s.superseded)

	return c.JSON(http.StatusAccepted, RunResponse{SessionID: id})
}

// superseded ends the replaced run's session as cancelled. When the run
// already ended it on its own, the logger drops the duplicate.
func (s *Server) superseded(sup Superseded) {
	st := session.Cancelled(s.now().Sub(sup.Task.Started), "superseded by a new run")
	if _, logged := s.opts.Events.EndSession(context.Background(), sup.Task.ID, st); logged {
		s.log.Info("ended superseded session", zap.String("session", sup.Task.ID), zap.Bool("joined", sup.Joined))
	}
	s.opts.Sessions.EndSessionIf(sup.Task.ID)
}

func (s *Server) status(c echo.Context) error {
	resp := StatusResponse{Running: s.job.Running()}
	if id, ok := s.opts.Sessions.CurrentSessionID(); ok {
		resp.SessionID = id
	} else if t, ok := s.job.Current(); ok {
		resp.SessionID = t.ID
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) cancel(c echo.Context) error {
	id, _ := s.opts.Sessions.CurrentSessionID()
	flagged := s.opts.Sessions.CancelCurrentSession()
	t, stopped := s.job.Cancel()
	if id == "" && t != nil {
		id = t.ID
	}
	return c.JSON(http.StatusOK, CancelResponse{SessionID: id, Cancelled: flagged || stopped})
}

func (s *Server) listTools(c echo.Context) error {
	schemas := s.opts.Repo.Schemas()
	out := make([]ToolInfo, 0, len(schemas))
	for _, sc := range schemas {
		out = append(out, ToolInfo{Name: sc.Name, Description: sc.Description, JSONSchema: sc.JSONSchema})
	}
	return c.JSON(http.StatusOK, ToolsResponse{Tools: out})
}

// setTools switches the offered tool set. The repo may only change between
// tool executions, so it is refused while a trail runs.
func (s *Server) setTools(c echo.Context) error {
	var req ToolsRequest
	if err := c.Bind(&req); err != nil {
		return serializationError("invalid tools request", err)
	}
	if s.job.Running() {
		return httpError(http.StatusConflict, "cannot change tools while a trail is running")
	}
	names := make([]tools.ToolName, 0, len(req.Names))
	for _, n := range req.Names {
		names = append(names, tools.ToolName(n))
	}
	if err := s.opts.Repo.SetActive(names); err != nil {
		e := httpError(http.StatusBadRequest, "invalid tool set")
		e.Details = err.Error()
		return e
	}
	return s.listTools(c)
}

func (s *Server) listSessions(c echo.Context) error {
	if s.opts.History == nil {
		return c.JSON(http.StatusOK, SessionsResponse{Sessions: []session.Session{}})
	}
	limit := 50
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return serializationError("limit must be a positive integer", err)
		}
		limit = n
	}
	list, err := s.opts.History.List(c.Request().Context(), limit)
	if err != nil {
		return err
	}
	if list == nil {
		list = []session.Session{}
	}
	return c.JSON(http.StatusOK, SessionsResponse{Sessions: list})
}

func (s *Server) events(c echo.Context) error {
	id := c.Param("id")
	after, err := afterParam(c)
	if err != nil {
		return err
	}
	evs, err := s.sessionEvents(c.Request().Context(), id, after)
	if err != nil {
		return err
	}
	if evs == nil {
		evs = []session.Event{}
	}
	return c.JSON(http.StatusOK, EventsResponse{Events: evs})
}

// sessionEvents prefers the hub and falls back to durable history.
func (s *Server) sessionEvents(ctx context.Context, id string, after int64) ([]session.Event, error) {
	if evs := s.opts.Hub.Events(id, after); len(evs) > 0 || s.opts.History == nil {
		return evs, nil
	}
	stored, err := s.opts.History.Events(ctx, id)
	if err != nil {
		return nil, err
	}
	var out []session.Event
	for _, e := range stored {
		if e.Seq > after {
			out = append(out, e)
		}
	}
	return out, nil
}

func afterParam(c echo.Context) (int64, error) {
	v := c.QueryParam("after")
	if v == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, serializationError("after must be an integer", err)
	}
	return n, nil
}
