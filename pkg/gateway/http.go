package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"replybot/pkg/bus"
	"replybot/pkg/placeholder"
	"replybot/pkg/rule"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

const (
	channelHTTP         = "http"
	defaultHistoryLimit = 50
)

type statusResponse struct {
	Status    string                  `json:"status"`
	StartedAt time.Time               `json:"started_at,omitzero"`
	Rules     int                     `json:"rules"`
	Channels  map[string]channelState `json:"channels"`
}

// ResolveRequest is the body of POST /v1/resolve.
type ResolveRequest struct {
	Message      string `json:"message"`
	SessionKey   string `json:"session_key,omitempty"`
	Name         string `json:"name,omitempty"`
	FirstName    string `json:"first_name,omitempty"`
	LastName     string `json:"last_name,omitempty"`
	ChatName     string `json:"chat_name,omitempty"`
	FirstContact *bool  `json:"first_contact,omitempty"`
}

// ResolveResponse is the answer to POST /v1/resolve.
type ResolveResponse struct {
	Reply      string   `json:"reply"`
	RuleID     string   `json:"rule_id,omitempty"`
	RuleType   string   `json:"rule_type,omitempty"`
	Tier       string   `json:"tier,omitempty"`
	SessionKey string   `json:"session_key"`
	Anomalies  []string `json:"anomalies,omitempty"`
	Error      string   `json:"error,omitempty"`
}

type rulesResponse struct {
	Source   string         `json:"source"`
	LoadedAt time.Time      `json:"loaded_at"`
	Counts   map[string]int `json:"counts"`
	Fallback bool           `json:"fallback"`
	Issues   []string       `json:"issues,omitempty"`
	Rules    []rule.Rule    `json:"rules"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Service) routes() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			log := s.log.Debug
			if v.Error != nil || v.Status >= http.StatusInternalServerError {
				log = s.log.Warn
			}
			log("HTTP request", "method", v.Method, "uri", v.URI, "status", v.Status, "latency", v.Latency, "error", v.Error)
			return nil
		},
	}))

	e.GET("/healthz", s.handleHealth)
	e.GET("/readyz", s.handleReady)
	e.GET("/metrics", echo.WrapHandler(s.metrics.Handler()))

	v1 := e.Group("/v1")
	v1.POST("/resolve", s.handleResolve)
	v1.GET("/rules", s.handleRules)
	v1.POST("/rules/reload", s.handleReload)
	v1.GET("/placeholders", s.handlePlaceholders)
	v1.GET("/history/:session", s.handleHistory)
	v1.GET("/events", s.handleEvents)

	return e
}

func (s *Service) status(status string) statusResponse {
	s.mu.RLock()
	channels := make(map[string]channelState, len(s.channelStates))
	for name, state := range s.channelStates {
		channels[name] = state
	}
	startedAt := s.startedAt
	s.mu.RUnlock()

	resp := statusResponse{Status: status, StartedAt: startedAt, Channels: channels}
	if snap := s.rules.Snapshot(); snap != nil {
		resp.Rules = snap.Len()
	}

	return resp
}

func (s *Service) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, s.status("ok"))
}

func (s *Service) handleReady(c echo.Context) error {
	if !s.isReady() {
		return c.JSON(http.StatusServiceUnavailable, s.status("not_ready"))
	}

	return c.JSON(http.StatusOK, s.status("ready"))
}

func (s *Service) handleResolve(c echo.Context) error {
	var req ResolveRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body"})
	}

	sessionKey := strings.TrimSpace(req.SessionKey)
	if sessionKey == "" {
		sessionKey = channelHTTP + ":" + uuid.NewString()
	}

	inbound := bus.InboundMessage{
		Channel:    channelHTTP,
		SenderName: req.Name,
		FirstName:  req.FirstName,
		LastName:   req.LastName,
		ChatName:   req.ChatName,
		Content:    req.Message,
		SessionKey: sessionKey,
	}

	outbound, err := s.handle(c.Request().Context(), inbound, req.FirstContact)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
	}

	resp := ResolveResponse{
		Reply:      outbound.Content,
		RuleID:     outbound.RuleID,
		RuleType:   outbound.RuleType,
		Tier:       outbound.Tier,
		SessionKey: sessionKey,
		Anomalies:  outbound.Anomalies,
		Error:      outbound.Error,
	}
	if outbound.Error != "" {
		return c.JSON(http.StatusUnprocessableEntity, resp)
	}

	return c.JSON(http.StatusOK, resp)
}

func (s *Service) handleRules(c echo.Context) error {
	snap := s.rules.Snapshot()
	if snap == nil {
		return c.JSON(http.StatusServiceUnavailable, errorResponse{Error: "no rules loaded"})
	}

	return c.JSON(http.StatusOK, describeSnapshot(snap))
}

func (s *Service) handleReload(c echo.Context) error {
	if s.rules.Path() == "" {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "rules are not backed by a file"})
	}

	snap, err := s.rules.Reload()
	if err != nil {
		return c.JSON(http.StatusUnprocessableEntity, errorResponse{Error: err.Error()})
	}

	return c.JSON(http.StatusOK, describeSnapshot(snap))
}

func (s *Service) handlePlaceholders(c echo.Context) error {
	return c.JSON(http.StatusOK, placeholder.Vocabulary())
}

func (s *Service) handleHistory(c echo.Context) error {
	limit := defaultHistoryLimit
	if raw := c.QueryParam("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: fmt.Sprintf("invalid limit %q", raw)})
		}
		limit = parsed
	}

	entries, err := s.history.List(c.Request().Context(), c.Param("session"), limit)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
	}

	return c.JSON(http.StatusOK, entries)
}

// handleEvents streams bus events as server-sent events until the client leaves.
func (s *Service) handleEvents(c echo.Context) error {
	ctx := c.Request().Context()
	events, unsubscribe := s.bus.SubscribeEvents(ctx, 0)
	defer unsubscribe()

	resp := c.Response()
	resp.Header().Set(echo.HeaderContentType, "text/event-stream")
	resp.Header().Set(echo.HeaderCacheControl, "no-cache")
	resp.Header().Set(echo.HeaderConnection, "keep-alive")
	resp.WriteHeader(http.StatusOK)
	resp.Flush()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-events:
			if !ok {
				return nil
			}

			data, err := json.Marshal(event)
			if err != nil {
				return err
			}
			if _, err := fmt.Fprintf(resp, "event: %s\ndata: %s\n\n", event.Type, data); err != nil {
				return nil
			}
			resp.Flush()
		}
	}
}

func describeSnapshot(snap *rule.Snapshot) rulesResponse {
	counts := make(map[string]int)
	for typ, n := range snap.Counts() {
		counts[string(typ)] = n
	}

	var issues []string
	for _, issue := range snap.Issues() {
		issues = append(issues, issue.Error())
	}

	return rulesResponse{
		Source:   snap.Source(),
		LoadedAt: snap.LoadedAt(),
		Counts:   counts,
		Fallback: snap.HasFallback(),
		Issues:   issues,
		Rules:    snap.Rules(),
	}
}
