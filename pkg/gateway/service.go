package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"replybot/pkg/bus"
	"replybot/pkg/channel"
	"replybot/pkg/config"
	"replybot/pkg/engine"
	"replybot/pkg/history"
	"replybot/pkg/metrics"
	"replybot/pkg/rule"
	"replybot/pkg/rulestore"

	"github.com/labstack/echo/v4"
)

// Options wires a Service. Config, Rules and Resolver are required; the rest get
// in-process defaults.
type Options struct {
	Config   *config.Config
	Rules    *rulestore.Store
	Resolver *engine.Resolver
	History  history.Store
	Metrics  *metrics.Registry
	Bus      *bus.MessageBus
	Channels []channel.Adapter
	Logger   *slog.Logger
}

// Service answers messages from channels and the HTTP API.
type Service struct {
	cfg      *config.Config
	log      *slog.Logger
	rules    *rulestore.Store
	resolver *engine.Resolver
	history  history.Store
	metrics  *metrics.Registry
	bus      *bus.MessageBus
	channels []channel.Adapter
	sessions *sessionLocks
	echo     *echo.Echo

	mu            sync.RWMutex
	startedAt     time.Time
	channelStates map[string]channelState
}

type channelState struct {
	Running bool   `json:"running"`
	Error   string `json:"error,omitempty"`
}

func NewService(opts Options) (*Service, error) {
	if opts.Config == nil {
		return nil, errors.New("config is required")
	}
	if opts.Rules == nil {
		return nil, errors.New("rule store is required")
	}
	if opts.Resolver == nil {
		return nil, errors.New("resolver is required")
	}

	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	if opts.History == nil {
		opts.History = history.NewMemory()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewRegistry()
	}
	if opts.Bus == nil {
		opts.Bus = bus.NewMessageBus()
	}

	channelStates := make(map[string]channelState, len(opts.Channels))
	for _, adapter := range opts.Channels {
		channelStates[adapter.Name()] = channelState{}
	}

	s := &Service{
		cfg:           opts.Config,
		log:           log.With("component", "gateway.service"),
		rules:         opts.Rules,
		resolver:      opts.Resolver,
		history:       opts.History,
		metrics:       opts.Metrics,
		bus:           opts.Bus,
		channels:      opts.Channels,
		sessions:      newSessionLocks(),
		channelStates: channelStates,
	}
	s.echo = s.routes()

	return s, nil
}

// ReloadHook reports rule reloads to metrics and event subscribers. Pass it as
// rulestore.Options.OnReload.
func ReloadHook(mb *bus.MessageBus, reg *metrics.Registry) func(*rule.Snapshot, error) {
	return func(snap *rule.Snapshot, err error) {
		if reg != nil {
			reg.ObserveReload(snap, err)
		}
		if mb == nil {
			return
		}

		event := bus.Event{Type: bus.EventRulesReloaded}
		if err != nil {
			event.Error = err.Error()
		} else {
			event.Payload = map[string]string{
				"source": snap.Source(),
				"rules":  fmt.Sprint(snap.Len()),
				"issues": fmt.Sprint(len(snap.Issues())),
			}
		}
		mb.PublishEvent(context.Background(), event)
	}
}

// Handler exposes the HTTP API, mainly for tests.
func (s *Service) Handler() http.Handler {
	return s.echo
}

// Run starts the channels, the HTTP API and, when configured, the rules watcher. It
// returns when ctx is done or a component fails.
func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	s.startedAt = time.Now().UTC()
	s.mu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	defer wg.Wait()

	for _, adapter := range s.channels {
		s.setChannelState(adapter.Name(), channelState{Running: true})
	}

	serverErrors := make(chan error, 1)
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.runHTTPServer(runCtx, serverErrors)
	}()

	if s.cfg.Rules.Watch && s.rules.Path() != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.rules.Watch(runCtx); err != nil {
				s.log.Error("Rules watcher stopped", "error", err)
			}
		}()
	}

	errCh := make(chan error, len(s.channels))
	for _, adapter := range s.channels {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := adapter.Run(runCtx, s.Handle)
			s.setChannelState(adapter.Name(), channelState{Running: false, Error: errorString(err)})
			if err != nil && !errors.Is(err, context.Canceled) {
				errCh <- fmt.Errorf("run %s channel: %w", adapter.Name(), err)
			}
		}()
	}

	select {
	case <-ctx.Done():
		return nil
	case err := <-serverErrors:
		return err
	case err := <-errCh:
		return err
	}
}

// Handle answers one inbound message. Messages of the same session are handled one
// at a time so first contact is decided exactly once. A message no rule answers
// yields an outbound message with Error set and a nil error.
func (s *Service) Handle(ctx context.Context, inbound bus.InboundMessage) (bus.OutboundMessage, error) {
	return s.handle(ctx, inbound, nil)
}

// handle is Handle with an optional first contact override used by the HTTP API.
func (s *Service) handle(ctx context.Context, inbound bus.InboundMessage, firstContact *bool) (bus.OutboundMessage, error) {
	if strings.TrimSpace(inbound.SessionKey) == "" {
		return bus.OutboundMessage{}, errors.New("session key is required")
	}

	unlock := s.sessions.lock(inbound.SessionKey)
	defer unlock()

	first := false
	if firstContact != nil {
		first = *firstContact
	} else {
		known, err := s.history.FirstContact(ctx, inbound.SessionKey)
		if err != nil {
			s.log.Warn("First contact lookup failed", "session_key", inbound.SessionKey, "error", err)
		}
		first = known
	}

	s.publish(ctx, inbound, bus.Event{Type: bus.EventMessageReceived})

	conv := rule.Conversation{
		Name:         inbound.SenderName,
		FirstName:    inbound.FirstName,
		LastName:     inbound.LastName,
		ChatName:     inbound.ChatName,
		FirstContact: first,
		SessionKey:   inbound.SessionKey,
		Channel:      inbound.Channel,
	}

	reply, resolveErr := s.resolver.Resolve(inbound.Content, conv, s.rules.Snapshot())

	s.record(ctx, history.Entry{
		SessionKey: inbound.SessionKey,
		Channel:    inbound.Channel,
		Role:       history.RoleUser,
		Content:    inbound.Content,
	})

	outbound := bus.OutboundMessage{
		Channel:    inbound.Channel,
		ChatID:     inbound.ChatID,
		SessionKey: inbound.SessionKey,
		Anomalies:  reply.AnomalyStrings(),
		Metadata:   map[string]string{"first_contact": fmt.Sprint(first)},
	}

	for _, anomaly := range reply.Anomalies {
		s.publish(ctx, inbound, bus.Event{
			Type:    bus.EventAnomaly,
			Payload: map[string]string{"category": rule.CategoryFromError(anomaly), "rule_id": rule.RuleIDFromError(anomaly)},
			Error:   anomaly.Error(),
		})
	}

	if resolveErr != nil {
		outbound.Error = resolveErr.Error()
		s.publish(ctx, inbound, bus.Event{
			Type:    bus.EventReplyFailed,
			Payload: map[string]string{"category": rule.CategoryFromError(resolveErr)},
			Error:   resolveErr.Error(),
		})
		return outbound, nil
	}

	outbound.Content = reply.Text
	outbound.RuleID = reply.RuleID
	outbound.RuleType = string(reply.RuleType)
	outbound.Tier = string(reply.Tier)

	s.record(ctx, history.Entry{
		SessionKey: inbound.SessionKey,
		Channel:    inbound.Channel,
		Role:       history.RoleBot,
		Content:    reply.Text,
		RuleID:     reply.RuleID,
	})

	s.publish(ctx, inbound, bus.Event{
		Type:    bus.EventReplyResolved,
		Payload: map[string]string{"rule_id": reply.RuleID, "rule_type": string(reply.RuleType), "tier": string(reply.Tier)},
	})

	return outbound, nil
}

func (s *Service) record(ctx context.Context, entry history.Entry) {
	if err := s.history.Append(ctx, entry); err != nil {
		s.log.Error("Failed to record history", "session_key", entry.SessionKey, "role", entry.Role, "error", err)
	}
}

func (s *Service) publish(ctx context.Context, inbound bus.InboundMessage, event bus.Event) {
	event.Channel = inbound.Channel
	event.ChatID = inbound.ChatID
	event.SessionKey = inbound.SessionKey
	s.bus.PublishEvent(ctx, event)
}

func (s *Service) runHTTPServer(ctx context.Context, errCh chan<- error) {
	addr := s.cfg.Gateway.Addr()
	server := &http.Server{
		Addr:              addr,
		Handler:           s.echo,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	s.log.Info("Gateway HTTP server started", "address", addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		errCh <- fmt.Errorf("start http server: %w", err)
	}
}

func (s *Service) isReady() bool {
	if s.rules.Snapshot() == nil {
		return false
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.channelStates) == 0 {
		return true
	}

	for _, state := range s.channelStates {
		if state.Running {
			return true
		}
	}

	return false
}

func (s *Service) setChannelState(name string, state channelState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channelStates[name] = state
}

func errorString(err error) string {
	if err == nil {
		return ""
	}

	return err.Error()
}
