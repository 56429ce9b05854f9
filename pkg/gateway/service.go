// Package gateway wires the source adapters, the message pipeline and the display scheduler
// into one running service.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"upsidedown/pkg/admission"
	"upsidedown/pkg/bus"
	"upsidedown/pkg/channel"
	"upsidedown/pkg/command"
	"upsidedown/pkg/config"
	"upsidedown/pkg/display"
	"upsidedown/pkg/logger"
	"upsidedown/pkg/password"
	"upsidedown/pkg/quota"
)

const (
	defaultHealthHost = "0.0.0.0"
	defaultHealthPort = 18790
)

// Dependencies are the collaborators the gateway does not own.
type Dependencies struct {
	Device    display.Device
	Passwords *password.Pool
	// Recorder persists admissions; optional.
	Recorder admission.Recorder
	// InitialAdmitted restores the admitted message count.
	InitialAdmitted uint64
}

type Service struct {
	cfg      config.Config
	log      *slog.Logger
	eventLog *slog.Logger
	bus      *bus.MessageBus
	channels []channel.Adapter

	limits     *quota.Limits
	tracker    *quota.Tracker
	passwords  *password.Pool
	scheduler  *display.Scheduler
	admission  *admission.Controller
	dispatcher *command.Dispatcher
	processor  *processor
	cron       *cron.Cron

	mu               sync.RWMutex
	startedAt        time.Time
	schedulerRunning bool
	channelStates    map[string]channelState
}

type channelState struct {
	Running bool   `json:"running"`
	Error   string `json:"error,omitempty"`
}

type statusResponse struct {
	Status        string                  `json:"status"`
	UptimeSeconds int64                   `json:"uptime_seconds"`
	Display       string                  `json:"display"`
	Channels      map[string]channelState `json:"channels"`
}

// StatsSnapshot is served on /stats.
type StatsSnapshot struct {
	admission.Stats
	QueueDepth         int            `json:"queue_depth"`
	Displayed          uint64         `json:"displayed"`
	DisplayState       string         `json:"display_state"`
	Current            string         `json:"current,omitempty"`
	InFlight           map[string]int `json:"in_flight"`
	PendingInbound     int            `json:"pending_inbound"`
	PasswordsAvailable int            `json:"passwords_available"`
	PasswordsConsumed  int            `json:"passwords_consumed"`
	Debug              bool           `json:"debug"`
}

func NewService(cfg *config.Config, adapters []channel.Adapter, deps Dependencies, log *slog.Logger) (*Service, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if len(adapters) == 0 {
		return nil, errors.New("at least one channel adapter is required")
	}
	if deps.Device == nil {
		return nil, errors.New("display device is required")
	}
	if deps.Passwords == nil {
		deps.Passwords = password.NewPool(nil)
	}
	if log == nil {
		log = slog.Default()
	}

	resolved := *cfg
	resolved.ApplyDefaults()

	channelStates := make(map[string]channelState, len(adapters))
	for _, adapter := range adapters {
		channelStates[adapter.Name()] = channelState{}
	}

	s := &Service{
		cfg:           resolved,
		log:           log.With("component", "gateway.service"),
		eventLog:      log.With("component", "bus.events"),
		bus:           bus.NewMessageBus(),
		channels:      adapters,
		limits:        quota.NewLimits(resolved.Limits.MaxMessageLength, resolved.Limits.MaxMessagesPerAuthor, resolved.Limits.Debug),
		tracker:       quota.NewTracker(),
		passwords:     deps.Passwords,
		channelStates: channelStates,
	}

	d := resolved.Display
	s.scheduler = display.NewScheduler(deps.Device, display.Options{
		Timing: display.Timing{
			CharOn:         d.CharOn(),
			CharGap:        d.CharGap(),
			Cooldown:       d.Cooldown(),
			IdleBrightness: uint8(d.IdleBrightness),
			FullBrightness: uint8(d.FullBrightness),
		},
		Capacity:   d.QueueSize,
		OnComplete: s.onDisplayed,
		Log:        log,
	})

	s.admission = admission.NewController(admission.Options{
		Limits:          s.limits,
		Tracker:         s.tracker,
		Passwords:       s.passwords,
		Queue:           s.scheduler,
		Recorder:        deps.Recorder,
		InitialAdmitted: deps.InitialAdmitted,
		Log:             log,
	})

	s.dispatcher = command.NewDispatcher(command.Dependencies{
		Limits:    s.limits,
		Tracker:   s.tracker,
		Queue:     s.scheduler,
		Passwords: s.passwords,
		Admitted:  s.admission.Admitted,
		Log:       log,
	})

	s.processor = &processor{
		bus:        s.bus,
		limits:     s.limits,
		dispatcher: s.dispatcher,
		admission:  s.admission,
		log:        log.With("component", "gateway.processor"),
	}

	c, err := newAnimationCron(resolved.Schedule.Animation, resolved.Schedule.Timezone, s.scheduledAnimation, s.log)
	if err != nil {
		return nil, err
	}
	s.cron = c

	return s, nil
}

// Run starts every component and blocks until ctx ends or one of them fails. A display
// device failure or an adapter failure is returned. Run returns only after every adapter,
// the processor and the scheduler have stopped.
func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)

	var wg sync.WaitGroup
	defer func() {
		cancel()
		wg.Wait()
		s.bus.Close()
	}()

	s.mu.Lock()
	s.startedAt = time.Now().UTC()
	s.mu.Unlock()

	serverErrors := make(chan error, 1)
	go s.runHealthServer(ctx, serverErrors)

	wg.Add(3)
	go func() {
		defer wg.Done()
		observeEvents(ctx, s.bus, s.eventLog)
	}()
	go func() {
		defer wg.Done()
		s.processor.Run(ctx)
	}()

	displayErr := make(chan error, 1)
	go func() {
		defer wg.Done()
		s.setSchedulerRunning(true)
		err := s.scheduler.Run(ctx)
		s.setSchedulerRunning(false)
		if err != nil {
			displayErr <- fmt.Errorf("display: %w", err)
		}
	}()

	if s.cron != nil {
		s.cron.Start()
		defer s.cron.Stop()
	}

	errCh := make(chan error, len(s.channels))
	for _, adapter := range s.channels {
		s.setChannelState(adapter.Name(), channelState{Running: true})

		wg.Add(1)
		go func() {
			defer wg.Done()
			err := adapter.Run(ctx, s.handleInbound)
			s.setChannelState(adapter.Name(), channelState{Running: false, Error: errorString(err)})
			if err != nil && !errors.Is(err, context.Canceled) {
				errCh <- fmt.Errorf("run %s channel: %w", adapter.Name(), err)
			}
		}()
	}

	notifySystemd(daemon.SdNotifyReady, s.log)
	defer notifySystemd(daemon.SdNotifyStopping, s.log)
	s.log.Info("Gateway started", "channels", len(s.channels), "passwords", s.passwords.Available())

	select {
	case <-ctx.Done():
		return nil
	case err := <-serverErrors:
		return err
	case err := <-errCh:
		return err
	case err := <-displayErr:
		return err
	}
}

// handleInbound is the Handler given to every adapter. It hands the message to the
// processor and waits for the reply addressed to it, at most the configured response
// timeout. Adapters call it for one message at a time, so any reply carrying another
// request id is stale and dropped.
func (s *Service) handleInbound(ctx context.Context, inbound bus.InboundMessage) (bus.OutboundMessage, error) {
	if inbound.RequestID == "" {
		inbound.RequestID = uuid.NewString()
	}

	if !s.bus.PublishInbound(ctx, inbound) {
		if err := ctx.Err(); err != nil {
			return bus.OutboundMessage{}, err
		}
		return bus.OutboundMessage{}, errors.New("message bus closed")
	}

	waitCtx, cancel := context.WithTimeout(ctx, s.cfg.Channels.ResponseTimeout())
	defer cancel()

	for {
		outbound, ok := s.bus.SubscribeOutbound(waitCtx, inbound.Channel)
		if !ok {
			if err := ctx.Err(); err != nil {
				return bus.OutboundMessage{}, err
			}
			logger.WithMessage(s.log, inbound.Channel, inbound.SenderID, inbound.RequestID).Warn("Reply timed out")
			return bus.OutboundMessage{}, channel.ErrNoReply
		}
		if outbound.RequestID != inbound.RequestID {
			logger.WithMessage(s.log, outbound.Channel, outbound.SenderID, outbound.RequestID).Debug("Discarding stale reply")
			continue
		}
		return outbound, nil
	}
}

// onDisplayed feeds a finished request back into the quota tracker.
func (s *Service) onDisplayed(ctx context.Context, req display.Request) {
	if req.Counted {
		s.tracker.Complete(req.Author)
	}
	s.bus.PublishEvent(ctx, bus.Event{
		Type:      bus.EventDisplayFinished,
		Channel:   req.Channel,
		SenderID:  req.Author,
		RequestID: req.ID,
		Payload:   map[string]string{"text": req.Text, "priority": strconv.Itoa(req.Priority)},
	})
}

func (s *Service) scheduledAnimation() {
	if err := s.scheduler.Enqueue(display.NewAnimationRequest("schedule", "schedule")); err != nil {
		s.log.Warn("Failed to enqueue scheduled animation", "error", err)
		return
	}
	s.log.Info("Scheduled animation enqueued")
}

// Bus exposes the message bus, for example to subscribe to events.
func (s *Service) Bus() *bus.MessageBus {
	return s.bus
}

func (s *Service) runHealthServer(ctx context.Context, errCh chan<- error) {
	host := strings.TrimSpace(s.cfg.Gateway.Host)
	if host == "" {
		host = defaultHealthHost
	}

	port := s.cfg.Gateway.Port
	if port <= 0 {
		port = defaultHealthPort
	}

	addr := host + ":" + strconv.Itoa(port)
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/readyz", s.handleReady)
	mux.HandleFunc("/stats", s.handleStats)

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	s.log.Info("Gateway status server started", "address", addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		errCh <- fmt.Errorf("start status server: %w", err)
	}
}

func (s *Service) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.respondStatus(w, http.StatusOK, "ok")
}

func (s *Service) handleReady(w http.ResponseWriter, _ *http.Request) {
	statusCode := http.StatusOK
	status := "ready"
	if !s.isReady() {
		statusCode = http.StatusServiceUnavailable
		status = "not_ready"
	}

	s.respondStatus(w, statusCode, status)
}

func (s *Service) handleStats(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.Stats())
}

// Stats returns a consistent view of the pipeline counters. Pending completions are applied
// first so in-flight counts are current.
func (s *Service) Stats() StatsSnapshot {
	s.tracker.Drain()

	stats := StatsSnapshot{
		Stats:              s.admission.Stats(),
		QueueDepth:         s.scheduler.Len(),
		Displayed:          s.scheduler.Displayed(),
		DisplayState:       string(s.scheduler.State()),
		InFlight:           s.tracker.Snapshot(),
		PendingInbound:     s.bus.InboundLen(),
		PasswordsAvailable: s.passwords.Available(),
		PasswordsConsumed:  s.passwords.Consumed(),
		Debug:              s.limits.Debug(),
	}
	if current, ok := s.scheduler.Current(); ok {
		stats.Current = current.Text
	}
	return stats
}

func (s *Service) respondStatus(w http.ResponseWriter, statusCode int, status string) {
	s.writeJSON(w, statusCode, s.currentStatus(status))
}

func (s *Service) writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log.Error("Failed to write status response", "error", err)
	}
}

func (s *Service) currentStatus(status string) statusResponse {
	s.mu.RLock()
	defer s.mu.RUnlock()

	uptime := int64(0)
	if !s.startedAt.IsZero() {
		uptime = int64(time.Since(s.startedAt).Seconds())
	}

	channels := make(map[string]channelState, len(s.channelStates))
	for name, state := range s.channelStates {
		channels[name] = state
	}

	displayStatus := "stopped"
	if s.schedulerRunning {
		displayStatus = "running"
	}

	return statusResponse{
		Status:        status,
		UptimeSeconds: uptime,
		Display:       displayStatus,
		Channels:      channels,
	}
}

func (s *Service) isReady() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.schedulerRunning {
		return false
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

func (s *Service) setSchedulerRunning(running bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.schedulerRunning = running
}

func errorString(err error) string {
	if err == nil {
		return ""
	}

	return err.Error()
}
