package api

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/nerrad567/womgr-core/internal/dashboard"
	"github.com/nerrad567/womgr-core/internal/device"
	"github.com/nerrad567/womgr-core/internal/infrastructure/mqtt"
)

// WebSocket channels for device lifecycle and action events.
// Reachability changes use monitor.ChannelStateChanged.
const (
	ChannelDeviceRegistered = "device.registered"
	ChannelDeviceRemoved    = "device.removed"
	ChannelDeviceAction     = "device.action"
)

// Defaults used when the wake configuration leaves them unset.
const (
	defaultWakeBurst         = 3
	defaultWakeBurstInterval = time.Second
)

// ActionEvent is broadcast on ChannelDeviceAction after every action.
type ActionEvent struct {
	Device string    `json:"device"`
	Action string    `json:"action"`
	Source string    `json:"source"`
	OK     bool      `json:"ok"`
	Detail string    `json:"detail,omitempty"`
	At     time.Time `json:"ts"`
}

// WakeResult reports the outcome of a wake burst.
type WakeResult struct {
	Device    string `json:"device"`
	Sent      bool   `json:"sent"`
	Packets   int    `json:"packets"`
	Confirmed *bool  `json:"confirmed,omitempty"`
}

// wake sends the configured burst of magic packets. It fails only when the
// device is gone or ctx ends; send failures are reported as Sent=false.
func (s *Server) wake(ctx context.Context, rec *device.Record, source string) (WakeResult, error) {
	sw := rec.Wake()
	if sw == nil {
		return WakeResult{}, device.ErrRemoved
	}

	burst := s.wakeCfg.Burst
	if burst <= 0 {
		burst = defaultWakeBurst
	}
	interval := s.wakeCfg.BurstInterval
	if interval <= 0 {
		interval = defaultWakeBurstInterval
	}

	res := WakeResult{Device: rec.Name}
	var lastErr error
	for i := 0; i < burst; i++ {
		if i > 0 {
			timer := time.NewTimer(interval)
			select {
			case <-ctx.Done():
				timer.Stop()
				s.actionDone(rec, device.HistoryWake, source, res.Packets > 0, lastErr)
				return res, ctx.Err()
			case <-timer.C:
			}
		}
		if err := sw.TurnOn(ctx); err != nil {
			lastErr = err
			continue
		}
		res.Packets++
	}
	res.Sent = res.Packets > 0

	s.actionDone(rec, device.HistoryWake, source, res.Sent, lastErr)
	return res, nil
}

// probe runs a single reachability check through the monitor so that
// transitions are published the same way as scheduled probes.
func (s *Server) probe(ctx context.Context, rec *device.Record, source string) (bool, error) {
	return s.monitor.ProbeDevice(ctx, rec, source)
}

// system launches a restart or shutdown command.
func (s *Server) system(ctx context.Context, rec *device.Record, action device.Action, source string) error {
	sw := rec.System()
	if sw == nil {
		return device.ErrRemoved
	}

	err := sw.Do(ctx, action)
	if errors.Is(err, device.ErrUnknownAction) {
		return err
	}

	event := device.HistoryRestart
	if action == device.ActionShutdown {
		event = device.HistoryShutdown
	}
	s.actionDone(rec, event, source, err == nil, err)
	return err
}

// actionDone fans an action result out to history, metrics, MQTT and
// WebSocket subscribers. Sink failures are logged and otherwise ignored.
func (s *Server) actionDone(rec *device.Record, action, source string, ok bool, cause error) {
	now := time.Now().UTC()
	detail := ""
	if cause != nil {
		detail = cause.Error()
	}

	if s.history != nil {
		// Recorded with a fresh context so a cancelled request still lands
		// in the history.
		ctx, cancel := context.WithTimeout(context.Background(), sinkTimeout)
		if err := s.history.Record(ctx, rec.Name, action, source, detail); err != nil {
			s.logger.Warn("recording device history", "device", rec.Name, "error", err)
		}
		cancel()
	}
	if s.metrics != nil {
		s.metrics.WriteAction(rec.Name, action, ok, now)
	}
	if s.mqtt != nil {
		if err := s.mqtt.PublishEvent(rec.Slug(), mqtt.EventPayload{
			Event:     action,
			Device:    rec.Name,
			OK:        ok,
			Detail:    detail,
			Timestamp: now,
		}); err != nil {
			s.logger.Debug("publishing device event", "device", rec.Name, "error", err)
		}
	}
	if s.hub != nil {
		s.hub.Broadcast(ChannelDeviceAction, ActionEvent{
			Device: rec.Name,
			Action: action,
			Source: source,
			OK:     ok,
			Detail: detail,
			At:     now,
		})
	}
}

// sinkTimeout bounds history writes and scheduled dashboard updates.
const sinkTimeout = 30 * time.Second

// onRegistryEvent keeps the dashboard and the event sinks in step with the
// registry. It runs on the registering goroutine, so dashboard work is
// queued for the dashboard worker. Events after Close are ignored.
func (s *Server) onRegistryEvent(ev device.Event) {
	if s.closed.Load() {
		return
	}
	rec := ev.Record

	var channel, event string
	switch ev.Type {
	case device.EventRegistered:
		channel, event = ChannelDeviceRegistered, device.HistoryRegistered
	case device.EventRemoved:
		channel, event = ChannelDeviceRemoved, device.HistoryRemoved
		s.monitor.Forget(rec.Name)
	default:
		return
	}

	s.enqueueDashboard(func() {
		ctx, cancel := context.WithTimeout(s.bgCtx, sinkTimeout)
		defer cancel()

		if err := s.syncCard(ctx, rec); err != nil {
			s.logger.Error("dashboard update failed",
				"device", rec.Name,
				"event", event,
				"path", s.reconciler.ResolvePath(dashboard.SpecFor(rec)),
				"error", err,
			)
		}
		if s.history != nil {
			if err := s.history.Record(ctx, rec.Name, event, device.HistorySourceAPI, ""); err != nil {
				s.logger.Warn("recording device history", "device", rec.Name, "error", err)
			}
		}
	})

	if s.mqtt != nil {
		if err := s.mqtt.PublishEvent(rec.Slug(), mqtt.EventPayload{
			Event:     event,
			Device:    rec.Name,
			OK:        true,
			Timestamp: time.Now().UTC(),
		}); err != nil {
			s.logger.Debug("publishing device event", "device", rec.Name, "error", err)
		}
	}
	if s.hub != nil {
		s.hub.Broadcast(channel, rec.Info())
	}
}

// syncCard makes the dashboard match the registry for rec's name. The
// registry is consulted when the job runs, not when the event fired, so a
// stale event cannot resurrect or delete the card of the current device.
func (s *Server) syncCard(ctx context.Context, rec *device.Record) error {
	old := dashboard.SpecFor(rec)
	current, err := s.registry.Get(rec.Name)
	if err != nil {
		return s.reconciler.RemoveCard(ctx, old)
	}

	spec := dashboard.SpecFor(current)
	if s.reconciler.ResolvePath(spec) != s.reconciler.ResolvePath(old) {
		if err := s.reconciler.RemoveCard(ctx, old); err != nil {
			return err
		}
	}
	return s.reconciler.UpsertCard(ctx, spec)
}

// dashboardQueue holds dashboard jobs in the order registry events arrived.
// One worker goroutine runs them and exits when the queue drains.
type dashboardQueue struct {
	mu      sync.Mutex
	pending []func()
	running bool
}

func (s *Server) enqueueDashboard(job func()) {
	q := &s.dashQueue
	q.mu.Lock()
	q.pending = append(q.pending, job)
	if q.running {
		q.mu.Unlock()
		return
	}
	q.running = true
	s.bg.Add(1)
	q.mu.Unlock()

	go s.drainDashboard()
}

func (s *Server) drainDashboard() {
	defer s.bg.Done()
	q := &s.dashQueue
	for {
		q.mu.Lock()
		if len(q.pending) == 0 {
			q.running = false
			q.mu.Unlock()
			return
		}
		job := q.pending[0]
		q.pending[0] = nil
		q.pending = q.pending[1:]
		q.mu.Unlock()

		job()
	}
}
