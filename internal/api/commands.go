package api

import (
	"context"
	"fmt"

	"github.com/nerrad567/womgr-core/internal/device"
	"github.com/nerrad567/womgr-core/internal/infrastructure/mqtt"
)

// HandleCommand runs an MQTT device command. It matches mqtt.CommandHandler.
//
// The device is resolved synchronously so an unknown slug is reported to
// the caller. The action itself runs in the background because MQTT
// handlers must not block the client.
func (s *Server) HandleCommand(slug string, cmd mqtt.CommandPayload) error {
	if s.closed.Load() {
		return fmt.Errorf("api server closed")
	}
	rec := s.findBySlug(slug)
	if rec == nil {
		return fmt.Errorf("%w: no device with slug %q", device.ErrNotFound, slug)
	}

	var run func(ctx context.Context) error
	switch cmd.Action {
	case mqtt.ActionWake:
		run = func(ctx context.Context) error {
			_, err := s.wake(ctx, rec, device.HistorySourceMQTT)
			return err
		}
	case mqtt.ActionProbe:
		run = func(ctx context.Context) error {
			_, err := s.probe(ctx, rec, device.HistorySourceMQTT)
			return err
		}
	case mqtt.ActionRestart:
		run = func(ctx context.Context) error {
			return s.system(ctx, rec, device.ActionRestart, device.HistorySourceMQTT)
		}
	case mqtt.ActionShutdown:
		run = func(ctx context.Context) error {
			return s.system(ctx, rec, device.ActionShutdown, device.HistorySourceMQTT)
		}
	default:
		return fmt.Errorf("%w: unknown action %q", mqtt.ErrInvalidCommand, cmd.Action)
	}

	s.logger.Info("mqtt command received", "device", rec.Name, "action", cmd.Action)

	s.bg.Add(1)
	go func() {
		defer s.bg.Done()
		ctx, cancel := context.WithTimeout(s.bgCtx, sinkTimeout)
		defer cancel()
		if err := run(ctx); err != nil {
			s.logger.Warn("mqtt command failed", "device", rec.Name, "action", cmd.Action, "error", err)
		}
	}()
	return nil
}

// findBySlug returns the registered device whose slug matches, or nil.
func (s *Server) findBySlug(slug string) *device.Record {
	for _, rec := range s.registry.List() {
		if rec.Slug() == slug {
			return rec
		}
	}
	return nil
}
