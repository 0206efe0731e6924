package config

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"switchcontrol/bus"
	"switchcontrol/x/logx"
)

const (
	serviceName  = "config"
	configPrefix = "config"
)

// Service publishes the runtime-tunable sections of the app config as
// retained messages on config/<section>. Payloads are decoded JSON objects.
type Service struct {
	Name string
	app  *App
	log  *slog.Logger
}

func NewService(app *App, log *slog.Logger) *Service {
	return &Service{
		Name: serviceName,
		app:  app,
		log:  logx.OrDiscard(log).With("component", serviceName),
	}
}

func (s *Service) sections() map[string]any {
	return map[string]any{
		"bridge":    s.app.Bridge,
		"heartbeat": s.app.Heartbeat,
	}
}

func (s *Service) publishConfig(conn *bus.Connection) error {
	for key, section := range s.sections() {
		payload, err := toObject(section)
		if err != nil {
			return fmt.Errorf("section %s: %w", key, err)
		}
		conn.Publish(conn.NewMessage(bus.T(configPrefix, key), payload, true))
		s.log.Debug("config section published", "section", key)
	}
	return nil
}

// Start launches the config publisher in a goroutine.
func (s *Service) Start(ctx context.Context, conn *bus.Connection) {
	go func() {
		if ctx.Err() != nil {
			return
		}
		if err := s.publishConfig(conn); err != nil {
			s.log.Error("publish config", "err", err)
		}
	}()
}

func toObject(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}
