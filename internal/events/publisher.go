// Package events publishes run summaries to NATS for downstream consumers
// (dashboards, cache purgers). Publication is optional and best effort: a
// failed publish never fails a run.
package events

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"git.home.luguber.info/inful/assetpress/internal/config"
	"git.home.luguber.info/inful/assetpress/internal/logfields"
	"git.home.luguber.info/inful/assetpress/internal/manifest"
)

// RunEvent is the wire payload published after each run.
type RunEvent struct {
	RunID      string    `json:"run_id"`
	FinishedAt time.Time `json:"finished_at"`
	SourceDir  string    `json:"source_dir"`
	Success    bool      `json:"success"`
	Processed  int       `json:"processed"`
	Failed     int       `json:"failed"`
}

// Publisher manages the NATS connection for run-event publication.
type Publisher struct {
	conn    *nats.Conn
	subject string
}

// NewPublisher connects to the configured NATS server.
func NewPublisher(cfg config.EventsConfig) (*Publisher, error) {
	if !cfg.Enabled {
		return nil, fmt.Errorf("event publication is disabled")
	}

	conn, err := nats.Connect(cfg.URL,
		nats.Name("assetpress"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	slog.Info("NATS publisher initialized",
		slog.String("url", cfg.URL),
		slog.String("subject", cfg.Subject))

	return &Publisher{conn: conn, subject: cfg.Subject}, nil
}

// PublishRun publishes a summary of a finished run.
func (p *Publisher) PublishRun(m *manifest.RunManifest) error {
	event := RunEvent{
		RunID:      m.RunID,
		FinishedAt: m.FinishedAt,
		SourceDir:  m.SourceDir,
		Success:    m.Success,
		Processed:  len(m.Processed),
		Failed:     len(m.Failures),
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal run event: %w", err)
	}
	if err := p.conn.Publish(p.subject, data); err != nil {
		return fmt.Errorf("failed to publish run event: %w", err)
	}

	slog.Debug("Published run event", logfields.RunID(m.RunID))
	return nil
}

// Close drains and closes the connection.
func (p *Publisher) Close() {
	if p.conn == nil {
		return
	}
	if err := p.conn.Drain(); err != nil {
		p.conn.Close()
	}
}
