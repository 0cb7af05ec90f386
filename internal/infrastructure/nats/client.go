// Package nats connects the task event bus to NATS JetStream. The stream plays
// the role of the exchange and each event kind is a subject on it.
package nats

import (
	"context"
	"errors"
	"fmt"
	"time"

	natsio "github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"

	"github.com/fastygo/tasktracker/internal/config"
)

// Client owns the connection and the task stream.
type Client struct {
	nc     *natsio.Conn
	js     jetstream.JetStream
	stream jetstream.Stream
	cfg    config.NATSConfig
	logger *zap.Logger
}

// Connect dials NATS and makes sure the stream exists with the configured subjects.
func Connect(ctx context.Context, cfg config.NATSConfig, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Stream == "" {
		return nil, errors.New("nats: stream name is required")
	}

	nc, err := natsio.Connect(cfg.URL,
		natsio.Name(cfg.ClientName),
		natsio.RetryOnFailedConnect(true),
		natsio.MaxReconnects(cfg.MaxReconnects),
		natsio.ReconnectWait(cfg.ReconnectWait),
		natsio.Timeout(cfg.ConnectTimeout),
		natsio.DisconnectErrHandler(func(_ *natsio.Conn, err error) {
			logger.Warn("nats disconnected", zap.Error(err))
		}),
		natsio.ReconnectHandler(func(conn *natsio.Conn) {
			logger.Info("nats reconnected", zap.String("url", conn.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream context: %w", err)
	}

	stream, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:        cfg.Stream,
		Description: "Task lifecycle events",
		Subjects:    cfg.Subjects,
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      cfg.MaxAge,
		Storage:     jetstream.FileStorage,
		Duplicates:  cfg.DuplicateWindow,
		Replicas:    1,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create stream %s: %w", cfg.Stream, err)
	}

	logger.Info("nats connected", zap.String("url", cfg.URL), zap.String("stream", cfg.Stream))
	return &Client{nc: nc, js: js, stream: stream, cfg: cfg, logger: logger}, nil
}

func (c *Client) JetStream() jetstream.JetStream {
	return c.js
}

func (c *Client) Stream() jetstream.Stream {
	return c.stream
}

// Ping round-trips to the server.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.nc == nil {
		return natsio.ErrConnectionClosed
	}
	if !c.nc.IsConnected() {
		return natsio.ErrDisconnected
	}
	return c.nc.FlushWithContext(ctx)
}

func (c *Client) IsConnected() bool {
	return c != nil && c.nc != nil && c.nc.IsConnected()
}

// Close drains in-flight messages before closing the connection.
func (c *Client) Close() error {
	if c == nil || c.nc == nil {
		return nil
	}
	if err := c.nc.Drain(); err != nil {
		c.nc.Close()
		return err
	}
	deadline := time.Now().Add(5 * time.Second)
	for !c.nc.IsClosed() && time.Now().Before(deadline) {
		time.Sleep(50 * time.Millisecond)
	}
	return nil
}
