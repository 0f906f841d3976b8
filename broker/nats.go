// Package broker serves assessments over NATS request/reply.
package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"aquasense/assess"
	"aquasense/config"
)

// Reply is the body sent back on msg.Reply. Error is set instead of the
// assessment when no label could be produced.
type Reply struct {
	ID string `json:"id"`
	*assess.Result
	Error string `json:"error,omitempty"`
}

// Service answers assessment requests arriving on a NATS queue group, so
// several instances can share one subject.
type Service struct {
	conn     *nats.Conn
	cfg      config.NATSConfig
	assessor *assess.Service
	logger   *zap.Logger
	closed   chan struct{}
}

func NewService(cfg config.NATSConfig, assessor *assess.Service, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{cfg: cfg, assessor: assessor, logger: logger, closed: make(chan struct{})}
}

// Connect dials the configured URL and keeps reconnecting forever.
func (s *Service) Connect() error {
	conn, err := nats.Connect(s.cfg.URL,
		nats.Name("aquasense"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				s.logger.Warn("NATS disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			s.logger.Info("NATS reconnected", zap.String("url", c.ConnectedUrl()))
		}),
		nats.ClosedHandler(func(*nats.Conn) {
			close(s.closed)
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}
	s.conn = conn
	return nil
}

// Start subscribes on the configured subject and blocks until ctx is done.
func (s *Service) Start(ctx context.Context) error {
	if s.conn == nil {
		return errors.New("broker: not connected")
	}
	// requests draining at shutdown still get to record their result
	reqCtx := context.WithoutCancel(ctx)
	_, err := s.conn.QueueSubscribe(s.cfg.Subject, s.cfg.Queue, func(msg *nats.Msg) {
		s.processMessage(reqCtx, msg)
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", s.cfg.Subject, err)
	}
	s.logger.Info("NATS service starting",
		zap.String("subject", s.cfg.Subject),
		zap.String("queue", s.cfg.Queue))

	<-ctx.Done()
	s.logger.Info("NATS service shutting down")
	return s.Close()
}

// Close drains the connection so in-flight requests are answered, waiting at
// most the request timeout for that.
func (s *Service) Close() error {
	if s.conn == nil {
		return nil
	}
	conn := s.conn
	s.conn = nil
	if err := conn.Drain(); err != nil {
		conn.Close()
		return fmt.Errorf("drain NATS connection: %w", err)
	}
	select {
	case <-s.closed:
	case <-time.After(s.timeout()):
		conn.Close()
	}
	return nil
}

func (s *Service) timeout() time.Duration {
	if s.cfg.Timeout <= 0 {
		return 5 * time.Second
	}
	return s.cfg.Timeout
}

func (s *Service) processMessage(ctx context.Context, msg *nats.Msg) {
	if msg.Reply == "" {
		s.logger.Warn("dropping request without reply subject", zap.String("subject", msg.Subject))
		return
	}
	if err := msg.Respond(s.handleRequest(ctx, msg.Data)); err != nil {
		s.logger.Error("failed to send reply", zap.Error(err))
	}
}

// handleRequest decodes one request body and returns the encoded reply.
func (s *Service) handleRequest(ctx context.Context, data []byte) []byte {
	ctx, cancel := context.WithTimeout(ctx, s.timeout())
	defer cancel()

	reply := Reply{ID: ulid.Make().String()}
	res, err := s.assess(ctx, data)
	if err != nil {
		s.logger.Warn("prediction failed", zap.String("id", reply.ID), zap.Error(err))
		reply.Error = err.Error()
	} else {
		reply.Result = &res
	}

	out, err := json.Marshal(reply)
	if err != nil {
		s.logger.Error("failed to encode reply", zap.Error(err))
		return []byte(`{"error":"internal error"}`)
	}
	return out
}

func (s *Service) assess(ctx context.Context, data []byte) (assess.Result, error) {
	var req assess.Request
	if err := json.Unmarshal(data, &req); err != nil {
		return assess.Result{}, fmt.Errorf("decode request: %w", err)
	}
	features, err := req.Features()
	if err != nil {
		return assess.Result{}, err
	}
	return s.assessor.Assess(ctx, features, true)
}
