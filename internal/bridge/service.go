package bridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

var ErrInvalidConfig = errors.New("bridge: invalid config")

// ServiceConfig configures the device listener.
type ServiceConfig struct {
	ListenAddr      string
	ReadBufferBytes int
	OutboundQueue   int
	WriteTimeout    time.Duration
}

// DefaultServiceConfig returns the reference deployment settings.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		ListenAddr:      ":7007",
		ReadBufferBytes: 64 * 1024,
		OutboundQueue:   64,
		WriteTimeout:    0,
	}
}

func (c ServiceConfig) Validate() error {
	if strings.TrimSpace(c.ListenAddr) == "" {
		return fmt.Errorf("%w: missing listen addr", ErrInvalidConfig)
	}
	if c.ReadBufferBytes <= 0 {
		return fmt.Errorf("%w: read_buffer_bytes must be positive", ErrInvalidConfig)
	}
	if c.OutboundQueue <= 0 {
		return fmt.Errorf("%w: outbound_queue must be positive", ErrInvalidConfig)
	}
	if c.WriteTimeout < 0 {
		return fmt.Errorf("%w: write_timeout must not be negative", ErrInvalidConfig)
	}
	return nil
}

type Option func(*Service)

// WithFrameSink adds a receiver for classified frames.
func WithFrameSink(sink FrameSink) Option {
	return func(s *Service) {
		if sink != nil {
			s.sinks = append(s.sinks, sink)
		}
	}
}

func WithRecorder(r Recorder) Option {
	return func(s *Service) {
		if r != nil {
			s.recorder = r
		}
	}
}

// WithConsole enables the operator console on in.
func WithConsole(in io.Reader) Option {
	return func(s *Service) {
		s.console = in
	}
}

// Service is the device listener plus operator console.
type Service struct {
	cfg ServiceConfig

	registry *Registry
	sinks    Sinks
	recorder Recorder
	console  io.Reader

	sessionClientCount atomic.Int64
	handlers           sync.WaitGroup
}

func NewService(cfg ServiceConfig, opts ...Option) *Service {
	def := DefaultServiceConfig()
	if strings.TrimSpace(cfg.ListenAddr) == "" {
		cfg.ListenAddr = def.ListenAddr
	}
	if cfg.ReadBufferBytes <= 0 {
		cfg.ReadBufferBytes = def.ReadBufferBytes
	}
	if cfg.OutboundQueue <= 0 {
		cfg.OutboundQueue = def.OutboundQueue
	}
	s := &Service{
		cfg:      cfg,
		registry: NewRegistry(),
		recorder: nopRecorder{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Registry() *Registry {
	return s.registry
}

// ActiveClients is the number of device sessions currently being handled.
func (s *Service) ActiveClients() int64 {
	return s.sessionClientCount.Load()
}

// Run listens on the configured address and blocks until ctx is done or the
// listener fails. The console loop is supervised here: its exit is logged and
// the device side keeps serving.
func (s *Service) Run(ctx context.Context) error {
	if err := s.cfg.Validate(); err != nil {
		return err
	}
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return err
	}
	log.Info().Str("addr", ln.Addr().String()).Msg("bridge.Service.Run listening")

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- s.Serve(ctx, ln)
	}()

	var consoleErr chan error
	if s.console != nil {
		consoleErr = make(chan error, 1)
		loop := NewConsoleLoop(s.console, s.registry, s.recorder)
		go func() {
			consoleErr <- loop.Run(ctx)
		}()
	}

	for {
		select {
		case err := <-serveErr:
			return err
		case err := <-consoleErr:
			consoleErr = nil
			switch {
			case err == nil:
				log.Info().Msg("bridge.console finished, devices stay connected")
			case errors.Is(err, context.Canceled):
			default:
				log.Error().Err(err).Msg("bridge.console failed, devices stay connected")
			}
		}
	}
}

// Serve accepts device sessions on ln until ctx is done.
func (s *Service) Serve(ctx context.Context, ln net.Listener) error {
	defer ln.Close()
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
		case <-stop:
		}
		_ = ln.Close()
		s.registry.CloseAll()
	}()

	for {
		nc, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				s.handlers.Wait()
				return nil
			}
			return err
		}
		s.handlers.Add(1)
		go func() {
			defer s.handlers.Done()
			s.handleConn(nc)
		}()
	}
}

func (s *Service) handleConn(nc net.Conn) {
	conn := newConn(nc, s.cfg.OutboundQueue, s.cfg.WriteTimeout)
	active := s.sessionClientCount.Add(1)
	s.recorder.ConnectionOpened()
	conn.logger.Info().Int64("active_clients", active).Msg("bridge.session client connected")

	h := &deviceHandler{
		conn:     conn,
		registry: s.registry,
		sink:     s.sinks,
		bufSize:  s.cfg.ReadBufferBytes,
	}
	err := h.run()

	remaining := s.sessionClientCount.Add(-1)
	s.recorder.ConnectionClosed()
	if err != nil {
		conn.logger.Warn().Err(err).Int64("active_clients", remaining).Msg("bridge.session socket error")
		return
	}
	conn.logger.Info().Int64("active_clients", remaining).Msg("bridge.session client disconnected")
}
