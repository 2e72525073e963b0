package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"cubetonic.app/internal/mesh"
	tracelog "cubetonic.app/internal/persistence/log"
	"cubetonic.app/internal/protocol"
	"cubetonic.app/internal/transport/ws"
)

// Transport moves whole frames. *ws.Conn implements it.
type Transport interface {
	Read() ([]byte, error)
	Write(b []byte) error
	Close() error
}

// Tracer records frames. *log.TraceLogger implements it.
type Tracer interface {
	WriteFrame(dir, msgType string, raw []byte) error
}

type SessionConfig struct {
	// PositionInterval defaults to 100ms.
	PositionInterval time.Duration
	// ReadyTimeout bounds the handshake. Zero disables it.
	ReadyTimeout time.Duration
	// Validator, when set, drops inbound frames that fail their schema.
	Validator *protocol.Validator
	Tracer    Tracer
	Logger    *log.Logger
}

// Session is the connection task. It owns the transport, the state machine
// and through it the world store, and forwards mesh results to the consumer
// mailbox.
type Session struct {
	t       Transport
	m       *Machine
	mailbox *mesh.Mailbox
	cfg     SessionConfig
	logger  *log.Logger

	framesIn  atomic.Uint64
	framesOut atomic.Uint64
	rejected  atomic.Uint64

	intents chan intent
	done    chan struct{}

	disc     chan error
	discOnce sync.Once
}

type intent struct {
	msgType string
	v       any
	errc    chan error
}

func NewSession(t Transport, mcfg MachineConfig, deps Deps, mailbox *mesh.Mailbox, cfg SessionConfig) *Session {
	if cfg.PositionInterval <= 0 {
		cfg.PositionInterval = 100 * time.Millisecond
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	if mcfg.Logger == nil {
		mcfg.Logger = logger
	}
	if mailbox == nil {
		mailbox = &mesh.Mailbox{}
	}
	s := &Session{
		t:       t,
		mailbox: mailbox,
		cfg:     cfg,
		logger:  logger,
		intents: make(chan intent, 64),
		done:    make(chan struct{}),
		disc:    make(chan error, 1),
	}
	s.m = NewMachine(mcfg, deps, s)
	return s
}

func (s *Session) Machine() *Machine { return s.m }

func (s *Session) Mailbox() *mesh.Mailbox { return s.mailbox }

// Disconnected delivers the reason the session ended, once, then closes.
func (s *Session) Disconnected() <-chan error { return s.disc }

// FrameCounts returns inbound, outbound and schema-rejected frame totals.
func (s *Session) FrameCounts() (in, out, rejected uint64) {
	return s.framesIn.Load(), s.framesOut.Load(), s.rejected.Load()
}

// Send implements Sender.
func (s *Session) Send(msgType string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", msgType, err)
	}
	s.trace(tracelog.DirOut, msgType, b)
	if err := s.t.Write(b); err != nil {
		return fmt.Errorf("write %s: %w", msgType, err)
	}
	s.framesOut.Add(1)
	return nil
}

// Post queues an outbound message from another goroutine and waits until
// the connection loop has written it in order with its own traffic. It
// returns ErrSessionClosed if the loop exits first.
func (s *Session) Post(msgType string, v any) error {
	select {
	case <-s.done:
		return ErrSessionClosed
	default:
	}
	it := intent{msgType: msgType, v: v, errc: make(chan error, 1)}
	select {
	case s.intents <- it:
	case <-s.done:
		return ErrSessionClosed
	}
	select {
	case err := <-it.errc:
		return err
	case <-s.done:
		// The loop may have replied just before exiting.
		select {
		case err := <-it.errc:
			return err
		default:
			return ErrSessionClosed
		}
	}
}

// Run drives the session until a fatal error or ctx is done. The transport
// is closed and the mesh pipeline stopped before Run returns.
func (s *Session) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	inbound := make(chan []byte, 64)

	// Reader goroutine.
	g.Go(func() error {
		defer close(inbound)
		for {
			b, err := s.t.Read()
			if err != nil {
				if gctx.Err() != nil {
					return nil
				}
				if ws.IsNormalClose(err) {
					s.logger.Printf("server closed the connection: %v", err)
				}
				return fmt.Errorf("read: %w", err)
			}
			select {
			case inbound <- b:
			case <-gctx.Done():
				return nil
			}
		}
	})

	g.Go(func() error {
		defer s.failIntents()
		return s.loop(gctx, inbound)
	})

	// Unblocks the reader once anything above fails.
	g.Go(func() error {
		<-gctx.Done()
		_ = s.t.Close()
		return nil
	})

	err := g.Wait()
	s.m.Close()
	s.logger.Printf("session ended in %s: %v", s.m.State(), err)
	s.discOnce.Do(func() {
		s.disc <- err
		close(s.disc)
	})
	return err
}

// failIntents closes done as the loop exits and rejects intents queued
// before Post could observe it.
func (s *Session) failIntents() {
	close(s.done)
	for {
		select {
		case it := <-s.intents:
			it.errc <- ErrSessionClosed
		default:
			return
		}
	}
}

func (s *Session) loop(ctx context.Context, inbound <-chan []byte) error {
	if err := s.m.Start(); err != nil {
		return err
	}

	ticker := time.NewTicker(s.cfg.PositionInterval)
	defer ticker.Stop()

	var readyTimeout <-chan time.Time
	if s.cfg.ReadyTimeout > 0 {
		t := time.NewTimer(s.cfg.ReadyTimeout)
		defer t.Stop()
		readyTimeout = t.C
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case raw, ok := <-inbound:
			if !ok {
				// The reader reports its own error.
				return nil
			}
			s.framesIn.Add(1)
			base, _ := protocol.DecodeBase(raw)
			s.trace(tracelog.DirIn, base.Type, raw)
			if v := s.cfg.Validator; v != nil {
				if err := v.Validate(raw); err != nil {
					s.rejected.Add(1)
					s.logger.Printf("schema: %v", err)
					continue
				}
			}
			if err := s.m.Handle(raw); err != nil {
				return err
			}

		case it := <-s.intents:
			err := s.Send(it.msgType, it.v)
			it.errc <- err
			if err != nil {
				return err
			}

		case res, ok := <-s.m.Results():
			if !ok {
				return ErrResultsClosed
			}
			s.mailbox.Push(res)

		case <-ticker.C:
			if err := s.m.SendPosition(); err != nil {
				return err
			}

		case <-readyTimeout:
			if st := s.m.State(); st != StateReady {
				return fmt.Errorf("%w: still %s after %s", ErrHandshakeTimeout, st, s.cfg.ReadyTimeout)
			}
		}
	}
}

func (s *Session) trace(dir, msgType string, raw []byte) {
	if s.cfg.Tracer == nil {
		return
	}
	if err := s.cfg.Tracer.WriteFrame(dir, msgType, raw); err != nil {
		s.logger.Printf("trace: %v", err)
	}
}
