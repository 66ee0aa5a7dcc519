package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/relabs-tech/vr_digitizer/internal/log"
	"github.com/relabs-tech/vr_digitizer/internal/pose"
	"github.com/relabs-tech/vr_digitizer/internal/protocol"
)

// SinkConfig configures the consumer emulator.
type SinkConfig struct {
	Addr string
	Mode pose.Mode
	// Feedback is written back after every FeedbackEvery-th frame. Zero
	// Feedback or FeedbackEvery sends nothing.
	Feedback      byte
	FeedbackEvery int
	// LogEvery limits frame logging to one line per N frames.
	LogEvery int
}

// Sink plays the consumer side of the link: it accepts one connection at a
// time, decodes frames and optionally answers with feedback.
type Sink struct {
	cfg SinkConfig
	lg  *slog.Logger

	// OnFrame, when set, sees every decoded frame.
	OnFrame func(protocol.Frame)
}

// NewSink creates a sink.
func NewSink(cfg SinkConfig) *Sink {
	if cfg.LogEvery <= 0 {
		cfg.LogEvery = 20
	}
	return &Sink{cfg: cfg, lg: log.Component("sink")}
}

// RunSink listens on cfg.Addr and serves until ctx ends.
func RunSink(ctx context.Context, cfg SinkConfig) error {
	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return fmt.Errorf("sink listen: %w", err)
	}
	return NewSink(cfg).Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx ends, handling them one after
// another. ln is closed on return.
func (s *Sink) Serve(ctx context.Context, ln net.Listener) error {
	stop := context.AfterFunc(ctx, func() { _ = ln.Close() })
	defer stop()
	defer ln.Close()

	s.lg.Info("waiting for digitizer", "address", ln.Addr().String(), "mode", s.cfg.Mode.String())
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("sink accept: %w", err)
		}
		s.handle(ctx, conn)
	}
}

func (s *Sink) handle(ctx context.Context, conn net.Conn) {
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()
	defer conn.Close()

	remote := conn.RemoteAddr().String()
	s.lg.Info("digitizer connected", "remote", remote)

	r := bufio.NewReader(conn)
	var frames int
	for {
		f, err := protocol.ReadFrame(r, s.cfg.Mode)
		if err != nil {
			switch {
			case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed):
				s.lg.Info("digitizer disconnected", "remote", remote, "frames", frames)
			default:
				s.lg.Warn("dropping connection on bad frame", "remote", remote, "error", err, "frames", frames)
			}
			return
		}
		frames++

		if frames%s.cfg.LogEvery == 1 || s.cfg.LogEvery == 1 {
			valid := 0
			for _, e := range f.Entries {
				if e.Valid {
					valid++
				}
			}
			s.lg.Info("frame", "n", frames, "roles", len(f.Entries), "valid", valid, "buttons", f.Buttons.String())
		}
		if s.OnFrame != nil {
			s.OnFrame(f)
		}

		if s.cfg.Feedback != 0 && s.cfg.FeedbackEvery > 0 && frames%s.cfg.FeedbackEvery == 0 {
			_ = conn.SetWriteDeadline(time.Now().Add(time.Second))
			if _, err := conn.Write([]byte{s.cfg.Feedback}); err != nil {
				s.lg.Warn("feedback write failed", "remote", remote, "error", err)
				return
			}
		}
	}
}
