package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/relabs-tech/vr_digitizer/internal/actuation"
	"github.com/relabs-tech/vr_digitizer/internal/buttons"
	"github.com/relabs-tech/vr_digitizer/internal/clock"
	"github.com/relabs-tech/vr_digitizer/internal/config"
	"github.com/relabs-tech/vr_digitizer/internal/link"
	"github.com/relabs-tech/vr_digitizer/internal/log"
	"github.com/relabs-tech/vr_digitizer/internal/mirror"
	"github.com/relabs-tech/vr_digitizer/internal/observability"
	"github.com/relabs-tech/vr_digitizer/internal/tracking"
)

// NewLinkConfig maps config keys onto link settings.
func NewLinkConfig(cfg *config.Config) link.Config {
	lc := link.DefaultConfig(cfg.Address())
	lc.Enabled = cfg.NetworkingEnabled
	lc.ConnectTimeout = cfg.ConnectTimeout()
	lc.SendTimeout = cfg.SendTimeout()
	lc.ReceiveWait = cfg.ReceiveWait()
	lc.ReconnectDelay = cfg.ReconnectBackoff()
	return lc
}

// NewCycleConfig maps config keys onto loop settings.
func NewCycleConfig(cfg *config.Config) CycleConfig {
	cc := DefaultCycleConfig()
	cc.Mode = cfg.Mode()
	cc.Interval = cfg.SampleInterval()
	cc.RoleRefresh = cfg.RoleRefreshInterval()
	cc.ButtonRole = cfg.ButtonRoleValue()
	cc.HapticRole = cfg.HapticRoleValue()
	cc.Encoder = buttons.NewEncoder(float32(cfg.DirectionThreshold), float32(cfg.TriggerThreshold))
	return cc
}

// RunStream brings up the tracking runtime and streams frames until ctx ends.
func RunStream(ctx context.Context, cfg *config.Config) error {
	lg := log.Component("stream")
	clk := clock.Real{}

	observability.RegisterMetrics()
	if cfg.MetricsAddr != "" {
		go serveMetrics(ctx, cfg.MetricsAddr)
	}

	rt, err := tracking.InitWithRetry(ctx, clk, cfg.RuntimeInitRetry(), func() (tracking.Runtime, error) {
		switch cfg.TrackingSource {
		case "mock":
			return tracking.NewMockRuntime(clk), nil
		default:
			return nil, fmt.Errorf("unknown tracking source %q", cfg.TrackingSource)
		}
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	lg.Info("tracking runtime ready", "source", cfg.TrackingSource)

	var audio *actuation.Dispatcher
	if cfg.AudioEnabled {
		player, err := actuation.NewCommandPlayer(cfg.AudioCommand)
		if err != nil {
			return err
		}
		audio = actuation.NewDispatcher(player)
	}

	var mr *mirror.Mirror
	if cfg.MQTTEnabled {
		client, err := mirror.Dial(cfg.MQTTBroker, cfg.MQTTClientID)
		if err != nil {
			// The mirror is optional; streaming goes on without it.
			lg.Warn("mqtt mirror disabled", "error", err)
		} else {
			defer client.Close()
			mr = mirror.New(client, cfg.MQTTTopicPrefix)
			lg.Info("mirroring to mqtt", "broker", cfg.MQTTBroker, "prefix", cfg.MQTTTopicPrefix)
		}
	}

	lm := link.New(NewLinkConfig(cfg), nil, clk)
	defer lm.Close()

	return NewCycle(NewCycleConfig(cfg), rt, clk, lm, audio, mr).Run(ctx)
}

func serveMetrics(ctx context.Context, addr string) {
	lg := log.Component("metrics")
	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	lg.Info("serving metrics", "address", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		lg.Error("metrics server failed", "error", err)
	}
}
