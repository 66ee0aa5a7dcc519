package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/relabs-tech/vr_digitizer/internal/app"
	"github.com/relabs-tech/vr_digitizer/internal/config"
	"github.com/relabs-tech/vr_digitizer/internal/log"
	"github.com/relabs-tech/vr_digitizer/internal/pose"
)

const (
	appName = "vrdigitizer"
	Version = "0.1.0"
)

type globalFlags struct {
	configPath string
	logLevel   string
}

func rootCmd() *cobra.Command {
	var g globalFlags

	cmd := &cobra.Command{
		Use:   appName,
		Short: "Stream tracked-device poses to a remote consumer",
		Long: `vrdigitizer samples poses and controller buttons from the tracking
runtime every cycle, encodes them into a compact binary frame and sends it
to a consumer over a self-healing TCP link. One feedback byte per cycle
drives local tones and controller haptics.`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVarP(&g.configPath, "config", "c", "", "config file (.yaml, .toml or KEY=VALUE)")
	cmd.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "log level override (debug, info, warn, error)")

	cmd.AddCommand(
		streamCmd(&g),
		sinkCmd(&g),
		webCmd(&g),
		consoleCmd(&g),
		displayCmd(&g),
		versionCmd(),
	)
	return cmd
}

// load reads the config and installs the logger. The flag level wins over
// LOG_LEVEL.
func (g *globalFlags) load() (*config.Config, error) {
	if err := config.InitGlobal(g.configPath); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	cfg := config.Get()
	level := cfg.LogLevel
	if g.logLevel != "" {
		level = g.logLevel
	}
	log.Init(level)
	return cfg, nil
}

func streamCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "stream",
		Short: "Run the sampling loop and stream frames to the consumer",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := g.load()
			if err != nil {
				return err
			}
			log.Info("starting vr digitizer",
				"target", cfg.Address(),
				"networking", cfg.NetworkingEnabled,
				"mode", cfg.OutputMode,
			)
			return app.RunStream(cmd.Context(), cfg)
		},
	}
}

func sinkCmd(g *globalFlags) *cobra.Command {
	var (
		listen   string
		mode     string
		feedback string
		every    int
		logEvery int
	)
	cmd := &cobra.Command{
		Use:   "sink",
		Short: "Emulate the consumer: accept frames and optionally reply with feedback",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := g.load()
			if err != nil {
				return err
			}
			sc, err := sinkConfig(cfg, listen, mode, feedback, every, logEvery)
			if err != nil {
				return err
			}
			return app.RunSink(cmd.Context(), sc)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "listen address (default :TARGET_PORT)")
	cmd.Flags().StringVar(&mode, "mode", "", "frame mode, vector or quaternion (default OUTPUT_MODE)")
	cmd.Flags().StringVar(&feedback, "feedback", "0", "feedback byte to send back, e.g. 0x0B")
	cmd.Flags().IntVar(&every, "feedback-every", 20, "send feedback after every N frames")
	cmd.Flags().IntVar(&logEvery, "log-every", 20, "log one line per N frames")
	return cmd
}

func sinkConfig(cfg *config.Config, listen, mode, feedback string, every, logEvery int) (app.SinkConfig, error) {
	sc := app.SinkConfig{
		Addr:          listen,
		Mode:          cfg.Mode(),
		FeedbackEvery: every,
		LogEvery:      logEvery,
	}
	if sc.Addr == "" {
		sc.Addr = fmt.Sprintf(":%d", cfg.TargetPort)
	}
	if mode != "" {
		m, err := pose.ParseMode(mode)
		if err != nil {
			return app.SinkConfig{}, err
		}
		sc.Mode = m
	}
	fb, err := strconv.ParseUint(feedback, 0, 8)
	if err != nil {
		return app.SinkConfig{}, fmt.Errorf("invalid --feedback %q: %w", feedback, err)
	}
	sc.Feedback = byte(fb)
	return sc, nil
}

func webCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "web",
		Short: "Serve the mirrored status over HTTP and websocket",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := g.load()
			if err != nil {
				return err
			}
			if cfg.MQTTBroker == "" {
				return fmt.Errorf("web needs MQTT_BROKER")
			}
			return app.RunWeb(cmd.Context(), cfg)
		},
	}
}

func consoleCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "console",
		Short: "Print the mirrored status and poses",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := g.load()
			if err != nil {
				return err
			}
			if cfg.MQTTBroker == "" {
				return fmt.Errorf("console needs MQTT_BROKER")
			}
			return app.RunConsole(cmd.Context(), cfg, cmd.OutOrStdout())
		},
	}
}

func displayCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "display",
		Short: "Show the mirrored status on an SSD1306 OLED",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := g.load()
			if err != nil {
				return err
			}
			if cfg.MQTTBroker == "" {
				return fmt.Errorf("display needs MQTT_BROKER")
			}
			return app.RunDisplay(cmd.Context(), cfg)
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s version %s\n", appName, Version)
		},
	}
}
