package app

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/relabs-tech/vr_digitizer/internal/config"
	"github.com/relabs-tech/vr_digitizer/internal/log"
	"github.com/relabs-tech/vr_digitizer/internal/mirror"
)

// RunConsole prints one line per mirrored status and pose until ctx ends.
func RunConsole(ctx context.Context, cfg *config.Config, out io.Writer) error {
	lg := log.Component("console")

	client, err := mirror.Dial(cfg.MQTTBroker, cfg.MQTTClientID+"-console")
	if err != nil {
		return err
	}
	defer client.Close()
	lg.Info("connected to MQTT broker", "broker", cfg.MQTTBroker)

	lines := make(chan string, 64)
	push := func(s string) {
		select {
		case lines <- s:
		default:
		}
	}
	if err := client.SubscribeStatus(cfg.MQTTTopicPrefix, func(st mirror.Status) { push(FormatStatus(st)) }); err != nil {
		return err
	}
	if err := client.SubscribePoses(cfg.MQTTTopicPrefix, func(p mirror.Pose) { push(FormatPose(p)) }); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			lg.Info("shutting down")
			return nil
		case l := <-lines:
			fmt.Fprintln(out, l)
		}
	}
}

// FormatStatus renders a status message as one console line.
func FormatStatus(st mirror.Status) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[STAT] #%-6d link=%-12s roles=%-30s buttons=%s",
		st.Cycle, st.Link, strings.Join(st.Expected, ","), buttonsLabel(st))
	if st.Feedback != nil {
		fmt.Fprintf(&b, " feedback=%s/%d", st.Feedback.Audio, st.Feedback.Haptic)
	}
	return b.String()
}

// FormatPose renders a pose message as one console line.
func FormatPose(p mirror.Pose) string {
	if !p.Valid {
		return fmt.Sprintf("[POSE] %-12s slot=%-2d invalid", p.Role, p.Slot)
	}
	vals := make([]string, len(p.Values))
	for i, v := range p.Values {
		vals[i] = fmt.Sprintf("%7.3f", v)
	}
	return fmt.Sprintf("[POSE] %-12s slot=%-2d %s", p.Role, p.Slot, strings.Join(vals, " "))
}

func buttonsLabel(st mirror.Status) string {
	if len(st.ButtonNames) == 0 {
		return "none"
	}
	return strings.Join(st.ButtonNames, "|")
}
