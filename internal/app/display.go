package app

import (
	"context"
	"fmt"
	"image"
	"time"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/devices/v3/ssd1306"
	"periph.io/x/devices/v3/ssd1306/image1bit"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/vr_digitizer/internal/config"
	"github.com/relabs-tech/vr_digitizer/internal/log"
	"github.com/relabs-tech/vr_digitizer/internal/mirror"
)

const (
	displayW     = 128
	displayH     = 64
	displayLineH = 13
)

// RunDisplay renders the mirrored status on an SSD1306 OLED until ctx ends.
func RunDisplay(ctx context.Context, cfg *config.Config) error {
	lg := log.Component("display")

	if _, err := host.Init(); err != nil {
		return fmt.Errorf("failed to initialize periph: %w", err)
	}

	bus, err := i2creg.Open("")
	if err != nil {
		return fmt.Errorf("failed to open I2C bus: %w", err)
	}
	defer bus.Close()

	dev, err := ssd1306.NewI2C(bus, &ssd1306.DefaultOpts)
	if err != nil {
		return fmt.Errorf("failed to initialize display: %w", err)
	}
	defer dev.Halt()
	lg.Info("display initialized")

	if err := dev.Draw(dev.Bounds(), RenderLines("VR Digitizer", "Waiting for", "status..."), image.Point{}); err != nil {
		lg.Warn("error showing splash", "error", err)
	}

	store := NewStatusStore()
	client, err := subscribeObserver(cfg, cfg.MQTTClientID+"-display", store)
	if err != nil {
		return err
	}
	defer client.Close()
	lg.Info("connected to MQTT broker", "broker", cfg.MQTTBroker)

	ticker := time.NewTicker(cfg.DisplayUpdateInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			st, ok := store.Status()
			if err := dev.Draw(dev.Bounds(), RenderStatus(st, ok), image.Point{}); err != nil {
				lg.Warn("error updating display", "error", err)
			}
		}
	}
}

// RenderStatus draws link state, role counts, buttons and the last feedback.
func RenderStatus(st mirror.Status, have bool) *image1bit.VerticalLSB {
	if !have {
		return RenderLines("Digitizer", "Waiting...")
	}
	hmd := "-"
	if st.HMD {
		hmd = "H"
	}
	fb := "fb: none"
	if st.Feedback != nil {
		fb = fmt.Sprintf("fb: %s %d", st.Feedback.Audio, st.Feedback.Haptic)
	}
	return RenderLines(
		fmt.Sprintf("Link: %s", st.Link),
		fmt.Sprintf("C%d T%d %s  #%d", st.Controllers, st.Trackers, hmd, st.Cycle%10000),
		fmt.Sprintf("Btn: %011b", st.Buttons),
		fb,
	)
}

// RenderLines draws up to four text lines in the 7x13 font.
func RenderLines(lines ...string) *image1bit.VerticalLSB {
	img := image1bit.NewVerticalLSB(image.Rect(0, 0, displayW, displayH))

	drawer := &font.Drawer{
		Dst:  img,
		Src:  &image.Uniform{image1bit.On},
		Face: basicfont.Face7x13,
	}
	for i, l := range lines {
		if i >= displayH/displayLineH {
			break
		}
		drawer.Dot = fixed.P(0, displayLineH*(i+1))
		drawer.DrawString(l)
	}
	return img
}
