// Package mirror publishes per-cycle digitizer state to MQTT so observers
// (console, web, display) can follow the stream without touching the link.
package mirror

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/relabs-tech/vr_digitizer/internal/log"
)

// Status is the retained <prefix>/status message.
type Status struct {
	Time        time.Time      `json:"time"`
	Cycle       uint64         `json:"cycle"`
	Link        string         `json:"link"`
	Session     string         `json:"session,omitempty"`
	Mode        string         `json:"mode"`
	Roles       map[string]int `json:"roles"`
	Expected    []string       `json:"expected"`
	Controllers int            `json:"controllers"`
	Trackers    int            `json:"trackers"`
	HMD         bool           `json:"hmd"`
	Buttons     uint16         `json:"buttons"`
	ButtonNames []string       `json:"button_names"`
	Feedback    *Feedback      `json:"last_feedback,omitempty"`
}

// Feedback is the last non-empty feedback byte received.
type Feedback struct {
	Raw    byte      `json:"raw"`
	Audio  string    `json:"audio"`
	Haptic uint16    `json:"haptic"`
	At     time.Time `json:"at"`
}

// Pose is the retained <prefix>/pose/<role> message. Values are the wire
// scalars for Mode.
type Pose struct {
	Role   string    `json:"role"`
	Slot   int       `json:"slot"`
	Valid  bool      `json:"valid"`
	Mode   string    `json:"mode"`
	Values []float64 `json:"values,omitempty"`
}

// Publisher sends one payload without waiting for delivery.
type Publisher interface {
	Publish(topic string, payload []byte) error
}

// Mirror formats state into topics and payloads.
type Mirror struct {
	pub    Publisher
	prefix string
	lg     *slog.Logger
}

// New returns a mirror publishing under prefix. A nil publisher makes every
// call a no-op.
func New(pub Publisher, prefix string) *Mirror {
	return &Mirror{pub: pub, prefix: prefix, lg: logger()}
}

func logger() *slog.Logger { return log.Component("mirror") }

// StatusTopic is where Status is published.
func StatusTopic(prefix string) string { return prefix + "/status" }

// PoseTopic is where the pose of role is published.
func PoseTopic(prefix, role string) string { return fmt.Sprintf("%s/pose/%s", prefix, role) }

// PoseWildcard subscribes to every role's pose.
func PoseWildcard(prefix string) string { return prefix + "/pose/+" }

// Publish sends the status and every pose. Errors are logged at debug only.
func (m *Mirror) Publish(st Status, poses []Pose) {
	if m == nil || m.pub == nil {
		return
	}
	m.send(StatusTopic(m.prefix), st)
	for _, p := range poses {
		m.send(PoseTopic(m.prefix, p.Role), p)
	}
}

func (m *Mirror) send(topic string, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		m.lg.Debug("json marshal error", "topic", topic, "error", err)
		return
	}
	if err := m.pub.Publish(topic, payload); err != nil {
		m.lg.Debug("publish error", "topic", topic, "error", err)
	}
}
