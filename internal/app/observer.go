package app

import (
	"sort"
	"sync"

	"github.com/relabs-tech/vr_digitizer/internal/config"
	"github.com/relabs-tech/vr_digitizer/internal/mirror"
)

// StatusStore keeps the latest mirrored status and poses for observers and
// fans status updates out to watchers.
type StatusStore struct {
	mu       sync.RWMutex
	status   mirror.Status
	have     bool
	poses    map[string]mirror.Pose
	watchers map[chan mirror.Status]struct{}
}

// NewStatusStore returns an empty store.
func NewStatusStore() *StatusStore {
	return &StatusStore{
		poses:    make(map[string]mirror.Pose),
		watchers: make(map[chan mirror.Status]struct{}),
	}
}

// SetStatus records st and notifies watchers. Slow watchers miss updates
// rather than block the caller.
func (s *StatusStore) SetStatus(st mirror.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = st
	s.have = true
	for ch := range s.watchers {
		select {
		case ch <- st:
		default:
		}
	}
}

// SetPose records the latest pose of one role.
func (s *StatusStore) SetPose(p mirror.Pose) {
	s.mu.Lock()
	s.poses[p.Role] = p
	s.mu.Unlock()
}

// Status returns the latest status and whether one has arrived.
func (s *StatusStore) Status() (mirror.Status, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status, s.have
}

// Poses returns the latest pose of every role, sorted by role name.
func (s *StatusStore) Poses() []mirror.Pose {
	s.mu.RLock()
	out := make([]mirror.Pose, 0, len(s.poses))
	for _, p := range s.poses {
		out = append(out, p)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Role < out[j].Role })
	return out
}

// Watch returns a channel of status updates and a function to stop them.
func (s *StatusStore) Watch() (<-chan mirror.Status, func()) {
	ch := make(chan mirror.Status, 4)
	s.mu.Lock()
	s.watchers[ch] = struct{}{}
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.watchers, ch)
			s.mu.Unlock()
		})
	}
}

// subscribeObserver connects to the broker and feeds a store from the
// mirror topics.
func subscribeObserver(cfg *config.Config, clientID string, store *StatusStore) (*mirror.Client, error) {
	client, err := mirror.Dial(cfg.MQTTBroker, clientID)
	if err != nil {
		return nil, err
	}
	if err := client.SubscribeStatus(cfg.MQTTTopicPrefix, store.SetStatus); err != nil {
		client.Close()
		return nil, err
	}
	if err := client.SubscribePoses(cfg.MQTTTopicPrefix, store.SetPose); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}
