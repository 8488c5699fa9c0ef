package execution

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// ErrKillSwitch is returned while the kill switch is engaged.
var ErrKillSwitch = errors.New("kill switch engaged")

// KillSwitchStatus describes the kill switch for HTTP responses.
type KillSwitchStatus struct {
	Engaged bool      `json:"engaged"`
	Reason  string    `json:"reason,omitempty"`
	Since   time.Time `json:"since,omitempty"`
}

// KillSwitch blocks every submission attempt while engaged.
type KillSwitch struct {
	engaged atomic.Bool
	logger  *zap.Logger

	mu     sync.Mutex
	reason string
	since  time.Time
}

// NewKillSwitch creates a disengaged kill switch.
func NewKillSwitch(logger *zap.Logger) *KillSwitch {
	if logger == nil {
		logger = zap.NewNop()
	}
	KillSwitchEngaged.Set(0)
	return &KillSwitch{logger: logger}
}

// Engage blocks further submissions.
func (k *KillSwitch) Engage(reason string) {
	k.mu.Lock()
	k.reason = reason
	k.since = time.Now()
	k.mu.Unlock()

	k.engaged.Store(true)
	KillSwitchEngaged.Set(1)
	k.logger.Warn("kill-switch-engaged", zap.String("reason", reason))
}

// Reset allows submissions again.
func (k *KillSwitch) Reset() {
	k.engaged.Store(false)

	k.mu.Lock()
	k.reason = ""
	k.since = time.Time{}
	k.mu.Unlock()

	KillSwitchEngaged.Set(0)
	k.logger.Info("kill-switch-reset")
}

// Engaged reports whether submissions are blocked and why.
func (k *KillSwitch) Engaged() (bool, string) {
	if !k.engaged.Load() {
		return false, ""
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	return true, k.reason
}

// Status returns a snapshot of the switch.
func (k *KillSwitch) Status() KillSwitchStatus {
	k.mu.Lock()
	defer k.mu.Unlock()
	return KillSwitchStatus{Engaged: k.engaged.Load(), Reason: k.reason, Since: k.since}
}

// Check returns ErrKillSwitch, wrapped with the reason, while engaged.
func (k *KillSwitch) Check() error {
	if engaged, reason := k.Engaged(); engaged {
		return fmt.Errorf("%w: %s", ErrKillSwitch, reason)
	}
	return nil
}
