// investment/invest_manager.go
package investment

import (
	"sync"

	"github.com/bhtaylor94/Stock-data/logs"
)

// ExposureSource reports the notional currently committed to positions.
type ExposureSource interface {
	Exposure() float64
}

// Manager watches total exposure against the account and halts new entries
// once the configured share of the account is deployed.
type Manager struct {
	source         ExposureSource
	maxExposurePct float64

	mu              sync.Mutex
	isLimitExceeded bool
	lastLimit       float64
}

// NewManager creates a new investment manager.
func NewManager(source ExposureSource, maxExposurePct float64) *Manager {
	return &Manager{source: source, maxExposurePct: maxExposurePct}
}

// CurrentExposure is the ledger's notional, reservations included.
func (m *Manager) CurrentExposure() float64 {
	return m.source.Exposure()
}

// CheckAndUpdate compares exposure with accountValue × max exposure and
// returns whether new entries are halted. Transitions are logged once.
func (m *Manager) CheckAndUpdate(accountValue float64) bool {
	limit := accountValue * m.maxExposurePct
	current := m.CurrentExposure()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastLimit = limit

	if limit <= 0 {
		if !m.isLimitExceeded {
			logs.Warnf("[Investment] Exposure limit is %.2f (account value %.2f). Prohibiting new positions.", limit, accountValue)
		}
		m.isLimitExceeded = true
		return true
	}

	if current >= limit {
		if !m.isLimitExceeded {
			logs.Warnf("[Investment] Total exposure $%.2f has reached limit $%.2f. Prohibiting new positions.", current, limit)
		}
		m.isLimitExceeded = true
	} else {
		if m.isLimitExceeded {
			logs.Infof("[Investment] Total exposure $%.2f back below limit $%.2f. Resuming new positions.", current, limit)
		}
		m.isLimitExceeded = false
	}
	return m.isLimitExceeded
}

// IsTradingHalted reports the result of the last check.
func (m *Manager) IsTradingHalted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.isLimitExceeded
}

// Limit is the exposure cap computed by the last check.
func (m *Manager) Limit() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastLimit
}
