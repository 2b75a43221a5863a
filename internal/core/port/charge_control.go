package port

import (
	"github.com/berfenger/wallbox2mqtt/internal/core/domain"
)

// ChargeControlLogic decides, for one regulation cycle, which current limit
// the wallbox should get.
type ChargeControlLogic interface {
	// NeedsCurrentLimit reports whether the cycle has to read the wallbox current limit.
	NeedsCurrentLimit(snapshot domain.Snapshot) bool
	Loop(snapshot domain.Snapshot) domain.ChargeControlTickResult
	Config() domain.RegulationConfig
}
