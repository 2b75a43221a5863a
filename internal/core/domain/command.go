package domain

import "fmt"

// ChargeControlRequest

type ChargeControlRequest interface {
	ActorRequest
	ChargeControlCommand() string
}

type ChargeControlRequestMixIn struct {
	ActorRequestMixIn
}

func (r ChargeControlRequestMixIn) ChargeControlCommand() string {
	return fmt.Sprintf("%T", r)
}

// ChargeControl commands

// SetSolarOnlyChargingRequest switches between solar-only and unrestricted charging.
// The change takes effect on the next regulation cycle.
type SetSolarOnlyChargingRequest struct {
	ChargeControlRequestMixIn
	Enable bool
}

type SetSolarOnlyChargingResponse struct {
	ActorResponseMixIn
	SolarOnly bool
	Changed   bool
}

type GetChargeControlStateRequest struct {
	ChargeControlRequestMixIn
}

type GetChargeControlStateResponse struct {
	ActorResponseMixIn
	SolarOnly  bool
	LastResult *ChargeControlTickResult
}

// ensure interface compliance
var _ ChargeControlRequest = (*SetSolarOnlyChargingRequest)(nil)
var _ ChargeControlRequest = (*GetChargeControlStateRequest)(nil)
