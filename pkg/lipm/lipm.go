// Package lipm implements the linear-inverted-pendulum feedback cascade:
// the forward LIP reference model, the outer DCM controllers (reactive and
// model-predictive) and the inner ZMP-CoM stabilizer.
package lipm

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"walking-go/pkg/walkerr"
)

// Gravity is the gravitational acceleration used by the LIP model.
const Gravity = 9.81

// Omega returns the LIP time constant sqrt(g/h) for a CoM height h.
func Omega(comHeight float64) float64 {
	return math.Sqrt(Gravity / comHeight)
}

// StableDCMModel integrates the stable part of the LIP dynamics forward,
// turning the desired DCM trajectory into a CoM position/velocity reference:
//
//	com_dot = omega * (dcm - com)
type StableDCMModel struct {
	omega float64
	dT    float64

	comPosition mgl64.Vec2
	comVelocity mgl64.Vec2
	reset       bool
}

// NewStableDCMModel creates the model for the given time constant and
// control period.
func NewStableDCMModel(omega, dT float64) *StableDCMModel {
	return &StableDCMModel{omega: omega, dT: dT}
}

// Reset places the CoM state on the given DCM sample. Called whenever the
// trajectory has a discontinuity.
func (m *StableDCMModel) Reset(dcm mgl64.Vec2) {
	m.comPosition = dcm
	m.comVelocity = mgl64.Vec2{}
	m.reset = true
}

// Integrate advances the model by one control period driven by the desired
// DCM sample.
func (m *StableDCMModel) Integrate(dcmDesired mgl64.Vec2) error {
	if !m.reset {
		return walkerr.New(walkerr.ErrRuntime, "stable DCM model used before reset")
	}
	m.comVelocity = dcmDesired.Sub(m.comPosition).Mul(m.omega)
	m.comPosition = m.comPosition.Add(m.comVelocity.Mul(m.dT))
	return nil
}

// ComPosition returns the CoM position reference.
func (m *StableDCMModel) ComPosition() mgl64.Vec2 { return m.comPosition }

// ComVelocity returns the CoM velocity reference.
func (m *StableDCMModel) ComVelocity() mgl64.Vec2 { return m.comVelocity }
