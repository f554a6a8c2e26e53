package domain

import "fmt"

// Axis identifies one controllable degree of freedom on a controller.
type Axis struct {
	// ID is the controller's own identifier for the axis (e.g. "1" or "X").
	ID string `json:"id"`

	// Name is a human label used in logs and reports. Defaults to ID.
	Name string `json:"name,omitempty"`

	// UnitFactor is the physical length, in meters, of one controller native unit.
	// A controller working in micrometers has a UnitFactor of 1e-6.
	UnitFactor float64 `json:"unit_factor"`
}

// NewAxis creates an axis, rejecting a non-positive unit factor.
func NewAxis(id, name string, unitFactor float64) (Axis, error) {
	if id == "" {
		return Axis{}, fmt.Errorf("axis id is required")
	}
	if unitFactor <= 0 {
		return Axis{}, fmt.Errorf("axis %s: unit factor must be positive, got %g", id, unitFactor)
	}
	if name == "" {
		name = id
	}
	return Axis{ID: id, Name: name, UnitFactor: unitFactor}, nil
}

// ToNative converts a physical length (meters) into controller native units.
func (a Axis) ToNative(meters float64) float64 {
	return meters / a.UnitFactor
}

// ToPhysical converts a value in controller native units into meters.
func (a Axis) ToPhysical(native float64) float64 {
	return native * a.UnitFactor
}

func (a Axis) String() string {
	if a.Name != "" && a.Name != a.ID {
		return a.Name + "(" + a.ID + ")"
	}
	return a.ID
}
