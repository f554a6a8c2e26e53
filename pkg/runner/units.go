package runner

import (
	"fmt"
	"strings"
)

// DisplayUnit is the unit the operator enters and reads distances in.
type DisplayUnit struct {
	Name   string
	Meters float64 // size of one unit in meters
}

var (
	Nanometer  = DisplayUnit{Name: "nm", Meters: 1e-9}
	Micrometer = DisplayUnit{Name: "µm", Meters: 1e-6}
	Millimeter = DisplayUnit{Name: "mm", Meters: 1e-3}
	Meter      = DisplayUnit{Name: "m", Meters: 1}
)

// ParseDisplayUnit maps a unit name to a DisplayUnit. "um" and "µm" are both micrometers.
func ParseDisplayUnit(name string) (DisplayUnit, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "nm":
		return Nanometer, nil
	case "um", "µm", "micron":
		return Micrometer, nil
	case "mm":
		return Millimeter, nil
	case "m":
		return Meter, nil
	}
	return DisplayUnit{}, fmt.Errorf("unknown display unit %q (want nm, um, mm or m)", name)
}

// ToMeters converts a value in this unit to meters.
func (u DisplayUnit) ToMeters(v float64) float64 { return v * u.Meters }

// FromMeters converts meters to this unit.
func (u DisplayUnit) FromMeters(m float64) float64 { return m / u.Meters }

// Format renders a distance in meters as "<value> <unit>", to 9 significant digits.
func (u DisplayUnit) Format(m float64) string {
	return fmt.Sprintf("%.9g %s", u.FromMeters(m), u.Name)
}
