// Copyright (C) 2025 Josh Simonot
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

// Package units converts between the unit systems the simulator's external
// interface accepts (°C/°F, kWh/BTU, L/gal) and the SI units the core engine
// uses internally.
package units

import "fmt"

// Temperature selects a temperature unit for accessors that accept one.
type Temperature string

const (
	Celsius    Temperature = "C"
	Fahrenheit Temperature = "F"
)

// Energy selects an energy unit.
type Energy string

const (
	KWh Energy = "kWh"
	BTU Energy = "BTU"
)

// Volume selects a volume unit.
type Volume string

const (
	Liters  Volume = "L"
	Gallons Volume = "gal"
)

const (
	btuPerKWh   = 3412.14
	litersPerGal = 3.78541
)

// CToF converts a temperature from Celsius to Fahrenheit.
func CToF(c float64) float64 { return (9.0/5.0)*c + 32.0 }

// FToC converts a temperature from Fahrenheit to Celsius.
func FToC(f float64) float64 { return (f - 32.0) * 5.0 / 9.0 }

// DeltaFToC converts a temperature *difference* from Fahrenheit to Celsius
// degrees, i.e. without the 32° offset applied by FToC.
func DeltaFToC(df float64) float64 { return df * 5.0 / 9.0 }

// KWhToBTU converts energy from kWh to BTU.
func KWhToBTU(kwh float64) float64 { return kwh * btuPerKWh }

// BTUToKWh converts energy from BTU to kWh.
func BTUToKWh(btu float64) float64 { return btu / btuPerKWh }

// GalToL converts a volume from US gallons to liters.
func GalToL(gal float64) float64 { return gal * litersPerGal }

// LToGal converts a volume from liters to US gallons.
func LToGal(l float64) float64 { return l / litersPerGal }

// ToCelsius converts t, expressed in unit u, to Celsius.
func ToCelsius(t float64, u Temperature) (float64, error) {
	switch u {
	case Celsius, "":
		return t, nil
	case Fahrenheit:
		return FToC(t), nil
	default:
		return 0, fmt.Errorf("units: unknown temperature unit %q", u)
	}
}

// FromCelsius converts a Celsius temperature t into unit u.
func FromCelsius(t float64, u Temperature) (float64, error) {
	switch u {
	case Celsius, "":
		return t, nil
	case Fahrenheit:
		return CToF(t), nil
	default:
		return 0, fmt.Errorf("units: unknown temperature unit %q", u)
	}
}

// ToKWh converts an energy value e, expressed in unit u, to kWh.
func ToKWh(e float64, u Energy) (float64, error) {
	switch u {
	case KWh, "":
		return e, nil
	case BTU:
		return BTUToKWh(e), nil
	default:
		return 0, fmt.Errorf("units: unknown energy unit %q", u)
	}
}

// FromKWh converts a kWh value e into unit u.
func FromKWh(e float64, u Energy) (float64, error) {
	switch u {
	case KWh, "":
		return e, nil
	case BTU:
		return KWhToBTU(e), nil
	default:
		return 0, fmt.Errorf("units: unknown energy unit %q", u)
	}
}

// ToLiters converts a volume v, expressed in unit u, to liters.
func ToLiters(v float64, u Volume) (float64, error) {
	switch u {
	case Liters, "":
		return v, nil
	case Gallons:
		return GalToL(v), nil
	default:
		return 0, fmt.Errorf("units: unknown volume unit %q", u)
	}
}

// FromLiters converts a liters value v into unit u.
func FromLiters(v float64, u Volume) (float64, error) {
	switch u {
	case Liters, "":
		return v, nil
	case Gallons:
		return LToGal(v), nil
	default:
		return 0, fmt.Errorf("units: unknown volume unit %q", u)
	}
}
