// Glucobar - Personal Glucose Monitoring Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/glucobar

package glucose

import "github.com/tomtom215/glucobar/internal/models"

// MgdlPerMmol is the molar mass factor between the two units.
const MgdlPerMmol = 18.0182

// ToMgdl converts a value in unit u to mg/dL.
func ToMgdl(value float64, u models.Unit) float64 {
	if u == models.UnitMmolL {
		return value * MgdlPerMmol
	}
	return value
}

// ToMmol converts a value in unit u to mmol/L.
func ToMmol(value float64, u models.Unit) float64 {
	if u == models.UnitMgdL {
		return value / MgdlPerMmol
	}
	return value
}

// Convert converts value from one unit to another.
func Convert(value float64, from, to models.Unit) float64 {
	if from == to {
		return value
	}
	if to == models.UnitMgdL {
		return ToMgdl(value, from)
	}
	return ToMmol(value, from)
}

// UnitFromCode maps the upstream GlucoseUnits code. 0 is mmol/L and 1 is
// mg/dL; anything else (including absent) is treated as mmol/L.
func UnitFromCode(code *int) models.Unit {
	if code != nil && *code == 1 {
		return models.UnitMgdL
	}
	return models.UnitMmolL
}
