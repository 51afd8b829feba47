// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package molecule

// HiddenOffset is added to an atom's element number to mark it hidden.
// Hidden atoms keep their slot and coordinates but are excluded from the
// continuous index, so they never reach exported structures.
const HiddenOffset = 128

// elementSymbols maps atomic number to symbol. Index 0 is the inert
// placeholder element written by atom removal; it is never exported.
var elementSymbols = [...]string{
	"", "H", "He",
	"Li", "Be", "B", "C", "N", "O", "F", "Ne",
	"Na", "Mg", "Al", "Si", "P", "S", "Cl", "Ar",
	"K", "Ca", "Sc", "Ti", "V", "Cr", "Mn", "Fe", "Co", "Ni", "Cu", "Zn",
	"Ga", "Ge", "As", "Se", "Br", "Kr",
	"Rb", "Sr", "Y", "Zr", "Nb", "Mo", "Tc", "Ru", "Rh", "Pd", "Ag", "Cd",
	"In", "Sn", "Sb", "Te", "I", "Xe",
	"Cs", "Ba",
	"La", "Ce", "Pr", "Nd", "Pm", "Sm", "Eu", "Gd", "Tb", "Dy", "Ho", "Er",
	"Tm", "Yb", "Lu",
	"Hf", "Ta", "W", "Re", "Os", "Ir", "Pt", "Au", "Hg",
	"Tl", "Pb", "Bi", "Po", "At", "Rn",
	"Fr", "Ra",
	"Ac", "Th", "Pa", "U", "Np", "Pu", "Am", "Cm", "Bk", "Cf", "Es", "Fm",
	"Md", "No", "Lr",
	"Rf", "Db", "Sg", "Bh", "Hs", "Mt", "Ds", "Rg", "Cn",
	"Nh", "Fl", "Mc", "Lv", "Ts", "Og",
}

var symbolToNumber = func() map[string]int {
	m := make(map[string]int, len(elementSymbols))
	for num, sym := range elementSymbols {
		if sym != "" {
			m[sym] = num
		}
	}
	return m
}()

// SymbolToNumber resolves an element symbol ("C", "Fe") to its atomic
// number. Returns false for unknown symbols.
func SymbolToNumber(symbol string) (int, bool) {
	num, ok := symbolToNumber[symbol]
	return num, ok
}

// NumberToSymbol resolves an atomic number to its symbol. Returns false
// for the placeholder element 0, hidden markers, and out-of-range codes.
func NumberToSymbol(num int) (string, bool) {
	if num <= 0 || num >= len(elementSymbols) {
		return "", false
	}
	return elementSymbols[num], true
}

// ValidElement reports whether an element number denotes a real, visible
// atom: placeholder (0), hidden markers (>= HiddenOffset), and negative
// codes are all invalid.
func ValidElement(num int) bool {
	return num > 0 && num < HiddenOffset
}
