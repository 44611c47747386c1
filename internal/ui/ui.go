//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Copyright (C) 2025 Aaron Mathis aaron.mathis@gmail.com
//
// This file is part of GoPlan.
//
// GoPlan is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// GoPlan is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with GoPlan. If not, see https://www.gnu.org/licenses/.

// Package ui styles goplan CLI output.
package ui

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

var (
	ColorPass   = lipgloss.AdaptiveColor{Light: "#86b300", Dark: "#c2d94c"}
	ColorWarn   = lipgloss.AdaptiveColor{Light: "#f2ae49", Dark: "#ffb454"}
	ColorFail   = lipgloss.AdaptiveColor{Light: "#f07171", Dark: "#f07178"}
	ColorMuted  = lipgloss.AdaptiveColor{Light: "#828c99", Dark: "#6c7680"}
	ColorAccent = lipgloss.AdaptiveColor{Light: "#399ee6", Dark: "#59c2ff"}
)

var (
	TitleStyle    = lipgloss.NewStyle().Bold(true).Foreground(ColorAccent)
	CriticalStyle = lipgloss.NewStyle().Bold(true).Foreground(ColorWarn)
	PassStyle     = lipgloss.NewStyle().Foreground(ColorPass)
	FailStyle     = lipgloss.NewStyle().Bold(true).Foreground(ColorFail)
	MutedStyle    = lipgloss.NewStyle().Foreground(ColorMuted)
)

// IsTerminal reports whether f is connected to a terminal.
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// ShouldUseColor applies the NO_COLOR, CLICOLOR and CLICOLOR_FORCE conventions, then
// falls back to whether f is a terminal.
func ShouldUseColor(f *os.File) bool {
	if _, exists := os.LookupEnv("NO_COLOR"); exists {
		return false
	}
	if os.Getenv("CLICOLOR") == "0" {
		return false
	}
	if _, exists := os.LookupEnv("CLICOLOR_FORCE"); exists {
		return true
	}
	return IsTerminal(f)
}

// Init sets the lipgloss colour profile. noColor forces plain output.
func Init(f *os.File, noColor bool) {
	if noColor || !ShouldUseColor(f) {
		lipgloss.SetColorProfile(termenv.Ascii)
		return
	}
	lipgloss.SetColorProfile(termenv.TrueColor)
	lipgloss.SetHasDarkBackground(termenv.HasDarkBackground())
}

// Heading renders a section title.
func Heading(s string) string {
	return TitleStyle.Render(s)
}

// Chain renders ids joined by arrows, highlighting them when critical is set.
func Chain(ids []string, critical bool) string {
	style := MutedStyle
	if critical {
		style = CriticalStyle
	}
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = style.Render(id)
	}
	return strings.Join(parts, " -> ")
}

// Hours formats a duration in hours without trailing zeros.
func Hours(h float64) string {
	return strings.TrimSuffix(strings.TrimRight(fmt.Sprintf("%.2f", h), "0"), ".") + "h"
}

// Fail renders an error line.
func Fail(s string) string {
	return FailStyle.Render("error: ") + s
}

// Pass renders a success line.
func Pass(s string) string {
	return PassStyle.Render(s)
}
