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

package ui

import (
	"os"
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/stretchr/testify/assert"
)

func TestShouldUseColor(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "out")
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	assert.False(t, ShouldUseColor(f))

	t.Setenv("CLICOLOR_FORCE", "1")
	assert.True(t, ShouldUseColor(f))

	t.Setenv("NO_COLOR", "")
	assert.False(t, ShouldUseColor(f))
}

func TestRenderPlain(t *testing.T) {
	lipgloss.SetColorProfile(termenv.Ascii)

	assert.Equal(t, "A -> B -> D", Chain([]string{"A", "B", "D"}, true))
	assert.Equal(t, "", Chain(nil, false))
	assert.Equal(t, "11h", Hours(11))
	assert.Equal(t, "2.5h", Hours(2.5))
	assert.Equal(t, "0h", Hours(0))
	assert.Equal(t, "error: boom", Fail("boom"))
}
