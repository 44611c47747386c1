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

package aggregate

import (
	"github.com/aaronlmathis/goplan/core"
)

// Aggregator folds the records of one group into a single value.
type Aggregator interface {
	// Add processes a record for aggregation.
	Add(record core.Record) error
	// Result returns the aggregated value.
	Result() interface{}
	// Clone returns an empty aggregator with the same configuration.
	Clone() Aggregator
}
