// Copyright (c) 2018–2024 The instrbuilder developers. All rights reserved.
// Project site: https://github.com/lucask07/instrbuilder
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

package instrbuilder

import "time"

// Op is a command direction.
type Op string

const (
	OpGet Op = "get"
	OpSet Op = "set"
)

// Warning classifies a recovered problem.
type Warning string

const (
	WarnRange      Warning = "range"
	WarnLookup     Warning = "lookup"
	WarnConversion Warning = "conversion"
)

// Collector receives session events, for example to export them as
// metrics. Implementations must not block.
type Collector interface {
	ObserveCommand(instrument, command string, op Op, d time.Duration, err error)
	ObserveWarning(instrument, command string, w Warning)
	ObserveTest(instrument, command string, r TestResult)
}

type noopCollector struct{}

func (noopCollector) ObserveCommand(string, string, Op, time.Duration, error) {}
func (noopCollector) ObserveWarning(string, string, Warning) {}
func (noopCollector) ObserveTest(string, string, TestResult) {}
