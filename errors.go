// Copyright (c) 2018–2024 The instrbuilder developers. All rights reserved.
// Project site: https://github.com/lucask07/instrbuilder
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

package instrbuilder

import "errors"

var (
	// ErrUnknownCommand is returned when a command or register name is not in
	// the session's table.
	ErrUnknownCommand = errors.New("unknown command")

	// ErrCapability is returned when getting a command that is not a getter or
	// setting a command that is not a setter.
	ErrCapability = errors.New("command does not support operation")

	// ErrReadOnly is returned when writing a read-only register.
	ErrReadOnly = errors.New("register is read-only")

	// ErrAccessUnset is returned when writing a register without a configured
	// read/write mode.
	ErrAccessUnset = errors.New("register read/write mode not configured")

	// ErrMissingValueSlot is returned when a set template has no value
	// placeholder after normalization.
	ErrMissingValueSlot = errors.New("set template lacks {value} placeholder")

	// ErrMissingConfig is returned when a template placeholder has no entry in
	// the configuration passed to Get or Set.
	ErrMissingConfig = errors.New("missing template configuration key")
)
