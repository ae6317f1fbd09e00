// Copyright (c) 2018–2024 The instrbuilder developers. All rights reserved.
// Project site: https://github.com/lucask07/instrbuilder
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

/*
Package instrbuilder turns tables of SCPI-like instrument commands into get
and set operations.

Each Command describes one ASCII command: a set template with a {value}
slot, a query template, optional extra {placeholders}, a response
conversion, allowed limits and a lookup between human-readable labels and
the values the instrument uses. Tables are usually loaded from CSV files
with the lib/cmdtable package.

A Session binds a Table to a Transport:

	table, err := cmdtable.LoadFiles("commands.csv", "lookup.csv")
	if err != nil {
		log.Fatal(err)
	}
	osc, err := instrbuilder.NewSession(table, transport, instrbuilder.WithName("osc"))
	if err != nil {
		log.Fatal(err)
	}
	err = osc.Set("trigger_level", 0.5, instrbuilder.Configs{"chan": 1})
	level, err := osc.Get("trigger_level", instrbuilder.Configs{"chan": 1})

Out of range values and responses missing from a lookup are logged and
otherwise accepted, since instruments often enforce limits of their own.
Responses that cannot be converted are logged and returned as nil.

When no instrument is attached, a nil transport selects a Simulator and the
session records set values so that later gets return them.

RegisterSession offers the same get/set contract for register-addressed
SPI, I2C and Modbus devices.
*/
package instrbuilder
