// Copyright (c) 2018–2024 The instrbuilder developers. All rights reserved.
// Project site: https://github.com/lucask07/instrbuilder
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

package instrbuilder

import (
	"fmt"
	"strings"

	"github.com/lucask07/instrbuilder/lib/cmdlog"
)

// ListCommands returns the command names in table order.
func (s *Session) ListCommands() []string {
	return s.table.Names()
}

// Help writes the documentation of the command called name to the session
// output.
func (s *Session) Help(name string) error {
	c, err := s.command(name)
	if err != nil {
		return err
	}
	w := s.out
	sub := ""
	if c.Subsystem() != "" {
		sub = " in subsystem: " + c.Subsystem()
	}
	fmt.Fprintf(w, "Help for command %s%s:\n", cmdlog.NameStyle.Render(c.Name()), sub)
	fmt.Fprintf(w, "    %s\n", c.Doc())
	if c.Limits() != nil {
		fmt.Fprintf(w, "    Allowable range is: %s\n", c.Limits())
	}
	if c.Setter() && len(c.SetKeys()) > 0 {
		fmt.Fprintf(w, "    The setter needs a configuration dictionary with keys: %s\n",
			strings.Join(c.SetKeys(), ", "))
	}
	if c.Getter() {
		fmt.Fprintf(w, "    Returns: %s\n", c.Converter().Name)
		if len(c.GetKeys()) > 0 {
			fmt.Fprintf(w, "    Getting a value needs a configuration dictionary with keys: %s\n",
				strings.Join(c.GetKeys(), ", "))
		}
	}
	if len(c.Lookup()) > 0 {
		fmt.Fprintln(w, "    This command utilizes a lookup table on get and set:")
		fmt.Fprintf(w, "     %s\n", c.Lookup())
	}
	return nil
}

// HelpAll writes help for every command, grouped by subsystem. With no
// subsystems given, every subsystem is included.
func (s *Session) HelpAll(subsystems ...string) error {
	if len(subsystems) == 0 {
		subsystems = s.table.Subsystems()
	}
	for _, sub := range subsystems {
		fmt.Fprintln(s.out, cmdlog.Divider)
		fmt.Fprintf(s.out, "Help for subsystem: %s\n\n", cmdlog.SubsystemStyle.Render(sub))
		for _, c := range s.table.Commands() {
			cs := c.Subsystem()
			if cs == "" {
				cs = UnassignedSubsystem
			}
			if cs != sub {
				continue
			}
			if err := s.Help(c.Name()); err != nil {
				return err
			}
			fmt.Fprintln(s.out)
		}
	}
	return nil
}
