// Copyright (c) 2018–2024 The instrbuilder developers. All rights reserved.
// Project site: https://github.com/lucask07/instrbuilder
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

package instrbuilder

// UnassignedSubsystem groups commands without a subsystem in help output.
const UnassignedSubsystem = "Unassigned"

// Table is an ordered registry of commands keyed by name.
type Table struct {
	order []string
	cmds  map[string]*Command
}

// NewTable returns a table holding cmds in order.
func NewTable(cmds ...*Command) *Table {
	t := &Table{cmds: make(map[string]*Command, len(cmds))}
	for _, c := range cmds {
		t.Add(c)
	}
	return t
}

// Add registers c. A command with the name of an existing one replaces it in
// place and Add reports true.
func (t *Table) Add(c *Command) (replaced bool) {
	if t.cmds == nil {
		t.cmds = map[string]*Command{}
	}
	if _, ok := t.cmds[c.Name()]; ok {
		t.cmds[c.Name()] = c
		return true
	}
	t.cmds[c.Name()] = c
	t.order = append(t.order, c.Name())
	return false
}

// Command returns the command called name.
func (t *Table) Command(name string) (*Command, bool) {
	c, ok := t.cmds[name]
	return c, ok
}

// Names returns the command names in table order.
func (t *Table) Names() []string {
	return append([]string(nil), t.order...)
}

// Commands returns the commands in table order.
func (t *Table) Commands() []*Command {
	out := make([]*Command, 0, len(t.order))
	for _, n := range t.order {
		out = append(out, t.cmds[n])
	}
	return out
}

func (t *Table) Len() int { return len(t.order) }

// Subsystems returns the distinct subsystems in order of first appearance.
// Commands without one are reported as UnassignedSubsystem.
func (t *Table) Subsystems() []string {
	seen := map[string]bool{}
	var out []string
	for _, c := range t.Commands() {
		s := c.Subsystem()
		if s == "" {
			s = UnassignedSubsystem
		}
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

// replace swaps the command called c.Name() for c, keeping its position.
func (t *Table) replace(c *Command) {
	if _, ok := t.cmds[c.Name()]; ok {
		t.cmds[c.Name()] = c
	}
}
