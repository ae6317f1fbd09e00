// Copyright (c) 2018–2024 The instrbuilder developers. All rights reserved.
// Project site: https://github.com/lucask07/instrbuilder
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

package instrbuilder

import (
	"fmt"
	"strings"
)

// Configs are the extra placeholder values of a command template, for
// example {"chan": 1} for ":TRIG:LEV {value}, CHAN{chan}".
type Configs map[string]any

// Kind distinguishes commands that build ASCII strings from templates from
// commands whose behavior is supplied by a function.
type Kind int

const (
	// Templated commands format their templates and use the transport.
	Templated Kind = iota
	// Custom commands call their CustomGetter/CustomSetter instead, for
	// example to transfer binary screen images.
	Custom
)

func (k Kind) String() string {
	switch k {
	case Templated:
		return "templated"
	case Custom:
		return "custom"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// GetterFunc replaces the template round trip of a custom getter.
type GetterFunc func(configs Configs) (any, error)

// SetterFunc replaces the template write of a custom setter.
type SetterFunc func(value any, configs Configs) error

// CommandSpec holds the raw description of a command, typically one row of a
// command table. Pass it to NewCommand.
type CommandSpec struct {
	Name string
	// SetTemplate is the ASCII set string. A " {value}" slot is appended
	// when it has none.
	SetTemplate string
	// GetTemplate is the ASCII query string. When empty it is derived from
	// SetTemplate by replacing " {value}" with "?".
	GetTemplate string
	Getter      bool
	Setter      bool
	// Converter converts getter responses. The zero value returns the
	// response string.
	Converter  Converter
	SetterType string
	Limits     Limits
	Lookup     Lookup
	Doc        string
	Subsystem  string
	// GetterInputs and SetterInputs count the inputs of the getter and
	// setter. Negative counts take the defaults of 0 and 1.
	GetterInputs int
	SetterInputs int
	IsConfig     bool
	ReturnsImage bool
	ReturnsArray bool
}

// Command is an immutable instrument command built by NewCommand.
type Command struct {
	name         string
	setTemplate  Template
	getTemplate  Template
	setKeys      []string
	getKeys      []string
	getter       bool
	setter       bool
	converter    Converter
	setterType   string
	limits       Limits
	lookup       Lookup
	doc          string
	subsystem    string
	getterInputs int
	setterInputs int
	isConfig     bool
	returnsImage bool
	returnsArray bool

	kind         Kind
	customGetter GetterFunc
	customSetter SetterFunc
}

// NewCommand normalizes spec into a Command. The set template always ends up
// with exactly one {value} slot, and limits given as lookup labels are
// translated to wire values.
func NewCommand(spec CommandSpec) (*Command, error) {
	setText := strings.TrimRight(spec.SetTemplate, " \t\r\n")
	if !strings.Contains(setText, "{"+ValueKey+"}") {
		setText += " {" + ValueKey + "}"
	}
	getText := spec.GetTemplate
	if getText == "" {
		getText = strings.Replace(setText, " {"+ValueKey+"}", "?", 1)
	}

	set := ParseTemplate(setText)
	get := ParseTemplate(getText)
	setKeys, ok := without(set.Keys(), ValueKey)
	if !ok {
		return nil, fmt.Errorf("command %s: %w: %q", spec.Name, ErrMissingValueSlot, setText)
	}

	conv := spec.Converter
	if conv.Convert == nil {
		conv = Converter{Name: DefaultConverterName, Convert: passthrough}
	}
	getterInputs, setterInputs := spec.GetterInputs, spec.SetterInputs
	if getterInputs < 0 {
		getterInputs = 0
	}
	if setterInputs < 0 {
		setterInputs = 1
	}

	c := &Command{
		name:         spec.Name,
		setTemplate:  set,
		getTemplate:  get,
		setKeys:      setKeys,
		getKeys:      get.Keys(),
		getter:       spec.Getter,
		setter:       spec.Setter,
		converter:    conv,
		setterType:   spec.SetterType,
		lookup:       append(Lookup(nil), spec.Lookup...),
		doc:          spec.Doc,
		subsystem:    spec.Subsystem,
		getterInputs: getterInputs,
		setterInputs: setterInputs,
		isConfig:     spec.IsConfig,
		returnsImage: spec.ReturnsImage,
		returnsArray: spec.ReturnsArray || conv.Array,
		kind:         Templated,
	}
	if spec.Limits != nil {
		c.limits = append(Limits(nil), spec.Limits...).translate(c.lookup)
	}
	return c, nil
}

// MustCommand is like NewCommand but panics on error. It is meant for
// commands declared in Go source.
func MustCommand(spec CommandSpec) *Command {
	c, err := NewCommand(spec)
	if err != nil {
		panic(err)
	}
	return c
}

// WithCustomGetter returns a custom copy of c whose Get calls fn.
func (c *Command) WithCustomGetter(fn GetterFunc) *Command {
	cp := *c
	cp.kind = Custom
	cp.customGetter = fn
	return &cp
}

// WithCustomSetter returns a custom copy of c whose Set calls fn.
func (c *Command) WithCustomSetter(fn SetterFunc) *Command {
	cp := *c
	cp.kind = Custom
	cp.customSetter = fn
	return &cp
}

func (c *Command) Name() string { return c.name }
func (c *Command) SetTemplate() Template { return c.setTemplate }
func (c *Command) GetTemplate() Template { return c.getTemplate }

// SetKeys returns the set template placeholders other than {value}.
func (c *Command) SetKeys() []string { return append([]string(nil), c.setKeys...) }

// GetKeys returns the get template placeholders.
func (c *Command) GetKeys() []string { return append([]string(nil), c.getKeys...) }

func (c *Command) Getter() bool { return c.getter }
func (c *Command) Setter() bool { return c.setter }
func (c *Command) Converter() Converter { return c.converter }
func (c *Command) SetterType() string { return c.setterType }
func (c *Command) Limits() Limits { return c.limits }
func (c *Command) Lookup() Lookup { return c.lookup }
func (c *Command) Doc() string { return c.doc }
func (c *Command) Subsystem() string { return c.subsystem }
func (c *Command) GetterInputs() int { return c.getterInputs }
func (c *Command) SetterInputs() int { return c.setterInputs }
func (c *Command) IsConfig() bool { return c.isConfig }
func (c *Command) ReturnsImage() bool { return c.returnsImage }
func (c *Command) ReturnsArray() bool { return c.returnsArray }
func (c *Command) Kind() Kind { return c.kind }
func (c *Command) CustomGetter() GetterFunc { return c.customGetter }
func (c *Command) CustomSetter() SetterFunc { return c.customSetter }

func (c *Command) String() string {
	return fmt.Sprintf("%s (set %q, get %q)", c.name, c.setTemplate, c.getTemplate)
}
