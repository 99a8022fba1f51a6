package ical

import (
	"strings"
)

// Param is a single property parameter such as ROLE=REQ-PARTICIPANT.
type Param struct {
	Name  string
	Value string
}

// Property is one content line. Value must already be escaped for its type.
type Property struct {
	Name   string
	Params []Param
	Value  string
}

// Component is a BEGIN/END block holding ordered properties and sub-components.
type Component struct {
	Name       string
	Properties []Property
	Components []Component
}

// Add appends a property and returns the component for chaining.
func (c *Component) Add(name, value string, params ...Param) *Component {
	c.Properties = append(c.Properties, Property{Name: name, Params: params, Value: value})
	return c
}

// Property returns the first property with the given name.
func (c *Component) Property(name string) (Property, bool) {
	for _, p := range c.Properties {
		if p.Name == name {
			return p, true
		}
	}
	return Property{}, false
}

// String renders the unfolded content line.
func (p Property) String() string {
	var sb strings.Builder
	sb.WriteString(p.Name)
	for _, param := range p.Params {
		sb.WriteByte(';')
		sb.WriteString(param.Name)
		sb.WriteByte('=')
		sb.WriteString(quoteParamValue(param.Value))
	}
	sb.WriteByte(':')
	sb.WriteString(p.Value)
	return sb.String()
}

// Lines flattens the component into unfolded content lines.
func (c Component) Lines() []string {
	return c.appendLines(nil)
}

func (c Component) appendLines(dst []string) []string {
	dst = append(dst, "BEGIN:"+c.Name)
	for _, p := range c.Properties {
		dst = append(dst, p.String())
	}
	for _, sub := range c.Components {
		dst = sub.appendLines(dst)
	}
	return append(dst, "END:"+c.Name)
}

// Encode folds every content line and terminates it with CRLF.
func Encode(c Component) string {
	var sb strings.Builder
	for _, line := range c.Lines() {
		sb.WriteString(Fold(line))
		sb.WriteString("\r\n")
	}
	return sb.String()
}

// quoteParamValue drops characters a parameter value cannot carry and quotes
// the value when it contains a delimiter.
func quoteParamValue(v string) string {
	v = strings.Map(func(r rune) rune {
		if r == '"' || r == 0x7f || (r < 0x20 && r != '\t') {
			return -1
		}
		return r
	}, v)
	if strings.ContainsAny(v, ":;,") {
		return `"` + v + `"`
	}
	return v
}
