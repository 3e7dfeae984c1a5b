// Package scpd parses Service Control Point Definition documents and renders
// SOAP arguments with the data types each renderer advertises.
package scpd

import (
	"encoding/xml"
	"strings"
)

// Document mirrors the SCPD XML layout.
type Document struct {
	XMLName        xml.Name        `xml:"scpd"`
	Actions        []Action        `xml:"actionList>action"`
	StateVariables []StateVariable `xml:"serviceStateTable>stateVariable"`
}

// Action is one named action with its ordered argument list.
type Action struct {
	Name      string     `xml:"name"`
	Arguments []Argument `xml:"argumentList>argument"`
}

// Argument describes one action argument.
type Argument struct {
	Name                 string `xml:"name"`
	Direction            string `xml:"direction"` // "in" or "out"
	RelatedStateVariable string `xml:"relatedStateVariable"`
}

// IsIn reports whether the argument travels with the request.
func (a Argument) IsIn() bool {
	return strings.EqualFold(a.Direction, "in")
}

// StateVariable describes one service state variable.
type StateVariable struct {
	Name          string        `xml:"name"`
	DataType      string        `xml:"dataType"`
	AllowedValues []string      `xml:"allowedValueList>allowedValue"`
	AllowedRange  *AllowedRange `xml:"allowedValueRange"`
}

// AllowedRange carries min/max/step as strings; renderers disagree on the
// numeric types they put here.
type AllowedRange struct {
	Minimum string `xml:"minimum"`
	Maximum string `xml:"maximum"`
	Step    string `xml:"step"`
}

// ServiceSchema is a parsed SCPD indexed for lookup.
type ServiceSchema struct {
	actions   map[string]*Action
	stateVars map[string]*StateVariable
}

// Parse decodes an SCPD document.
func Parse(body []byte) (*ServiceSchema, error) {
	var doc Document
	if err := xml.Unmarshal(body, &doc); err != nil {
		return nil, err
	}

	schema := &ServiceSchema{
		actions:   make(map[string]*Action, len(doc.Actions)),
		stateVars: make(map[string]*StateVariable, len(doc.StateVariables)),
	}
	for i := range doc.Actions {
		action := &doc.Actions[i]
		schema.actions[action.Name] = action
	}
	for i := range doc.StateVariables {
		sv := &doc.StateVariables[i]
		schema.stateVars[sv.Name] = sv
	}
	return schema, nil
}

// Action returns the named action, or nil when the renderer does not offer it.
func (s *ServiceSchema) Action(name string) *Action {
	if s == nil {
		return nil
	}
	return s.actions[name]
}

// HasAction reports whether the renderer advertises the action.
func (s *ServiceSchema) HasAction(name string) bool {
	return s.Action(name) != nil
}

// StateVariable returns the named state variable, or nil.
func (s *ServiceSchema) StateVariable(name string) *StateVariable {
	if s == nil {
		return nil
	}
	return s.stateVars[name]
}
