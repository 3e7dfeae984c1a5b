package scpd

import (
	"encoding/xml"
	"strings"
)

const msDatatypesNS = "urn:schemas-microsoft-com:datatypes"

// BuildArguments renders the In arguments of an action in declaration order.
// values maps argument name to the value to send; commandInput is the raw
// user parameter matched against allowed-value enumerations. Out arguments
// are omitted from the request, InstanceID is always "0".
func BuildArguments(schema *ServiceSchema, action *Action, values map[string]string, commandInput string) string {
	var buf strings.Builder
	for _, arg := range action.Arguments {
		if !arg.IsIn() {
			continue
		}
		if arg.Name == "InstanceID" {
			buf.WriteString(BuildArgumentXML(schema, arg, "0", ""))
			continue
		}
		buf.WriteString(BuildArgumentXML(schema, arg, values[arg.Name], commandInput))
	}
	return buf.String()
}

// BuildArgumentXML renders a single argument element. When the related state
// variable enumerates allowed values, the enumeration wins: a case-insensitive
// match against commandInput picks the device's casing, and with no match the
// first enumerated value is sent. Unknown state variables fall back to a bare
// element without the dt:dt annotation.
func BuildArgumentXML(schema *ServiceSchema, arg Argument, value, commandInput string) string {
	sv := schema.StateVariable(arg.RelatedStateVariable)
	if sv == nil {
		return "<" + arg.Name + ">" + escape(value) + "</" + arg.Name + ">"
	}

	sendValue := value
	if len(sv.AllowedValues) > 0 {
		sendValue = sv.AllowedValues[0]
		for _, allowed := range sv.AllowedValues {
			if strings.EqualFold(allowed, commandInput) {
				sendValue = allowed
				break
			}
		}
	}

	dataType := sv.DataType
	if dataType == "" {
		dataType = "string"
	}

	var buf strings.Builder
	buf.WriteString("<")
	buf.WriteString(arg.Name)
	buf.WriteString(` xmlns:dt="`)
	buf.WriteString(msDatatypesNS)
	buf.WriteString(`" dt:dt="`)
	buf.WriteString(dataType)
	buf.WriteString(`">`)
	buf.WriteString(escape(sendValue))
	buf.WriteString("</")
	buf.WriteString(arg.Name)
	buf.WriteString(">")
	return buf.String()
}

func escape(input string) string {
	var b strings.Builder
	if err := xml.EscapeText(&b, []byte(input)); err != nil {
		return input
	}
	return b.String()
}
