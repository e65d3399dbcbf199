package cups

import (
	"strings"

	"github.com/OpenPrinting/goipp"
)

// attrString returns the first value of the named attribute as a string.
func attrString(attrs goipp.Attributes, name string) (string, bool) {
	for _, a := range attrs {
		if a.Name == name && len(a.Values) > 0 {
			return a.Values[0].V.String(), true
		}
	}
	return "", false
}

// attrStrings returns every value of the named attribute.
func attrStrings(attrs goipp.Attributes, name string) []string {
	for _, a := range attrs {
		if a.Name != name {
			continue
		}
		out := make([]string, 0, len(a.Values))
		for _, v := range a.Values {
			out = append(out, v.V.String())
		}
		return out
	}
	return nil
}

// attrInt returns the first value of the named attribute as an int.
func attrInt(attrs goipp.Attributes, name string) (int, bool) {
	for _, a := range attrs {
		if a.Name == name && len(a.Values) > 0 {
			if i, ok := a.Values[0].V.(goipp.Integer); ok {
				return int(i), true
			}
		}
	}
	return 0, false
}

// attrBool returns the first value of the named attribute as a bool.
// String renditions of truth ("true", "yes", "on", "1") are accepted since
// queue options round-trip through CUPS as name values.
func attrBool(attrs goipp.Attributes, name string) (bool, bool) {
	for _, a := range attrs {
		if a.Name == name && len(a.Values) > 0 {
			switch v := a.Values[0].V.(type) {
			case goipp.Boolean:
				return bool(v), true
			default:
				s := strings.ToLower(v.String())
				return s == "true" || s == "yes" || s == "on" || s == "1", true
			}
		}
	}
	return false, false
}

// groupsWithTag collects the attribute sets of every group with the tag.
func groupsWithTag(m *goipp.Message, tag goipp.Tag) []goipp.Attributes {
	var out []goipp.Attributes
	for _, g := range m.Groups {
		if g.Tag == tag {
			out = append(out, g.Attrs)
		}
	}
	return out
}

// printerFromGroup builds a Printer from one printer attribute group.
func printerFromGroup(attrs goipp.Attributes) Printer {
	var p Printer
	p.Name, _ = attrString(attrs, "printer-name")
	p.URI, _ = attrString(attrs, "printer-uri-supported")
	p.DeviceURI, _ = attrString(attrs, "device-uri")
	p.Info, _ = attrString(attrs, "printer-info")
	p.Location, _ = attrString(attrs, "printer-location")
	p.MakeModel, _ = attrString(attrs, "printer-make-and-model")
	p.Type, _ = attrInt(attrs, "printer-type")
	p.State, _ = attrInt(attrs, "printer-state")
	p.Shared, _ = attrBool(attrs, "printer-is-shared")
	p.DaemonOwned, _ = attrBool(attrs, OwnerOption)
	return p
}
