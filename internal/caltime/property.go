package caltime

import "strings"

// Property is one unfolded content line: NAME;PARAM=VALUE:VALUE[,VALUE...].
// Name and parameter keys are upper-cased.
type Property struct {
	Name   string
	Params map[string][]string
	Value  string
}

// Param returns the first value of the named parameter, or "".
func (p Property) Param(name string) string {
	vs := p.Params[strings.ToUpper(name)]
	if len(vs) == 0 {
		return ""
	}
	return vs[0]
}

// HasParam reports whether the named parameter carries value (case-insensitive).
func (p Property) HasParam(name, value string) bool {
	for _, v := range p.Params[strings.ToUpper(name)] {
		if strings.EqualFold(v, value) {
			return true
		}
	}
	return false
}

// Values splits the property value on commas.
func (p Property) Values() []string {
	parts := strings.Split(p.Value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// ParseLine splits an unfolded content line. Quoted parameter values may
// contain ':', ';' and ','.
func ParseLine(line string) (Property, error) {
	line = strings.TrimRight(line, "\r\n")

	colon := indexUnquoted(line, ':')
	if colon < 0 {
		return Property{}, formatErr("property", line, "missing ':'")
	}
	head, value := line[:colon], line[colon+1:]

	segments := splitUnquoted(head, ';')
	name := strings.ToUpper(strings.TrimSpace(segments[0]))
	if name == "" {
		return Property{}, formatErr("property", line, "empty name")
	}

	p := Property{Name: name, Params: map[string][]string{}, Value: value}
	for _, seg := range segments[1:] {
		key, raw, ok := strings.Cut(seg, "=")
		if !ok {
			return Property{}, formatErr("property", line, "parameter without '='")
		}
		key = strings.ToUpper(strings.TrimSpace(key))
		for _, v := range splitUnquoted(raw, ',') {
			p.Params[key] = append(p.Params[key], strings.Trim(strings.TrimSpace(v), `"`))
		}
	}
	return p, nil
}

func indexUnquoted(s string, sep byte) int {
	quoted := false
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '"':
			quoted = !quoted
		case sep:
			if !quoted {
				return i
			}
		}
	}
	return -1
}

func splitUnquoted(s string, sep byte) []string {
	var out []string
	for {
		i := indexUnquoted(s, sep)
		if i < 0 {
			return append(out, s)
		}
		out = append(out, s[:i])
		s = s[i+1:]
	}
}
