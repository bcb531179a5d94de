// Package command fills outbound control command templates. Move rules carry
// a template like "SET_STATE {callsign} TAXI"; the engine substitutes flight
// fields before the transport layer sends it out.
package command

import (
	"fmt"
	"regexp"
	"strings"
)

var placeholderRe = regexp.MustCompile(`\{([a-z_]+)\}`)

// UnresolvedPlaceholderError reports a template placeholder with no value in
// the variable map.
type UnresolvedPlaceholderError struct {
	Placeholder string
}

func (e *UnresolvedPlaceholderError) Error() string {
	return fmt.Sprintf("unresolved placeholder {%s}", e.Placeholder)
}

// Fill substitutes every {placeholder} in tmpl from vars. A placeholder
// missing from vars, or present with an empty value, fails the whole fill:
// sending a half-formed command downstream is worse than sending none.
func Fill(tmpl string, vars map[string]string) (string, error) {
	var missing string
	out := placeholderRe.ReplaceAllStringFunc(tmpl, func(match string) string {
		name := strings.Trim(match, "{}")
		val, ok := vars[name]
		if !ok || val == "" {
			if missing == "" {
				missing = name
			}
			return match
		}
		return val
	})
	if missing != "" {
		return "", &UnresolvedPlaceholderError{Placeholder: missing}
	}
	return out, nil
}
