package util

import (
	"os"
	"regexp"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

var expansionRegex = regexp.MustCompile(`\$\{.*?\}`)

// Expansions is a map of expansion names to their values. Expansions
// are used to replace ${...} references in strings.
type Expansions map[string]string

// NewExpansions creates a new Expansions instance seeded with the
// given map.
func NewExpansions(initMap map[string]string) *Expansions {
	exp := Expansions(map[string]string{})
	expRef := &exp
	expRef.Update(initMap)
	return expRef
}

// Put inserts a value into the expansions. If the expansion key
// already exists, the value is overwritten.
func (exp *Expansions) Put(expansion string, value string) {
	(*exp)[expansion] = value
}

// Get fetches a value from the expansions. Returns the empty string
// if the value is not present.
func (exp *Expansions) Get(expansion string) string {
	if exp.Exists(expansion) {
		return (*exp)[expansion]
	}
	return ""
}

// Exists reports whether the given expansion is present in the map.
func (exp *Expansions) Exists(expansion string) bool {
	_, ok := (*exp)[expansion]
	return ok
}

// Remove deletes a value from the expansions.
func (exp *Expansions) Remove(expansion string) {
	delete(*exp, expansion)
}

// Update adds (or overwrites) the values in the given map to the
// expansions.
func (exp *Expansions) Update(newItems map[string]string) {
	for k, v := range newItems {
		exp.Put(k, v)
	}
}

// Map returns a copy-free view of the expansions as a plain map.
func (exp *Expansions) Map() map[string]string {
	return *exp
}

// Keys returns the expansion names currently in the map.
func (exp *Expansions) Keys() []string {
	keys := make([]string, 0, len(*exp))
	for k := range *exp {
		keys = append(keys, k)
	}
	return keys
}

// UpdateFromYaml reads a map of key/value pairs from the given YAML
// file and updates the expansions to include them, returning the keys
// found in the file.
func (exp *Expansions) UpdateFromYaml(filename string) ([]string, error) {
	filedata, err := os.ReadFile(filename)
	if err != nil {
		return nil, errors.Wrapf(err, "reading expansions file '%s'", filename)
	}

	newExpansions := make(map[string]string)
	if err := yaml.Unmarshal(filedata, newExpansions); err != nil {
		return nil, errors.Wrapf(err, "unmarshalling expansions file '%s'", filename)
	}
	exp.Update(newExpansions)

	keys := make([]string, 0, len(newExpansions))
	for k := range newExpansions {
		keys = append(keys, k)
	}
	return keys, nil
}

// ExpandString applies the expansions to a single string and returns
// the result. A reference has the form ${key}, optionally carrying a
// default after a pipe: ${key|val} uses the literal val when key is
// absent, ${key|*other} uses the value of the expansion named other,
// and ${key!|val} falls back to the default when key's value is the
// empty string as well as when it is absent. Unclosed ${ references
// make the string malformed.
func (exp *Expansions) ExpandString(toExpand string) (string, error) {
	malformedFound := false
	expanded := string(expansionRegex.ReplaceAllFunc([]byte(toExpand), func(matchByte []byte) []byte {
		match := string(matchByte)
		// trim off ${ and }
		match = match[2 : len(match)-1]
		// a ${ within the match means we closed on an unmatched ${
		if strings.Contains(match, "${") {
			malformedFound = true
		}

		// parse into the name and default value
		var defaultValue string
		if idx := strings.Index(match, "|"); idx != -1 {
			defaultValue = match[idx+1:]
			match = match[0:idx]
		}

		// a trailing bang applies the default to empty values too
		useDefaultIfEmpty := false
		if strings.HasSuffix(match, "!") {
			useDefaultIfEmpty = true
			match = match[:len(match)-1]
		}

		// a star prefix makes the default another expansion lookup
		if strings.HasPrefix(defaultValue, "*") {
			defaultValue = exp.Get(defaultValue[1:])
		}

		if exp.Exists(match) {
			value := exp.Get(match)
			if value == "" && useDefaultIfEmpty {
				return []byte(defaultValue)
			}
			return []byte(value)
		}

		return []byte(defaultValue)
	}))

	if malformedFound || strings.Contains(expanded, "${") {
		return expanded, errors.Errorf("'%s' contains an unclosed expansion", toExpand)
	}

	return expanded, nil
}
