package validation

import (
	"fmt"
	"regexp"
)

var moduleNamePattern = regexp.MustCompile(`^[a-z0-9_]{3,40}$`)

// ValidateModuleName checks a module name against the registry naming rule:
// 3 to 40 characters of lowercase letters, digits and underscores.
func ValidateModuleName(name string) error {
	if !moduleNamePattern.MatchString(name) {
		return fmt.Errorf("module name %q must match %s", name, moduleNamePattern.String())
	}
	return nil
}

var operatorNamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._@-]{0,63}$`)

// ValidateOperatorName checks the operator recorded in a minted token. It ends
// up in logs, so it is kept to a short printable identifier.
func ValidateOperatorName(name string) error {
	if !operatorNamePattern.MatchString(name) {
		return fmt.Errorf("operator %q must be 1 to 64 letters, digits, '.', '_', '@' or '-'", name)
	}
	return nil
}
