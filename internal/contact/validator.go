package contact

import (
	"regexp"
	"unicode/utf8"
)

// EmailRX is the WHATWG "valid e-mail address" pattern used by browsers for input[type=email]
var EmailRX = regexp.MustCompile(`^[a-zA-Z0-9.!#$%&'*+/=?^_` + "`" + `{|}~-]+@[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?(?:\.[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?)*$`)

var phoneRX = regexp.MustCompile(`^[+0-9 ()\-]*$`)

// Validator collects per-field messages, the first message for a field wins
type Validator struct {
	Errors map[string]string
}

func NewValidator() *Validator {
	return &Validator{Errors: make(map[string]string)}
}

func (v *Validator) Valid() bool { return len(v.Errors) == 0 }

func (v *Validator) AddError(field, message string) {
	if _, exists := v.Errors[field]; !exists {
		v.Errors[field] = message
	}
}

// Check adds message for field unless ok
func (v *Validator) Check(ok bool, field, message string) {
	if !ok {
		v.AddError(field, message)
	}
}

func Matches(s string, rx *regexp.Regexp) bool { return rx.MatchString(s) }

// Between reports whether s has between min and max characters, counting runes
func Between(s string, min, max int) bool {
	n := utf8.RuneCountInString(s)
	return n >= min && n <= max
}
