package contact

import (
	"fmt"
	"strings"
	"time"
)

// Field limits, in characters
const (
	MinName, MaxName       = 2, 100
	MinClub, MaxClub       = 2, 120
	MaxRole                = 80
	MaxPhone               = 32
	MinMessage, MaxMessage = 10, 5000
	MaxEmail               = 254
)

// request is the wire form of the contact form
type request struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Club    string `json:"club"`
	Role    string `json:"role"`
	Phone   string `json:"phone"`
	Message string `json:"message"`
	Locale  string `json:"locale"`
	Consent bool   `json:"consent"`
	// Website is never shown to humans, anything in it means a bot filled the form
	Website string `json:"website"`
}

// Submission is a validated enquiry as delivered to notifiers and archived
type Submission struct {
	ID         string    `json:"id"`
	ReceivedAt time.Time `json:"receivedAt"`
	Name       string    `json:"name"`
	Email      string    `json:"email"`
	Club       string    `json:"club"`
	Role       string    `json:"role,omitempty"`
	Phone      string    `json:"phone,omitempty"`
	Message    string    `json:"message"`
	Locale     string    `json:"locale"`
	Consent    bool      `json:"consent"`
	RequestID  string    `json:"requestId,omitempty"`
}

// LocaleSet is satisfied by i18n.Negotiator
type LocaleSet interface {
	Supported(locale string) bool
	Default() string
}

// singleLine trims s and replaces line breaks and tabs so header-bound fields stay on one line
func singleLine(s string) string {
	s = strings.Map(func(r rune) rune {
		switch r {
		case '\r', '\n', '\t', '\v', '\f', '\u2028', '\u2029':
			return ' '
		}
		return r
	}, s)
	return strings.TrimSpace(s)
}

func (in *request) normalize() {
	in.Name = singleLine(in.Name)
	in.Email = strings.TrimSpace(in.Email)
	in.Club = singleLine(in.Club)
	in.Role = singleLine(in.Role)
	in.Phone = singleLine(in.Phone)
	in.Message = strings.TrimSpace(strings.ReplaceAll(in.Message, "\r\n", "\n"))
	in.Locale = strings.ToLower(strings.TrimSpace(in.Locale))
	in.Website = strings.TrimSpace(in.Website)
}

func (in *request) validate(v *Validator, locales LocaleSet) {
	v.Check(in.Name != "", "name", "must be provided")
	v.Check(Between(in.Name, MinName, MaxName), "name", fmt.Sprintf("must be %d to %d characters", MinName, MaxName))

	v.Check(in.Email != "", "email", "must be provided")
	v.Check(len(in.Email) <= MaxEmail, "email", fmt.Sprintf("must not be more than %d bytes", MaxEmail))
	v.Check(Matches(in.Email, EmailRX), "email", "must be a valid email address")

	v.Check(in.Club != "", "club", "must be provided")
	v.Check(Between(in.Club, MinClub, MaxClub), "club", fmt.Sprintf("must be %d to %d characters", MinClub, MaxClub))

	v.Check(Between(in.Role, 0, MaxRole), "role", fmt.Sprintf("must not be more than %d characters", MaxRole))

	v.Check(Between(in.Phone, 0, MaxPhone), "phone", fmt.Sprintf("must not be more than %d characters", MaxPhone))
	v.Check(Matches(in.Phone, phoneRX), "phone", "may only contain digits, spaces, +, - and parentheses")

	v.Check(in.Message != "", "message", "must be provided")
	v.Check(Between(in.Message, MinMessage, MaxMessage), "message", fmt.Sprintf("must be %d to %d characters", MinMessage, MaxMessage))

	v.Check(in.Consent, "consent", "must be accepted")

	if in.Locale != "" && locales != nil {
		v.Check(locales.Supported(in.Locale), "locale", "is not supported")
	}
}

func (in *request) submission(id string, at time.Time, locales LocaleSet) *Submission {
	loc := in.Locale
	if loc == "" {
		loc = "en"
		if locales != nil {
			loc = locales.Default()
		}
	}
	return &Submission{
		ID:         id,
		ReceivedAt: at.UTC(),
		Name:       in.Name,
		Email:      in.Email,
		Club:       in.Club,
		Role:       in.Role,
		Phone:      in.Phone,
		Message:    in.Message,
		Locale:     loc,
		Consent:    in.Consent,
	}
}
