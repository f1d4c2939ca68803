// Package contact validates and normalizes client contact details before
// they are stored.
package contact

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/ttacon/libphonenumber"
)

// DefaultRegion is used for numbers written without a country code.
const DefaultRegion = "PK"

var (
	ErrInvalidEmail = errors.New("contact: invalid email address")
	ErrInvalidPhone = errors.New("contact: invalid phone number")
)

// emailRegex matches: {local}@{domain}.{tld} with no whitespace.
var emailRegex = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// NormalizeEmail trims and lower-cases an address and checks its shape.
func NormalizeEmail(email string) (string, error) {
	e := strings.ToLower(strings.TrimSpace(email))
	if !emailRegex.MatchString(e) {
		return "", fmt.Errorf("%w: %q", ErrInvalidEmail, email)
	}
	return e, nil
}

// Normalizer formats phone numbers as E.164.
type Normalizer struct {
	region string
}

// NewNormalizer creates a normalizer for region. Empty means DefaultRegion.
func NewNormalizer(region string) *Normalizer {
	if region == "" {
		region = DefaultRegion
	}
	return &Normalizer{region: strings.ToUpper(region)}
}

// Region returns the default region code.
func (n *Normalizer) Region() string { return n.region }

// NormalizePhone parses phone in the normalizer's region and returns its
// E.164 form.
func (n *Normalizer) NormalizePhone(phone string) (string, error) {
	p, err := libphonenumber.Parse(strings.TrimSpace(phone), n.region)
	if err != nil {
		return "", fmt.Errorf("%w: %q: %v", ErrInvalidPhone, phone, err)
	}
	if !libphonenumber.IsValidNumber(p) {
		return "", fmt.Errorf("%w: %q", ErrInvalidPhone, phone)
	}
	return libphonenumber.Format(p, libphonenumber.E164), nil
}

// NormalizeOptionalPhone leaves nil and blank numbers as nil.
func (n *Normalizer) NormalizeOptionalPhone(phone *string) (*string, error) {
	if phone == nil || strings.TrimSpace(*phone) == "" {
		return nil, nil
	}
	e164, err := n.NormalizePhone(*phone)
	if err != nil {
		return nil, err
	}
	return &e164, nil
}
