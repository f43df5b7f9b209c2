package domain

import (
	"errors"
	"strings"
)

var (
	ErrEmailAt        = errors.New("invalid email address, should have exactly one @")
	ErrEmailAddress   = errors.New("invalid email address, address should not be empty")
	ErrEmailDomain    = errors.New("invalid email address, domain should not be empty")
	ErrEmailDomainTLD = errors.New("invalid email address, cannot work out domain")
)

// MaskEmail hides most of an address, keeping two characters of the local
// part, two of the domain and the final domain label:
// fred.bloggs@gmail.com becomes fr***@gm***.com.
func MaskEmail(email string) (string, error) {
	if strings.Count(email, "@") != 1 {
		return "", ErrEmailAt
	}
	address, domain, _ := strings.Cut(email, "@")
	if address == "" {
		return "", ErrEmailAddress
	}
	if domain == "" {
		return "", ErrEmailDomain
	}
	dot := strings.LastIndex(domain, ".")
	if dot <= 0 || dot == len(domain)-1 {
		return "", ErrEmailDomainTLD
	}
	return prefix(address, 2) + "***@" + prefix(domain[:dot], 2) + "***." + domain[dot+1:], nil
}

func prefix(s string, n int) string {
	r := []rune(s)
	if len(r) < n {
		return s
	}
	return string(r[:n])
}
