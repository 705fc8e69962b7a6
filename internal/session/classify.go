package session

import (
	"strings"

	"reelup/internal/services"
)

// Provider identifies which login strategy an email address uses.
type Provider int

const (
	ProviderPassword Provider = iota
	ProviderDelegated
)

func (p Provider) String() string {
	switch p {
	case ProviderPassword:
		return "password"
	case ProviderDelegated:
		return "delegated"
	default:
		return "unknown"
	}
}

// Classify picks the login provider for email. Addresses whose domain is in
// delegatedDomains use the browser flow; everything else uses a password.
// Malformed addresses are rejected with ErrUnsupportedProvider.
func Classify(email string, delegatedDomains []string) (Provider, error) {
	domain, ok := emailDomain(email)
	if !ok {
		return ProviderPassword, services.Wrap(services.ErrUnsupportedProvider, "session", "classify", "malformed email address", nil)
	}
	for _, candidate := range delegatedDomains {
		candidate = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(candidate), "@"))
		if candidate == "" {
			continue
		}
		if domain == candidate || strings.HasSuffix(domain, "."+candidate) {
			return ProviderDelegated, nil
		}
	}
	return ProviderPassword, nil
}

func emailDomain(email string) (string, bool) {
	email = strings.TrimSpace(email)
	local, domain, found := strings.Cut(email, "@")
	if !found || local == "" || domain == "" || strings.Contains(domain, "@") {
		return "", false
	}
	if strings.ContainsAny(email, " \t\r\n") {
		return "", false
	}
	return strings.ToLower(domain), true
}
