package contact

import (
	"fmt"
	"strings"

	"remindflow/internal/domain"
)

// Separator joins the email and phone halves of a "both" contact string.
const Separator = "|"

const defaultCountryPrefix = "62"

// Resolver derives the recipient addresses for a reminder from the
// task-level contact and the owner's profile fallback.
type Resolver struct {
	prefix string
}

func NewResolver(countryPrefix string) *Resolver {
	if countryPrefix == "" {
		countryPrefix = defaultCountryPrefix
	}
	return &Resolver{prefix: countryPrefix}
}

func (r *Resolver) Resolve(method domain.Method, target string, profile domain.Profile) (domain.Recipients, error) {
	switch method {
	case domain.MethodEmail:
		email, err := r.resolveEmail(target, profile.Email)
		if err != nil {
			return domain.Recipients{}, err
		}
		return domain.Recipients{Email: email}, nil

	case domain.MethodMessaging:
		phone, err := r.resolvePhone(target, profile.Phone)
		if err != nil {
			return domain.Recipients{}, err
		}
		return domain.Recipients{Phone: phone}, nil

	case domain.MethodBoth:
		emailPart, phonePart := splitBoth(target)
		email, err := r.resolveEmail(emailPart, profile.Email)
		if err != nil {
			return domain.Recipients{}, err
		}
		phone, err := r.resolvePhone(phonePart, profile.Phone)
		if err != nil {
			return domain.Recipients{}, err
		}
		return domain.Recipients{Email: email, Phone: phone}, nil
	}
	return domain.Recipients{}, fmt.Errorf("%w: unknown method %q", domain.ErrContactInvalid, method)
}

func (r *Resolver) resolveEmail(target, fallback string) (string, error) {
	email := strings.TrimSpace(target)
	if email == "" {
		email = strings.TrimSpace(fallback)
	}
	if email == "" || !strings.Contains(email, "@") {
		return "", fmt.Errorf("%w: no usable email address", domain.ErrContactInvalid)
	}
	return email, nil
}

func (r *Resolver) resolvePhone(target, fallback string) (string, error) {
	raw := strings.TrimSpace(target)
	if raw == "" {
		raw = strings.TrimSpace(fallback)
	}
	if raw == "" {
		return "", fmt.Errorf("%w: no usable phone number", domain.ErrContactInvalid)
	}
	phone, err := r.NormalizePhone(raw)
	if err != nil {
		return "", err
	}
	return phone, nil
}

// NormalizePhone converts a phone number to canonical international form:
// digits only, starting with the country prefix. A leading "0" is replaced
// with the prefix, a leading "+" is dropped, and a bare local number gets
// the prefix prepended. Normalization is idempotent.
func (r *Resolver) NormalizePhone(raw string) (string, error) {
	var b strings.Builder
	for _, c := range raw {
		if c >= '0' && c <= '9' || c == '+' {
			b.WriteRune(c)
		}
	}
	s := strings.TrimPrefix(b.String(), "+")
	switch {
	case s == "":
		return "", fmt.Errorf("%w: phone %q has no digits", domain.ErrContactInvalid, raw)
	case strings.HasPrefix(s, "0"):
		s = r.prefix + s[1:]
	case strings.HasPrefix(s, r.prefix):
		// already canonical
	default:
		s = r.prefix + s
	}
	if strings.ContainsRune(s, '+') || len(s) < 8 || len(s) > 15 {
		return "", fmt.Errorf("%w: phone %q does not normalize to 8-15 digits", domain.ErrContactInvalid, raw)
	}
	return s, nil
}

func splitBoth(target string) (email, phone string) {
	parts := strings.SplitN(target, Separator, 2)
	email = strings.TrimSpace(parts[0])
	if len(parts) == 2 {
		phone = strings.TrimSpace(parts[1])
	}
	return email, phone
}

// JoinBoth builds the stored contact string for the "both" method.
func JoinBoth(email, phone string) string {
	return strings.TrimSpace(email) + Separator + strings.TrimSpace(phone)
}
