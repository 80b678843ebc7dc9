package sanitize

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	emailStrip     = regexp.MustCompile(`[<>;\\\s]`)
	usernameStrip  = regexp.MustCompile(`[^a-zA-Z0-9_.-]`)
	emailFormat    = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	usernameFormat = regexp.MustCompile(`^[a-zA-Z0-9_.-]{3,50}$`)
	mobileFormat   = regexp.MustCompile(`^\+?[0-9]{7,15}$`)
	tagPattern     = regexp.MustCompile(`<[^>]*>`)
)

// Email trims, lowercases and removes characters never valid in an address
func Email(email string) string {
	return emailStrip.ReplaceAllString(strings.ToLower(strings.TrimSpace(email)), "")
}

// Username keeps letters, digits, underscore, hyphen and dot
func Username(username string) string {
	return usernameStrip.ReplaceAllString(strings.TrimSpace(username), "")
}

// Mobile keeps digits and a leading plus sign
func Mobile(phone string) string {
	phone = strings.TrimSpace(phone)
	var b strings.Builder
	for i, r := range phone {
		if r == '+' && i == 0 {
			b.WriteRune(r)
			continue
		}
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Text strips HTML tags and control characters other than newlines and tabs
func Text(input string) string {
	input = tagPattern.ReplaceAllString(input, "")
	var b strings.Builder
	for _, r := range input {
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			continue
		}
		b.WriteRune(r)
	}
	return strings.TrimSpace(b.String())
}

// ValidEmail checks the shape of an address
func ValidEmail(email string) bool {
	return emailFormat.MatchString(email)
}

// ValidUsername checks length and allowed characters
func ValidUsername(username string) bool {
	return usernameFormat.MatchString(username)
}

// ValidMobile accepts 7 to 15 digits with an optional leading plus
func ValidMobile(phone string) bool {
	return mobileFormat.MatchString(phone)
}
