package bot

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	minNameLen = 2
	maxNameLen = 64
	maxGameLen = 48
)

func digitsOf(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, s)
}

func NormalizePhoneNumber(phone string) string {
	phone = strings.TrimSpace(phone)
	cleaned := digitsOf(phone)

	// Local Russian formats get the +7 country code.
	if strings.HasPrefix(cleaned, "7") && len(cleaned) == 11 {
		return "+" + cleaned
	}
	if strings.HasPrefix(cleaned, "8") && len(cleaned) == 11 {
		return "+7" + cleaned[1:]
	}
	if strings.HasPrefix(cleaned, "9") && len(cleaned) == 10 {
		return "+7" + cleaned
	}

	if cleaned == "" {
		return ""
	}
	// Telegram contacts come without the plus.
	return "+" + cleaned
}

var badNumbers = map[string]bool{
	"0000000000": true,
	"1111111111": true,
	"1234567890": true,
	"9999999999": true,
	"0123456789": true,
}

func IsValidPhoneNumber(phone string) bool {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return false
	}
	if !strings.HasPrefix(phone, "+") && !unicode.IsDigit(rune(phone[0])) {
		return false
	}

	cleaned := digitsOf(phone)
	if len(cleaned) < 10 || len(cleaned) > 15 {
		return false
	}
	if badNumbers[cleaned] || badNumbers[cleaned[len(cleaned)-10:]] {
		return false
	}

	// Only separators may sit between the digits.
	for _, r := range phone {
		if unicode.IsDigit(r) || strings.ContainsRune("+ -()", r) {
			continue
		}
		return false
	}
	return true
}

func FormatPhoneNumber(phone string) string {
	// +7 (XXX) XXX-XX-XX for Russian numbers
	if strings.HasPrefix(phone, "+7") && len(phone) == 12 {
		return fmt.Sprintf("%s (%s) %s-%s-%s",
			phone[:2],
			phone[2:5],
			phone[5:8],
			phone[8:10],
			phone[10:12])
	}
	return phone
}

// IsValidName accepts letters with inner spaces, hyphens and apostrophes.
func IsValidName(name string) bool {
	n := utf8.RuneCountInString(name)
	if n < minNameLen || n > maxNameLen {
		return false
	}
	for _, r := range name {
		if unicode.IsLetter(r) || r == ' ' || r == '-' || r == '\'' || r == '‘' || r == '’' {
			continue
		}
		return false
	}
	return unicode.IsLetter([]rune(name)[0])
}

func IsValidCity(city string) bool {
	n := utf8.RuneCountInString(city)
	if n < minNameLen || n > maxNameLen {
		return false
	}
	for _, r := range city {
		if unicode.IsControl(r) {
			return false
		}
	}
	return true
}

// NormalizeGameName collapses whitespace in a custom game entry.
func NormalizeGameName(name string) string {
	return strings.Join(strings.Fields(name), " ")
}

func IsValidGameName(name string) bool {
	n := utf8.RuneCountInString(name)
	return n > 0 && n <= maxGameLen
}
