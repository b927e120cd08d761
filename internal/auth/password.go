package auth

import (
	"strings"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

const MinPasswordLength = 8

const specialChars = `!@#$%^&*(),.?":{}|<>`

// PasswordRequirements lists the rules ValidatePassword enforces.
var PasswordRequirements = []string{
	"at least 8 characters",
	"at least one uppercase letter",
	"at least one lowercase letter",
	"at least one digit",
	"at least one special character",
}

// ValidatePassword returns one message per unmet rule, or nil.
func ValidatePassword(password string) []string {
	var problems []string
	if len(password) < MinPasswordLength {
		problems = append(problems, "Password must be at least 8 characters long")
	}

	var upper, lower, digit, special bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case strings.ContainsRune(specialChars, r):
			special = true
		}
	}

	if !upper {
		problems = append(problems, "Password must contain at least one uppercase letter")
	}
	if !lower {
		problems = append(problems, "Password must contain at least one lowercase letter")
	}
	if !digit {
		problems = append(problems, "Password must contain at least one digit")
	}
	if !special {
		problems = append(problems, "Password must contain at least one special character")
	}
	return problems
}

func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
