/**
 * @description
 * This package generates and validates virtual card credentials. Card numbers
 * are 16 digits, Luhn-valid, and carry the issuer digit '4'; CVVs and PINs are
 * random and leave this package only as plaintext handed to the caller once,
 * alongside bcrypt hashes for storage. Nothing here logs or persists a secret.
 */

package card

import (
	"crypto/rand"
	"errors"
	"math/big"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

const (
	// NumberLength is the fixed length of issued card numbers.
	NumberLength = 16

	// IssuerPrefix is the leading issuer identification digit on every issued card.
	IssuerPrefix = "4"

	// CVVLength and PINLength are the secret lengths issued with each card.
	CVVLength = 3
	PINLength = 4

	// ValidityMonths is the card lifetime from issuance.
	ValidityMonths = 36
)

// Format validation failures, from cheapest to most expensive check. Callers
// map any of them to the invalid-card-number response code.
var (
	ErrNumberMissing  = errors.New("card number is required")
	ErrNumberLength   = errors.New("card number must be 16 digits")
	ErrNumberIssuer   = errors.New("card number has an unrecognized issuer prefix")
	ErrNumberChecksum = errors.New("card number fails checksum")
)

// GenerateNumber mints a fresh 16-digit card number: issuer digit, 14 random
// digits, Luhn check digit. Randomness comes from crypto/rand; uniqueness is
// enforced by the storage layer, with the caller retrying on collision.
func GenerateNumber() (string, error) {
	var b strings.Builder
	b.WriteString(IssuerPrefix)
	for i := 0; i < NumberLength-2; i++ {
		d, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + d.Int64()))
	}
	partial := b.String()
	return partial + string(checkDigit(partial)), nil
}

// checkDigit computes the Luhn check digit for a partial number.
func checkDigit(partial string) byte {
	sum := luhnSum(partial, true)
	return byte('0' + (10-sum%10)%10)
}

// luhnSum runs the doubling pass right-to-left. doubleFirst is true when the
// rightmost digit of s sits in a doubled position, which is the case for a
// partial number missing its check digit.
func luhnSum(s string, doubleFirst bool) int {
	sum := 0
	double := doubleFirst
	for i := len(s) - 1; i >= 0; i-- {
		d := int(s[i] - '0')
		if double {
			d *= 2
			if d > 9 {
				d = d%10 + d/10
			}
		}
		sum += d
		double = !double
	}
	return sum
}

// Normalize strips spaces and hyphens from a candidate card number.
func Normalize(number string) string {
	return strings.Map(func(r rune) rune {
		if r == ' ' || r == '-' {
			return -1
		}
		return r
	}, number)
}

// ValidateLuhn reports whether a candidate number of 13 to 19 digits passes
// the Luhn checksum. Spaces and hyphens are stripped first; any other
// non-digit character fails.
func ValidateLuhn(number string) bool {
	n := Normalize(number)
	if len(n) < 13 || len(n) > 19 {
		return false
	}
	for i := 0; i < len(n); i++ {
		if n[i] < '0' || n[i] > '9' {
			return false
		}
	}
	return luhnSum(n, false)%10 == 0
}

// ValidateFormat checks a candidate against the issued-card format and returns
// the first failing reason: missing, wrong length or non-digit, wrong issuer
// prefix, bad checksum.
func ValidateFormat(number string) error {
	n := Normalize(number)
	if n == "" {
		return ErrNumberMissing
	}
	if len(n) != NumberLength {
		return ErrNumberLength
	}
	for i := 0; i < len(n); i++ {
		if n[i] < '0' || n[i] > '9' {
			return ErrNumberLength
		}
	}
	if !strings.HasPrefix(n, IssuerPrefix) {
		return ErrNumberIssuer
	}
	if luhnSum(n, false)%10 != 0 {
		return ErrNumberChecksum
	}
	return nil
}

// GenerateCVV returns a random 3-digit CVV, zero-padded.
func GenerateCVV() (string, error) {
	return randomDigits(CVVLength)
}

// GeneratePIN returns a random 4-digit PIN, zero-padded.
func GeneratePIN() (string, error) {
	return randomDigits(PINLength)
}

func randomDigits(n int) (string, error) {
	b := make([]byte, n)
	for i := range b {
		d, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", err
		}
		b[i] = byte('0' + d.Int64())
	}
	return string(b), nil
}

// HashSecret bcrypt-hashes a CVV, PIN, or password for storage.
func HashSecret(secret string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	return string(hash), err
}

// VerifySecret compares a plaintext secret against its stored bcrypt hash.
func VerifySecret(hash, plaintext string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext)) == nil
}

// ExpiryFrom returns the card expiry for an issuance instant.
func ExpiryFrom(issuedAt time.Time) time.Time {
	return issuedAt.AddDate(0, ValidityMonths, 0)
}

// Mask renders a card number as its last four digits behind a fixed mask.
func Mask(number string) string {
	if len(number) < 4 {
		return "****"
	}
	return "**** **** **** " + number[len(number)-4:]
}

// Last4 returns the trailing four digits of a card number.
func Last4(number string) string {
	if len(number) < 4 {
		return number
	}
	return number[len(number)-4:]
}
