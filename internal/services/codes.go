package services

import (
	"crypto/rand"
	"math/big"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"campusclubs/internal/domain"
)

const registrationCodeGroup = 4

// Uppercase letters and digits without 0/O, 1/I/L so codes survive being read aloud at a venue.
var registrationCodeAlphabet = []rune("ABCDEFGHJKMNPQRSTUVWXYZ23456789")

var codePrefixes = map[domain.Kind]string{
	domain.KindEvent: "EV",
	domain.KindClub:  "CL",
}

// generateRegistrationCode returns a code such as EV-7KQ2-MX9D.
func generateRegistrationCode(kind domain.Kind) (string, error) {
	b := make([]rune, 0, 2*registrationCodeGroup+1)
	limit := big.NewInt(int64(len(registrationCodeAlphabet)))
	for i := 0; i < 2*registrationCodeGroup; i++ {
		if i == registrationCodeGroup {
			b = append(b, '-')
		}
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", err
		}
		b = append(b, registrationCodeAlphabet[n.Int64()])
	}
	return codePrefixes[kind] + "-" + string(b), nil
}

// kindFromCode returns the domain encoded in a registration code prefix.
func kindFromCode(code string) (domain.Kind, bool) {
	prefix, _, ok := strings.Cut(strings.ToUpper(strings.TrimSpace(code)), "-")
	if !ok {
		return "", false
	}
	for kind, p := range codePrefixes {
		if p == prefix {
			return kind, true
		}
	}
	return "", false
}

// newTransactionID returns a gateway transaction id unique across both registration domains.
func newTransactionID(now time.Time) string {
	return "TXN" + ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String()
}
