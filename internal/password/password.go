package password

import (
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

const (
	MinLength = 8
	MaxLength = 128

	// MinEntropyBits is the Shannon-entropy floor for an acceptable password,
	// computed as length * log2(charsetSize).
	MinEntropyBits = 30.0

	commonPasswordMaxScore = 20
)

// dummyHash is a fixed bcrypt hash compared against on failure paths so
// missing-account and wrong-password responses take statistically similar
// time. Its preimage is irrelevant.
const dummyHash = "$2a$12$R9h/cIPz0gi.URNNX3kh2OPST9/PgBkqquzi.Ss7KIUgO2t0jWMUW"

var commonPasswords = map[string]struct{}{
	"password": {}, "password1": {}, "password123": {}, "passw0rd": {},
	"p@ssw0rd": {}, "123456": {}, "1234567": {}, "12345678": {},
	"123456789": {}, "1234567890": {}, "qwerty": {}, "qwerty123": {},
	"abc123": {}, "abcd1234": {}, "letmein": {}, "admin": {}, "admin123": {},
	"welcome": {}, "welcome1": {}, "iloveyou": {}, "monkey": {},
	"dragon": {}, "football": {}, "baseball": {}, "master": {},
	"shadow": {}, "superman": {}, "trustno1": {}, "111111": {},
	"000000": {}, "sunshine": {}, "princess": {}, "secret": {},
}

type Strength struct {
	IsValid  bool     `json:"is_valid"`
	Score    int      `json:"score"`
	Entropy  float64  `json:"entropy"`
	Feedback []string `json:"feedback,omitempty"`
}

// ValidateStrength scores a candidate password against the policy: length
// 8-128, upper+lower+digit present, entropy above the floor, and not a known
// weak password. Symbols raise the score but are not required.
func ValidateStrength(password string) Strength {
	result := Strength{}

	if len(password) < MinLength {
		result.Feedback = append(result.Feedback, fmt.Sprintf("password must be at least %d characters", MinLength))
	}
	if len(password) > MaxLength {
		result.Feedback = append(result.Feedback, fmt.Sprintf("password must be at most %d characters", MaxLength))
	}

	var hasUpper, hasLower, hasDigit, hasSymbol bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		default:
			hasSymbol = true
		}
	}

	if !hasUpper {
		result.Feedback = append(result.Feedback, "add an uppercase letter")
	}
	if !hasLower {
		result.Feedback = append(result.Feedback, "add a lowercase letter")
	}
	if !hasDigit {
		result.Feedback = append(result.Feedback, "add a digit")
	}

	charset := 0
	if hasLower {
		charset += 26
	}
	if hasUpper {
		charset += 26
	}
	if hasDigit {
		charset += 10
	}
	if hasSymbol {
		charset += 32
	}

	if charset > 0 {
		result.Entropy = float64(len(password)) * math.Log2(float64(charset))
	}
	if result.Entropy < MinEntropyBits {
		result.Feedback = append(result.Feedback, "password is too predictable")
	}

	score := 0

	lengthBonus := len(password) * 2
	if lengthBonus > 25 {
		lengthBonus = 25
	}
	score += lengthBonus

	for _, present := range []bool{hasUpper, hasLower, hasDigit, hasSymbol} {
		if present {
			score += 10
		}
	}

	entropyBonus := int(result.Entropy / 2)
	if entropyBonus > 35 {
		entropyBonus = 35
	}
	score += entropyBonus

	if hasRepeatedRun(password) {
		score -= 10
		result.Feedback = append(result.Feedback, "avoid repeated characters")
	}
	if hasSequence(password) {
		score -= 15
		result.Feedback = append(result.Feedback, "avoid sequential characters")
	}

	_, isCommon := commonPasswords[strings.ToLower(password)]
	if isCommon {
		if score > commonPasswordMaxScore {
			score = commonPasswordMaxScore
		}
		result.Feedback = append(result.Feedback, "this password is too common")
	}

	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	result.Score = score

	result.IsValid = len(password) >= MinLength &&
		len(password) <= MaxLength &&
		hasUpper && hasLower && hasDigit &&
		result.Entropy >= MinEntropyBits &&
		!isCommon

	return result
}

// hasRepeatedRun reports whether the password contains three or more of the
// same character in a row.
func hasRepeatedRun(password string) bool {
	runes := []rune(password)
	for i := 2; i < len(runes); i++ {
		if runes[i] == runes[i-1] && runes[i] == runes[i-2] {
			return true
		}
	}
	return false
}

// hasSequence reports whether the password contains an ascending run of three
// or more consecutive letters or digits ("abc", "123").
func hasSequence(password string) bool {
	runes := []rune(strings.ToLower(password))
	for i := 2; i < len(runes); i++ {
		a, b, c := runes[i-2], runes[i-1], runes[i]
		alpha := a >= 'a' && a <= 'z' && c >= 'a' && c <= 'z'
		digit := a >= '0' && a <= '9' && c >= '0' && c <= '9'
		if (alpha || digit) && b == a+1 && c == b+1 {
			return true
		}
	}
	return false
}

// Hasher wraps bcrypt with a configurable cost factor so the cost can be
// raised online and old hashes migrated via NeedsRehash.
type Hasher struct {
	cost int
}

func NewHasher(cost int) *Hasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &Hasher{cost: cost}
}

// prehash collapses the password to a base64 SHA-256 digest before bcrypt,
// which rejects inputs over 72 bytes. The digest is 44 bytes, so the whole
// 8-128 character policy range hashes and every character stays significant.
func prehash(password string) []byte {
	sum := sha256.Sum256([]byte(password))
	out := make([]byte, base64.StdEncoding.EncodedLen(len(sum)))
	base64.StdEncoding.Encode(out, sum[:])
	return out
}

func (h *Hasher) Hash(password string) (string, error) {
	if len(password) < MinLength || len(password) > MaxLength {
		return "", fmt.Errorf("password length must be between %d and %d characters", MinLength, MaxLength)
	}

	hash, err := bcrypt.GenerateFromPassword(prehash(password), h.cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// Verify never returns an error: internal failures are logged and treated as
// a mismatch.
func (h *Hasher) Verify(password string, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), prehash(password))
	if err == nil {
		return true
	}
	if err != bcrypt.ErrMismatchedHashAndPassword {
		slog.Error("password verify failed", "error", err)
	}
	return false
}

// TimingSafeVerify behaves like Verify but runs a dummy bcrypt compare on
// empty or missing inputs, so callers cannot distinguish a nonexistent
// account from a wrong password by response latency.
func (h *Hasher) TimingSafeVerify(password string, hash string) bool {
	if password == "" || hash == "" {
		_ = bcrypt.CompareHashAndPassword([]byte(dummyHash), prehash(password))
		return false
	}
	return h.Verify(password, hash)
}

// NeedsRehash reports whether the stored hash was produced with a lower cost
// than currently configured. Unparseable hashes fail toward rehashing.
func (h *Hasher) NeedsRehash(hash string) bool {
	cost, err := bcrypt.Cost([]byte(hash))
	if err != nil {
		return true
	}
	return cost < h.cost
}
