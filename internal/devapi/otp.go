package devapi

import (
	"crypto/rand"
	"errors"
	"sync"
	"time"

	"pickup-portal/client/internal/security"
)

const (
	otpDigits = 6
	// OTPTTL is how long an issued OTP stays valid.
	OTPTTL = 5 * time.Minute
	// maxOTPAttempts wrong guesses invalidate the OTP.
	maxOTPAttempts = 5
)

var (
	ErrOTPNotFound = errors.New("otp not found")
	ErrOTPExpired  = errors.New("otp expired")
	ErrOTPMismatch = errors.New("otp mismatch")
)

// GenerateOTP returns a 6-digit numeric OTP read from crypto/rand.
func GenerateOTP() (string, error) {
	b := make([]byte, otpDigits)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	s := make([]byte, otpDigits)
	for i := range b {
		s[i] = '0' + (b[i] % 10)
	}
	return string(s), nil
}

type otpEntry struct {
	hash      string
	plain     string
	expiresAt time.Time
	attempts  int
}

// OTPStore keeps one outstanding OTP per mobile number. Only the hash is kept unless
// keepPlain is set, in which case Peek can return the OTP for GET /dev/otp.
type OTPStore struct {
	mu        sync.Mutex
	m         map[string]otpEntry
	keepPlain bool
	now       func() time.Time
}

// NewOTPStore returns an empty store. now defaults to time.Now.
func NewOTPStore(keepPlain bool, now func() time.Time) *OTPStore {
	if now == nil {
		now = time.Now
	}
	return &OTPStore{m: make(map[string]otpEntry), keepPlain: keepPlain, now: now}
}

// Issue generates an OTP for mobile, replacing any earlier one.
func (s *OTPStore) Issue(mobile string) (string, error) {
	otp, err := GenerateOTP()
	if err != nil {
		return "", err
	}
	e := otpEntry{hash: security.HashSecret(otp), expiresAt: s.now().Add(OTPTTL)}
	if s.keepPlain {
		e.plain = otp
	}
	s.mu.Lock()
	s.m[mobile] = e
	s.mu.Unlock()
	return otp, nil
}

// Verify consumes the OTP for mobile on a match. A wrong OTP counts an attempt; the
// entry is dropped once it expires or runs out of attempts.
func (s *OTPStore) Verify(mobile, otp string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.m[mobile]
	if !ok {
		return ErrOTPNotFound
	}
	if !e.expiresAt.After(s.now()) {
		delete(s.m, mobile)
		return ErrOTPExpired
	}
	if !security.SecretMatches(otp, e.hash) {
		e.attempts++
		if e.attempts >= maxOTPAttempts {
			delete(s.m, mobile)
		} else {
			s.m[mobile] = e
		}
		return ErrOTPMismatch
	}
	delete(s.m, mobile)
	return nil
}

// Peek returns the plain OTP for mobile when plain OTPs are kept and it has not expired.
func (s *OTPStore) Peek(mobile string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.m[mobile]
	if !ok || e.plain == "" {
		return "", false
	}
	if !e.expiresAt.After(s.now()) {
		delete(s.m, mobile)
		return "", false
	}
	return e.plain, true
}
