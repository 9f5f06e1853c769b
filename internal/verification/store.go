// Package verification issues and checks short-lived one-time codes kept in Redis.
package verification

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/hotp"

	"github.com/angelmondragon/trustlend-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/trustlend-backend/pkg/errors"
	"github.com/angelmondragon/trustlend-backend/pkg/logger"
	"github.com/angelmondragon/trustlend-backend/pkg/redis"
)

const issuer = "TrustLend"

// Purpose scopes a code so one issued for email cannot confirm a phone number.
type Purpose string

const (
	PurposeEmail Purpose = "email"
	PurposePhone Purpose = "phone"
)

// ParsePurpose converts raw input into a known Purpose.
func ParsePurpose(value string) (Purpose, error) {
	switch p := Purpose(strings.ToLower(strings.TrimSpace(value))); p {
	case PurposeEmail, PurposePhone:
		return p, nil
	}
	return "", fmt.Errorf("invalid verification purpose %q", value)
}

type codeStore interface {
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
	VerificationKey(purpose, subject string) string
	VerificationAttemptsKey(purpose, subject string) string
}

// Issued is a freshly generated code. Delivery is the caller's concern.
type Issued struct {
	Code      string
	ExpiresAt time.Time
}

// Store keeps one pending code per purpose and subject. Issuing again
// replaces the pending code and resets the attempt counter.
type Store struct {
	redis       codeStore
	ttl         time.Duration
	digits      otp.Digits
	maxAttempts int64
	now         func() time.Time
	logg        *logger.Logger
}

// NewStore builds a verification store from config.
func NewStore(store codeStore, cfg config.VerificationConfig, logg *logger.Logger) (*Store, error) {
	if store == nil {
		return nil, errors.New("redis store required")
	}
	if logg == nil {
		return nil, errors.New("logger required")
	}
	digits := otp.DigitsSix
	switch cfg.Digits {
	case 0, 6:
	case 8:
		digits = otp.DigitsEight
	default:
		return nil, fmt.Errorf("unsupported code length %d", cfg.Digits)
	}
	ttl := cfg.CodeTTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	attempts := int64(cfg.MaxAttempts)
	if attempts <= 0 {
		attempts = 5
	}
	return &Store{redis: store, ttl: ttl, digits: digits, maxAttempts: attempts, now: time.Now, logg: logg}, nil
}

func (s *Store) opts() hotp.ValidateOpts {
	return hotp.ValidateOpts{Digits: s.digits, Algorithm: otp.AlgorithmSHA1}
}

// Issue generates a code for subject and stores its HOTP secret and counter
// under the purpose key with the configured TTL.
func (s *Store) Issue(ctx context.Context, purpose Purpose, subject string) (*Issued, error) {
	if subject = strings.TrimSpace(subject); subject == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "subject is required")
	}
	key, err := hotp.Generate(hotp.GenerateOpts{
		Issuer:      issuer,
		AccountName: subject,
		Digits:      s.digits,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate verification secret")
	}
	now := s.now()
	counter := uint64(now.Unix())
	code, err := hotp.GenerateCodeCustom(key.Secret(), counter, s.opts())
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate verification code")
	}

	codeKey := s.redis.VerificationKey(string(purpose), subject)
	if err := s.redis.Set(ctx, codeKey, encodeEntry(counter, key.Secret()), s.ttl); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store verification code")
	}
	if err := s.redis.Del(ctx, s.redis.VerificationAttemptsKey(string(purpose), subject)); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reset verification attempts")
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{"purpose": purpose, "subject": subject}), "verification code issued")
	return &Issued{Code: code, ExpiresAt: now.Add(s.ttl)}, nil
}

// Verify checks code against the pending entry. A match consumes the entry.
// Each call counts as an attempt; past the limit the entry is discarded.
func (s *Store) Verify(ctx context.Context, purpose Purpose, subject, code string) error {
	subject = strings.TrimSpace(subject)
	code = strings.TrimSpace(code)
	if subject == "" || code == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "subject and code are required")
	}
	codeKey := s.redis.VerificationKey(string(purpose), subject)
	attemptsKey := s.redis.VerificationAttemptsKey(string(purpose), subject)

	attempts, err := s.redis.IncrWithTTL(ctx, attemptsKey, s.ttl)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count verification attempt")
	}
	if attempts > s.maxAttempts {
		if err := s.redis.Del(ctx, codeKey); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "discard verification code")
		}
		return pkgerrors.New(pkgerrors.CodeRateLimit, "too many verification attempts")
	}

	raw, err := s.redis.Get(ctx, codeKey)
	if errors.Is(err, redis.Nil) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "verification code expired or was never issued")
	}
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load verification code")
	}
	counter, secret, err := decodeEntry(raw)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decode verification code")
	}
	ok, err := hotp.ValidateCustom(code, counter, secret, s.opts())
	if err != nil || !ok {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid verification code")
	}

	if err := s.redis.Del(ctx, codeKey, attemptsKey); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "consume verification code")
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{"purpose": purpose, "subject": subject}), "verification code accepted")
	return nil
}

func encodeEntry(counter uint64, secret string) string {
	return strconv.FormatUint(counter, 10) + ":" + secret
}

func decodeEntry(raw string) (uint64, string, error) {
	counterPart, secret, ok := strings.Cut(raw, ":")
	if !ok || secret == "" {
		return 0, "", fmt.Errorf("malformed entry")
	}
	counter, err := strconv.ParseUint(counterPart, 10, 64)
	if err != nil {
		return 0, "", err
	}
	return counter, secret, nil
}
