package patient

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/redis/go-redis/v9"
)

// OTPTTL is how long a verification code stays valid.
const OTPTTL = 10 * time.Minute

// OTPStore keeps one-time codes in Redis, keyed by phone number, expiring
// after OTPTTL. Verification consumes the code.
type OTPStore struct {
	rdb *redis.Client
}

func NewOTPStore(rdb *redis.Client) *OTPStore {
	return &OTPStore{rdb: rdb}
}

func otpKey(phone string) string {
	return "otp:" + phone
}

// Issue generates a fresh 4-digit code for the phone, replacing any
// outstanding one.
func (s *OTPStore) Issue(ctx context.Context, phone string) (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(10000))
	if err != nil {
		return "", err
	}
	code := fmt.Sprintf("%04d", n.Int64())

	if err := s.rdb.Set(ctx, otpKey(phone), code, OTPTTL).Err(); err != nil {
		return "", err
	}
	return code, nil
}

// Verify checks the code and consumes it on success.
func (s *OTPStore) Verify(ctx context.Context, phone, code string) (bool, error) {
	stored, err := s.rdb.Get(ctx, otpKey(phone)).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if stored != code {
		return false, nil
	}
	if err := s.rdb.Del(ctx, otpKey(phone)).Err(); err != nil {
		return false, err
	}
	return true, nil
}
