package recordset

import (
	"context"
	"strings"

	"github.com/redis/go-redis/v9"
)

const (
	KYCKey         = "kyc:records"
	ExplanationKey = "explanation:records"
)

// Redis is a record set stored as a Redis SET of canonical hashes.
type Redis struct {
	rdb *redis.Client
	key string
}

func NewRedis(rdb *redis.Client, key string) *Redis { return &Redis{rdb: rdb, key: key} }

// Exists accepts members stored with or without the 0x prefix, since other
// writers may not go through Add.
func (s *Redis) Exists(ctx context.Context, hash string) (bool, error) {
	bare := strings.TrimPrefix(strings.ToLower(hash), "0x")
	for _, m := range []string{"0x" + bare, bare} {
		ok, err := s.rdb.SIsMember(ctx, s.key, m).Result()
		if err != nil || ok {
			return ok, err
		}
	}
	return false, nil
}

// Add records a hash in canonical 0x form; called by the subsystem that owns
// the records.
func (s *Redis) Add(ctx context.Context, hash string) error {
	return s.rdb.SAdd(ctx, s.key, "0x"+strings.TrimPrefix(strings.ToLower(hash), "0x")).Err()
}
