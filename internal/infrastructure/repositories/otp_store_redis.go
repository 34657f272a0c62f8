package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/you/civicauth/domain"
)

const maxTxRetries = 32

const (
	otpSessionPrefix = "otp:sess:"
	otpPhonePrefix   = "otp:phone:"
	otpMagicPrefix   = "otp:magic:"
)

func sessKey(sid string) string { return otpSessionPrefix + sid }
func phoneKey(phone string) string { return otpPhonePrefix + phone }
func magicKey(digest string) string { return otpMagicPrefix + digest }

type stringGetter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

// RedisOTPStore implements domain.OTPSessionStore on Redis. Every
// read-modify-write runs in a WATCH/MULTI transaction on the session key,
// so writers for one sid are serialized across service instances.
// Keys expire at ExpiresAt+Retention, which makes Sweep unnecessary.
type RedisOTPStore struct {
	client redis.UniversalClient
	hasher domain.CodeHasher
	cfg    OTPConfig
	now    func() time.Time
}

// NewRedisOTPStore creates a Redis backed OTP session store
func NewRedisOTPStore(client redis.UniversalClient, hasher domain.CodeHasher, cfg OTPConfig) *RedisOTPStore {
	cfg = cfg.withDefaults()
	return &RedisOTPStore{
		client: client,
		hasher: hasher,
		cfg:    cfg,
		now:    cfg.Now,
	}
}

// watch runs fn in an optimistic transaction, retrying when a watched key
// changed underneath it.
func (s *RedisOTPStore) watch(ctx context.Context, fn func(*redis.Tx) error, keys ...string) error {
	for i := 0; i < maxTxRetries; i++ {
		err := s.client.Watch(ctx, fn, keys...)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return domain.ErrConcurrentUpdate
}

func (s *RedisOTPStore) recordTTL(sess *domain.OTPSession, now time.Time) time.Duration {
	ttl := sess.ExpiresAt.Add(s.cfg.Retention).Sub(now)
	if ttl < time.Second {
		ttl = time.Second
	}
	return ttl
}

func loadSession(ctx context.Context, c stringGetter, sid string) (*domain.OTPSession, error) {
	data, err := c.Get(ctx, sessKey(sid)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrSIDNotFound
		}
		return nil, fmt.Errorf("failed to load otp session: %w", err)
	}
	var sess domain.OTPSession
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("failed to unmarshal otp session: %w", err)
	}
	return &sess, nil
}

// Create implements domain.OTPSessionStore
func (s *RedisOTPStore) Create(ctx context.Context, phone string) (*domain.OTPSession, string, error) {
	sess, code, err := newSession(phone, s.hasher, s.cfg, s.now())
	if err != nil {
		return nil, "", err
	}

	pk := phoneKey(phone)
	err = s.watch(ctx, func(tx *redis.Tx) error {
		now := s.now()
		prev, err := s.previous(ctx, tx, pk)
		if err != nil {
			return err
		}
		if prev != nil && prev.InCooldown(now) {
			return domain.RateLimited(prev.RetryAfter(now))
		}

		sess.CreatedAt = now
		sess.ExpiresAt = now.Add(s.cfg.TTL)
		sess.CooldownUntil = now.Add(s.cfg.Cooldown)
		data, err := json.Marshal(sess)
		if err != nil {
			return err
		}
		ttl := s.recordTTL(sess, now)

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if prev != nil && prev.Status == domain.OTPStatusPending {
				prev.Invalidate()
				prevData, err := json.Marshal(prev)
				if err != nil {
					return err
				}
				pipe.Set(ctx, sessKey(prev.SID), prevData, redis.KeepTTL)
			}
			pipe.Set(ctx, sessKey(sess.SID), data, ttl)
			pipe.Set(ctx, pk, sess.SID, ttl)
			return nil
		})
		return err
	}, pk)
	if err != nil {
		return nil, "", err
	}
	return sess, code, nil
}

// previous loads the session currently indexed for a phone and adds its key
// to the watch set.
func (s *RedisOTPStore) previous(ctx context.Context, tx *redis.Tx, pk string) (*domain.OTPSession, error) {
	sid, err := tx.Get(ctx, pk).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := tx.Watch(ctx, sessKey(sid)).Err(); err != nil {
		return nil, err
	}
	prev, err := loadSession(ctx, tx, sid)
	if errors.Is(err, domain.ErrSIDNotFound) {
		return nil, nil
	}
	return prev, err
}

// Lookup implements domain.OTPSessionStore
func (s *RedisOTPStore) Lookup(ctx context.Context, sid string) (*domain.OTPSession, error) {
	sess, err := loadSession(ctx, s.client, sid)
	if err != nil {
		return nil, err
	}
	sess.Status = sess.EffectiveStatus(s.now())
	return sess, nil
}

// Verify implements domain.OTPSessionStore
func (s *RedisOTPStore) Verify(ctx context.Context, sid, code string) (*domain.OTPSession, error) {
	var (
		out     *domain.OTPSession
		result  error
		matched *bool
	)
	err := s.watch(ctx, func(tx *redis.Tx) error {
		sess, err := loadSession(ctx, tx, sid)
		if err != nil {
			return err
		}
		now := s.now()
		before := *sess

		match := false
		if sess.EffectiveStatus(now) == domain.OTPStatusPending {
			// The hash of a sid never changes, so a retried transaction
			// reuses the comparison.
			if matched == nil {
				m := s.hasher.Verify(sess.CodeHash, code)
				matched = &m
			}
			match = *matched
		}
		result = sess.ApplyVerification(match, s.cfg.MaxAttempts, now)

		if sess.Status != before.Status || sess.Attempts != before.Attempts {
			data, err := json.Marshal(sess)
			if err != nil {
				return err
			}
			if _, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, sessKey(sid), data, redis.KeepTTL)
				return nil
			}); err != nil {
				return err
			}
		}

		sess.Status = sess.EffectiveStatus(now)
		out = sess
		return nil
	}, sessKey(sid))
	if err != nil {
		return nil, err
	}
	return out, result
}

// Consume implements domain.OTPSessionStore
func (s *RedisOTPStore) Consume(ctx context.Context, sid string) error {
	return s.watch(ctx, func(tx *redis.Tx) error {
		sess, err := loadSession(ctx, tx, sid)
		if err != nil {
			return err
		}
		if err := sess.MarkConsumed(s.now()); err != nil {
			return err
		}
		data, err := json.Marshal(sess)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, sessKey(sid), data, redis.KeepTTL)
			return nil
		})
		return err
	}, sessKey(sid))
}

// Discard implements domain.OTPSessionStore. Unknown sids are ignored.
// The record keeps its TTL and the phone key is untouched, so the cooldown
// still applies to the next Create.
func (s *RedisOTPStore) Discard(ctx context.Context, sid string) error {
	return s.watch(ctx, func(tx *redis.Tx) error {
		sess, err := loadSession(ctx, tx, sid)
		if errors.Is(err, domain.ErrSIDNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		tokenHash := sess.MagicTokenHash
		sess.Abandon()
		data, err := json.Marshal(sess)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, sessKey(sid), data, redis.KeepTTL)
			if tokenHash != "" {
				pipe.Del(ctx, magicKey(tokenHash))
			}
			return nil
		})
		return err
	}, sessKey(sid))
}

// AttachMagicLink implements domain.OTPSessionStore
func (s *RedisOTPStore) AttachMagicLink(ctx context.Context, sid string) (string, error) {
	token, digest, err := newMagicToken()
	if err != nil {
		return "", err
	}

	err = s.watch(ctx, func(tx *redis.Tx) error {
		sess, err := loadSession(ctx, tx, sid)
		if err != nil {
			return err
		}
		now := s.now()
		if sess.EffectiveStatus(now) != domain.OTPStatusPending {
			return domain.ErrSIDExpired
		}
		oldDigest := sess.MagicTokenHash
		sess.MagicTokenHash = digest
		data, err := json.Marshal(sess)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if oldDigest != "" {
				pipe.Del(ctx, magicKey(oldDigest))
			}
			pipe.Set(ctx, sessKey(sid), data, redis.KeepTTL)
			pipe.Set(ctx, magicKey(digest), sid, s.recordTTL(sess, now))
			return nil
		})
		return err
	}, sessKey(sid))
	if err != nil {
		return "", err
	}
	return token, nil
}

// ResolveMagicLink implements domain.OTPSessionStore. GETDEL spends the
// token atomically.
func (s *RedisOTPStore) ResolveMagicLink(ctx context.Context, token string) (*domain.OTPSession, error) {
	sid, err := s.client.GetDel(ctx, magicKey(hashToken(token))).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrMagicLinkInvalid
		}
		return nil, fmt.Errorf("failed to resolve magic link: %w", err)
	}
	sess, err := s.Lookup(ctx, sid)
	if errors.Is(err, domain.ErrSIDNotFound) {
		return nil, domain.ErrMagicLinkInvalid
	}
	return sess, err
}

// Policy implements domain.OTPSessionStore
func (s *RedisOTPStore) Policy() domain.OTPPolicy {
	return s.cfg.policy()
}

// Sweep implements domain.OTPSessionStore. Redis expires records itself.
func (s *RedisOTPStore) Sweep(ctx context.Context) (int, error) {
	return 0, nil
}
