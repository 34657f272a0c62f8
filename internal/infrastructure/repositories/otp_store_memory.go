package repositories

import (
	"context"
	"sync"
	"time"

	"github.com/you/civicauth/domain"
)

type memoryEntry struct {
	mu   sync.Mutex
	sess domain.OTPSession
}

// MemoryOTPStore implements domain.OTPSessionStore for a single instance.
// The maps are guarded by mu; each session is guarded by its own entry
// mutex. Lock order is always mu then entry.mu.
type MemoryOTPStore struct {
	mu       sync.RWMutex
	sessions map[string]*memoryEntry
	byPhone  map[string]string
	magic    map[string]string

	hasher domain.CodeHasher
	cfg    OTPConfig
	now    func() time.Time
}

// NewMemoryOTPStore creates an in-process OTP session store
func NewMemoryOTPStore(hasher domain.CodeHasher, cfg OTPConfig) *MemoryOTPStore {
	cfg = cfg.withDefaults()
	return &MemoryOTPStore{
		sessions: make(map[string]*memoryEntry),
		byPhone:  make(map[string]string),
		magic:    make(map[string]string),
		hasher:   hasher,
		cfg:      cfg,
		now:      cfg.Now,
	}
}

// Create implements domain.OTPSessionStore
func (s *MemoryOTPStore) Create(ctx context.Context, phone string) (*domain.OTPSession, string, error) {
	// bcrypt runs before taking the lock.
	sess, code, err := newSession(phone, s.hasher, s.cfg, s.now())
	if err != nil {
		return nil, "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if prevSID, ok := s.byPhone[phone]; ok {
		if prev, ok := s.sessions[prevSID]; ok {
			prev.mu.Lock()
			if prev.sess.InCooldown(now) {
				retry := prev.sess.RetryAfter(now)
				prev.mu.Unlock()
				return nil, "", domain.RateLimited(retry)
			}
			prev.sess.Invalidate()
			prev.mu.Unlock()
		}
	}

	// Restamp so the session clock starts once the slot is won.
	sess.CreatedAt = now
	sess.ExpiresAt = now.Add(s.cfg.TTL)
	sess.CooldownUntil = now.Add(s.cfg.Cooldown)

	s.sessions[sess.SID] = &memoryEntry{sess: *sess}
	s.byPhone[phone] = sess.SID

	out := *sess
	return &out, code, nil
}

func (s *MemoryOTPStore) entry(sid string) (*memoryEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.sessions[sid]
	return e, ok
}

// Lookup implements domain.OTPSessionStore
func (s *MemoryOTPStore) Lookup(ctx context.Context, sid string) (*domain.OTPSession, error) {
	e, ok := s.entry(sid)
	if !ok {
		return nil, domain.ErrSIDNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	out := e.sess
	out.Status = out.EffectiveStatus(s.now())
	return &out, nil
}

// Verify implements domain.OTPSessionStore
func (s *MemoryOTPStore) Verify(ctx context.Context, sid, code string) (*domain.OTPSession, error) {
	e, ok := s.entry(sid)
	if !ok {
		return nil, domain.ErrSIDNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	now := s.now()
	match := false
	if e.sess.EffectiveStatus(now) == domain.OTPStatusPending {
		match = s.hasher.Verify(e.sess.CodeHash, code)
	}
	err := e.sess.ApplyVerification(match, s.cfg.MaxAttempts, now)

	out := e.sess
	out.Status = out.EffectiveStatus(now)
	return &out, err
}

// Consume implements domain.OTPSessionStore
func (s *MemoryOTPStore) Consume(ctx context.Context, sid string) error {
	e, ok := s.entry(sid)
	if !ok {
		return domain.ErrSIDNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sess.MarkConsumed(s.now())
}

// Discard implements domain.OTPSessionStore. Unknown sids are ignored.
func (s *MemoryOTPStore) Discard(ctx context.Context, sid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.sessions[sid]
	if !ok {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	// The record and the phone index stay until Sweep so the cooldown holds.
	if h := e.sess.MagicTokenHash; h != "" && s.magic[h] == sid {
		delete(s.magic, h)
	}
	e.sess.Abandon()
	return nil
}

// removeLocked drops sid and its index entries. s.mu must be held.
func (s *MemoryOTPStore) removeLocked(sid string) {
	e, ok := s.sessions[sid]
	if !ok {
		return
	}
	e.mu.Lock()
	phone, tokenHash := e.sess.Phone, e.sess.MagicTokenHash
	e.mu.Unlock()

	delete(s.sessions, sid)
	if s.byPhone[phone] == sid {
		delete(s.byPhone, phone)
	}
	if tokenHash != "" && s.magic[tokenHash] == sid {
		delete(s.magic, tokenHash)
	}
}

// AttachMagicLink implements domain.OTPSessionStore
func (s *MemoryOTPStore) AttachMagicLink(ctx context.Context, sid string) (string, error) {
	token, digest, err := newMagicToken()
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.sessions[sid]
	if !ok {
		return "", domain.ErrSIDNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.sess.EffectiveStatus(s.now()) != domain.OTPStatusPending {
		return "", domain.ErrSIDExpired
	}
	if e.sess.MagicTokenHash != "" {
		delete(s.magic, e.sess.MagicTokenHash)
	}
	e.sess.MagicTokenHash = digest
	s.magic[digest] = sid
	return token, nil
}

// ResolveMagicLink implements domain.OTPSessionStore. The token is spent
// whatever the state of its session.
func (s *MemoryOTPStore) ResolveMagicLink(ctx context.Context, token string) (*domain.OTPSession, error) {
	digest := hashToken(token)

	s.mu.Lock()
	sid, ok := s.magic[digest]
	if ok {
		delete(s.magic, digest)
	}
	s.mu.Unlock()

	if !ok {
		return nil, domain.ErrMagicLinkInvalid
	}
	sess, err := s.Lookup(ctx, sid)
	if err != nil {
		return nil, domain.ErrMagicLinkInvalid
	}
	return sess, nil
}

// Sweep implements domain.OTPSessionStore
func (s *MemoryOTPStore) Sweep(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var stale []string
	for sid, e := range s.sessions {
		e.mu.Lock()
		if !now.Before(e.sess.ExpiresAt.Add(s.cfg.Retention)) {
			stale = append(stale, sid)
		}
		e.mu.Unlock()
	}
	for _, sid := range stale {
		s.removeLocked(sid)
	}
	return len(stale), nil
}

// Policy implements domain.OTPSessionStore
func (s *MemoryOTPStore) Policy() domain.OTPPolicy {
	return s.cfg.policy()
}

// Len returns the number of retained sessions.
func (s *MemoryOTPStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
