package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"warden/internal/ids"
)

// RedisStore implements Store over Redis.
//
// Layout under the key prefix:
//
//	session:{id}      hash of the session fields
//	refresh:{digest}  session id
//	access:{jti}      session id
//	identity:{id}     set of session ids
//
// Every delete runs as one Lua script, so lookup and removal are indivisible.
// Keys carry a TTL of the session expiry plus a grace period so that a late refresh
// still observes ErrExpired; DeleteExpired removes them earlier.
type RedisStore struct {
	rdb    redis.UniversalClient
	prefix string
	grace  time.Duration
}

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithKeyPrefix namespaces every key (default "warden:").
func WithKeyPrefix(p string) RedisOption {
	return func(s *RedisStore) {
		if p != "" {
			s.prefix = p
		}
	}
}

// NewRedisStore wraps a connected client. The client is owned by the caller.
func NewRedisStore(rdb redis.UniversalClient, opts ...RedisOption) *RedisStore {
	s := &RedisStore{rdb: rdb, prefix: "warden:", grace: time.Hour}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// luaDrop removes one session and every index that points at it.
const luaDrop = `
local function drop(prefix, sid)
  local skey = prefix .. 'session:' .. sid
  local fields = redis.call('HGETALL', skey)
  if #fields == 0 then return fields end
  local h = {}
  for i = 1, #fields, 2 do h[fields[i]] = fields[i + 1] end
  redis.call('DEL', skey, prefix .. 'refresh:' .. h['refresh_token_hash'], prefix .. 'access:' .. h['access_token_id'])
  redis.call('SREM', prefix .. 'identity:' .. h['identity_id'], sid)
  return fields
end
`

var (
	// KEYS[1] pointer key (refresh or access); ARGV[1] prefix.
	consumeByPointerScript = redis.NewScript(luaDrop + `
local sid = redis.call('GET', KEYS[1])
if not sid then return {} end
redis.call('DEL', KEYS[1])
return drop(ARGV[1], sid)
`)

	// KEYS[1] identity set; ARGV[1] prefix.
	deleteAllScript = redis.NewScript(luaDrop + `
local n = 0
for _, sid in ipairs(redis.call('SMEMBERS', KEYS[1])) do
  if #drop(ARGV[1], sid) > 0 then n = n + 1 end
end
redis.call('DEL', KEYS[1])
return n
`)

	// KEYS[1] session key; ARGV[1] prefix, ARGV[2] session id, ARGV[3] now (unix micros).
	deleteIfExpiredScript = redis.NewScript(luaDrop + `
local e = redis.call('HGET', KEYS[1], 'expires_at')
if not e or tonumber(e) > tonumber(ARGV[3]) then return 0 end
drop(ARGV[1], ARGV[2])
return 1
`)
)

func (s *RedisStore) Create(ctx context.Context, in NewSession) (Session, error) {
	if err := in.validate(); err != nil {
		return Session{}, err
	}
	if in.ID == "" {
		in.ID = ids.New(in.CreatedAt)
	}
	sess := fromMicros(Session(in))
	keyExp := sess.ExpiresAt.Add(s.grace)

	_, err := s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		skey := s.key("session:", sess.ID)
		p.HSet(ctx, skey, map[string]any{
			"id":                 sess.ID,
			"identity_id":        sess.IdentityID,
			"access_token_id":    sess.AccessTokenID,
			"refresh_token_hash": sess.RefreshTokenHash,
			"ip":                 sess.IP,
			"user_agent":         sess.UserAgent,
			"created_at":         strconv.FormatInt(sess.CreatedAt.UnixMicro(), 10),
			"expires_at":         strconv.FormatInt(sess.ExpiresAt.UnixMicro(), 10),
		})
		p.ExpireAt(ctx, skey, keyExp)
		p.Set(ctx, s.key("refresh:", sess.RefreshTokenHash), sess.ID, 0)
		p.ExpireAt(ctx, s.key("refresh:", sess.RefreshTokenHash), keyExp)
		p.Set(ctx, s.key("access:", sess.AccessTokenID), sess.ID, 0)
		p.ExpireAt(ctx, s.key("access:", sess.AccessTokenID), keyExp)
		p.SAdd(ctx, s.key("identity:", sess.IdentityID), sess.ID)
		return nil
	})
	if err != nil {
		return Session{}, storageErr("session.RedisStore.Create", err)
	}
	return sess, nil
}

func (s *RedisStore) ConsumeByRefreshToken(ctx context.Context, refreshHash string, now time.Time) (Session, error) {
	const op = "session.RedisStore.ConsumeByRefreshToken"

	raw, err := consumeByPointerScript.Run(ctx, s.rdb, []string{s.key("refresh:", refreshHash)}, s.prefix).Slice()
	if err != nil {
		return Session{}, storageErr(op, err)
	}
	if len(raw) == 0 {
		return Session{}, ErrNotFound
	}
	sess, err := sessionFromPairs(raw)
	if err != nil {
		return Session{}, storageErr(op, err)
	}
	if sess.Expired(now) {
		return sess, ErrExpired
	}
	return sess, nil
}

func (s *RedisStore) DeleteByAccessTokenID(ctx context.Context, accessTokenID string) error {
	err := consumeByPointerScript.Run(ctx, s.rdb, []string{s.key("access:", accessTokenID)}, s.prefix).Err()
	return storageErr("session.RedisStore.DeleteByAccessTokenID", err)
}

func (s *RedisStore) ListByIdentity(ctx context.Context, identityID string) ([]Session, error) {
	const op = "session.RedisStore.ListByIdentity"

	setKey := s.key("identity:", identityID)
	sids, err := s.rdb.SMembers(ctx, setKey).Result()
	if err != nil {
		return nil, storageErr(op, err)
	}
	if len(sids) == 0 {
		return nil, nil
	}

	cmds := make([]*redis.MapStringStringCmd, len(sids))
	_, err = s.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		for i, sid := range sids {
			cmds[i] = p.HGetAll(ctx, s.key("session:", sid))
		}
		return nil
	})
	if err != nil {
		return nil, storageErr(op, err)
	}

	out := make([]Session, 0, len(sids))
	var stale []any
	for i, cmd := range cmds {
		m := cmd.Val()
		if len(m) == 0 {
			// The hash expired by TTL; the set member is a leftover.
			stale = append(stale, sids[i])
			continue
		}
		sess, err := sessionFromMap(m)
		if err != nil {
			return nil, storageErr(op, err)
		}
		out = append(out, sess)
	}
	if len(stale) > 0 {
		_ = s.rdb.SRem(ctx, setKey, stale...).Err()
	}
	sortOldestFirst(out)
	return out, nil
}

func (s *RedisStore) DeleteAllForIdentity(ctx context.Context, identityID string) (int64, error) {
	n, err := deleteAllScript.Run(ctx, s.rdb, []string{s.key("identity:", identityID)}, s.prefix).Int64()
	if err != nil {
		return 0, storageErr("session.RedisStore.DeleteAllForIdentity", err)
	}
	return n, nil
}

func (s *RedisStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	const op = "session.RedisStore.DeleteExpired"

	var (
		n      int64
		cursor uint64
		match  = s.prefix + "session:*"
		cut    = len(s.prefix) + len("session:")
	)
	for {
		keys, next, err := s.rdb.Scan(ctx, cursor, match, 256).Result()
		if err != nil {
			return n, storageErr(op, err)
		}
		for _, k := range keys {
			removed, err := deleteIfExpiredScript.Run(ctx, s.rdb, []string{k}, s.prefix, k[cut:], now.UnixMicro()).Int64()
			if err != nil {
				return n, storageErr(op, err)
			}
			n += removed
		}
		cursor = next
		if cursor == 0 {
			return n, nil
		}
	}
}

func (s *RedisStore) key(kind, id string) string { return s.prefix + kind + id }

func sessionFromPairs(raw []any) (Session, error) {
	if len(raw)%2 != 0 {
		return Session{}, errors.New("odd field list")
	}
	m := make(map[string]string, len(raw)/2)
	for i := 0; i < len(raw); i += 2 {
		k, _ := raw[i].(string)
		v, _ := raw[i+1].(string)
		m[k] = v
	}
	return sessionFromMap(m)
}

func sessionFromMap(m map[string]string) (Session, error) {
	created, err := strconv.ParseInt(m["created_at"], 10, 64)
	if err != nil {
		return Session{}, fmt.Errorf("created_at: %w", err)
	}
	expires, err := strconv.ParseInt(m["expires_at"], 10, 64)
	if err != nil {
		return Session{}, fmt.Errorf("expires_at: %w", err)
	}
	return Session{
		ID:               m["id"],
		IdentityID:       m["identity_id"],
		AccessTokenID:    m["access_token_id"],
		RefreshTokenHash: m["refresh_token_hash"],
		IP:               m["ip"],
		UserAgent:        m["user_agent"],
		CreatedAt:        time.UnixMicro(created).UTC(),
		ExpiresAt:        time.UnixMicro(expires).UTC(),
	}, nil
}
