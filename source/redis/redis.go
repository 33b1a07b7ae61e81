// Package redis reads (and publishes) flag sets stored in Redis.
//
// Layout per namespace:
//
//	flags:<ns>          SET of enabled flag names
//	flags:<ns>:version  integer, INCR'd whenever the set changes
//
// Several processes can share one Redis: publishers call Enable/Disable,
// every cache polls the version key and pulls the set only when it moved.
package redis

import (
	"context"
	"errors"
	"strconv"

	goredis "github.com/redis/go-redis/v9"

	"github.com/unkn0wn-root/flagcache/source"
)

var ErrNilClient = errors.New("redis source: nil client")

// Membership change and version bump in one atomic step; the version only
// moves when SADD/SREM actually changed the set.
var (
	enableScript = goredis.NewScript(`
local n = redis.call('SADD', KEYS[1], ARGV[1])
if n == 1 then redis.call('INCR', KEYS[2]) end
return n`)
	disableScript = goredis.NewScript(`
local n = redis.call('SREM', KEYS[1], ARGV[1])
if n == 1 then redis.call('INCR', KEYS[2]) end
return n`)
)

type Source struct {
	rdb         goredis.UniversalClient
	prefix      string
	closeClient bool
}

var _ source.Source = (*Source)(nil)

type Config struct {
	Client      goredis.UniversalClient
	Prefix      string // key prefix; "" => "flags"
	CloseClient bool   // set true only if this source exclusively owns the client
}

func New(cfg Config) (*Source, error) {
	if cfg.Client == nil {
		return nil, ErrNilClient
	}
	p := cfg.Prefix
	if p == "" {
		p = "flags"
	}
	return &Source{rdb: cfg.Client, prefix: p, closeClient: cfg.CloseClient}, nil
}

func (s *Source) setKey(ns string) string     { return s.prefix + ":" + ns }
func (s *Source) versionKey(ns string) string { return s.prefix + ":" + ns + ":version" }

// FetchVersion returns the namespace's version counter.
// A missing counter is version "0" (nothing was ever published).
func (s *Source) FetchVersion(ctx context.Context, ns string) (string, error) {
	res, err := s.rdb.Get(ctx, s.versionKey(ns)).Result()
	if err == goredis.Nil {
		return "0", nil
	}
	if err != nil {
		return "", &source.TransportError{Op: "version", Namespace: ns, Err: err}
	}
	return parseVersion(res, ns, "version")
}

// FetchSnapshot reads the version and the members inside one MULTI so the
// pair is consistent.
func (s *Source) FetchSnapshot(ctx context.Context, ns string) (source.Snapshot, error) {
	var (
		ver     *goredis.StringCmd
		members *goredis.StringSliceCmd
	)
	_, err := s.rdb.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		ver = p.Get(ctx, s.versionKey(ns))
		members = p.SMembers(ctx, s.setKey(ns))
		return nil
	})
	if err != nil && err != goredis.Nil {
		return source.Snapshot{}, &source.TransportError{Op: "snapshot", Namespace: ns, Err: err}
	}

	v := "0"
	if raw, err := ver.Result(); err == nil {
		if v, err = parseVersion(raw, ns, "snapshot"); err != nil {
			return source.Snapshot{}, err
		}
	} else if err != goredis.Nil {
		return source.Snapshot{}, &source.TransportError{Op: "snapshot", Namespace: ns, Err: err}
	}

	flags, err := members.Result()
	if err != nil {
		return source.Snapshot{}, &source.TransportError{Op: "snapshot", Namespace: ns, Err: err}
	}
	return source.NewSnapshot(v, flags...), nil
}

// Enable adds flag to ns. Reports whether the set changed.
func (s *Source) Enable(ctx context.Context, ns, flag string) (bool, error) {
	return s.mutate(ctx, enableScript, ns, flag)
}

// Disable removes flag from ns. Reports whether the set changed.
func (s *Source) Disable(ctx context.Context, ns, flag string) (bool, error) {
	return s.mutate(ctx, disableScript, ns, flag)
}

func (s *Source) mutate(ctx context.Context, script *goredis.Script, ns, flag string) (bool, error) {
	if err := source.ValidateNamespace(ns); err != nil {
		return false, err
	}
	if err := source.ValidateFlag(flag); err != nil {
		return false, err
	}
	n, err := script.Run(ctx, s.rdb, []string{s.setKey(ns), s.versionKey(ns)}, flag).Int()
	if err != nil {
		return false, &source.TransportError{Op: "publish", Namespace: ns, Err: err}
	}
	return n == 1, nil
}

// Close releases the underlying redis client only when this source owns it.
func (s *Source) Close(context.Context) error {
	if s.closeClient {
		if err := s.rdb.Close(); err != nil && !errors.Is(err, goredis.ErrClosed) {
			return err
		}
	}
	return nil
}

func parseVersion(raw, ns, op string) (string, error) {
	if _, err := strconv.ParseUint(raw, 10, 64); err != nil {
		return "", &source.ProtocolError{Op: op, Namespace: ns, Reason: "version counter is not an integer: " + strconv.Quote(raw)}
	}
	return raw, nil
}
