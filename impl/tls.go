package impl

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"io/fs"
	"strconv"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"github.com/caddyserver/certmagic"
	"github.com/libdns/porkbun"
	"github.com/redis/go-redis/v9"
)

// storage keeps certmagic's certificates in redis so every relay instance
// serves the same ones.
type storage struct {
	rdb    *redis.Client
	locker *redislock.Client
	locks  sync.Map
}

func newStorage(rdb *redis.Client) *storage {
	return &storage{
		rdb:    rdb,
		locker: redislock.New(rdb),
	}
}

func storageKey(key string) string {
	return fmt.Sprintf("tls:%v", key)
}

func (s *storage) Lock(ctx context.Context, name string) error {
	opts := &redislock.Options{
		RetryStrategy: redislock.LinearBackoff(1 * time.Second),
	}

	lock, err := s.locker.Obtain(ctx, fmt.Sprintf("tls:lock:%v", name), 1*time.Minute, opts)
	if err != nil {
		return err
	}

	s.locks.Store(name, lock)
	return nil
}

func (s *storage) Unlock(ctx context.Context, name string) error {
	lock, ok := s.locks.LoadAndDelete(name)
	if !ok {
		return fmt.Errorf("no lock for %v", name)
	}

	return lock.(*redislock.Lock).Release(ctx)
}

func (s *storage) Store(ctx context.Context, key string, value []byte) error {
	hashmap := map[string]any{
		"modified": time.Now().Unix(),
		"data":     base64.RawURLEncoding.EncodeToString(value),
		"size":     len(value),
	}

	return s.rdb.HSet(ctx, storageKey(key), hashmap).Err()
}

func (s *storage) Load(ctx context.Context, key string) ([]byte, error) {
	res, err := s.rdb.HGet(ctx, storageKey(key), "data").Result()
	if err == redis.Nil {
		return nil, fs.ErrNotExist
	} else if err != nil {
		return nil, err
	}

	return base64.RawURLEncoding.DecodeString(res)
}

func (s *storage) Delete(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, storageKey(key)).Err()
}

func (s *storage) Exists(ctx context.Context, key string) bool {
	res, err := s.rdb.Exists(ctx, storageKey(key)).Result()
	return err == nil && res > 0
}

func (s *storage) List(ctx context.Context, prefix string, recursive bool) ([]string, error) {
	pattern := storageKey(prefix)
	if recursive {
		pattern = fmt.Sprintf("%v*", pattern)
	}

	keys, err := s.rdb.Keys(ctx, pattern).Result()
	if err != nil {
		return nil, err
	}

	for i, key := range keys {
		keys[i] = key[len("tls:"):]
	}

	return keys, nil
}

func (s *storage) Stat(ctx context.Context, key string) (certmagic.KeyInfo, error) {
	info := certmagic.KeyInfo{}

	res, err := s.rdb.HMGet(ctx, storageKey(key), "modified", "size").Result()
	if err != nil {
		return info, err
	}

	if len(res) != 2 || res[0] == nil || res[1] == nil {
		return info, fs.ErrNotExist
	}

	modified, err := strconv.Atoi(res[0].(string))
	if err != nil {
		return info, err
	}

	size, err := strconv.Atoi(res[1].(string))
	if err != nil {
		return info, err
	}

	info.Key = key
	info.Modified = time.Unix(int64(modified), 0)
	info.Size = int64(size)
	info.IsTerminal = true

	return info, nil
}

// TLSConfig obtains certificates for domain over ACME, solving DNS-01
// challenges through porkbun.
func TLSConfig(domain, apiKey, apiSecret string, rdb *redis.Client) (*tls.Config, error) {
	certmagic.DefaultACME.Agreed = true
	certmagic.DefaultACME.DNS01Solver = &certmagic.DNS01Solver{
		DNSProvider: &porkbun.Provider{
			APIKey:       apiKey,
			APISecretKey: apiSecret,
		},
	}

	certmagic.Default.Storage = newStorage(rdb)

	return certmagic.TLS([]string{domain})
}
