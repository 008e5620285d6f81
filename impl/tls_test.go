package impl

import (
	"bytes"
	"context"
	"errors"
	"io/fs"
	"os"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/segmentio/ksuid"
)

func testRedis(t *testing.T) *redis.Client {
	t.Helper()

	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}

	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		t.Skipf("redis unavailable at %v: %v", redisAddr, err)
	}

	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func TestStorage(t *testing.T) {
	rdb := testRedis(t)
	s := newStorage(rdb)

	ctx := context.Background()
	domain := "example.com-" + ksuid.New().String()
	key := []byte("key value")

	t.Cleanup(func() { _ = s.Delete(ctx, domain) })

	if err := s.Lock(ctx, domain); err != nil {
		t.Fatalf("failed to lock %v", err)
	}

	if err := s.Unlock(ctx, domain); err != nil {
		t.Fatalf("failed to unlock %v", err)
	}

	if err := s.Unlock(ctx, domain); err == nil {
		t.Error("unlocking twice should fail")
	}

	if s.Exists(ctx, domain) {
		t.Error("key exists before store")
	}

	if _, err := s.Load(ctx, domain); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("expected fs.ErrNotExist, got %v", err)
	}

	if _, err := s.Stat(ctx, domain); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("expected fs.ErrNotExist from stat, got %v", err)
	}

	if err := s.Store(ctx, domain, key); err != nil {
		t.Fatalf("failed to store %v", err)
	}

	b, err := s.Load(ctx, domain)
	if err != nil {
		t.Fatal(err)
	}

	if !bytes.Equal(b, key) {
		t.Fatalf("keys not equal")
	}

	if !s.Exists(ctx, domain) {
		t.Error("key does not exist after store")
	}

	info, err := s.Stat(ctx, domain)
	if err != nil {
		t.Fatal(err)
	}

	if info.Size != int64(len(key)) || info.Key != domain || !info.IsTerminal {
		t.Errorf("unexpected key info %+v", info)
	}

	keys, err := s.List(ctx, domain, false)
	if err != nil {
		t.Fatal(err)
	}

	if len(keys) != 1 || keys[0] != domain {
		t.Errorf("unexpected listing %v", keys)
	}

	if err := s.Delete(ctx, domain); err != nil {
		t.Fatal(err)
	}

	if s.Exists(ctx, domain) {
		t.Error("key exists after delete")
	}
}
