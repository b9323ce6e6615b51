package redis

import (
	"context"
	"errors"
	"net"
	"os"
	"testing"
	"time"

	"github.com/nerrad567/hostel-gate/internal/infrastructure/config"
)

func TestConnect_Disabled(t *testing.T) {
	_, err := Connect(config.RedisConfig{Enabled: false, Addr: "localhost:6379"})
	if !errors.Is(err, ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestConnect_Unreachable(t *testing.T) {
	// Grab a free port and release it so nothing is listening there.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	_, err = Connect(config.RedisConfig{Enabled: true, Addr: addr})
	if !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestClose_Nil(t *testing.T) {
	var c *Client
	if err := c.Close(); err != nil {
		t.Errorf("Close() on nil client error = %v", err)
	}
}

func TestSetNX_Live(t *testing.T) {
	addr := os.Getenv("HOSTELGATE_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("HOSTELGATE_TEST_REDIS_ADDR not set")
	}

	c, err := Connect(config.RedisConfig{Enabled: true, Addr: addr})
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer c.Close()

	ctx := context.Background()
	key := "hostelgate:test:" + time.Now().Format("150405.000000000")
	defer c.Del(ctx, key) //nolint:errcheck // Test cleanup

	created, err := c.SetNX(ctx, key, "scanner-1", time.Minute)
	if err != nil || !created {
		t.Fatalf("first SetNX() = %v, %v; want true, nil", created, err)
	}
	created, err = c.SetNX(ctx, key, "scanner-2", time.Minute)
	if err != nil || created {
		t.Fatalf("second SetNX() = %v, %v; want false, nil", created, err)
	}
	if err := c.Del(ctx, key); err != nil {
		t.Fatalf("Del() error = %v", err)
	}
	if created, _ := c.SetNX(ctx, key, "scanner-3", time.Minute); !created {
		t.Error("SetNX() after Del should create the key")
	}
	if _, err := c.SetNX(ctx, "", "x", time.Minute); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("SetNX(empty) error = %v, want ErrInvalidKey", err)
	}
}

func TestEmptyKey(t *testing.T) {
	c := &Client{}
	ctx := context.Background()

	if _, _, err := c.Get(ctx, ""); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("Get(empty) error = %v, want ErrInvalidKey", err)
	}
	if err := c.SetKeepTTL(ctx, "", "applied"); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("SetKeepTTL(empty) error = %v, want ErrInvalidKey", err)
	}
}

func TestSetKeepTTL_Live(t *testing.T) {
	addr := os.Getenv("HOSTELGATE_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("HOSTELGATE_TEST_REDIS_ADDR not set")
	}

	c, err := Connect(config.RedisConfig{Enabled: true, Addr: addr})
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer c.Close()

	ctx := context.Background()
	key := "hostelgate:test:keepttl:" + time.Now().Format("150405.000000000")
	defer c.Del(ctx, key) //nolint:errcheck // Test cleanup

	if _, found, err := c.Get(ctx, key); err != nil || found {
		t.Fatalf("Get(missing) = found %v, err %v; want false, nil", found, err)
	}
	if _, err := c.SetNX(ctx, key, "pending", time.Minute); err != nil {
		t.Fatalf("SetNX() error = %v", err)
	}
	if err := c.SetKeepTTL(ctx, key, "applied"); err != nil {
		t.Fatalf("SetKeepTTL() error = %v", err)
	}

	value, found, err := c.Get(ctx, key)
	if err != nil || !found || value != "applied" {
		t.Errorf("Get() = %q, %v, %v; want applied, true, nil", value, found, err)
	}
	if ttl := c.rdb.TTL(ctx, key).Val(); ttl <= 0 || ttl > time.Minute {
		t.Errorf("TTL after SetKeepTTL = %v, want (0, 1m]", ttl)
	}
}
