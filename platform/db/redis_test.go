package db

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
)

type redisCfg struct {
	url      string
	insecure bool
}

func (c redisCfg) GetRedisURL() string       { return c.url }
func (c redisCfg) GetRedisTLSInsecure() bool { return c.insecure }

func TestRedisOptions(t *testing.T) {
	tests := []struct {
		name     string
		url      string
		insecure bool
		wantTLS  bool
		wantSkip bool
		wantErr  bool
	}{
		{name: "plain", url: "redis://localhost:6379/2"},
		{name: "tls", url: "rediss://cache:6380/0", wantTLS: true},
		{name: "tls insecure", url: "rediss://cache:6380/0", insecure: true, wantTLS: true, wantSkip: true},
		{name: "plain insecure", url: "redis://localhost:6379", insecure: true, wantTLS: true, wantSkip: true},
		{name: "empty", url: "", wantErr: true},
		{name: "bad scheme", url: "http://localhost", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opt, err := RedisOptions(tt.url, tt.insecure)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if (opt.TLSConfig != nil) != tt.wantTLS {
				t.Fatalf("expected tls=%v, got %v", tt.wantTLS, opt.TLSConfig != nil)
			}
			if tt.wantTLS && opt.TLSConfig.InsecureSkipVerify != tt.wantSkip {
				t.Fatalf("expected InsecureSkipVerify=%v", tt.wantSkip)
			}
		})
	}
}

func TestNewRedisClientPings(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	client, err := NewRedisClient(context.Background(), redisCfg{url: "redis://" + addr})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer client.Close()

	if err := NewRedisAdapter(client).Ping(context.Background()); err != nil {
		t.Fatalf("ping: %v", err)
	}

	mr.Close()
	if _, err := NewRedisClient(context.Background(), redisCfg{url: "redis://" + addr}); err == nil {
		t.Fatalf("expected error when redis is down")
	}
}
