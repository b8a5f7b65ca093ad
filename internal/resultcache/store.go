// Package resultcache 는 명확화 결과를 메모리 또는 Valkey 에 보관하는 캐시를 제공한다.
package resultcache

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/valkey-io/valkey-go"

	"github.com/park285/clarification-agent-go/internal/cache"
	"github.com/park285/clarification-agent-go/internal/config"
)

const keyPrefix = "clarify:result:"

// ErrDisabled 는 캐시가 비활성화되어 있을 때 반환된다.
var ErrDisabled = errors.New("result cache disabled")

// Store 는 명확화 결과 캐시다. 값은 불투명한 바이트로 다룬다.
type Store struct {
	backend  string
	ttl      time.Duration
	compress bool
	memory   *cache.TTLCache[string, []byte]
	client   valkey.Client
}

// New: 설정에 따라 메모리 또는 Valkey 캐시를 생성합니다. 캐시가 꺼져 있으면 ErrDisabled 입니다.
func New(cfg config.ClarifyConfig) (*Store, error) {
	if !cfg.CacheEnabled {
		return nil, ErrDisabled
	}
	ttl := time.Duration(cfg.CacheTTLSeconds) * time.Second
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}

	if cfg.CacheBackend != config.CacheBackendValkey {
		return &Store{
			backend:  config.CacheBackendMemory,
			ttl:      ttl,
			compress: cfg.CacheCompress,
			memory:   cache.NewTTLCache[string, []byte](cfg.CacheMaxSize, ttl),
		}, nil
	}

	conn, err := parseURL(cfg.CacheURL)
	if err != nil {
		return nil, fmt.Errorf("parse cache url: %w", err)
	}
	var tlsConfig *tls.Config
	if conn.useTLS {
		host, _, splitErr := net.SplitHostPort(conn.addr)
		if splitErr != nil {
			return nil, fmt.Errorf("parse cache addr: %w", splitErr)
		}
		tlsConfig = &tls.Config{MinVersion: tls.VersionTLS12, ServerName: host}
	}

	client, err := valkey.NewClient(valkey.ClientOption{
		TLSConfig:    tlsConfig,
		Username:     conn.username,
		Password:     conn.password,
		InitAddress:  []string{conn.addr},
		SelectDB:     conn.selectDB,
		DisableCache: true,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to valkey: %w", err)
	}
	return &Store{
		backend:  config.CacheBackendValkey,
		ttl:      ttl,
		compress: cfg.CacheCompress,
		client:   client,
	}, nil
}

// Backend: memory 또는 valkey.
func (s *Store) Backend() string {
	return s.backend
}

// Get: 키에 해당하는 값을 조회합니다. 없으면 ok=false 입니다.
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if s.memory != nil {
		value, ok := s.memory.Get(key)
		if !ok {
			return nil, false, nil
		}
		decoded, err := decodeValue(value)
		return decoded, err == nil, err
	}

	raw, err := s.client.Do(ctx, s.client.B().Get().Key(keyPrefix+key).Build()).AsBytes()
	if err != nil {
		if valkey.IsValkeyNil(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("get cached result: %w", err)
	}
	decoded, err := decodeValue(raw)
	if err != nil {
		return nil, false, err
	}
	return decoded, true, nil
}

// Set: TTL 과 함께 값을 저장합니다.
func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	encoded, err := encodeValue(value, s.compress)
	if err != nil {
		return err
	}
	if s.memory != nil {
		s.memory.Set(key, encoded)
		return nil
	}

	cmd := s.client.B().Set().Key(keyPrefix + key).Value(valkey.BinaryString(encoded)).Ex(s.ttl).Build()
	if err := s.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("set cached result: %w", err)
	}
	return nil
}

// Ping: 백엔드 연결을 확인합니다. 메모리 백엔드는 항상 성공합니다.
func (s *Store) Ping(ctx context.Context) error {
	if s.memory != nil {
		return nil
	}
	if err := s.client.Do(ctx, s.client.B().Ping().Build()).Error(); err != nil {
		return fmt.Errorf("ping valkey: %w", err)
	}
	return nil
}

// Stats: 메모리 백엔드의 적중 통계입니다. Valkey 백엔드는 영값입니다.
func (s *Store) Stats() cache.Stats {
	if s.memory == nil {
		return cache.Stats{}
	}
	return s.memory.Stats()
}

// Close: Valkey 연결을 종료합니다.
func (s *Store) Close() {
	if s == nil || s.client == nil {
		return
	}
	s.client.Close()
}
