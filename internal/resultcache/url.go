package resultcache

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
)

const defaultValkeyPort = "6379"

type connInfo struct {
	addr     string
	username string
	password string
	selectDB int
	useTLS   bool
}

// parseURL: redis://, rediss://, valkey:// URL 또는 host[:port] 를 해석합니다.
func parseURL(raw string) (connInfo, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return connInfo{}, errors.New("cache url is empty")
	}
	if !strings.Contains(raw, "://") {
		return parseAddr(raw)
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return connInfo{}, fmt.Errorf("parse url: %w", err)
	}
	scheme := strings.ToLower(parsed.Scheme)
	useTLS := false
	switch scheme {
	case "redis", "valkey":
	case "rediss", "valkeys":
		useTLS = true
	default:
		return connInfo{}, fmt.Errorf("unsupported cache url scheme %q", parsed.Scheme)
	}

	host := parsed.Hostname()
	if host == "" {
		return connInfo{}, errors.New("cache host missing")
	}
	port := parsed.Port()
	if port == "" {
		port = defaultValkeyPort
	}

	info := connInfo{
		addr:   net.JoinHostPort(host, port),
		useTLS: useTLS,
	}
	if path := strings.Trim(parsed.Path, "/"); path != "" {
		db, err := strconv.Atoi(path)
		if err != nil || db < 0 {
			return connInfo{}, fmt.Errorf("invalid cache db %q", path)
		}
		info.selectDB = db
	}
	if parsed.User != nil {
		info.username = parsed.User.Username()
		info.password, _ = parsed.User.Password()
	}
	return info, nil
}

func parseAddr(addr string) (connInfo, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		var addrErr *net.AddrError
		if !errors.As(err, &addrErr) || addrErr.Err != "missing port in address" {
			return connInfo{}, fmt.Errorf("invalid cache address: %w", err)
		}
		host = strings.TrimSuffix(strings.TrimPrefix(addr, "["), "]")
		port = defaultValkeyPort
	}
	if strings.TrimSpace(host) == "" {
		return connInfo{}, errors.New("cache host missing")
	}
	return connInfo{addr: net.JoinHostPort(host, port)}, nil
}
