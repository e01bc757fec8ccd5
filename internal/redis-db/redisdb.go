/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package redis_db

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const pingTimeout = 500 * time.Millisecond

// Redis wraps the universal client shared by the cache, the recovery lock and
// queue depth checks. One address gives a standalone client, several a cluster client.
type Redis struct {
	addresses []string
	client    redis.UniversalClient
}

// SplitAddresses turns a comma separated DNS setting into individual addresses.
func SplitAddresses(dns string) []string {
	var out []string
	for _, addr := range strings.Split(dns, ",") {
		if addr = strings.TrimSpace(addr); addr != "" {
			out = append(out, addr)
		}
	}
	return out
}

// ParseRedisURL accepts bare host:port addresses, redis:// and rediss:// URLs,
// password-only credentials and Azure cache hosts.
func ParseRedisURL(rawURL string, skipTLSVerify bool) (*redis.Options, error) {
	if rawURL == "" {
		return nil, errors.New("redis address cannot be empty")
	}
	if isBareAddress(rawURL) {
		return &redis.Options{Addr: rawURL}, nil
	}

	opts, err := redis.ParseURL(withPasswordOnlyAuth(rawURL))
	if err != nil {
		opts = parseLoose(rawURL)
	}

	if opts.TLSConfig != nil && skipTLSVerify {
		opts.TLSConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
	}
	return opts, nil
}

func isBareAddress(raw string) bool {
	return strings.Count(raw, ":") == 1 && !strings.Contains(raw, "@") && !strings.Contains(raw, "//")
}

// withPasswordOnlyAuth rewrites redis://secret@host to redis://:secret@host.
func withPasswordOnlyAuth(raw string) string {
	if !strings.HasPrefix(raw, "redis://") || !strings.Contains(raw, "@") {
		return raw
	}
	parts := strings.SplitN(strings.TrimPrefix(raw, "redis://"), "@", 2)
	if strings.Contains(parts[0], ":") {
		return raw
	}
	return fmt.Sprintf("redis://:%s@%s", parts[0], parts[1])
}

func parseLoose(raw string) *redis.Options {
	host, password := raw, ""
	if at := strings.LastIndex(raw, "@"); at >= 0 {
		password = strings.TrimPrefix(raw[:at], "redis://")
		host = raw[at+1:]
	}

	opts := &redis.Options{Addr: host, Password: password}
	if strings.Contains(host, "redis.cache.windows.net") {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return opts
}

// NewRedisClient connects to the given addresses and pings once before returning.
func NewRedisClient(addresses []string, skipTLSVerify bool) (*Redis, error) {
	if len(addresses) == 0 {
		return nil, errors.New("redis addresses list cannot be empty")
	}

	var client redis.UniversalClient
	if len(addresses) == 1 {
		opts, err := ParseRedisURL(addresses[0], skipTLSVerify)
		if err != nil {
			return nil, err
		}
		client = redis.NewClient(opts)
	} else {
		clusterOpts, err := clusterOptions(addresses, skipTLSVerify)
		if err != nil {
			return nil, err
		}
		client = redis.NewUniversalClient(clusterOpts)
	}

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return &Redis{addresses: addresses, client: client}, nil
}

func clusterOptions(addresses []string, skipTLSVerify bool) (*redis.UniversalOptions, error) {
	out := &redis.UniversalOptions{}
	useTLS := false
	for _, addr := range addresses {
		opts, err := ParseRedisURL(addr, skipTLSVerify)
		if err != nil {
			return nil, err
		}
		out.Addrs = append(out.Addrs, opts.Addr)
		if out.Password == "" {
			out.Password = opts.Password
		}
		useTLS = useTLS || opts.TLSConfig != nil
	}
	if useTLS {
		out.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12, InsecureSkipVerify: skipTLSVerify} //nolint:gosec
	}
	return out, nil
}

func (r *Redis) Client() redis.UniversalClient {
	return r.client
}

func (r *Redis) Addresses() []string {
	return r.addresses
}

func (r *Redis) Close() error {
	return r.client.Close()
}
