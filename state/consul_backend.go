// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package state

import (
	"context"
	"fmt"
	"strings"

	"github.com/hashicorp/consul/api"
)

// ConsulBackend stores state entries in Consul's KV store, one entry per
// storage key under a configurable keyPrefix.
type ConsulBackend struct {
	address   string
	keyPrefix string
	client    *api.Client
}

// NewConsulBackend creates an unopened ConsulBackend against a Consul
// agent at address (empty uses the client library's default).
func NewConsulBackend(address, keyPrefix string) *ConsulBackend {
	return &ConsulBackend{address: address, keyPrefix: keyPrefix}
}

func (b *ConsulBackend) fullKey(key string) string { return b.keyPrefix + key }

func (b *ConsulBackend) Open(_ context.Context) error {
	cfg := api.DefaultConfig()
	if b.address != "" {
		cfg.Address = b.address
	}
	client, err := api.NewClient(cfg)
	if err != nil {
		return fmt.Errorf("state: connect to consul: %w", err)
	}
	b.client = client
	return nil
}

func (b *ConsulBackend) Close(_ context.Context) error { return nil }

func (b *ConsulBackend) Migrate(_ context.Context) error                { return nil }
func (b *ConsulBackend) MigrationVersion(_ context.Context) (int, error) { return 1, nil }

func (b *ConsulBackend) Get(_ context.Context, key string) ([]byte, bool, error) {
	pair, _, err := b.client.KV().Get(b.fullKey(key), nil)
	if err != nil {
		return nil, false, fmt.Errorf("state: consul get %s: %w", key, err)
	}
	if pair == nil {
		return nil, false, nil
	}
	return pair.Value, true, nil
}

func (b *ConsulBackend) Set(_ context.Context, key string, value []byte) error {
	_, err := b.client.KV().Put(&api.KVPair{Key: b.fullKey(key), Value: value}, nil)
	if err != nil {
		return fmt.Errorf("state: consul put %s: %w", key, err)
	}
	return nil
}

func (b *ConsulBackend) Delete(_ context.Context, key string) (bool, error) {
	existing, _, err := b.client.KV().Get(b.fullKey(key), nil)
	if err != nil {
		return false, fmt.Errorf("state: consul get-before-delete %s: %w", key, err)
	}
	if _, err := b.client.KV().Delete(b.fullKey(key), nil); err != nil {
		return false, fmt.Errorf("state: consul delete %s: %w", key, err)
	}
	return existing != nil, nil
}

func (b *ConsulBackend) ListKeys(_ context.Context, prefix string) ([]string, error) {
	keys, _, err := b.client.KV().Keys(b.fullKey(prefix), "", nil)
	if err != nil {
		return nil, fmt.Errorf("state: consul list %s: %w", prefix, err)
	}
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, strings.TrimPrefix(k, b.keyPrefix))
	}
	return out, nil
}

func (b *ConsulBackend) Clear(_ context.Context, prefix string) (int, error) {
	keys, err := b.ListKeys(context.Background(), prefix)
	if err != nil {
		return 0, err
	}
	if _, err := b.client.KV().DeleteTree(b.fullKey(prefix), nil); err != nil {
		return 0, fmt.Errorf("state: consul clear %s: %w", prefix, err)
	}
	return len(keys), nil
}

func (b *ConsulBackend) BackendType() string { return "consul" }

func (b *ConsulBackend) Characteristics() BackendCharacteristics {
	return BackendCharacteristics{
		Persistent:    true,
		Transactional: false,
		PrefixScan:    true,
		AtomicOps:     false,
	}
}
