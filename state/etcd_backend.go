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
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
)

// EtcdBackend stores state entries as flat etcd keys, one per storage
// key, giving the fabric a distributed, strongly consistent backend for
// multi-process deployments.
type EtcdBackend struct {
	endpoints []string
	keyPrefix string
	client    *clientv3.Client
}

// NewEtcdBackend creates an unopened EtcdBackend against endpoints. Every
// storage key is written under keyPrefix so several fabrics can share a
// cluster.
func NewEtcdBackend(endpoints []string, keyPrefix string) *EtcdBackend {
	return &EtcdBackend{endpoints: endpoints, keyPrefix: keyPrefix}
}

func (b *EtcdBackend) fullKey(key string) string { return b.keyPrefix + key }

func (b *EtcdBackend) Open(_ context.Context) error {
	if len(b.endpoints) == 0 {
		return fmt.Errorf("state: etcd endpoints are required")
	}
	client, err := clientv3.New(clientv3.Config{
		Endpoints:   b.endpoints,
		DialTimeout: 5 * time.Second,
	})
	if err != nil {
		return fmt.Errorf("state: connect to etcd: %w", err)
	}
	b.client = client
	return nil
}

func (b *EtcdBackend) Close(_ context.Context) error {
	if b.client == nil {
		return nil
	}
	return b.client.Close()
}

func (b *EtcdBackend) Migrate(_ context.Context) error         { return nil }
func (b *EtcdBackend) MigrationVersion(_ context.Context) (int, error) { return 1, nil }

func (b *EtcdBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	resp, err := b.client.Get(ctx, b.fullKey(key))
	if err != nil {
		return nil, false, fmt.Errorf("state: etcd get %s: %w", key, err)
	}
	if len(resp.Kvs) == 0 {
		return nil, false, nil
	}
	return resp.Kvs[0].Value, true, nil
}

func (b *EtcdBackend) Set(ctx context.Context, key string, value []byte) error {
	_, err := b.client.Put(ctx, b.fullKey(key), string(value))
	if err != nil {
		return fmt.Errorf("state: etcd put %s: %w", key, err)
	}
	return nil
}

func (b *EtcdBackend) Delete(ctx context.Context, key string) (bool, error) {
	resp, err := b.client.Delete(ctx, b.fullKey(key))
	if err != nil {
		return false, fmt.Errorf("state: etcd delete %s: %w", key, err)
	}
	return resp.Deleted > 0, nil
}

func (b *EtcdBackend) ListKeys(ctx context.Context, prefix string) ([]string, error) {
	resp, err := b.client.Get(ctx, b.fullKey(prefix), clientv3.WithPrefix(), clientv3.WithKeysOnly())
	if err != nil {
		return nil, fmt.Errorf("state: etcd list %s: %w", prefix, err)
	}
	keys := make([]string, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		keys = append(keys, string(kv.Key)[len(b.keyPrefix):])
	}
	return keys, nil
}

func (b *EtcdBackend) Clear(ctx context.Context, prefix string) (int, error) {
	resp, err := b.client.Delete(ctx, b.fullKey(prefix), clientv3.WithPrefix())
	if err != nil {
		return 0, fmt.Errorf("state: etcd clear %s: %w", prefix, err)
	}
	return int(resp.Deleted), nil
}

func (b *EtcdBackend) BackendType() string { return "etcd" }

func (b *EtcdBackend) Characteristics() BackendCharacteristics {
	return BackendCharacteristics{
		Persistent:    true,
		Transactional: true,
		PrefixScan:    true,
		AtomicOps:     true,
	}
}
