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
	"time"

	"github.com/go-zookeeper/zk"
)

// ZookeeperBackend stores state entries as ZooKeeper znodes under a root
// path. Unlike the flat keyspaces of the other backends, ZK paths are
// hierarchical, so a storage key like "session:abc:foo" becomes the path
// root/session/abc/foo, and every intermediate node along that path must
// exist before the leaf can be created.
type ZookeeperBackend struct {
	endpoints []string
	root      string
	conn      *zk.Conn
}

// NewZookeeperBackend creates an unopened ZookeeperBackend against
// endpoints, rooted at root (e.g. "/corefabric/state").
func NewZookeeperBackend(endpoints []string, root string) *ZookeeperBackend {
	return &ZookeeperBackend{endpoints: endpoints, root: strings.TrimSuffix(root, "/")}
}

// path renders a storage key as the "/"-joined znode path under root,
// turning every colon of the storage key into a path separator, so a
// user key that contains colons adds further path levels.
func (b *ZookeeperBackend) path(storageKey string) string {
	segments := strings.Split(storageKey, ":")
	return b.root + "/" + strings.Join(segments, "/")
}

func (b *ZookeeperBackend) Open(_ context.Context) error {
	if len(b.endpoints) == 0 {
		return fmt.Errorf("state: zookeeper endpoints are required")
	}
	conn, _, err := zk.Connect(b.endpoints, 10*time.Second)
	if err != nil {
		return fmt.Errorf("state: connect to zookeeper: %w", err)
	}
	b.conn = conn
	return b.ensurePath(b.root)
}

func (b *ZookeeperBackend) Close(_ context.Context) error {
	if b.conn != nil {
		b.conn.Close()
	}
	return nil
}

func (b *ZookeeperBackend) Migrate(_ context.Context) error                { return nil }
func (b *ZookeeperBackend) MigrationVersion(_ context.Context) (int, error) { return 1, nil }

// ensurePath creates every znode along path that does not already exist,
// each as an empty persistent node, so a leaf write never fails with
// ErrNoNode.
func (b *ZookeeperBackend) ensurePath(path string) error {
	if path == "" || path == "/" {
		return nil
	}
	segments := strings.Split(strings.TrimPrefix(path, "/"), "/")
	current := ""
	for _, seg := range segments {
		if seg == "" {
			continue
		}
		current += "/" + seg
		exists, _, err := b.conn.Exists(current)
		if err != nil {
			return fmt.Errorf("state: zookeeper exists %s: %w", current, err)
		}
		if !exists {
			_, err := b.conn.Create(current, []byte{}, 0, zk.WorldACL(zk.PermAll))
			if err != nil && err != zk.ErrNodeExists {
				return fmt.Errorf("state: zookeeper create %s: %w", current, err)
			}
		}
	}
	return nil
}

func (b *ZookeeperBackend) Get(_ context.Context, key string) ([]byte, bool, error) {
	data, _, err := b.conn.Get(b.path(key))
	if err == zk.ErrNoNode {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("state: zookeeper get %s: %w", key, err)
	}
	return data, true, nil
}

func (b *ZookeeperBackend) Set(_ context.Context, key string, value []byte) error {
	p := b.path(key)
	parent := p[:strings.LastIndex(p, "/")]
	if err := b.ensurePath(parent); err != nil {
		return err
	}

	exists, stat, err := b.conn.Exists(p)
	if err != nil {
		return fmt.Errorf("state: zookeeper exists %s: %w", key, err)
	}
	if !exists {
		_, err := b.conn.Create(p, value, 0, zk.WorldACL(zk.PermAll))
		if err != nil {
			return fmt.Errorf("state: zookeeper create %s: %w", key, err)
		}
		return nil
	}
	_, err = b.conn.Set(p, value, stat.Version)
	if err != nil {
		return fmt.Errorf("state: zookeeper set %s: %w", key, err)
	}
	return nil
}

func (b *ZookeeperBackend) Delete(_ context.Context, key string) (bool, error) {
	p := b.path(key)
	_, stat, err := b.conn.Exists(p)
	if err != nil {
		return false, fmt.Errorf("state: zookeeper exists %s: %w", key, err)
	}
	if stat == nil {
		return false, nil
	}
	if err := b.conn.Delete(p, stat.Version); err != nil {
		return false, fmt.Errorf("state: zookeeper delete %s: %w", key, err)
	}
	return true, nil
}

// walk recursively lists every descendant znode of path that holds a
// leaf value (i.e. was written by Set), reconstructing its storage key
// from the path segments below root.
func (b *ZookeeperBackend) walk(path string, out *[]string) error {
	children, _, err := b.conn.Children(path)
	if err != nil {
		if err == zk.ErrNoNode {
			return nil
		}
		return err
	}
	for _, child := range children {
		childPath := path + "/" + child
		grandchildren, _, err := b.conn.Children(childPath)
		if err != nil {
			return err
		}
		if len(grandchildren) == 0 {
			storageKey := strings.TrimPrefix(childPath, b.root+"/")
			*out = append(*out, strings.ReplaceAll(storageKey, "/", ":"))
			continue
		}
		if err := b.walk(childPath, out); err != nil {
			return err
		}
	}
	return nil
}

func (b *ZookeeperBackend) ListKeys(_ context.Context, prefix string) ([]string, error) {
	var keys []string
	if err := b.walk(b.root, &keys); err != nil {
		return nil, fmt.Errorf("state: zookeeper list: %w", err)
	}
	filtered := keys[:0]
	for _, k := range keys {
		if strings.HasPrefix(k, prefix) {
			filtered = append(filtered, k)
		}
	}
	return filtered, nil
}

func (b *ZookeeperBackend) Clear(ctx context.Context, prefix string) (int, error) {
	keys, err := b.ListKeys(ctx, prefix)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, k := range keys {
		if ok, err := b.Delete(ctx, k); err == nil && ok {
			n++
		}
	}
	return n, nil
}

func (b *ZookeeperBackend) BackendType() string { return "zookeeper" }

func (b *ZookeeperBackend) Characteristics() BackendCharacteristics {
	return BackendCharacteristics{
		Persistent:    true,
		Transactional: false,
		PrefixScan:    true,
		AtomicOps:     true,
	}
}
