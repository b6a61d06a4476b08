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

// This file implements the registry's Custom(string)/language-tag escape
// hatch: a hook whose Metadata().Language is non-empty can be backed by
// an out-of-process plugin instead of a linked-in Go type. The bridge
// uses go-plugin's net/rpc transport rather than its gRPC transport,
// since net/rpc needs no protoc-generated stubs.
package hooks

import (
	"context"
	"fmt"
	"net/rpc"
	"os/exec"

	"github.com/hashicorp/go-hclog"
	plugin "github.com/hashicorp/go-plugin"
)

// Handshake is the shared handshake config the fabric process and every
// external hook plugin process must agree on to connect.
var Handshake = plugin.HandshakeConfig{
	ProtocolVersion:  1,
	MagicCookieKey:   "COREFABRIC_HOOK_PLUGIN",
	MagicCookieValue: "fabric-hook-v1",
}

// RPCHookArgs is the net/rpc request envelope for a remote hook's
// Execute call.
type RPCHookArgs struct {
	Point         string
	CorrelationID string
	Data          map[string]any
}

// RPCHookReply is the net/rpc response envelope.
type RPCHookReply struct {
	Kind   string
	Reason string
	Value  any
	Data   map[string]any
	Err    string
}

// hookRPCClient is the net/rpc client stub a plugin.Plugin's Client
// method returns; it satisfies the subset of Hook the bridge needs.
type hookRPCClient struct {
	client *rpc.Client
	meta   Metadata
}

func (c *hookRPCClient) Metadata() Metadata { return c.meta }

func (c *hookRPCClient) ShouldExecute(hctx *HookContext) bool {
	var reply bool
	args := RPCHookArgs{Point: hctx.Point.String(), CorrelationID: hctx.CorrelationID, Data: hctx.Data}
	if err := c.client.Call("Plugin.ShouldExecute", args, &reply); err != nil {
		return false
	}
	return reply
}

func (c *hookRPCClient) Execute(_ context.Context, hctx *HookContext) (HookResult, error) {
	args := RPCHookArgs{Point: hctx.Point.String(), CorrelationID: hctx.CorrelationID, Data: hctx.Data}
	var reply RPCHookReply
	if err := c.client.Call("Plugin.Execute", args, &reply); err != nil {
		return HookResult{}, fmt.Errorf("hooks: rpc call to plugin %s: %w", c.meta.Name, err)
	}
	if reply.Err != "" {
		return HookResult{}, fmt.Errorf("hooks: plugin %s: %s", c.meta.Name, reply.Err)
	}
	if reply.Data != nil {
		hctx.Data = reply.Data
	}
	return HookResult{Kind: HookResultKind(reply.Kind), Reason: reply.Reason, Value: reply.Value}, nil
}

// hookPlugin is the go-plugin Plugin implementation the host process
// registers; Client wraps the net/rpc connection in a Hook-shaped
// adapter.
type hookPlugin struct {
	meta Metadata
}

func (p *hookPlugin) Client(_ *plugin.MuxBroker, c *rpc.Client) (any, error) {
	return &hookRPCClient{client: c, meta: p.meta}, nil
}

func (p *hookPlugin) Server(*plugin.MuxBroker) (any, error) {
	return nil, fmt.Errorf("hooks: hookPlugin.Server is implemented by the external plugin process")
}

// PluginHandle owns the lifecycle of one external hook plugin process:
// launching it, dispensing its Hook adapter, and killing it on Close.
type PluginHandle struct {
	client *plugin.Client
	hook   Hook
}

// LaunchPlugin starts the external process at path (e.g. a hook written
// in another language, exposing the net/rpc hook protocol) and returns a
// Hook wrapping it, under the given metadata (the host, not the plugin,
// supplies Name/Priority/Tags so the registry can order it like any
// other hook).
func LaunchPlugin(path string, meta Metadata) (*PluginHandle, error) {
	logger := hclog.New(&hclog.LoggerOptions{
		Name:   "hook-plugin:" + meta.Name,
		Level:  hclog.Warn,
		Output: nil,
	})

	client := plugin.NewClient(&plugin.ClientConfig{
		HandshakeConfig: Handshake,
		Plugins: map[string]plugin.Plugin{
			"hook": &hookPlugin{meta: meta},
		},
		Cmd:    exec.Command(path),
		Logger: logger,
	})

	rpcClient, err := client.Client()
	if err != nil {
		client.Kill()
		return nil, fmt.Errorf("hooks: connect to plugin %s: %w", meta.Name, err)
	}

	raw, err := rpcClient.Dispense("hook")
	if err != nil {
		client.Kill()
		return nil, fmt.Errorf("hooks: dispense plugin %s: %w", meta.Name, err)
	}

	hook, ok := raw.(Hook)
	if !ok {
		client.Kill()
		return nil, fmt.Errorf("hooks: plugin %s did not return a Hook", meta.Name)
	}

	return &PluginHandle{client: client, hook: hook}, nil
}

// Hook returns the Hook adapter backed by the external process, ready to
// Register on a Registry like any in-process hook.
func (h *PluginHandle) Hook() Hook { return h.hook }

// Close terminates the external plugin process.
func (h *PluginHandle) Close() {
	h.client.Kill()
}
