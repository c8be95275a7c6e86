/*
 * Copyright 2024 The RuleGo Authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package test

import (
	"context"
	"sync"

	"github.com/rulego/flowgo/api/types"
)

var _ types.NodeContext = (*NodeTestContext)(nil)

// NodeTestContext
// 只为测试单节点，临时创建的上下文
// callback 回调处理结果：err 为空表示通过 port 端口发出的事件，否则是 EmitError 上报的失败
type NodeTestContext struct {
	context  context.Context
	cancel   context.CancelFunc
	config   types.Config
	nodeId   string
	callback func(port string, ev types.Event, err error)

	mu       sync.Mutex
	stopped  bool
	graceful bool
}

// NewNodeContext 创建测试上下文
func NewNodeContext(config types.Config, nodeId string, callback func(port string, ev types.Event, err error)) *NodeTestContext {
	ctx, cancel := context.WithCancel(context.Background())
	return &NodeTestContext{
		context:  ctx,
		cancel:   cancel,
		config:   config,
		nodeId:   nodeId,
		callback: callback,
	}
}

func (ctx *NodeTestContext) GetContext() context.Context {
	return ctx.context
}

func (ctx *NodeTestContext) FlowId() string {
	return "test"
}

func (ctx *NodeTestContext) NodeId() string {
	return ctx.nodeId
}

func (ctx *NodeTestContext) Config() types.Config {
	return ctx.config
}

func (ctx *NodeTestContext) Logger() types.Logger {
	if ctx.config.Logger == nil {
		return types.DiscardLogger()
	}
	return ctx.config.Logger
}

func (ctx *NodeTestContext) Emit(port string, ev types.Event) error {
	if ctx.context.Err() != nil {
		return types.ErrFlowStopped
	}
	if ctx.callback != nil {
		ctx.callback(port, ev, nil)
	}
	return nil
}

func (ctx *NodeTestContext) EmitError(ev types.Event, port string, err error) {
	if ctx.callback != nil {
		ctx.callback(port, ev, err)
	}
}

// Stop 记录停止请求并取消上下文
func (ctx *NodeTestContext) Stop(graceful bool) {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	ctx.stopped = true
	ctx.graceful = graceful
	ctx.cancel()
}

// Stopped 是否请求了停止，以及停止方式
func (ctx *NodeTestContext) Stopped() (bool, bool) {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	return ctx.stopped, ctx.graceful
}

// Cancel 取消上下文，模拟流停止
func (ctx *NodeTestContext) Cancel() {
	ctx.cancel()
}
