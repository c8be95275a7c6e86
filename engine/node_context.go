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

package engine

import (
	"context"
	"time"

	"github.com/rulego/flowgo/api/types"
)

// Ensuring nodeContext implements types.NodeContext interface.
var _ types.NodeContext = (*nodeContext)(nil)

// nodeContext 节点运行上下文，每个节点实例一个
type nodeContext struct {
	node *nodeInstance
	flow *Flow
	// ctx 连接器源使用 sourceCtx，停止的第一阶段取消；其他节点使用流的停机上下文
	ctx context.Context
}

func (ctx *nodeContext) GetContext() context.Context {
	return ctx.ctx
}

func (ctx *nodeContext) FlowId() string {
	return ctx.flow.id
}

func (ctx *nodeContext) NodeId() string {
	return ctx.node.id
}

func (ctx *nodeContext) Config() types.Config {
	return ctx.flow.config
}

func (ctx *nodeContext) Logger() types.Logger {
	return ctx.flow.config.Logger
}

// Emit 把事件路由到输出端口的所有连接
// 多个连接时按值复制，目标之间互不可见修改；没有连接时丢弃
func (ctx *nodeContext) Emit(port string, ev types.Event) error {
	n := ctx.node
	if !n.ports.HasOut(port) {
		return types.NewFlowError(types.ErrPortNotFound, nil).WithNode(n.id).WithPort(port)
	}
	if ctx.flow.graceful.GetShutdownContext().Err() != nil {
		return types.NewFlowError(types.ErrFlowStopped, nil).WithNode(n.id).WithPort(port)
	}
	n.metrics.IncrementOut()
	if n.debugMode {
		ctx.flow.config.Debug(ctx.flow.id, types.Out, n.id, ev, port, nil)
	}
	edges := ctx.flow.edges[portKey{node: n.id, port: port}]
	for i, e := range edges {
		out := ev
		if len(edges) > 1 && i > 0 {
			out = ev.Copy()
		}
		if err := ctx.flow.deliver(e.to, e.port, out); err != nil {
			e.to.ctx.diagnose(out, e.port, err)
		}
	}
	return nil
}

// EmitError 上报处理失败
// 失败以诊断信息上报；节点声明了 err 端口时，同时发送错误事件：
//
//	{"error": "...", "node": "...", "port": "...", "event": <原事件内容>}
func (ctx *nodeContext) EmitError(ev types.Event, port string, err error) {
	n := ctx.node
	n.metrics.IncrementFailed()
	ctx.diagnose(ev, port, err)
	if n.debugMode {
		ctx.flow.config.Debug(ctx.flow.id, types.Out, n.id, ev, types.DefaultErr, err)
	}
	if n.ports.HasOut(types.DefaultErr) {
		errEvent := ev.WithPayload(map[string]interface{}{
			"error": err.Error(),
			"node":  n.id,
			"port":  port,
			"event": ev.Payload,
		})
		_ = ctx.Emit(types.DefaultErr, errEvent)
	}
}

func (ctx *nodeContext) diagnose(ev types.Event, port string, err error) {
	ctx.flow.config.Diagnose(types.Diagnostic{
		FlowId: ctx.flow.id,
		NodeId: ctx.node.id,
		Port:   port,
		Event:  ev,
		Err:    err,
		Ts:     time.Now().UnixMilli(),
	})
}

// Stop 异步停止所属流
func (ctx *nodeContext) Stop(graceful bool) {
	go func() {
		if err := ctx.flow.Stop(graceful); err != nil {
			ctx.flow.config.Logger.Printf("flow=%s node=%s stop error: %v", ctx.flow.id, ctx.node.id, err)
		}
	}()
}
