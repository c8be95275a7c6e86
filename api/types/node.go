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

package types

import (
	"context"
)

// Configuration 节点配置信息
type Configuration map[string]interface{}

// Copy 浅拷贝配置
func (c Configuration) Copy() Configuration {
	result := make(Configuration, len(c))
	for k, v := range c {
		result[k] = v
	}
	return result
}

// Behavior 节点行为，每个节点实例在独立的协程中串行调用 OnEvent
type Behavior interface {
	// OnEvent 处理到达 port 输入端口的事件
	// 处理结果通过 ctx.Emit 发送到输出端口，处理失败通过 ctx.EmitError 上报
	OnEvent(ctx NodeContext, port string, ev Event)
	// Destroy 销毁，流停止时调用
	Destroy()
}

// Node 连接器组件接口
// 连接器通过 ComponentRegistry 注册，创建实例时通过 New 获取新的实例，然后调用 Init 初始化
type Node interface {
	Behavior
	// New 创建一个组件新实例
	// 每个实例都会调用一次 New，然后再调用 Init
	New() Node
	// Type 组件类型，类型不能重复
	Type() string
	// Init 组件初始化，一般做一些组件参数配置或者客户端初始化操作
	// 流部署时候会调用，初始化失败则整个部署失败，任何节点都不会启动
	Init(config Config, configuration Configuration) error
}

// PortsDeclarer 该接口是可选的，组件可以实现该接口，声明默认端口
// 模板中声明的端口优先
type PortsDeclarer interface {
	Ports() PortSpec
}

// Source 该接口是可选的，主动产生事件的连接器实现该接口
// 所有节点初始化完成后调用 Start，ctx.GetContext() 在流停止时取消
type Source interface {
	Start(ctx NodeContext) error
}

// NodeContext 节点运行上下文
type NodeContext interface {
	// GetContext 获取上下文，流停止时取消
	GetContext() context.Context
	// FlowId 所属流ID
	FlowId() string
	// NodeId 节点ID
	NodeId() string
	// Config 流引擎配置
	Config() Config
	// Emit 把事件发送到输出端口，端口必须已声明
	// 没有连接的输出端口丢弃事件
	Emit(port string, ev Event) error
	// EmitError 上报处理失败，ev 为触发失败的事件，port 为到达端口
	// 失败会以诊断信息上报，如果节点声明了 err 端口，还会发送错误事件
	EmitError(ev Event, port string, err error)
	// Stop 请求停止所属流，异步执行
	Stop(graceful bool)
	// Logger 日志记录器
	Logger() Logger
}

// ComponentRegistry 组件注册器
type ComponentRegistry interface {
	// Register 注册组件，如果类型已存在则返回错误
	Register(node Node) error
	// Unregister 删除组件
	Unregister(componentType string) error
	// NewNode 通过类型创建组件新实例
	NewNode(componentType string) (Node, error)
	// GetComponents 获取所有已注册组件
	GetComponents() map[string]Node
}

// Parser 流定义文档解析器，默认使用JSON
type Parser interface {
	// DecodeFlow 解析流定义文档
	DecodeFlow(def []byte) (FlowDef, error)
	// EncodeFlow 把流定义转换成文档
	EncodeFlow(def FlowDef) ([]byte, error)
}

// Diagnostic 运行时诊断信息
// 运行时错误不会终止节点，通过诊断信息上报
type Diagnostic struct {
	FlowId string `json:"flowId"`
	NodeId string `json:"nodeId"`
	// Port 事件到达端口
	Port  string `json:"port"`
	Event Event  `json:"event"`
	Err   error  `json:"-"`
	// Ts 时间戳，毫秒
	Ts int64 `json:"ts"`
}
