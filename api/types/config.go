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
	"time"

	"github.com/rulego/flowgo/builtin/funcs"
)

// DefaultQueueSize 默认输入端口队列长度
const DefaultQueueSize = 64

// DefaultShutdownTimeout 默认优雅停止超时时间
const DefaultShutdownTimeout = 10 * time.Second

// Config 流引擎配置
type Config struct {
	// OnDebug 节点调试信息回调函数，只有节点或者流的 debugMode 打开才会调用
	// - flowId: 流ID
	// - flowType: IN/OUT，进入或者离开节点
	// - nodeId: 节点ID
	// - ev: 当前事件
	// - port: 如果 flowType=IN，表示到达的输入端口；如果 flowType=OUT，表示发送的输出端口
	// - err: 错误信息
	OnDebug func(flowId string, flowType string, nodeId string, ev Event, port string, err error)
	// OnDiagnostic 运行时诊断信息回调函数
	OnDiagnostic func(d Diagnostic)
	// QueueSize 每个输入端口的队列长度，默认 64
	QueueSize int
	// Backpressure 队列满时的处理策略，默认阻塞
	Backpressure BackpressurePolicy
	// ShutdownTimeout 优雅停止等待在途事件处理完成的最长时间，超时后强制停止
	ShutdownTimeout time.Duration
	// Ports 默认端口
	Ports PortDefaults
	// ComponentsRegistry 连接器组件注册器
	ComponentsRegistry ComponentRegistry
	// Parser 流定义文档解析器，默认 engine.JsonParser
	Parser Parser
	// Logger 日志记录器，默认 DefaultLogger()
	Logger Logger
	// Properties 全局属性，实例配置可以通过 ${global.propertyKey} 引用
	// 替换发生在实例创建时，只替换一次
	Properties Metadata
	// Functions 表达式可以调用的函数
	Functions *funcs.Registry
}

// NewConfig creates a new Config with default values and applies the provided options.
func NewConfig(opts ...Option) Config {
	c := &Config{
		QueueSize:       DefaultQueueSize,
		Backpressure:    BackpressureBlock,
		ShutdownTimeout: DefaultShutdownTimeout,
		Ports:           DefaultPortDefaults(),
		Logger:          DefaultLogger(),
		Properties:      NewMetadata(),
		Functions:       funcs.NewRegistry(),
	}

	for _, opt := range opts {
		_ = opt(c)
	}
	return *c
}

// Debug 调用调试回调
func (c Config) Debug(flowId string, flowType string, nodeId string, ev Event, port string, err error) {
	if c.OnDebug != nil {
		c.OnDebug(flowId, flowType, nodeId, ev, port, err)
	}
}

// Diagnose 记录日志并调用诊断回调
func (c Config) Diagnose(d Diagnostic) {
	if c.Logger != nil {
		c.Logger.Printf("flow=%s node=%s port=%s event=%s err=%v", d.FlowId, d.NodeId, d.Port, d.Event.Id, d.Err)
	}
	if c.OnDiagnostic != nil {
		c.OnDiagnostic(d)
	}
}
