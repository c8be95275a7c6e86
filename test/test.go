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

// Package test provides connectors and helpers for testing flows:
// a capturing sink, a programmable source and a single node context.
package test

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rulego/flowgo/api/types"
)

// CreateAndInitNode 创建并初始化一个连接器实例
func CreateAndInitNode(targetNodeType string, initConfig types.Configuration, registry *types.SafeComponentSlice) (types.Node, error) {
	var nodeFactory types.Node
	for _, component := range registry.Components() {
		if component.Type() == targetNodeType {
			nodeFactory = component
		}
	}
	if nodeFactory == nil {
		return nil, fmt.Errorf("component not found. componentType=%s", targetNodeType)
	}
	node := nodeFactory.New()
	err := node.Init(types.NewConfig(types.WithLogger(types.DiscardLogger())), initConfig)
	return node, err
}

// Captured 接收到的事件
type Captured struct {
	// Node 接收节点ID
	Node string
	// Port 到达端口
	Port  string
	Event types.Event
}

// Recorder 记录事件，可以等待指定数量的事件到达
type Recorder struct {
	mu     sync.Mutex
	items  []Captured
	notify chan struct{}
}

// NewRecorder 创建记录器
func NewRecorder() *Recorder {
	return &Recorder{notify: make(chan struct{}, 1)}
}

// Add 记录一个事件
func (r *Recorder) Add(item Captured) {
	r.mu.Lock()
	r.items = append(r.items, item)
	r.mu.Unlock()
	select {
	case r.notify <- struct{}{}:
	default:
	}
}

// Items 已记录的事件
func (r *Recorder) Items() []Captured {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Captured(nil), r.items...)
}

// Payloads 已记录事件的内容
func (r *Recorder) Payloads() []interface{} {
	var result []interface{}
	for _, item := range r.Items() {
		result = append(result, item.Event.Payload)
	}
	return result
}

// Len 已记录的事件数量
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items)
}

// Wait 等待至少 n 个事件，超时返回已记录的事件和 false
func (r *Recorder) Wait(n int, timeout time.Duration) ([]Captured, bool) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for {
		if items := r.Items(); len(items) >= n {
			return items, true
		}
		select {
		case <-r.notify:
		case <-deadline.C:
			return r.Items(), false
		}
	}
}

// Sink 把收到的事件写入 Recorder 的连接器，端口 in、err
type Sink struct {
	Recorder *Recorder
	// Delay 处理每个事件前等待，用于模拟慢速下游
	Delay time.Duration
}

// Type 组件类型
func (x *Sink) Type() string {
	return "test/sink"
}

func (x *Sink) New() types.Node {
	return &Sink{Recorder: x.Recorder, Delay: x.Delay}
}

// Ports 默认端口
func (x *Sink) Ports() types.PortSpec {
	return types.PortSpec{In: []string{types.DefaultIn, types.DefaultErr}}
}

func (x *Sink) Init(_ types.Config, _ types.Configuration) error {
	if x.Recorder == nil {
		return fmt.Errorf("recorder is nil")
	}
	return nil
}

func (x *Sink) OnEvent(ctx types.NodeContext, port string, ev types.Event) {
	if x.Delay > 0 {
		time.Sleep(x.Delay)
	}
	x.Recorder.Add(Captured{Node: ctx.NodeId(), Port: port, Event: ev})
}

func (x *Sink) Destroy() {
}

// Source 把 Events 中的事件从 out 端口发出的连接器
type Source struct {
	Events chan types.Event
	// FailStart 启动失败，用于测试部署回滚
	FailStart bool
	// Started 启动次数，可以为空
	Started *atomic.Int32
}

// Type 组件类型
func (x *Source) Type() string {
	return "test/source"
}

func (x *Source) New() types.Node {
	return &Source{Events: x.Events, FailStart: x.FailStart, Started: x.Started}
}

// Ports 只有输出端口
func (x *Source) Ports() types.PortSpec {
	return types.PortSpec{Out: []string{types.DefaultOut}}
}

func (x *Source) Init(_ types.Config, _ types.Configuration) error {
	return nil
}

func (x *Source) Start(ctx types.NodeContext) error {
	if x.FailStart {
		return fmt.Errorf("source failed to start")
	}
	if x.Started != nil {
		x.Started.Add(1)
	}
	go func() {
		for {
			select {
			case <-ctx.GetContext().Done():
				return
			case ev := <-x.Events:
				if err := ctx.Emit(types.DefaultOut, ev); err != nil {
					return
				}
			}
		}
	}()
	return nil
}

func (x *Source) OnEvent(_ types.NodeContext, _ string, _ types.Event) {
}

func (x *Source) Destroy() {
}

// BadInit 初始化失败的连接器
type BadInit struct {
}

// Type 组件类型
func (x *BadInit) Type() string {
	return "test/badInit"
}

func (x *BadInit) New() types.Node {
	return &BadInit{}
}

func (x *BadInit) Init(_ types.Config, _ types.Configuration) error {
	return fmt.Errorf("bad configuration")
}

func (x *BadInit) OnEvent(_ types.NodeContext, _ string, _ types.Event) {
}

func (x *BadInit) Destroy() {
}

// Panic 处理事件时 panic 的连接器，端口 in; out、err
type Panic struct {
}

// Type 组件类型
func (x *Panic) Type() string {
	return "test/panic"
}

func (x *Panic) New() types.Node {
	return &Panic{}
}

func (x *Panic) Init(_ types.Config, _ types.Configuration) error {
	return nil
}

func (x *Panic) OnEvent(_ types.NodeContext, _ string, ev types.Event) {
	panic(fmt.Sprintf("boom %v", ev.Payload))
}

func (x *Panic) Destroy() {
}
