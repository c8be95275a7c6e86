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

// Package flowgo provides an embedded runtime for event-processing flows.
//
// A flow is a directed graph of connector, pipeline and script instances exchanging
// events through named ports. Definitions are produced by an external compiler as a
// JSON document:
//
//	{
//	  "flow": {"id": "main"},
//	  "definitions": [
//	    {"name": "console", "kind": "connector", "connector": {"type": "stdio"}},
//	    {"name": "upper", "kind": "script", "script": {"statements": [{"code": "upper(event)"}]}}
//	  ],
//	  "creates": [
//	    {"id": "console", "definition": "console"},
//	    {"id": "upper", "definition": "upper"}
//	  ],
//	  "connections": [
//	    {"fromId": "console", "fromPort": "out", "toId": "upper", "toPort": "in"},
//	    {"fromId": "upper", "fromPort": "out", "toId": "console", "toPort": "in"}
//	  ]
//	}
//
// Create and deploy a flow
//
//	flow, err := flowgo.New("main", []byte(def))
//
// Inject an event into an instance input port
//
//	err = flow.Inject("upper", "in", types.NewEvent("hello", nil))
//
// Load all flow documents of a folder
//
//	err := flowgo.Load("./flows")
//
// Get a deployed flow
//
//	flow, ok := flowgo.Get("main")
//
// Stop and delete it
//
//	err := flowgo.Del("main")
package flowgo

import (
	"github.com/rulego/flowgo/api/types"
	"github.com/rulego/flowgo/engine"
)

// New 创建并部署流，放入默认流池
// id 为空时使用文档中的 flow.id
func New(id string, def []byte, opts ...types.Option) (*engine.Flow, error) {
	return engine.DefaultPool.New(id, def, opts...)
}

// Get 获取默认流池中的流
func Get(id string) (*engine.Flow, bool) {
	return engine.DefaultPool.Get(id)
}

// Del 优雅停止并删除流
func Del(id string) error {
	return engine.DefaultPool.Del(id, true)
}

// Stop 优雅停止并删除默认流池中的所有流
func Stop() {
	engine.DefaultPool.Stop()
}

// Load 加载文件夹及其子文件夹中所有流定义文档（*.json）到默认流池
func Load(folderPath string, opts ...types.Option) error {
	return engine.DefaultPool.Load(folderPath, opts...)
}

// Range 遍历默认流池中的流
func Range(f func(id string, flow *engine.Flow) bool) {
	engine.DefaultPool.Range(f)
}

// Register 注册连接器组件到默认注册器
func Register(node types.Node) error {
	return engine.Registry.Register(node)
}
