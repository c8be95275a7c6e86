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

// Package connector provides the boundary adapters of a flow: connectors
// bring events into the graph or carry them out of it.
//
// Register a custom connector:
//
//	connector.Registry.Add(&MyConnector{})
//
// or at runtime through engine.Registry.Register.
package connector

import "github.com/rulego/flowgo/api/types"

// Registry 内置连接器列表，engine 初始化时注册到默认组件注册器
var Registry = &types.SafeComponentSlice{}

// connector 元数据key
const (
	// MetaConnector 产生事件的连接器类型
	MetaConnector = "connector"
	// MetaNode 产生事件的节点ID
	MetaNode = "node"
)

func sourceMetadata(connectorType string, ctx types.NodeContext) types.Metadata {
	return types.BuildMetadata(map[string]string{
		MetaConnector: connectorType,
		MetaNode:      ctx.NodeId(),
	})
}
