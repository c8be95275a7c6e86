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

package connector

import "github.com/rulego/flowgo/api/types"

// 注册节点
func init() {
	Registry.Add(&Null{})
}

// Null 丢弃所有事件的连接器
type Null struct {
}

// Type 组件类型
func (x *Null) Type() string {
	return "null"
}

func (x *Null) New() types.Node {
	return &Null{}
}

// Ports 只有输入端口
func (x *Null) Ports() types.PortSpec {
	return types.PortSpec{In: []string{types.DefaultIn}}
}

// Init 初始化
func (x *Null) Init(_ types.Config, _ types.Configuration) error {
	return nil
}

func (x *Null) OnEvent(_ types.NodeContext, _ string, _ types.Event) {
}

// Destroy 销毁
func (x *Null) Destroy() {
}
