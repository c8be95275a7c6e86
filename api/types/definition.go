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

// 以下结构体是外部配置语言编译器的输出，运行时只消费这些已校验的定义。
// The structures below are the output of the external configuration-language
// compiler. The runtime consumes them, it never parses the source language.

// NodeKind 节点种类
type NodeKind string

const (
	// KindConnector 边界适配器
	KindConnector NodeKind = "connector"
	// KindPipeline 管道，由select语句和脚本节点组成的子图
	KindPipeline NodeKind = "pipeline"
	// KindScript 脚本节点
	KindScript NodeKind = "script"
)

// FlowDef 流定义文档
type FlowDef struct {
	// 流基础信息定义
	Flow FlowBaseInfo `json:"flow"`
	// 模板定义，按顺序注册，也可以通过 DefineAll 批量注册
	Definitions []*Definition `json:"definitions,omitempty" validate:"dive"`
	// 实例创建语句
	Creates []InstanceDef `json:"creates,omitempty" validate:"dive"`
	// 实例之间的连接
	Connections []NodeConnection `json:"connections,omitempty" validate:"dive"`
}

// FlowBaseInfo 流基础信息定义
type FlowBaseInfo struct {
	// 流ID
	ID string `json:"id"`
	// Name 流名称
	Name string `json:"name,omitempty"`
	// 表示这个流是否处于调试模式，优先使用节点的DebugMode配置
	DebugMode bool `json:"debugMode,omitempty"`
	// Configuration 流配置信息，vars 可以通过 ${vars.xx} 在实例配置中引用
	Configuration Configuration `json:"configuration,omitempty"`
	// 扩展字段
	AdditionalInfo map[string]string `json:"additionalInfo,omitempty"`
}

// PortSpec 节点声明的输入、输出端口
type PortSpec struct {
	In  []string `json:"in,omitempty" validate:"dive,ident"`
	Out []string `json:"out,omitempty" validate:"dive,ident"`
}

// HasIn 是否声明了输入端口
func (p PortSpec) HasIn(port string) bool {
	return contains(p.In, port)
}

// HasOut 是否声明了输出端口
func (p PortSpec) HasOut(port string) bool {
	return contains(p.Out, port)
}

// Definition 可复用的节点模板，通过限定名引用
type Definition struct {
	// Name 模板名称
	Name string `json:"name" validate:"required,ident"`
	// Module 所在模块，限定名为 module::name
	Module string `json:"module,omitempty"`
	// Kind 节点种类
	Kind NodeKind `json:"kind" validate:"required,oneof=connector pipeline script"`
	// Ports 声明的端口，省略时使用默认端口
	Ports PortSpec `json:"ports"`
	// Configuration 默认实例参数，create 时的配置会覆盖同名参数
	Configuration Configuration `json:"configuration,omitempty"`
	Connector     *ConnectorDef `json:"connector,omitempty" validate:"required_if=Kind connector"`
	Pipeline      *PipelineDef  `json:"pipeline,omitempty" validate:"required_if=Kind pipeline"`
	Script        *ScriptDef    `json:"script,omitempty" validate:"required_if=Kind script"`
}

// QualifiedName 限定名
func (d *Definition) QualifiedName() string {
	if d.Module == "" {
		return d.Name
	}
	return d.Module + QualifiedSeparator + d.Name
}

// ConnectorDef 连接器定义
type ConnectorDef struct {
	// Type 连接器组件类型，需在组件注册器中注册
	Type string `json:"type" validate:"required"`
	// Configuration 连接器配置
	Configuration Configuration `json:"configuration,omitempty"`
}

// PipelineDef 管道定义
type PipelineDef struct {
	// Definitions 管道内局部模板，只在该管道内可见
	Definitions []*Definition `json:"definitions,omitempty" validate:"dive"`
	// Nodes 管道内创建的实例（脚本或者嵌套管道）
	Nodes []InstanceDef `json:"nodes,omitempty" validate:"dive"`
	// Selects select语句
	Selects []SelectDef `json:"selects,omitempty" validate:"dive"`
}

// InstanceDef 实例创建语句
type InstanceDef struct {
	// Id 实例名称，在所属作用域内唯一
	Id string `json:"id" validate:"required,ident"`
	// Definition 模板限定名
	Definition string `json:"definition" validate:"required"`
	// DebugMode 调试模式
	DebugMode bool `json:"debugMode,omitempty"`
	// Configuration 实例参数
	Configuration Configuration `json:"configuration,omitempty"`
}

// SelectDef select语句: select <Select> from <From> where <Where> into <Into>
type SelectDef struct {
	// From 源端口，格式 name 或者 name/port，省略时为 in
	From string `json:"from,omitempty"`
	// Where 守卫表达式，省略时恒为真
	Where string `json:"where,omitempty"`
	// Select 投影表达式，省略时为 event
	Select string `json:"select,omitempty"`
	// Into 目标端口列表，省略时为 out, err
	Into []string `json:"into,omitempty"`
}

// ScriptDef 脚本定义
type ScriptDef struct {
	// State 状态初始化表达式，实例创建时执行一次，省略时状态为nil
	State string `json:"state,omitempty"`
	// Statements 语句，按声明顺序执行
	Statements []Statement `json:"statements" validate:"required,min=1,dive"`
}

// Statement 脚本语句
// 只能设置 Code、Match、Emit、Drop 其中一个；Let 非空时把结果绑定到该名称，
// Let 为 state 时写入节点状态。
type Statement struct {
	Let   string    `json:"let,omitempty"`
	Code  string    `json:"code,omitempty"`
	Match *MatchDef `json:"match,omitempty"`
	Emit  *EmitDef  `json:"emit,omitempty"`
	Drop  bool      `json:"drop,omitempty"`
}

// MatchDef match <Subject> of case ... end
type MatchDef struct {
	Subject string    `json:"subject" validate:"required"`
	Cases   []CaseDef `json:"cases" validate:"required,min=1,dive"`
}

// CaseDef case <Pattern> when <Guard> => <Arm>
type CaseDef struct {
	Pattern PatternDef `json:"pattern"`
	// Guard 可选的附加条件
	Guard string    `json:"guard,omitempty"`
	Arm   Statement `json:"arm"`
}

// PatternKind 模式种类
type PatternKind string

const (
	PatternLiteral  PatternKind = "literal"
	PatternOneOf    PatternKind = "oneOf"
	PatternRegex    PatternKind = "regex"
	PatternWildcard PatternKind = "wildcard"
)

// PatternDef 模式定义
type PatternDef struct {
	Kind PatternKind `json:"kind" validate:"required,oneof=literal oneOf regex wildcard"`
	// Value 字面量或者正则表达式
	Value interface{} `json:"value,omitempty"`
	// Values oneOf 的候选字面量
	Values []interface{} `json:"values,omitempty"`
	// Bind 正则匹配成功时，把命名分组绑定到该名称
	Bind string `json:"bind,omitempty"`
}

// EmitDef emit <Value> => <Port>
type EmitDef struct {
	// Value 发送的值，省略时为 event
	Value string `json:"value,omitempty"`
	// Port 输出端口，省略时为默认输出端口
	Port string `json:"port,omitempty"`
}

// NodeConnection 实例连接定义
type NodeConnection struct {
	FromId   string `json:"fromId" validate:"required"`
	FromPort string `json:"fromPort,omitempty"`
	ToId     string `json:"toId" validate:"required"`
	ToPort   string `json:"toPort,omitempty"`
}

func contains(list []string, target string) bool {
	for _, item := range list {
		if item == target {
			return true
		}
	}
	return false
}
