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

const (
	// Global 全局属性变量前缀，${global.xx}
	Global = "global"
	// Vars 流配置变量前缀，${vars.xx}
	Vars = "vars"
)

const (
	// QualifiedSeparator 模块名和模板名分隔符
	QualifiedSeparator = "::"
	// PathSeparator 管道内部实例路径分隔符，也用于 name/port 端口引用
	PathSeparator = "/"
	// HiddenPortPrefix 管道内部隐藏端口前缀
	HiddenPortPrefix = "@"
	// Wildcard 通配模式
	Wildcard = "_"
)

const (
	// DefaultIn 默认输入端口
	DefaultIn = "in"
	// DefaultOut 默认输出端口
	DefaultOut = "out"
	// DefaultErr 默认错误端口
	DefaultErr = "err"
)

const (
	// In 调试流向：进入节点
	In = "IN"
	// Out 调试流向：离开节点
	Out = "OUT"
)

// PortDefaults 默认端口，在定义和编译阶段解析一次
type PortDefaults struct {
	// In 未声明输入端口时使用
	In []string
	// Out 未声明输出端口时使用
	Out []string
	// SelectFrom select 语句省略 from 时的源端口
	SelectFrom string
	// SelectInto select 语句省略 into 时的目标端口
	SelectInto []string
}

// DefaultPortDefaults 默认端口: in; out, err
func DefaultPortDefaults() PortDefaults {
	return PortDefaults{
		In:         []string{DefaultIn},
		Out:        []string{DefaultOut, DefaultErr},
		SelectFrom: DefaultIn,
		SelectInto: []string{DefaultOut, DefaultErr},
	}
}

// Resolve 省略的端口集合使用默认值，声明的端口集合替换默认值
func (d PortDefaults) Resolve(spec PortSpec) PortSpec {
	result := PortSpec{In: spec.In, Out: spec.Out}
	if len(result.In) == 0 {
		result.In = append([]string(nil), d.In...)
	}
	if len(result.Out) == 0 {
		result.Out = append([]string(nil), d.Out...)
	}
	return result
}

// FlowState 流生命周期状态
type FlowState string

const (
	StateDefined  FlowState = "Defined"
	StateCreated  FlowState = "Created"
	StateWired    FlowState = "Wired"
	StateDeployed FlowState = "Deployed"
	StateStopped  FlowState = "Stopped"
	StateErrored  FlowState = "Errored"
)

// Terminal 是否是终止状态
func (s FlowState) Terminal() bool {
	return s == StateStopped || s == StateErrored
}

// BackpressurePolicy 输入队列满时的处理策略
type BackpressurePolicy string

const (
	// BackpressureBlock 阻塞发送方，直到队列有空位或者流停止
	BackpressureBlock BackpressurePolicy = "block"
	// BackpressureDrop 丢弃事件，计入节点 dropped 指标
	BackpressureDrop BackpressurePolicy = "drop"
	// BackpressureError 丢弃事件，并上报 ErrQueueFull 诊断信息
	BackpressureError BackpressurePolicy = "error"
)
