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
	"errors"
	"strings"
)

// 拓扑阶段错误，同步返回，不产生任何部分效果
var (
	// ErrDefinitionNotFound 引用的模板不存在
	ErrDefinitionNotFound = errors.New("definition not found")
	// ErrNameConflict 名称在所属作用域内重复
	ErrNameConflict = errors.New("name conflict")
	// ErrPortNotFound 端口未声明
	ErrPortNotFound = errors.New("port not found")
	// ErrUnknownNode 连接引用的实例不存在
	ErrUnknownNode = errors.New("unknown node")
	// ErrCyclicDefinition 模板之间循环引用
	ErrCyclicDefinition = errors.New("cyclic definition")
	// ErrInvalidDefinition 模板结构校验失败
	ErrInvalidDefinition = errors.New("invalid definition")
	// ErrInvalidState 当前生命周期状态不允许该操作
	ErrInvalidState = errors.New("invalid flow state")
	// ErrFlowNotFound 流池中没有该流
	ErrFlowNotFound = errors.New("flow not found")
)

// 运行阶段错误，在节点内恢复，事件被丢弃，节点继续运行
var (
	// ErrNoMatchingCase match 没有匹配的分支并且没有通配分支
	ErrNoMatchingCase = errors.New("no matching case")
	// ErrGuardEvaluation 守卫表达式执行失败或者结果不是布尔值
	ErrGuardEvaluation = errors.New("guard evaluation error")
	// ErrScriptRuntime 脚本或者投影表达式执行失败
	ErrScriptRuntime = errors.New("script runtime error")
	// ErrQueueFull 输入队列已满
	ErrQueueFull = errors.New("queue full")
	// ErrFlowStopped 流已经停止或者正在停止
	ErrFlowStopped = errors.New("flow stopped")
)

// Phase 错误阶段
type Phase string

const (
	PhaseTopology Phase = "topology"
	PhaseRuntime  Phase = "runtime"
)

var topologyErrors = []error{
	ErrDefinitionNotFound, ErrNameConflict, ErrPortNotFound, ErrUnknownNode,
	ErrCyclicDefinition, ErrInvalidDefinition, ErrInvalidState, ErrFlowNotFound,
}

// FlowError 结构化错误，可以通过 errors.Is 判断 Code，通过 errors.As 获取详细信息
type FlowError struct {
	// Code 错误类型，是上面的哨兵错误之一
	Code error
	// Node 相关节点
	Node string
	// Port 相关端口
	Port string
	// Ref 相关引用，例如模板限定名
	Ref string
	// Err 原始错误
	Err error
}

// NewFlowError 创建结构化错误
func NewFlowError(code error, err error) *FlowError {
	return &FlowError{Code: code, Err: err}
}

func (e *FlowError) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Code.Error())
	if e.Node != "" {
		sb.WriteString(" node=")
		sb.WriteString(e.Node)
	}
	if e.Port != "" {
		sb.WriteString(" port=")
		sb.WriteString(e.Port)
	}
	if e.Ref != "" {
		sb.WriteString(" ref=")
		sb.WriteString(e.Ref)
	}
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

func (e *FlowError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Code}
	}
	return []error{e.Code, e.Err}
}

// Phase 错误所属阶段
func (e *FlowError) Phase() Phase {
	for _, item := range topologyErrors {
		if errors.Is(e.Code, item) {
			return PhaseTopology
		}
	}
	return PhaseRuntime
}

// WithNode 设置相关节点
func (e *FlowError) WithNode(node string) *FlowError {
	e.Node = node
	return e
}

// WithPort 设置相关端口
func (e *FlowError) WithPort(port string) *FlowError {
	e.Port = port
	return e
}

// WithRef 设置相关引用
func (e *FlowError) WithRef(ref string) *FlowError {
	e.Ref = ref
	return e
}

// ErrorPhase 获取错误所属阶段，非 FlowError 返回空
func ErrorPhase(err error) Phase {
	var flowErr *FlowError
	if errors.As(err, &flowErr) {
		return flowErr.Phase()
	}
	return ""
}
