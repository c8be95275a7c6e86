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

// Package query 实现管道的 select 语句：
//
//	select <projection> from <port> where <guard> into <port>, ...
//
// 同一个源端口上的所有语句相互独立地执行：守卫为真时计算投影，产生新的事件，
// 并发送到每一个目标端口（带过滤的广播）。
package query

import (
	"fmt"
	"strings"

	"github.com/expr-lang/expr/vm"
	"github.com/rulego/flowgo/api/types"
	"github.com/rulego/flowgo/builtin/funcs"
	"github.com/rulego/flowgo/script"
)

// DefaultProjection 省略投影时转发原事件
const DefaultProjection = types.EventKey

// Select 编译后的 select 语句，不可变
type Select struct {
	// From 源端点引用，已应用默认值
	From string
	// Into 目标端点引用，已应用默认值
	Into []string
	// Where 守卫源码
	Where string
	// Projection 投影源码
	Projection string

	guard      *vm.Program
	projection *vm.Program
}

// Compile 编译 select 语句，省略的 from/into 使用 defaults 中的默认端口
func Compile(def types.SelectDef, defaults types.PortDefaults, functions *funcs.Registry) (*Select, error) {
	s := &Select{
		From:       strings.TrimSpace(def.From),
		Into:       def.Into,
		Where:      strings.TrimSpace(def.Where),
		Projection: strings.TrimSpace(def.Select),
	}
	if s.From == "" {
		s.From = defaults.SelectFrom
	}
	if len(s.Into) == 0 {
		s.Into = append([]string(nil), defaults.SelectInto...)
	}
	if s.Projection == "" {
		s.Projection = DefaultProjection
	}
	var err error
	if s.Where != "" {
		if s.guard, err = script.CompileExpr(s.Where, functions); err != nil {
			return nil, types.NewFlowError(types.ErrInvalidDefinition, fmt.Errorf("where: %w", err)).WithRef(s.String())
		}
	}
	if s.projection, err = script.CompileExpr(s.Projection, functions); err != nil {
		return nil, types.NewFlowError(types.ErrInvalidDefinition, fmt.Errorf("select: %w", err)).WithRef(s.String())
	}
	return s, nil
}

// Evaluate 对一条事件执行语句
// 守卫为假时返回 ok=false，没有输出也没有错误
func (s *Select) Evaluate(ev types.Event, args map[string]interface{}) (out types.Event, ok bool, err error) {
	env := map[string]interface{}{
		types.EventKey: ev.Payload,
		types.MetaKey:  map[string]string(ev.Metadata),
		types.ArgsKey:  args,
	}
	exprVm := vm.VM{}
	if s.guard != nil {
		v, err := exprVm.Run(s.guard, env)
		if err != nil {
			return out, false, types.NewFlowError(types.ErrGuardEvaluation, err).WithRef(s.String())
		}
		pass, isBool := v.(bool)
		if !isBool {
			return out, false, types.NewFlowError(types.ErrGuardEvaluation,
				fmt.Errorf("guard result must be bool, got %T", v)).WithRef(s.String())
		}
		if !pass {
			return out, false, nil
		}
	}
	result, err := exprVm.Run(s.projection, env)
	if err != nil {
		return out, false, types.NewFlowError(types.ErrScriptRuntime, err).WithRef(s.String())
	}
	return ev.WithPayload(result), true, nil
}

func (s *Select) String() string {
	var sb strings.Builder
	sb.WriteString("select ")
	sb.WriteString(s.Projection)
	sb.WriteString(" from ")
	sb.WriteString(s.From)
	if s.Where != "" {
		sb.WriteString(" where ")
		sb.WriteString(s.Where)
	}
	sb.WriteString(" into ")
	sb.WriteString(strings.Join(s.Into, ", "))
	return sb.String()
}

// Table 按源端口分组的 select 语句
type Table struct {
	bySource map[string][]*Select
	all      []*Select
}

// NewTable 创建语句表，语句按声明顺序保存
func NewTable(selects ...*Select) *Table {
	t := &Table{bySource: make(map[string][]*Select)}
	for _, s := range selects {
		t.Add(s.From, s)
	}
	return t
}

// Add 把语句注册到源端口 source
func (t *Table) Add(source string, s *Select) {
	if t.bySource == nil {
		t.bySource = make(map[string][]*Select)
	}
	t.bySource[source] = append(t.bySource[source], s)
	t.all = append(t.all, s)
}

// Lookup 获取源端口上的语句
func (t *Table) Lookup(source string) []*Select {
	return t.bySource[source]
}

// Sources 所有源端口
func (t *Table) Sources() []string {
	var sources []string
	for k := range t.bySource {
		sources = append(sources, k)
	}
	return sources
}

// Len 语句数量
func (t *Table) Len() int {
	return len(t.all)
}

// Dispatch 对到达 source 的事件执行所有语句
// 每条语句的输出按值复制发送到该语句的每个目标，target 为目标在 Into 中的下标
// 一条语句失败不影响其他语句
func (t *Table) Dispatch(source string, ev types.Event, args map[string]interface{},
	emit func(s *Select, target int, ev types.Event), onError func(s *Select, err error)) {
	for _, s := range t.bySource[source] {
		out, ok, err := s.Evaluate(ev, args)
		if err != nil {
			onError(s, err)
			continue
		}
		if !ok {
			continue
		}
		for i := range s.Into {
			if i == 0 {
				emit(s, i, out)
			} else {
				emit(s, i, out.Copy())
			}
		}
	}
}
