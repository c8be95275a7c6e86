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

// Package script 编译和执行脚本节点。
//
// 脚本由按顺序执行的语句组成：let 绑定、match 模式匹配、emit 发送、drop 丢弃，
// 以及一个表达式语句。没有执行 emit 时，最后一条语句的值发送到默认输出端口。
// 所有表达式使用 expr 编译，在定义阶段编译一次，运行时只执行。
package script

import (
	"fmt"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/rulego/flowgo/api/types"
	"github.com/rulego/flowgo/builtin/funcs"
	"github.com/rulego/flowgo/pattern"
)

// reserved 不能被 let 重新绑定的变量
var reserved = map[string]bool{
	types.EventKey: true,
	types.MetaKey:  true,
	types.ArgsKey:  true,
}

// CompileExpr 编译表达式，允许未定义变量，注册器中的函数可以在表达式中调用
func CompileExpr(code string, functions *funcs.Registry) (*vm.Program, error) {
	opts := []expr.Option{expr.AllowUndefinedVariables()}
	if functions != nil {
		for name, f := range functions.GetAll() {
			opts = append(opts, expr.Function(name, f))
		}
	}
	return expr.Compile(strings.TrimSpace(code), opts...)
}

// Program 编译后的脚本，不可变，可以被多个实例共享
type Program struct {
	state      *vm.Program
	statements []*statement
	defaultOut string
}

type statement struct {
	let   string
	code  *vm.Program
	match *matchStatement
	emit  *emitStatement
	drop  bool
}

type matchStatement struct {
	subject *vm.Program
	cases   []*caseStatement
}

type caseStatement struct {
	pattern *pattern.Pattern
	guard   *vm.Program
	arm     *statement
}

type emitStatement struct {
	value *vm.Program
	port  string
}

// Compile 编译脚本定义
// ports 为节点已解析的端口，emit 的目标端口必须在其中声明
func Compile(def *types.ScriptDef, ports types.PortSpec, functions *funcs.Registry) (*Program, error) {
	if def == nil || len(def.Statements) == 0 {
		return nil, types.NewFlowError(types.ErrInvalidDefinition, fmt.Errorf("script has no statements"))
	}
	if len(ports.Out) == 0 {
		return nil, types.NewFlowError(types.ErrInvalidDefinition, fmt.Errorf("script has no output port"))
	}
	c := &compiler{ports: ports, functions: functions}
	p := &Program{defaultOut: ports.Out[0]}
	if strings.TrimSpace(def.State) != "" {
		program, err := c.expr("state", def.State)
		if err != nil {
			return nil, err
		}
		p.state = program
	}
	for i, item := range def.Statements {
		s, err := c.statement(fmt.Sprintf("statements[%d]", i), item)
		if err != nil {
			return nil, err
		}
		p.statements = append(p.statements, s)
	}
	return p, nil
}

// DefaultOut 默认输出端口
func (p *Program) DefaultOut() string {
	return p.defaultOut
}

type compiler struct {
	ports     types.PortSpec
	functions *funcs.Registry
}

func (c *compiler) expr(path, code string) (*vm.Program, error) {
	program, err := CompileExpr(code, c.functions)
	if err != nil {
		return nil, types.NewFlowError(types.ErrInvalidDefinition, fmt.Errorf("%s: %w", path, err))
	}
	return program, nil
}

func (c *compiler) statement(path string, def types.Statement) (*statement, error) {
	count := 0
	if strings.TrimSpace(def.Code) != "" {
		count++
	}
	if def.Match != nil {
		count++
	}
	if def.Emit != nil {
		count++
	}
	if def.Drop {
		count++
	}
	if count != 1 {
		return nil, types.NewFlowError(types.ErrInvalidDefinition,
			fmt.Errorf("%s: exactly one of code, match, emit, drop must be set", path))
	}
	if reserved[def.Let] {
		return nil, types.NewFlowError(types.ErrInvalidDefinition,
			fmt.Errorf("%s: %s can not be rebound", path, def.Let))
	}
	if def.Let != "" && (def.Emit != nil || def.Drop) {
		return nil, types.NewFlowError(types.ErrInvalidDefinition,
			fmt.Errorf("%s: emit and drop can not be bound", path))
	}

	s := &statement{let: def.Let, drop: def.Drop}
	var err error
	switch {
	case def.Code != "":
		s.code, err = c.expr(path, def.Code)
	case def.Match != nil:
		s.match, err = c.match(path+".match", def.Match)
	case def.Emit != nil:
		s.emit, err = c.emit(path+".emit", def.Emit)
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (c *compiler) match(path string, def *types.MatchDef) (*matchStatement, error) {
	if len(def.Cases) == 0 {
		return nil, types.NewFlowError(types.ErrInvalidDefinition, fmt.Errorf("%s: no cases", path))
	}
	subject, err := c.expr(path+".subject", def.Subject)
	if err != nil {
		return nil, err
	}
	defs := make([]types.PatternDef, 0, len(def.Cases))
	for _, item := range def.Cases {
		defs = append(defs, item.Pattern)
	}
	patterns, err := pattern.CompileAll(defs)
	if err != nil {
		return nil, types.NewFlowError(types.ErrInvalidDefinition, fmt.Errorf("%s: %w", path, err))
	}
	m := &matchStatement{subject: subject}
	for i, item := range def.Cases {
		casePath := fmt.Sprintf("%s.cases[%d]", path, i)
		// 没有守卫的通配分支总是匹配，后面的分支不可达
		if item.Pattern.Kind == types.PatternWildcard && strings.TrimSpace(item.Guard) == "" && i != len(def.Cases)-1 {
			return nil, types.NewFlowError(types.ErrInvalidDefinition, fmt.Errorf("%s: %w", casePath, pattern.ErrWildcardNotLast))
		}
		if reserved[item.Pattern.Bind] || item.Pattern.Bind == types.StateKey {
			return nil, types.NewFlowError(types.ErrInvalidDefinition,
				fmt.Errorf("%s: %s can not be rebound", casePath, item.Pattern.Bind))
		}
		cs := &caseStatement{pattern: patterns[i]}
		if strings.TrimSpace(item.Guard) != "" {
			if cs.guard, err = c.expr(casePath+".guard", item.Guard); err != nil {
				return nil, err
			}
		}
		if cs.arm, err = c.statement(casePath+".arm", item.Arm); err != nil {
			return nil, err
		}
		m.cases = append(m.cases, cs)
	}
	return m, nil
}

func (c *compiler) emit(path string, def *types.EmitDef) (*emitStatement, error) {
	e := &emitStatement{port: def.Port}
	if e.port == "" {
		e.port = c.ports.Out[0]
	} else if !c.ports.HasOut(e.port) {
		return nil, types.NewFlowError(types.ErrPortNotFound, fmt.Errorf("%s: output port not declared", path)).WithPort(e.port)
	}
	if strings.TrimSpace(def.Value) != "" {
		program, err := c.expr(path+".value", def.Value)
		if err != nil {
			return nil, err
		}
		e.value = program
	}
	return e, nil
}
