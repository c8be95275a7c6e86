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

package script

import (
	"fmt"

	"github.com/expr-lang/expr/vm"
	"github.com/rulego/flowgo/api/types"
)

// Result 脚本执行结果
type Result struct {
	// Port 输出端口
	Port string
	// Value 输出值
	Value interface{}
	// Dropped 执行了 drop，没有输出
	Dropped bool
}

// Instance 脚本实例，持有私有状态
// 状态在实例之间不共享，同一个实例不能并发调用 Run
type Instance struct {
	program *Program
	args    map[string]interface{}
	state   interface{}
}

// NewInstance 创建脚本实例，状态初始化表达式只执行一次
func (p *Program) NewInstance(args types.Configuration) (*Instance, error) {
	i := &Instance{program: p, args: map[string]interface{}(args)}
	if i.args == nil {
		i.args = make(map[string]interface{})
	}
	if p.state != nil {
		exprVm := vm.VM{}
		state, err := exprVm.Run(p.state, map[string]interface{}{types.ArgsKey: i.args})
		if err != nil {
			return nil, types.NewFlowError(types.ErrScriptRuntime, fmt.Errorf("state: %w", err))
		}
		i.state = state
	}
	return i, nil
}

// State 当前已提交的状态
func (i *Instance) State() interface{} {
	return i.state
}

// control 语句执行后的控制流
type control int

const (
	next control = iota
	emitted
	dropped
)

type frame struct {
	vm      vm.VM
	env     map[string]interface{}
	pending interface{}
}

// Run 处理一条事件
// 语句按顺序执行，任何错误都会中止本次执行，本次执行中已经成功完成的顶层语句对状态的修改保留，
// 出错语句对状态的修改丢弃
func (i *Instance) Run(ev types.Event) (Result, error) {
	f := &frame{
		env: map[string]interface{}{
			types.EventKey: ev.Payload,
			types.MetaKey:  map[string]string(ev.Metadata),
			types.StateKey: i.state,
			types.ArgsKey:  i.args,
		},
		pending: i.state,
	}
	var last interface{}
	for _, s := range i.program.statements {
		value, ctl, err := f.exec(s)
		if err != nil {
			return Result{}, err
		}
		// 顶层语句成功完成，提交状态
		i.state = f.pending
		switch ctl {
		case emitted:
			port := value.port
			if port == "" {
				port = i.program.defaultOut
			}
			return Result{Port: port, Value: value.value}, nil
		case dropped:
			return Result{Dropped: true}, nil
		}
		last = value.value
	}
	return Result{Port: i.program.defaultOut, Value: last}, nil
}

// outcome 语句值，emit 时携带目标端口
type outcome struct {
	value interface{}
	port  string
}

func (f *frame) run(program *vm.Program) (interface{}, error) {
	return f.vm.Run(program, f.env)
}

func (f *frame) exec(s *statement) (outcome, control, error) {
	var (
		out outcome
		ctl = next
		err error
	)
	switch {
	case s.drop:
		return out, dropped, nil
	case s.emit != nil:
		out.port = s.emit.port
		if s.emit.value == nil {
			out.value = f.env[types.EventKey]
		} else if out.value, err = f.run(s.emit.value); err != nil {
			return out, next, types.NewFlowError(types.ErrScriptRuntime, err)
		}
		return out, emitted, nil
	case s.match != nil:
		out, ctl, err = f.match(s.match)
		if err != nil {
			return out, next, err
		}
	default:
		if out.value, err = f.run(s.code); err != nil {
			return out, next, types.NewFlowError(types.ErrScriptRuntime, err)
		}
	}
	if s.let != "" && ctl == next {
		f.bind(s.let, out.value)
	}
	return out, ctl, nil
}

func (f *frame) bind(name string, value interface{}) {
	f.env[name] = value
	if name == types.StateKey {
		f.pending = value
	}
}

// match 第一个匹配的分支生效
func (f *frame) match(m *matchStatement) (outcome, control, error) {
	subject, err := f.run(m.subject)
	if err != nil {
		return outcome{}, next, types.NewFlowError(types.ErrScriptRuntime, err)
	}
	for _, c := range m.cases {
		matched, captures, err := c.pattern.Match(subject)
		if err != nil {
			return outcome{}, next, types.NewFlowError(types.ErrScriptRuntime, err)
		}
		if !matched {
			continue
		}
		bind := c.pattern.Bind()
		previous, existed := f.env[bind]
		if captures != nil {
			f.env[bind] = captures
		}
		if c.guard != nil {
			ok, err := f.guard(c.guard)
			if err != nil || !ok {
				if captures != nil {
					f.restore(bind, previous, existed)
				}
				if err != nil {
					return outcome{}, next, err
				}
				continue
			}
		}
		result, ctl, err := f.exec(c.arm)
		// 捕获分组只在分支内可见，分支自己 let 同名变量时保留分支的值
		if captures != nil && c.arm.let != bind {
			f.restore(bind, previous, existed)
		}
		return result, ctl, err
	}
	return outcome{}, next, types.NewFlowError(types.ErrNoMatchingCase, fmt.Errorf("subject %v", subject))
}

func (f *frame) restore(name string, previous interface{}, existed bool) {
	if existed {
		f.env[name] = previous
	} else {
		delete(f.env, name)
	}
}

func (f *frame) guard(program *vm.Program) (bool, error) {
	v, err := f.run(program)
	if err != nil {
		return false, types.NewFlowError(types.ErrGuardEvaluation, err)
	}
	ok, isBool := v.(bool)
	if !isBool {
		return false, types.NewFlowError(types.ErrGuardEvaluation, fmt.Errorf("guard result must be bool, got %T", v))
	}
	return ok, nil
}
