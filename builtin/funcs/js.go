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

package funcs

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dop251/goja"
)

// DefaultJsTimeout js函数默认最长执行时间
const DefaultJsTimeout = 2000 * time.Millisecond

// JsOption js函数选项
type JsOption func(*JsFunction)

// WithJsTimeout 设置最长执行时间，<=0 表示不限制
func WithJsTimeout(timeout time.Duration) JsOption {
	return func(f *JsFunction) {
		f.timeout = timeout
	}
}

// WithJsVars 设置js全局变量
func WithJsVars(vars map[string]interface{}) JsOption {
	return func(f *JsFunction) {
		f.vars = vars
	}
}

// JsFunction 使用goja实现的函数
// 源码只编译一次，运行时从虚拟机池中获取虚拟机执行
type JsFunction struct {
	name    string
	program *goja.Program
	vmPool  sync.Pool
	timeout time.Duration
	vars    map[string]interface{}
}

// NewJsFunction 编译js源码，source 必须定义一个名为 name 的函数
func NewJsFunction(name string, source string, opts ...JsOption) (*JsFunction, error) {
	program, err := goja.Compile(name, source, true)
	if err != nil {
		return nil, err
	}
	f := &JsFunction{
		name:    name,
		program: program,
		timeout: DefaultJsTimeout,
	}
	for _, opt := range opts {
		opt(f)
	}
	vm, err := f.newVm()
	if err != nil {
		return nil, err
	}
	if _, ok := goja.AssertFunction(vm.Get(name)); !ok {
		return nil, errors.New(name + " is not a function")
	}
	f.vmPool.Put(vm)
	f.vmPool.New = func() interface{} {
		vm, err := f.newVm()
		if err != nil {
			return nil
		}
		return vm
	}
	return f, nil
}

func (f *JsFunction) newVm() (*goja.Runtime, error) {
	vm := goja.New()
	for k, v := range f.vars {
		if err := vm.Set(k, v); err != nil {
			return nil, err
		}
	}
	timer := f.startTimeout(vm)
	_, err := vm.RunProgram(f.program)
	f.stopTimeout(vm, timer)
	if err != nil {
		return nil, err
	}
	return vm, nil
}

// Call 执行js函数
func (f *JsFunction) Call(params ...interface{}) (out interface{}, err error) {
	defer func() {
		if caught := recover(); caught != nil {
			err = fmt.Errorf("%s", caught)
		}
	}()
	vm, ok := f.vmPool.Get().(*goja.Runtime)
	if !ok || vm == nil {
		return nil, fmt.Errorf("%s: js vm unavailable", f.name)
	}
	defer f.vmPool.Put(vm)

	fn, ok := goja.AssertFunction(vm.Get(f.name))
	if !ok {
		return nil, errors.New(f.name + " is not a function")
	}
	args := make([]goja.Value, len(params))
	for i, v := range params {
		args[i] = vm.ToValue(v)
	}

	timer := f.startTimeout(vm)
	res, err := fn(goja.Undefined(), args...)
	f.stopTimeout(vm, timer)
	if err != nil {
		return nil, err
	}
	return res.Export(), nil
}

// jsTimer 执行超时定时器，fired 在中断之后关闭
type jsTimer struct {
	timer *time.Timer
	fired chan struct{}
}

func (f *JsFunction) startTimeout(vm *goja.Runtime) *jsTimer {
	if f.timeout <= 0 {
		return nil
	}
	t := &jsTimer{fired: make(chan struct{})}
	t.timer = time.AfterFunc(f.timeout, func() {
		vm.Interrupt("execution timeout")
		close(t.fired)
	})
	return t
}

// stopTimeout 停止定时器，定时器已经触发时等待中断完成并清除中断标记
func (f *JsFunction) stopTimeout(vm *goja.Runtime, t *jsTimer) {
	if t == nil {
		return
	}
	if !t.timer.Stop() {
		<-t.fired
		vm.ClearInterrupt()
	}
}
