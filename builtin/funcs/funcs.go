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

// Package funcs 提供表达式可以调用的函数注册器。
// 函数是纯函数：相同的参数总是返回相同的结果，不能修改参数。
package funcs

import (
	"fmt"
	"sort"
	"sync"
)

// Function 表达式函数
type Function func(params ...interface{}) (interface{}, error)

// Registry 函数注册器，并发安全
// 流部署时会对注册器做一次快照，之后注册的函数只对新部署的流生效
type Registry struct {
	v map[string]Function
	sync.RWMutex
}

// NewRegistry 创建一个包含内置函数的注册器
func NewRegistry() *Registry {
	r := NewEmptyRegistry()
	r.RegisterAll(builtins)
	return r
}

// NewEmptyRegistry 创建一个空注册器
func NewEmptyRegistry() *Registry {
	return &Registry{v: make(map[string]Function)}
}

func (x *Registry) Register(name string, value Function) {
	x.Lock()
	defer x.Unlock()
	if x.v == nil {
		x.v = make(map[string]Function)
	}
	x.v[name] = value
}

func (x *Registry) RegisterAll(values map[string]Function) {
	x.Lock()
	defer x.Unlock()
	if x.v == nil {
		x.v = make(map[string]Function)
	}
	for k, v := range values {
		x.v[k] = v
	}
}

// RegisterJs 注册一个js函数，source 必须定义一个名为 name 的函数
func (x *Registry) RegisterJs(name string, source string, opts ...JsOption) error {
	f, err := NewJsFunction(name, source, opts...)
	if err != nil {
		return fmt.Errorf("register js function %s: %w", name, err)
	}
	x.Register(name, f.Call)
	return nil
}

func (x *Registry) UnRegister(name string) {
	x.Lock()
	defer x.Unlock()
	if x.v != nil {
		delete(x.v, name)
	}
}

func (x *Registry) Get(name string) (Function, bool) {
	x.RLock()
	defer x.RUnlock()
	if x.v != nil {
		f, ok := x.v[name]
		return f, ok
	}
	return nil, false
}

// GetAll 获取所有函数的副本
func (x *Registry) GetAll() map[string]Function {
	x.RLock()
	defer x.RUnlock()
	cp := make(map[string]Function, len(x.v))
	for k, v := range x.v {
		cp[k] = v
	}
	return cp
}

// Names 按名称排序的函数列表
func (x *Registry) Names() []string {
	x.RLock()
	defer x.RUnlock()
	var keys = make([]string, 0, len(x.v))
	for k := range x.v {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
