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

package engine

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/rulego/flowgo/api/types"
	"github.com/rulego/flowgo/utils/fs"
)

// DefaultPool 默认流池
var DefaultPool = NewPool()

// Callbacks 流池生命周期回调
type Callbacks struct {
	// OnNew 流部署成功后调用
	OnNew func(flowId string, def []byte)
	// OnDeleted 流停止并从池中移除后调用
	OnDeleted func(flowId string)
}

// Pool 流池，按ID管理已部署的流
// 池中的流共享一个模板注册器作为父注册器，流自己的模板定义在流的注册器中。
type Pool struct {
	// entries 流ID -> *Flow
	entries sync.Map
	// deploying 正在部署的流ID
	deploying sync.Map
	// definitions 共享模板
	definitions *DefinitionRegistry
	config      types.Config
	Callbacks   Callbacks
}

// NewPool 创建流池，opts 是所有流的默认配置
func NewPool(opts ...types.Option) *Pool {
	config := types.NewConfig(opts...)
	return &Pool{
		config:      config,
		definitions: NewDefinitionRegistry(config, nil),
	}
}

// Config 流池默认配置
func (g *Pool) Config() types.Config {
	return g.config
}

// Definitions 共享模板注册器，可以在创建流之前预先定义公共模板
func (g *Pool) Definitions() *DefinitionRegistry {
	return g.definitions
}

// New 解析流定义文档，创建并部署流，然后放入池中
// id 为空时使用文档中的 flow.id；同ID的流已经存在时返回 ErrNameConflict
func (g *Pool) New(id string, def []byte, opts ...types.Option) (*Flow, error) {
	config := g.config
	for _, opt := range opts {
		if err := opt(&config); err != nil {
			return nil, err
		}
	}
	flowDef, err := parser(config).DecodeFlow(def)
	if err != nil {
		return nil, err
	}
	if id != "" {
		flowDef.Flow.ID = id
	}
	if !IsIdent(flowDef.Flow.ID) {
		return nil, types.NewFlowError(types.ErrInvalidDefinition, fmt.Errorf("invalid flow id %q", flowDef.Flow.ID))
	}
	// 部署前占用ID，同ID的并发创建只有一个会部署
	if _, loaded := g.deploying.LoadOrStore(flowDef.Flow.ID, struct{}{}); loaded {
		return nil, types.NewFlowError(types.ErrNameConflict, fmt.Errorf("flow %s is being deployed", flowDef.Flow.ID))
	}
	defer g.deploying.Delete(flowDef.Flow.ID)
	if _, ok := g.entries.Load(flowDef.Flow.ID); ok {
		return nil, types.NewFlowError(types.ErrNameConflict, fmt.Errorf("flow %s already exists", flowDef.Flow.ID))
	}
	flow, err := NewFlowFromDef(flowDef, config, WithDefinitions(g.definitions))
	if err != nil {
		return nil, err
	}
	if err := flow.Deploy(); err != nil {
		return nil, err
	}
	g.entries.Store(flow.Id(), flow)
	// 流通过 exit 连接器自行停止时移出池
	go func() {
		<-flow.Done()
		g.remove(flow)
	}()
	if g.Callbacks.OnNew != nil {
		g.Callbacks.OnNew(flow.Id(), def)
	}
	return flow, nil
}

// Get 获取流
func (g *Pool) Get(id string) (*Flow, bool) {
	if v, ok := g.entries.Load(id); ok {
		return v.(*Flow), true
	}
	return nil, false
}

// Del 停止并删除流
func (g *Pool) Del(id string, graceful bool) error {
	v, ok := g.entries.Load(id)
	if !ok {
		return types.NewFlowError(types.ErrFlowNotFound, nil).WithRef(id)
	}
	flow := v.(*Flow)
	if err := flow.Stop(graceful); err != nil && !errors.Is(err, types.ErrInvalidState) {
		return err
	}
	g.remove(flow)
	return nil
}

// remove 从池中移除，只移除同一个流实例
func (g *Pool) remove(flow *Flow) {
	if g.entries.CompareAndDelete(flow.Id(), flow) && g.Callbacks.OnDeleted != nil {
		g.Callbacks.OnDeleted(flow.Id())
	}
}

// Stop 优雅停止并删除所有流
func (g *Pool) Stop() {
	var wg sync.WaitGroup
	g.entries.Range(func(key, value any) bool {
		wg.Add(1)
		go func(flow *Flow) {
			defer wg.Done()
			_ = flow.Stop(true)
			g.remove(flow)
		}(value.(*Flow))
		return true
	})
	wg.Wait()
}

// Range 遍历所有流
func (g *Pool) Range(f func(id string, flow *Flow) bool) {
	g.entries.Range(func(key, value any) bool {
		return f(key.(string), value.(*Flow))
	})
}

// Load 加载文件夹及子文件夹中所有流定义文档（*.json、*.yaml、*.yml）并部署
// 流ID取自文档的 flow.id；单个文档失败不影响其他文档，所有失败合并返回
func (g *Pool) Load(folderPath string, opts ...types.Option) error {
	if folderPath == "" {
		folderPath = "."
	}
	var paths []string
	for _, pattern := range []string{"*.json", "*.yaml", "*.yml"} {
		items, err := fs.GetFilePaths(filepath.Join(folderPath, pattern))
		if err != nil {
			return err
		}
		paths = append(paths, items...)
	}
	var errs []error
	for _, path := range paths {
		b := fs.LoadFile(path)
		if b == nil {
			continue
		}
		p, err := parserOf(path, g.config)
		if err == nil {
			_, err = g.New("", b, append(opts, types.WithParser(p))...)
		}
		if err != nil {
			g.config.Logger.Printf("load flow %s error: %v", path, err)
			errs = append(errs, fmt.Errorf("%s: %w", path, err))
		}
	}
	return errors.Join(errs...)
}
