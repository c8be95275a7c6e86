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
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rulego/flowgo/api/types"
	"github.com/rulego/flowgo/query"
	"github.com/rulego/flowgo/script"
)

// Template 编译后的模板，定义之后不可变，可以被多个实例共享
type Template struct {
	// Name 限定名
	Name string
	Kind types.NodeKind
	// Ports 已解析的端口
	Ports types.PortSpec
	// Configuration 默认实例参数
	Configuration types.Configuration
	// Def 原始定义
	Def *types.Definition

	connector *connectorTemplate
	script    *script.Program
	pipeline  *pipelineTemplate
}

type connectorTemplate struct {
	componentType string
	configuration types.Configuration
}

// pipelineTemplate 管道模板
// 管道实例会被展开成一个 select 分发节点和若干内部节点，内部节点通过隐藏端口和分发节点连接
type pipelineTemplate struct {
	nodes  []*pipelineNode
	routes []*selectRoute
	// dispatch 分发节点端口：管道端口加上隐藏端口
	dispatch types.PortSpec
}

type pipelineNode struct {
	id            string
	template      *Template
	configuration types.Configuration
	debugMode     bool
}

// selectRoute 已解析端点引用的 select 语句
type selectRoute struct {
	stmt *query.Select
	// source 分发节点的输入端口
	source string
	// targets 分发节点的输出端口，和 stmt.Into 一一对应，空字符串表示丢弃
	targets []string
}

// hiddenPort 管道内部节点端口在分发节点上对应的隐藏端口名
func hiddenPort(node, port string) string {
	return types.HiddenPortPrefix + node + types.PathSeparator + port
}

// splitRef 把 name/port 拆分成实例名和端口
func splitRef(ref string) (string, string) {
	if i := strings.Index(ref, types.PathSeparator); i >= 0 {
		return ref[:i], ref[i+1:]
	}
	return ref, ""
}

// DefinitionRegistry 模板注册器
// 每个流有自己的注册器，可以指定父注册器共享模板，查找时先查自己再查父注册器
type DefinitionRegistry struct {
	parent    *DefinitionRegistry
	config    types.Config
	templates map[string]*Template
	sync.RWMutex
}

// NewDefinitionRegistry 创建模板注册器
func NewDefinitionRegistry(config types.Config, parent *DefinitionRegistry) *DefinitionRegistry {
	return &DefinitionRegistry{
		parent:    parent,
		config:    config,
		templates: make(map[string]*Template),
	}
}

// Lookup 通过限定名查找模板
func (r *DefinitionRegistry) Lookup(name string) (*Template, bool) {
	for scope := r; scope != nil; scope = scope.parent {
		scope.RLock()
		t, ok := scope.templates[name]
		scope.RUnlock()
		if ok {
			return t, true
		}
	}
	return nil, false
}

// Names 当前作用域内的模板名称
func (r *DefinitionRegistry) Names() []string {
	r.RLock()
	defer r.RUnlock()
	names := make([]string, 0, len(r.templates))
	for k := range r.templates {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Define 注册一个模板
// 模板引用的其他模板必须已经注册；失败时注册器不变
func (r *DefinitionRegistry) Define(def *types.Definition) (*Template, error) {
	if def == nil {
		return nil, types.NewFlowError(types.ErrInvalidDefinition, fmt.Errorf("definition is nil"))
	}
	if err := validateStruct(def, def.QualifiedName()); err != nil {
		return nil, err
	}
	name := def.QualifiedName()
	if r.has(name) {
		return nil, types.NewFlowError(types.ErrNameConflict, nil).WithRef(name)
	}
	t, err := r.compile(def, []string{name})
	if err != nil {
		return nil, err
	}
	r.Lock()
	defer r.Unlock()
	if _, ok := r.templates[name]; ok {
		return nil, types.NewFlowError(types.ErrNameConflict, nil).WithRef(name)
	}
	r.templates[name] = t
	return t, nil
}

// DefineAll 批量注册模板，批次内的模板可以相互引用，与声明顺序无关
// 批次内存在循环引用时返回 ErrCyclicDefinition；任何失败都不会注册批次内的任何模板
func (r *DefinitionRegistry) DefineAll(defs []*types.Definition) error {
	return r.defineAll(defs, nil)
}

func (r *DefinitionRegistry) defineAll(defs []*types.Definition, stack []string) error {
	byName := make(map[string]*types.Definition, len(defs))
	var names []string
	for _, def := range defs {
		if def == nil {
			return types.NewFlowError(types.ErrInvalidDefinition, fmt.Errorf("definition is nil"))
		}
		if err := validateStruct(def, def.QualifiedName()); err != nil {
			return err
		}
		name := def.QualifiedName()
		if _, ok := byName[name]; ok || r.has(name) {
			return types.NewFlowError(types.ErrNameConflict, nil).WithRef(name)
		}
		byName[name] = def
		names = append(names, name)
	}

	order, err := topoSort(names, func(name string) []string {
		var deps []string
		for _, ref := range references(byName[name]) {
			if _, ok := byName[ref]; ok {
				deps = append(deps, ref)
			}
		}
		return deps
	})
	if err != nil {
		return err
	}

	// 先在临时作用域中编译，全部成功后再提交
	staging := NewDefinitionRegistry(r.config, r)
	for _, name := range order {
		t, err := staging.compile(byName[name], append(append([]string(nil), stack...), name))
		if err != nil {
			return err
		}
		staging.templates[name] = t
	}
	r.Lock()
	defer r.Unlock()
	for name := range staging.templates {
		if _, ok := r.templates[name]; ok {
			return types.NewFlowError(types.ErrNameConflict, nil).WithRef(name)
		}
	}
	for name, t := range staging.templates {
		r.templates[name] = t
	}
	return nil
}

func (r *DefinitionRegistry) has(name string) bool {
	r.RLock()
	defer r.RUnlock()
	_, ok := r.templates[name]
	return ok
}

// references 管道模板引用的外部模板，局部模板满足的引用不计入
func references(def *types.Definition) []string {
	if def == nil || def.Kind != types.KindPipeline || def.Pipeline == nil {
		return nil
	}
	local := make(map[string]bool)
	for _, item := range def.Pipeline.Definitions {
		if item != nil {
			local[item.QualifiedName()] = true
		}
	}
	var refs []string
	for _, node := range def.Pipeline.Nodes {
		if !local[node.Definition] {
			refs = append(refs, node.Definition)
		}
	}
	for _, item := range def.Pipeline.Definitions {
		for _, ref := range references(item) {
			if !local[ref] {
				refs = append(refs, ref)
			}
		}
	}
	return refs
}

// topoSort 深度优先拓扑排序，依赖在前
func topoSort(names []string, deps func(name string) []string) ([]string, error) {
	const (
		unvisited = iota
		visiting
		visited
	)
	marks := make(map[string]int, len(names))
	var order []string
	var path []string
	var visit func(name string) error
	visit = func(name string) error {
		switch marks[name] {
		case visiting:
			cycle := append(append([]string(nil), path[indexOf(path, name):]...), name)
			return types.NewFlowError(types.ErrCyclicDefinition, nil).WithRef(strings.Join(cycle, " -> "))
		case visited:
			return nil
		}
		marks[name] = visiting
		path = append(path, name)
		for _, dep := range deps(name) {
			if err := visit(dep); err != nil {
				return err
			}
		}
		path = path[:len(path)-1]
		marks[name] = visited
		order = append(order, name)
		return nil
	}
	for _, name := range names {
		if err := visit(name); err != nil {
			return nil, err
		}
	}
	return order, nil
}

func indexOf(list []string, target string) int {
	for i, item := range list {
		if item == target {
			return i
		}
	}
	return 0
}

// resolve 查找引用的模板，引用了正在定义的模板时返回 ErrCyclicDefinition
func (r *DefinitionRegistry) resolve(ref string, stack []string) (*Template, error) {
	if i := indexOf(stack, ref); i < len(stack) && stack[i] == ref {
		cycle := append(append([]string(nil), stack[i:]...), ref)
		return nil, types.NewFlowError(types.ErrCyclicDefinition, nil).WithRef(strings.Join(cycle, " -> "))
	}
	if t, ok := r.Lookup(ref); ok {
		return t, nil
	}
	return nil, types.NewFlowError(types.ErrDefinitionNotFound, nil).WithRef(ref)
}

func (r *DefinitionRegistry) compile(def *types.Definition, stack []string) (*Template, error) {
	t := &Template{
		Name:          def.QualifiedName(),
		Kind:          def.Kind,
		Configuration: def.Configuration,
		Def:           def,
	}
	var err error
	switch def.Kind {
	case types.KindConnector:
		err = r.compileConnector(t, def)
	case types.KindScript:
		t.Ports = r.config.Ports.Resolve(def.Ports)
		t.script, err = script.Compile(def.Script, t.Ports, r.config.Functions)
	case types.KindPipeline:
		t.Ports = r.config.Ports.Resolve(def.Ports)
		t.pipeline, err = r.compilePipeline(t, def.Pipeline, stack)
	default:
		err = types.NewFlowError(types.ErrInvalidDefinition, fmt.Errorf("unknown kind %q", def.Kind))
	}
	if err != nil {
		return nil, withRef(err, t.Name)
	}
	return t, nil
}

// withRef 为没有引用信息的错误补充模板名
func withRef(err error, ref string) error {
	if flowErr, ok := err.(*types.FlowError); ok {
		if flowErr.Ref == "" {
			flowErr.Ref = ref
		}
		return flowErr
	}
	return err
}

func (r *DefinitionRegistry) compileConnector(t *Template, def *types.Definition) error {
	registry := r.config.ComponentsRegistry
	if registry == nil {
		registry = Registry
	}
	node, err := registry.NewNode(def.Connector.Type)
	if err != nil {
		return types.NewFlowError(types.ErrDefinitionNotFound, err).WithRef(def.Connector.Type)
	}
	spec := def.Ports
	if len(spec.In) == 0 && len(spec.Out) == 0 {
		if declarer, ok := node.(types.PortsDeclarer); ok {
			spec = declarer.Ports()
		} else {
			spec = r.config.Ports.Resolve(spec)
		}
	}
	t.Ports = spec
	t.connector = &connectorTemplate{
		componentType: def.Connector.Type,
		configuration: def.Connector.Configuration,
	}
	return nil
}

func (r *DefinitionRegistry) compilePipeline(t *Template, def *types.PipelineDef, stack []string) (*pipelineTemplate, error) {
	scope := r
	if len(def.Definitions) > 0 {
		scope = NewDefinitionRegistry(r.config, r)
		if err := scope.defineAll(def.Definitions, stack); err != nil {
			return nil, err
		}
	}

	p := &pipelineTemplate{}
	nodes := make(map[string]*pipelineNode)
	for _, item := range def.Nodes {
		if _, ok := nodes[item.Id]; ok {
			return nil, types.NewFlowError(types.ErrNameConflict, nil).WithNode(item.Id)
		}
		target, err := scope.resolve(item.Definition, stack)
		if err != nil {
			return nil, err
		}
		if target.Kind == types.KindConnector {
			return nil, types.NewFlowError(types.ErrInvalidDefinition,
				fmt.Errorf("connector %s can not be created inside a pipeline", target.Name)).WithNode(item.Id)
		}
		node := &pipelineNode{id: item.Id, template: target, configuration: item.Configuration, debugMode: item.DebugMode}
		nodes[item.Id] = node
		p.nodes = append(p.nodes, node)
	}

	in := append([]string(nil), t.Ports.In...)
	out := append([]string(nil), t.Ports.Out...)
	addPort := func(list []string, port string) []string {
		for _, item := range list {
			if item == port {
				return list
			}
		}
		return append(list, port)
	}

	resolveSource := func(ref string) (string, error) {
		name, port := splitRef(ref)
		if port == "" && t.Ports.HasIn(name) {
			return name, nil
		}
		node, ok := nodes[name]
		if !ok {
			return "", types.NewFlowError(types.ErrUnknownNode, nil).WithNode(name)
		}
		if port == "" {
			port = node.template.Ports.Out[0]
		} else if !node.template.Ports.HasOut(port) {
			return "", types.NewFlowError(types.ErrPortNotFound, nil).WithNode(name).WithPort(port)
		}
		hidden := hiddenPort(name, port)
		in = addPort(in, hidden)
		return hidden, nil
	}
	resolveTarget := func(ref string) (string, error) {
		name, port := splitRef(ref)
		if port == "" && t.Ports.HasOut(name) {
			return name, nil
		}
		node, ok := nodes[name]
		if !ok {
			return "", types.NewFlowError(types.ErrUnknownNode, nil).WithNode(name)
		}
		if port == "" {
			if len(node.template.Ports.In) == 0 {
				return "", types.NewFlowError(types.ErrPortNotFound, nil).WithNode(name)
			}
			port = node.template.Ports.In[0]
		} else if !node.template.Ports.HasIn(port) {
			return "", types.NewFlowError(types.ErrPortNotFound, nil).WithNode(name).WithPort(port)
		}
		hidden := hiddenPort(name, port)
		out = addPort(out, hidden)
		return hidden, nil
	}

	for _, item := range def.Selects {
		stmt, err := query.Compile(item, r.config.Ports, r.config.Functions)
		if err != nil {
			return nil, err
		}
		source, err := resolveSource(stmt.From)
		if err != nil {
			return nil, withRef(err, stmt.String())
		}
		route := &selectRoute{stmt: stmt, source: source, targets: make([]string, len(stmt.Into))}
		explicit := len(item.Into) > 0
		for i, ref := range stmt.Into {
			target, err := resolveTarget(ref)
			if err != nil {
				// 省略 into 时，未声明的默认端口被忽略
				if !explicit {
					continue
				}
				return nil, withRef(err, stmt.String())
			}
			route.targets[i] = target
		}
		p.routes = append(p.routes, route)
	}
	p.dispatch = types.PortSpec{In: in, Out: out}
	return p, nil
}
