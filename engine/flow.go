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
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rulego/flowgo/api/types"
	"github.com/rulego/flowgo/api/types/metrics"
	"github.com/rulego/flowgo/components/base"
	"github.com/rulego/flowgo/utils/str"
)

// portKey 节点端口
type portKey struct {
	node string
	port string
}

// edge 连接的目标端
type edge struct {
	to   *nodeInstance
	port string
}

// FlowOption 流选项
type FlowOption func(*Flow)

// WithDefinitions 指定父模板注册器，流可以引用其中的模板
func WithDefinitions(parent *DefinitionRegistry) FlowOption {
	return func(f *Flow) {
		f.definitions = NewDefinitionRegistry(f.config, parent)
	}
}

// WithFlowInfo 设置流基础信息，包括调试模式和流变量
func WithFlowInfo(info types.FlowBaseInfo) FlowOption {
	return func(f *Flow) {
		f.info = info
		if info.ID != "" {
			f.id = info.ID
		}
	}
}

// Flow 流，拥有节点实例、连接和生命周期状态
//
// 生命周期：Defined -> Created -> Wired -> Deployed -> {Stopped | Errored}
// 拓扑操作（Define、Create、Connect）同步校验，失败时流保持不变，失败记录会使后续部署失败。
// 部署是事务性的：所有校验和初始化成功之后才启动节点。
type Flow struct {
	id          string
	info        types.FlowBaseInfo
	config      types.Config
	definitions *DefinitionRegistry
	state       types.FlowState
	// nodes 包括管道展开的内部实例
	nodes       map[string]*nodeInstance
	order       []*nodeInstance
	edges       map[portKey][]*edge
	connections []types.NodeConnection
	// invalid 拓扑操作失败记录
	invalid []error

	graceful     base.GracefulShutdown
	sourceCancel context.CancelFunc
	wg           sync.WaitGroup
	stopping     bool
	done         chan struct{}
	mu           sync.RWMutex
}

// NewFlow 创建一个处于 Defined 状态的流
func NewFlow(id string, config types.Config, opts ...FlowOption) *Flow {
	if config.Logger == nil {
		config.Logger = types.DefaultLogger()
	}
	if config.QueueSize <= 0 {
		config.QueueSize = types.DefaultQueueSize
	}
	if config.Backpressure == "" {
		config.Backpressure = types.BackpressureBlock
	}
	if len(config.Ports.In) == 0 || len(config.Ports.Out) == 0 {
		config.Ports = types.DefaultPortDefaults()
	}
	f := &Flow{
		id:     id,
		config: config,
		state:  types.StateDefined,
		nodes:  make(map[string]*nodeInstance),
		edges:  make(map[portKey][]*edge),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.definitions == nil {
		f.definitions = NewDefinitionRegistry(f.config, nil)
	}
	return f
}

// NewFlowFromDef 通过流定义文档创建流，按顺序执行模板定义、实例创建和连接，不部署
// 返回第一个失败，流中保留失败记录
func NewFlowFromDef(def types.FlowDef, config types.Config, opts ...FlowOption) (*Flow, error) {
	opts = append([]FlowOption{WithFlowInfo(def.Flow)}, opts...)
	f := NewFlow(def.Flow.ID, config, opts...)
	if err := f.DefineAll(def.Definitions); err != nil {
		return f, err
	}
	var errs []error
	for _, item := range def.Creates {
		if err := f.CreateInstance(item); err != nil {
			errs = append(errs, err)
		}
	}
	for _, item := range def.Connections {
		if err := f.Connect(item.FromId, item.FromPort, item.ToId, item.ToPort); err != nil {
			errs = append(errs, err)
		}
	}
	return f, errors.Join(errs...)
}

// Id 流ID
func (f *Flow) Id() string {
	return f.id
}

// Config 流配置
func (f *Flow) Config() types.Config {
	return f.config
}

// Definitions 流的模板注册器
func (f *Flow) Definitions() *DefinitionRegistry {
	return f.definitions
}

// State 当前生命周期状态
func (f *Flow) State() types.FlowState {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.state
}

// Done 流停止后关闭
func (f *Flow) Done() <-chan struct{} {
	return f.done
}

// Definition 流定义，包括创建语句和连接
func (f *Flow) Definition() types.FlowDef {
	f.mu.RLock()
	defer f.mu.RUnlock()
	def := types.FlowDef{Flow: f.info, Connections: append([]types.NodeConnection(nil), f.connections...)}
	def.Flow.ID = f.id
	for _, name := range f.definitions.Names() {
		if t, ok := f.definitions.Lookup(name); ok {
			def.Definitions = append(def.Definitions, t.Def)
		}
	}
	for _, n := range f.order {
		if n.public {
			def.Creates = append(def.Creates, types.InstanceDef{
				Id: n.id, Definition: n.template.Name, DebugMode: n.debugMode, Configuration: n.configuration,
			})
		}
	}
	return def
}

// checkTopologyState 拓扑操作只能在部署之前执行，调用方持有锁
func (f *Flow) checkTopologyState() error {
	switch f.state {
	case types.StateDefined, types.StateCreated, types.StateWired:
		return nil
	default:
		return types.NewFlowError(types.ErrInvalidState, fmt.Errorf("flow %s is %s", f.id, f.state))
	}
}

// record 记录拓扑操作失败，调用方持有锁
func (f *Flow) record(err error) error {
	if err != nil && !errors.Is(err, types.ErrInvalidState) {
		f.invalid = append(f.invalid, err)
	}
	return err
}

// Define 定义模板
func (f *Flow) Define(def *types.Definition) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.checkTopologyState(); err != nil {
		return err
	}
	_, err := f.definitions.Define(def)
	return f.record(err)
}

// DefineAll 批量定义模板，批次内可以相互引用
func (f *Flow) DefineAll(defs []*types.Definition) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.checkTopologyState(); err != nil {
		return err
	}
	if len(defs) == 0 {
		return nil
	}
	return f.record(f.definitions.DefineAll(defs))
}

// Create 通过模板限定名创建实例
func (f *Flow) Create(id string, ref string, configuration types.Configuration) error {
	return f.CreateInstance(types.InstanceDef{Id: id, Definition: ref, Configuration: configuration})
}

// CreateInstance 创建实例，绑定模板快照和实例配置，并初始化脚本状态
func (f *Flow) CreateInstance(def types.InstanceDef) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.checkTopologyState(); err != nil {
		return err
	}
	if err := validateStruct(def, def.Definition); err != nil {
		return f.record(err)
	}
	if _, ok := f.nodes[def.Id]; ok {
		return f.record(types.NewFlowError(types.ErrNameConflict, nil).WithNode(def.Id))
	}
	t, ok := f.definitions.Lookup(def.Definition)
	if !ok {
		return f.record(types.NewFlowError(types.ErrDefinitionNotFound, nil).WithNode(def.Id).WithRef(def.Definition))
	}
	b := &instanceBuilder{flow: f, edges: make(map[portKey][]*edge)}
	if err := b.build(def.Id, t, def.Configuration, def.DebugMode, true); err != nil {
		return f.record(err)
	}
	for _, n := range b.nodes {
		f.nodes[n.id] = n
		f.order = append(f.order, n)
	}
	for k, list := range b.edges {
		f.edges[k] = append(f.edges[k], list...)
	}
	if f.state == types.StateDefined {
		f.state = types.StateCreated
	}
	return nil
}

// Connect 连接两个实例的端口，省略的端口使用默认输出、输入端口
func (f *Flow) Connect(fromId, fromPort, toId, toPort string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.checkTopologyState(); err != nil {
		return err
	}
	if fromPort == "" {
		fromPort = f.config.Ports.Out[0]
	}
	if toPort == "" {
		toPort = f.config.Ports.In[0]
	}
	from, ok := f.nodes[fromId]
	if !ok || !from.public {
		return f.record(types.NewFlowError(types.ErrUnknownNode, nil).WithNode(fromId))
	}
	to, ok := f.nodes[toId]
	if !ok || !to.public {
		return f.record(types.NewFlowError(types.ErrUnknownNode, nil).WithNode(toId))
	}
	if strings.HasPrefix(fromPort, types.HiddenPortPrefix) || !from.ports.HasOut(fromPort) {
		return f.record(types.NewFlowError(types.ErrPortNotFound, nil).WithNode(fromId).WithPort(fromPort))
	}
	if strings.HasPrefix(toPort, types.HiddenPortPrefix) || !to.ports.HasIn(toPort) {
		return f.record(types.NewFlowError(types.ErrPortNotFound, nil).WithNode(toId).WithPort(toPort))
	}
	key := portKey{node: fromId, port: fromPort}
	for _, e := range f.edges[key] {
		if e.to == to && e.port == toPort {
			return nil
		}
	}
	f.edges[key] = append(f.edges[key], &edge{to: to, port: toPort})
	f.connections = append(f.connections, types.NodeConnection{FromId: fromId, FromPort: fromPort, ToId: toId, ToPort: toPort})
	f.state = types.StateWired
	return nil
}

// Deploy 校验整个拓扑，初始化所有节点，然后启动
// 任何失败都会使流进入 Errored 状态，并且没有任何节点启动
func (f *Flow) Deploy() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.checkTopologyState(); err != nil {
		return err
	}
	if len(f.invalid) > 0 {
		f.state = types.StateErrored
		return errors.Join(f.invalid...)
	}

	// 初始化连接器，失败时销毁已经初始化的连接器
	var initialized []*nodeInstance
	for _, n := range f.order {
		if n.component == nil {
			continue
		}
		if err := n.component.Init(f.config, n.configuration); err != nil {
			for _, item := range initialized {
				item.destroy()
			}
			f.state = types.StateErrored
			return types.NewFlowError(types.ErrInvalidDefinition, err).WithNode(n.id).WithRef(n.template.Name)
		}
		initialized = append(initialized, n)
	}

	f.graceful.InitGracefulShutdown(context.Background(), f.config.Logger, f.config.ShutdownTimeout)
	sourceCtx, sourceCancel := context.WithCancel(f.graceful.GetShutdownContext())
	f.sourceCancel = sourceCancel
	for _, n := range f.order {
		n.queues = make(map[string]chan types.Event, len(n.ports.In))
		for _, port := range n.ports.In {
			n.queues[port] = make(chan types.Event, f.config.QueueSize)
		}
		ctx := f.graceful.GetShutdownContext()
		if n.isSource() {
			ctx = sourceCtx
		}
		n.ctx = &nodeContext{node: n, flow: f, ctx: ctx}
	}
	for _, n := range f.order {
		f.wg.Add(1)
		go n.run()
	}
	for _, n := range f.order {
		if source, ok := n.component.(types.Source); ok {
			if err := source.Start(n.ctx); err != nil {
				f.sourceCancel()
				f.graceful.ForceStop()
				f.wg.Wait()
				for _, item := range f.order {
					item.discard()
					item.destroy()
				}
				f.state = types.StateErrored
				close(f.done)
				return types.NewFlowError(types.ErrInvalidDefinition, err).WithNode(n.id).WithRef(n.template.Name)
			}
		}
	}
	f.state = types.StateDeployed
	return nil
}

// Inject 向实例的输入端口注入事件，遵循队列背压策略
func (f *Flow) Inject(nodeId, port string, ev types.Event) error {
	f.mu.RLock()
	state := f.state
	n, ok := f.nodes[nodeId]
	f.mu.RUnlock()
	if state != types.StateDeployed || f.graceful.IsShuttingDown() {
		return types.NewFlowError(types.ErrFlowStopped, fmt.Errorf("flow %s is %s", f.id, state)).WithNode(nodeId)
	}
	if !ok || !n.public {
		return types.NewFlowError(types.ErrUnknownNode, nil).WithNode(nodeId)
	}
	if port == "" {
		port = f.config.Ports.In[0]
	}
	if strings.HasPrefix(port, types.HiddenPortPrefix) || !n.ports.HasIn(port) {
		return types.NewFlowError(types.ErrPortNotFound, nil).WithNode(nodeId).WithPort(port)
	}
	// 先计入在途再检查停机标志：停止开始之前计入的事件会被等待，之后的被拒绝
	f.graceful.IncrementActiveOperations()
	if f.graceful.IsShuttingDown() {
		f.graceful.DecrementActiveOperations()
		return types.NewFlowError(types.ErrFlowStopped, fmt.Errorf("flow %s is stopping", f.id)).WithNode(nodeId)
	}
	return f.enqueue(n, port, ev)
}

// deliver 把事件放入目标节点输入队列
// 队列满时：Block 阻塞直到有空位或者流停止；Drop 丢弃；Error 丢弃并返回 ErrQueueFull
func (f *Flow) deliver(to *nodeInstance, port string, ev types.Event) error {
	f.graceful.IncrementActiveOperations()
	return f.enqueue(to, port, ev)
}

// enqueue 事件已经计入在途操作
func (f *Flow) enqueue(to *nodeInstance, port string, ev types.Event) error {
	queue := to.queues[port]
	select {
	case queue <- ev:
		return nil
	default:
	}
	switch f.config.Backpressure {
	case types.BackpressureDrop:
		f.reject(to)
		return nil
	case types.BackpressureError:
		f.reject(to)
		return types.NewFlowError(types.ErrQueueFull, nil).WithNode(to.id).WithPort(port)
	default:
		select {
		case queue <- ev:
			return nil
		case <-f.graceful.GetShutdownContext().Done():
			f.reject(to)
			return types.NewFlowError(types.ErrFlowStopped, nil).WithNode(to.id).WithPort(port)
		}
	}
}

func (f *Flow) reject(to *nodeInstance) {
	to.metrics.IncrementDropped()
	f.graceful.DecrementActiveOperations()
}

// Stop 停止流
// graceful=true 时先停止连接器源并拒绝注入，等待所有在途事件处理完成（最长 ShutdownTimeout）；
// graceful=false 时立即停止，队列中的事件被丢弃。
// 重复调用等待第一次停止完成
func (f *Flow) Stop(graceful bool) error {
	f.mu.Lock()
	switch f.state {
	case types.StateStopped:
		f.mu.Unlock()
		return nil
	case types.StateDeployed:
	default:
		state := f.state
		f.mu.Unlock()
		return types.NewFlowError(types.ErrInvalidState, fmt.Errorf("flow %s is %s", f.id, state))
	}
	if f.stopping {
		f.mu.Unlock()
		<-f.done
		return nil
	}
	f.stopping = true
	f.mu.Unlock()

	f.graceful.BeginShutdown()
	f.sourceCancel()
	if graceful {
		f.graceful.GracefulStop()
	} else {
		f.graceful.ForceStop()
	}
	f.wg.Wait()
	for _, n := range f.order {
		n.discard()
	}
	for _, n := range f.order {
		n.destroy()
	}

	f.mu.Lock()
	f.state = types.StateStopped
	f.mu.Unlock()
	close(f.done)
	return nil
}

// NodeStatus 节点状态快照
type NodeStatus struct {
	Id         string              `json:"id"`
	Definition string              `json:"definition"`
	Kind       types.NodeKind      `json:"kind"`
	Ports      types.PortSpec      `json:"ports"`
	Internal   bool                `json:"internal,omitempty"`
	Metrics    metrics.NodeMetrics `json:"metrics"`
}

// FlowStatus 流状态快照
type FlowStatus struct {
	Id     string          `json:"id"`
	State  types.FlowState `json:"state"`
	Nodes  []NodeStatus    `json:"nodes"`
	Errors []string        `json:"errors,omitempty"`
}

// Status 获取流状态快照
func (f *Flow) Status() FlowStatus {
	f.mu.RLock()
	defer f.mu.RUnlock()
	status := FlowStatus{Id: f.id, State: f.state}
	for _, n := range f.order {
		status.Nodes = append(status.Nodes, NodeStatus{
			Id:         n.id,
			Definition: n.template.Name,
			Kind:       n.template.Kind,
			Ports:      n.ports,
			Internal:   !n.public,
			Metrics:    n.metrics.Get(),
		})
	}
	sort.SliceStable(status.Nodes, func(i, j int) bool {
		return status.Nodes[i].Id < status.Nodes[j].Id
	})
	for _, err := range f.invalid {
		status.Errors = append(status.Errors, err.Error())
	}
	return status
}

// vars 流变量，${vars.xx}
func (f *Flow) vars() map[string]string {
	if f.info.Configuration == nil {
		return nil
	}
	if v, ok := f.info.Configuration[types.Vars]; ok {
		return str.ToStringMapString(v)
	}
	return nil
}

// instanceBuilder 创建实例，管道实例展开成分发节点和内部节点
type instanceBuilder struct {
	flow  *Flow
	nodes []*nodeInstance
	edges map[portKey][]*edge
}

func (b *instanceBuilder) build(id string, t *Template, configuration types.Configuration, debugMode bool, public bool) error {
	f := b.flow
	args := processVariables(f.config, f.vars(), mergeConfiguration(t.Configuration, configuration))
	n := &nodeInstance{
		id:            id,
		template:      t,
		ports:         t.Ports,
		public:        public,
		debugMode:     debugMode || f.info.DebugMode,
		configuration: configuration,
		metrics:       metrics.NewNodeMetrics(),
		flow:          f,
	}
	switch t.Kind {
	case types.KindConnector:
		registry := f.config.ComponentsRegistry
		if registry == nil {
			registry = Registry
		}
		component, err := registry.NewNode(t.connector.componentType)
		if err != nil {
			return types.NewFlowError(types.ErrDefinitionNotFound, err).WithNode(id).WithRef(t.connector.componentType)
		}
		n.component = component
		n.behavior = component
		n.configuration = processVariables(f.config, f.vars(), mergeConfiguration(t.connector.configuration, t.Configuration, configuration))
	case types.KindScript:
		instance, err := t.script.NewInstance(args)
		if err != nil {
			return withNode(err, id)
		}
		n.behavior = &scriptNode{instance: instance}
	case types.KindPipeline:
		n.ports = t.pipeline.dispatch
		n.behavior = newDispatchNode(t.pipeline, args)
	}
	b.nodes = append(b.nodes, n)

	if t.Kind != types.KindPipeline {
		return nil
	}
	children := make(map[string]*nodeInstance, len(t.pipeline.nodes))
	for _, child := range t.pipeline.nodes {
		childId := id + types.PathSeparator + child.id
		if err := b.build(childId, child.template, child.configuration, child.debugMode || n.debugMode, false); err != nil {
			return err
		}
		children[child.id] = b.find(childId)
	}
	// 内部节点输出 -> 分发节点隐藏输入端口
	for _, hidden := range n.ports.In {
		if name, port, ok := parseHidden(hidden); ok {
			key := portKey{node: children[name].id, port: port}
			b.edges[key] = append(b.edges[key], &edge{to: n, port: hidden})
		}
	}
	// 分发节点隐藏输出端口 -> 内部节点输入
	for _, hidden := range n.ports.Out {
		if name, port, ok := parseHidden(hidden); ok {
			key := portKey{node: id, port: hidden}
			b.edges[key] = append(b.edges[key], &edge{to: children[name], port: port})
		}
	}
	return nil
}

func (b *instanceBuilder) find(id string) *nodeInstance {
	for _, n := range b.nodes {
		if n.id == id {
			return n
		}
	}
	return nil
}

// parseHidden 解析隐藏端口 @name/port
func parseHidden(port string) (string, string, bool) {
	if !strings.HasPrefix(port, types.HiddenPortPrefix) {
		return "", "", false
	}
	name, p := splitRef(strings.TrimPrefix(port, types.HiddenPortPrefix))
	return name, p, p != ""
}

func withNode(err error, node string) error {
	var flowErr *types.FlowError
	if errors.As(err, &flowErr) && flowErr.Node == "" {
		flowErr.Node = node
	}
	return err
}
