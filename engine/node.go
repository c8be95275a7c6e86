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
	"reflect"
	"runtime/debug"

	"github.com/rulego/flowgo/api/types"
	"github.com/rulego/flowgo/api/types/metrics"
	"github.com/rulego/flowgo/query"
	"github.com/rulego/flowgo/script"
	"github.com/rulego/flowgo/utils/str"
)

// nodeInstance 节点实例
// 每个实例在部署后拥有一个协程，每个输入端口一个有界队列，同一时刻只处理一条事件
type nodeInstance struct {
	id       string
	template *Template
	ports    types.PortSpec
	// public 是否是用户创建的实例，管道内部展开的实例不能被连接或者注入
	public    bool
	debugMode bool
	// configuration 连接器配置，已替换变量
	configuration types.Configuration
	// component 连接器组件，部署时初始化
	component types.Node
	behavior  types.Behavior
	queues    map[string]chan types.Event
	metrics   *metrics.NodeMetrics
	ctx       *nodeContext
	flow      *Flow
}

func (n *nodeInstance) isSource() bool {
	_, ok := n.component.(types.Source)
	return ok
}

// run 节点处理循环，上下文取消后退出
func (n *nodeInstance) run() {
	defer n.flow.wg.Done()
	done := n.flow.graceful.GetShutdownContext().Done()
	if len(n.ports.In) == 1 {
		port := n.ports.In[0]
		queue := n.queues[port]
		for {
			select {
			case <-done:
				return
			case ev := <-queue:
				n.process(port, ev)
			}
		}
	}
	cases := make([]reflect.SelectCase, 0, len(n.ports.In)+1)
	cases = append(cases, reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(done)})
	for _, port := range n.ports.In {
		cases = append(cases, reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(n.queues[port])})
	}
	for {
		chosen, value, ok := reflect.Select(cases)
		if chosen == 0 {
			return
		}
		if ok {
			n.process(n.ports.In[chosen-1], value.Interface().(types.Event))
		}
	}
}

// process 处理一条事件，行为中的 panic 被恢复为运行时错误
func (n *nodeInstance) process(port string, ev types.Event) {
	defer n.flow.graceful.DecrementActiveOperations()
	// 强制停止之后不再处理队列中的事件
	if n.flow.graceful.GetShutdownContext().Err() != nil {
		n.metrics.IncrementDropped()
		return
	}
	defer func() {
		if e := recover(); e != nil {
			n.ctx.EmitError(ev, port, types.NewFlowError(types.ErrScriptRuntime,
				fmt.Errorf("panic: %v\n%s", e, debug.Stack())))
		}
	}()
	n.metrics.IncrementIn()
	if n.debugMode {
		n.flow.config.Debug(n.flow.id, types.In, n.id, ev, port, nil)
	}
	n.behavior.OnEvent(n.ctx, port, ev)
}

// discard 丢弃队列中剩余的事件
func (n *nodeInstance) discard() {
	for _, queue := range n.queues {
		for {
			select {
			case <-queue:
				n.metrics.IncrementDropped()
				n.flow.graceful.DecrementActiveOperations()
				continue
			default:
			}
			break
		}
	}
}

func (n *nodeInstance) destroy() {
	defer func() {
		if e := recover(); e != nil {
			n.flow.config.Logger.Printf("flow=%s node=%s destroy panic: %v", n.flow.id, n.id, e)
		}
	}()
	if n.behavior != nil {
		n.behavior.Destroy()
	}
}

// scriptNode 脚本节点行为
type scriptNode struct {
	instance *script.Instance
}

func (x *scriptNode) OnEvent(ctx types.NodeContext, port string, ev types.Event) {
	result, err := x.instance.Run(ev)
	if err != nil {
		ctx.EmitError(ev, port, err)
		return
	}
	if result.Dropped {
		return
	}
	if err := ctx.Emit(result.Port, ev.WithPayload(result.Value)); err != nil {
		ctx.EmitError(ev, port, err)
	}
}

func (x *scriptNode) Destroy() {
}

// dispatchNode 管道分发节点行为，对到达的事件执行该端口上的 select 语句
type dispatchNode struct {
	table   *query.Table
	targets map[*query.Select][]string
	args    map[string]interface{}
}

func newDispatchNode(p *pipelineTemplate, args types.Configuration) *dispatchNode {
	x := &dispatchNode{
		table:   query.NewTable(),
		targets: make(map[*query.Select][]string, len(p.routes)),
		args:    args,
	}
	for _, route := range p.routes {
		x.table.Add(route.source, route.stmt)
		x.targets[route.stmt] = route.targets
	}
	return x
}

func (x *dispatchNode) OnEvent(ctx types.NodeContext, port string, ev types.Event) {
	x.table.Dispatch(port, ev, x.args, func(s *query.Select, target int, out types.Event) {
		if outPort := x.targets[s][target]; outPort != "" {
			if err := ctx.Emit(outPort, out); err != nil {
				ctx.EmitError(ev, port, err)
			}
		}
	}, func(s *query.Select, err error) {
		ctx.EmitError(ev, port, err)
	})
}

func (x *dispatchNode) Destroy() {
}

// mergeConfiguration 合并配置，后面的覆盖前面的同名参数
func mergeConfiguration(items ...types.Configuration) types.Configuration {
	result := make(types.Configuration)
	for _, item := range items {
		for k, v := range item {
			result[k] = v
		}
	}
	return result
}

// 使用全局配置和流变量替换节点占位符配置，例如：${global.propertyKey}、${vars.key}
func processVariables(config types.Config, vars map[string]string, configuration types.Configuration) types.Configuration {
	var result = make(types.Configuration, len(configuration))
	globalEnv := make(map[string]string)

	if config.Properties != nil {
		globalEnv = config.Properties.Values()
	}

	for key, value := range configuration {
		if strV, ok := value.(string); ok {
			v := str.SprintfVar(strV, types.Global+".", globalEnv)
			v = str.SprintfVar(v, types.Vars+".", vars)
			result[key] = v
		} else {
			result[key] = value
		}
	}
	return result
}
