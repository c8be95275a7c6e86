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

package connector

import (
	"sync"
	"time"

	"github.com/rulego/flowgo/api/types"
	"github.com/rulego/flowgo/utils/cast"
	"github.com/rulego/flowgo/utils/maps"
)

// 注册节点
func init() {
	Registry.Add(&Exit{})
}

const (
	// GracefulKey 控制事件字段：是否优雅停止
	GracefulKey = "graceful"
	// DelayKey 控制事件字段：延迟停止，字符串时长或者毫秒数
	DelayKey = "delay"
)

// ExitConfiguration 节点配置
type ExitConfiguration struct {
	// Graceful 控制事件没有 graceful 字段时使用，默认 true
	Graceful bool
	// Delay 控制事件没有 delay 字段时使用
	Delay time.Duration
}

// Exit 停止所属流的连接器
// 收到的事件内容如果是 {"graceful": bool, "delay": "1s"}，按字段停止；其他内容使用配置的默认值。
type Exit struct {
	Config ExitConfiguration
	timer  *time.Timer
	mu     sync.Mutex
}

// Type 组件类型
func (x *Exit) Type() string {
	return "exit"
}

func (x *Exit) New() types.Node {
	return &Exit{Config: ExitConfiguration{Graceful: true}}
}

// Ports 只有输入端口
func (x *Exit) Ports() types.PortSpec {
	return types.PortSpec{In: []string{types.DefaultIn}}
}

// Init 初始化
func (x *Exit) Init(_ types.Config, configuration types.Configuration) error {
	return maps.Map2Struct(configuration, &x.Config)
}

// OnEvent 解析控制事件并停止流
func (x *Exit) OnEvent(ctx types.NodeContext, port string, ev types.Event) {
	graceful := x.Config.Graceful
	delay := x.Config.Delay
	if m, ok := ev.Payload.(map[string]interface{}); ok {
		if v, ok := m[GracefulKey]; ok {
			b, err := cast.ToBoolE(v)
			if err != nil {
				ctx.EmitError(ev, port, err)
				return
			}
			graceful = b
		}
		if v, ok := m[DelayKey]; ok {
			d, err := cast.ToDurationE(v)
			if err != nil {
				ctx.EmitError(ev, port, err)
				return
			}
			delay = d
		}
	}
	ctx.Logger().Printf("flow=%s node=%s exit graceful=%t delay=%s", ctx.FlowId(), ctx.NodeId(), graceful, delay)
	if delay <= 0 {
		ctx.Stop(graceful)
		return
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.timer == nil {
		x.timer = time.AfterFunc(delay, func() {
			ctx.Stop(graceful)
		})
	}
}

// Destroy 取消延迟停止
func (x *Exit) Destroy() {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.timer != nil {
		x.timer.Stop()
	}
}
