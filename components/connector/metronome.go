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
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rulego/flowgo/api/types"
	"github.com/rulego/flowgo/utils/maps"
)

// 注册节点
func init() {
	Registry.Add(&Metronome{})
}

// DefaultMetronomeSpec 默认每秒一次
const DefaultMetronomeSpec = "@every 1s"

// 秒级 cron 表达式
var cronParser = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// MetronomeConfiguration 节点配置
type MetronomeConfiguration struct {
	// Spec cron 表达式，支持秒级，例如：*/5 * * * * * 或者 @every 5s，最小间隔1秒
	Spec string
}

// Metronome 定时产生事件的连接器：
//
//	{"onramp": "metronome", "id": 0, "ingest_ns": 1700000000000000000}
type Metronome struct {
	Config MetronomeConfiguration
	cron   *cron.Cron
	count  uint64
}

// Type 组件类型
func (x *Metronome) Type() string {
	return "metronome"
}

func (x *Metronome) New() types.Node {
	return &Metronome{Config: MetronomeConfiguration{Spec: DefaultMetronomeSpec}}
}

// Ports 只有输出端口
func (x *Metronome) Ports() types.PortSpec {
	return types.PortSpec{Out: []string{types.DefaultOut}}
}

// Init 初始化，校验 cron 表达式
func (x *Metronome) Init(_ types.Config, configuration types.Configuration) error {
	if err := maps.Map2Struct(configuration, &x.Config); err != nil {
		return err
	}
	if x.Config.Spec == "" {
		x.Config.Spec = DefaultMetronomeSpec
	}
	_, err := cronParser.Parse(x.Config.Spec)
	return err
}

// Start 开始定时，流停止时停止
func (x *Metronome) Start(ctx types.NodeContext) error {
	x.cron = cron.New(cron.WithParser(cronParser), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := x.cron.AddFunc(x.Config.Spec, func() {
		id := atomic.AddUint64(&x.count, 1) - 1
		ev := types.NewEvent(map[string]interface{}{
			"onramp":    x.Type(),
			"id":        id,
			"ingest_ns": time.Now().UnixNano(),
		}, sourceMetadata(x.Type(), ctx))
		_ = ctx.Emit(types.DefaultOut, ev)
	}); err != nil {
		return err
	}
	x.cron.Start()
	go func() {
		<-ctx.GetContext().Done()
		x.cron.Stop()
	}()
	return nil
}

func (x *Metronome) OnEvent(_ types.NodeContext, _ string, _ types.Event) {
}

// Destroy 停止定时
func (x *Metronome) Destroy() {
	if x.cron != nil {
		x.cron.Stop()
	}
}
