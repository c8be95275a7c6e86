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

//连接器模板示例：
//{
//  "name": "console",
//  "kind": "connector",
//  "connector": {
//    "type": "stdio",
//    "configuration": {
//      "read": true,
//      "json": false
//    }
//  }
//}
import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/rulego/flowgo/api/types"
	"github.com/rulego/flowgo/utils/json"
	"github.com/rulego/flowgo/utils/maps"
	"github.com/rulego/flowgo/utils/str"
)

// 注册节点
func init() {
	Registry.Add(&Stdio{})
}

// StdioConfiguration 节点配置
type StdioConfiguration struct {
	// Read 是否读取输入，每一行产生一个事件，默认 true
	Read bool
	// Json true: 输入行按json解析，输出按json编码；false: 字符串
	Json bool
}

// Stdio 标准输入输出连接器
// 从 in 端口收到的事件内容写到标准输出（err 端口收到的写到标准错误），
// 从标准输入读取的每一行作为事件从 out 端口发出。
type Stdio struct {
	Config StdioConfiguration
	// Reader 输入，默认 os.Stdin
	Reader io.Reader
	// Writer 输出，默认 os.Stdout
	Writer io.Writer
	// ErrWriter 错误输出，默认 os.Stderr
	ErrWriter io.Writer
	mu        sync.Mutex
}

// Type 组件类型
func (x *Stdio) Type() string {
	return "stdio"
}

func (x *Stdio) New() types.Node {
	return &Stdio{
		Config:    StdioConfiguration{Read: true},
		Reader:    x.Reader,
		Writer:    x.Writer,
		ErrWriter: x.ErrWriter,
	}
}

// Ports 默认端口
func (x *Stdio) Ports() types.PortSpec {
	return types.PortSpec{
		In:  []string{types.DefaultIn, types.DefaultErr},
		Out: []string{types.DefaultOut, types.DefaultErr},
	}
}

// Init 初始化
func (x *Stdio) Init(_ types.Config, configuration types.Configuration) error {
	if err := maps.Map2Struct(configuration, &x.Config); err != nil {
		return err
	}
	if x.Reader == nil {
		x.Reader = os.Stdin
	}
	if x.Writer == nil {
		x.Writer = os.Stdout
	}
	if x.ErrWriter == nil {
		x.ErrWriter = os.Stderr
	}
	return nil
}

// Start 按行读取输入，直到输入结束或者流停止
func (x *Stdio) Start(ctx types.NodeContext) error {
	if !x.Config.Read {
		return nil
	}
	go func() {
		scanner := bufio.NewScanner(x.Reader)
		for scanner.Scan() {
			if ctx.GetContext().Err() != nil {
				return
			}
			var payload interface{} = scanner.Text()
			ev := types.NewEvent(payload, sourceMetadata(x.Type(), ctx))
			if x.Config.Json {
				if err := json.Unmarshal(scanner.Bytes(), &payload); err != nil {
					ctx.EmitError(ev, "", err)
					continue
				}
				ev.Payload = payload
			}
			if err := ctx.Emit(types.DefaultOut, ev); err != nil {
				return
			}
		}
		if err := scanner.Err(); err != nil {
			ctx.Logger().Printf("flow=%s node=%s read error: %v", ctx.FlowId(), ctx.NodeId(), err)
		}
	}()
	return nil
}

// OnEvent 输出事件内容
func (x *Stdio) OnEvent(ctx types.NodeContext, port string, ev types.Event) {
	w := x.Writer
	if port == types.DefaultErr {
		w = x.ErrWriter
	}
	var line string
	if x.Config.Json {
		b, err := json.Marshal(ev.Payload)
		if err != nil {
			ctx.EmitError(ev, port, err)
			return
		}
		line = string(b)
	} else {
		line = str.ToString(ev.Payload)
	}
	x.mu.Lock()
	_, err := fmt.Fprintln(w, line)
	x.mu.Unlock()
	if err != nil {
		ctx.EmitError(ev, port, err)
	}
}

// Destroy 销毁
func (x *Stdio) Destroy() {
}
