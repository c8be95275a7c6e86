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

package types

import (
	"time"

	"github.com/gofrs/uuid/v5"
)

// 表达式环境变量名
const (
	EventKey = "event"
	MetaKey  = "meta"
	StateKey = "state"
	ArgsKey  = "args"
)

// Metadata 事件元数据，记录来源、注解等信息
type Metadata map[string]string

// NewMetadata 创建一个新的事件元数据实例
func NewMetadata() Metadata {
	return make(Metadata)
}

// BuildMetadata 通过map，创建一个新的事件元数据实例
func BuildMetadata(data map[string]string) Metadata {
	metadata := make(Metadata, len(data))
	for k, v := range data {
		metadata[k] = v
	}
	return metadata
}

// Copy 复制
func (md Metadata) Copy() Metadata {
	return BuildMetadata(md)
}

// Has 是否存在某个key
func (md Metadata) Has(key string) bool {
	_, ok := md[key]
	return ok
}

// GetValue 通过key获取值
func (md Metadata) GetValue(key string) string {
	return md[key]
}

// PutValue 设置值
func (md Metadata) PutValue(key, value string) {
	if key != "" {
		md[key] = value
	}
}

// Values 获取所有值
func (md Metadata) Values() map[string]string {
	return md
}

// Event 在图中流转的事件
// Payload 是半结构化数据：标量、map[string]interface{} 或 []interface{}。
// 事件一经产生即视为不可变，投影会产生新的事件而不是修改原事件。
type Event struct {
	// 事件ID，同一条事件在图中流转，整个过程是唯一的
	Id string `json:"id"`
	// 事件时间戳（毫秒）
	Ts int64 `json:"ts"`
	// 事件内容
	Payload interface{} `json:"payload"`
	// 事件元数据
	Metadata Metadata `json:"metadata"`
}

// NewEvent 创建一个新的事件实例，并通过uuid生成事件ID
func NewEvent(payload interface{}, metadata Metadata) Event {
	uuId, _ := uuid.NewV4()
	if metadata == nil {
		metadata = NewMetadata()
	}
	return Event{
		Id:       uuId.String(),
		Ts:       time.Now().UnixMilli(),
		Payload:  payload,
		Metadata: metadata,
	}
}

// WithPayload 返回携带新内容的事件，ID、时间戳保持不变，元数据复制一份
func (e Event) WithPayload(payload interface{}) Event {
	return Event{
		Id:       e.Id,
		Ts:       e.Ts,
		Payload:  payload,
		Metadata: e.Metadata.Copy(),
	}
}

// Copy 按值复制事件，map和slice会被深度复制，副本之间互不可见修改
func (e Event) Copy() Event {
	return Event{
		Id:       e.Id,
		Ts:       e.Ts,
		Payload:  CopyValue(e.Payload),
		Metadata: e.Metadata.Copy(),
	}
}

// CopyValue 深度复制半结构化数据
func CopyValue(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		m := make(map[string]interface{}, len(val))
		for k, item := range val {
			m[k] = CopyValue(item)
		}
		return m
	case []interface{}:
		s := make([]interface{}, len(val))
		for i, item := range val {
			s[i] = CopyValue(item)
		}
		return s
	case map[string]string:
		m := make(map[string]string, len(val))
		for k, item := range val {
			m[k] = item
		}
		return m
	case []string:
		s := make([]string, len(val))
		copy(s, val)
		return s
	default:
		return v
	}
}

