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
	"path/filepath"
	"strings"

	"github.com/jsccast/yaml"
	"github.com/rulego/flowgo/api/types"
	"github.com/rulego/flowgo/utils/json"
	"github.com/rulego/flowgo/utils/str"
)

// Ensuring parsers implement types.Parser interface.
var (
	_ types.Parser = (*JsonParser)(nil)
	_ types.Parser = (*YamlParser)(nil)
)

// JsonParser Json 流定义文档解析器
type JsonParser struct {
}

// DecodeFlow 通过json解析流定义文档，并校验结构
func (p *JsonParser) DecodeFlow(data []byte) (types.FlowDef, error) {
	var def types.FlowDef
	if err := json.Unmarshal(data, &def); err != nil {
		return def, types.NewFlowError(types.ErrInvalidDefinition, err)
	}
	if err := validateStruct(def, def.Flow.ID); err != nil {
		return def, err
	}
	return def, nil
}

// EncodeFlow 把流定义文档编码成格式化的json
func (p *JsonParser) EncodeFlow(def types.FlowDef) ([]byte, error) {
	if v, err := json.Marshal(def); err != nil {
		return nil, err
	} else {
		//格式化Json
		return json.Format(v)
	}
}

// YamlParser Yaml 流定义文档解析器，文档结构和json相同
type YamlParser struct {
}

// DecodeFlow 解析yaml文档，转换成json后按 JsonParser 解析
func (p *YamlParser) DecodeFlow(data []byte) (types.FlowDef, error) {
	var doc interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return types.FlowDef{}, types.NewFlowError(types.ErrInvalidDefinition, err)
	}
	b, err := json.Marshal(normalize(doc))
	if err != nil {
		return types.FlowDef{}, types.NewFlowError(types.ErrInvalidDefinition, err)
	}
	return (&JsonParser{}).DecodeFlow(b)
}

// EncodeFlow 把流定义文档编码成yaml
func (p *YamlParser) EncodeFlow(def types.FlowDef) ([]byte, error) {
	b, err := json.Marshal(def)
	if err != nil {
		return nil, err
	}
	var doc interface{}
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, err
	}
	return yaml.Marshal(doc)
}

// normalize 把yaml解析出的 map[interface{}]interface{} 转换成 map[string]interface{}
func normalize(v interface{}) interface{} {
	switch val := v.(type) {
	case map[interface{}]interface{}:
		m := make(map[string]interface{}, len(val))
		for k, item := range val {
			m[str.ToString(k)] = normalize(item)
		}
		return m
	case map[string]interface{}:
		for k, item := range val {
			val[k] = normalize(item)
		}
		return val
	case []interface{}:
		for i, item := range val {
			val[i] = normalize(item)
		}
		return val
	default:
		return v
	}
}

// parserOf 根据文件扩展名选择解析器
func parserOf(path string, config types.Config) (types.Parser, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return parser(config), nil
	case ".yaml", ".yml":
		return &YamlParser{}, nil
	default:
		return nil, fmt.Errorf("unsupported flow document %s", path)
	}
}

// parser 返回配置的解析器，默认 JsonParser
func parser(config types.Config) types.Parser {
	if config.Parser != nil {
		return config.Parser
	}
	return &JsonParser{}
}
