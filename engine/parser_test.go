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
	"testing"

	"github.com/rulego/flowgo/api/types"
	"github.com/rulego/flowgo/utils/fs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJsonParser(t *testing.T) {
	p := &JsonParser{}
	def, err := p.DecodeFlow(fs.LoadFile("testdata/punctuate.json"))
	require.Nil(t, err)
	assert.Equal(t, "main", def.Flow.ID)
	assert.Equal(t, "punctuation", def.Flow.Name)
	require.Len(t, def.Definitions, 4)
	assert.Equal(t, "app::punctuate", def.Definitions[2].QualifiedName())
	assert.Equal(t, types.KindPipeline, def.Definitions[3].Kind)
	assert.Equal(t, types.PatternOneOf, def.Definitions[2].Script.Statements[2].Match.Cases[0].Pattern.Kind)
	assert.Len(t, def.Creates, 3)
	assert.Equal(t, types.NodeConnection{FromId: "main", FromPort: "exit", ToId: "exit", ToPort: "in"}, def.Connections[1])

	data, err := p.EncodeFlow(def)
	require.Nil(t, err)
	again, err := p.DecodeFlow(data)
	require.Nil(t, err)
	assert.Equal(t, def, again)
}

func TestJsonParserInvalid(t *testing.T) {
	p := &JsonParser{}
	_, err := p.DecodeFlow([]byte(`{"flow":`))
	assert.ErrorIs(t, err, types.ErrInvalidDefinition)

	_, err = p.DecodeFlow([]byte(`{"flow": {"id": "x"}, "definitions": [{"name": "a", "kind": "widget"}]}`))
	assert.ErrorIs(t, err, types.ErrInvalidDefinition)

	_, err = p.DecodeFlow([]byte(`{"flow": {"id": "x"}, "creates": [{"id": "a b", "definition": "a"}]}`))
	assert.ErrorIs(t, err, types.ErrInvalidDefinition)

	_, err = p.DecodeFlow([]byte(`{"flow": {"id": "x"}, "definitions": [{"name": "s", "kind": "script", "script": {"statements": []}}]}`))
	assert.ErrorIs(t, err, types.ErrInvalidDefinition)
}

func TestFlowDefinitionEncode(t *testing.T) {
	h := newHarness()
	flow := newPassFlow(t, "encode", h.config())
	data, err := parser(flow.Config()).EncodeFlow(flow.Definition())
	require.Nil(t, err)

	decoded, err := (&JsonParser{}).DecodeFlow(data)
	require.Nil(t, err)
	rebuilt, err := NewFlowFromDef(decoded, h.config())
	require.Nil(t, err)
	require.Nil(t, rebuilt.Deploy())
	defer rebuilt.Stop(false)
	require.Nil(t, rebuilt.Inject("p", "in", types.NewEvent("x", nil)))
	items := wait(t, h.recorder, 1)
	assert.Equal(t, "x", items[0].Event.Payload)
}

func TestYamlParser(t *testing.T) {
	expected, err := (&JsonParser{}).DecodeFlow(fs.LoadFile("testdata/punctuate.json"))
	require.Nil(t, err)

	p := &YamlParser{}
	def, err := p.DecodeFlow(fs.LoadFile("testdata/punctuate.yaml"))
	require.Nil(t, err)
	assert.Equal(t, expected, def)

	data, err := p.EncodeFlow(def)
	require.Nil(t, err)
	again, err := p.DecodeFlow(data)
	require.Nil(t, err)
	assert.Equal(t, def, again)

	_, err = p.DecodeFlow([]byte("flow: [unclosed"))
	assert.ErrorIs(t, err, types.ErrInvalidDefinition)
}

func TestParserOf(t *testing.T) {
	for _, path := range []string{"a.yaml", "b.YML"} {
		p, err := parserOf(path, types.NewConfig())
		require.Nil(t, err)
		assert.IsType(t, &YamlParser{}, p)
	}
	p, err := parserOf("c.json", types.NewConfig())
	require.Nil(t, err)
	assert.IsType(t, &JsonParser{}, p)

	_, err = parserOf("d.txt", types.NewConfig())
	assert.NotNil(t, err)
}
