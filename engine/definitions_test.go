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
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func usesDef(name string, refs ...string) *types.Definition {
	var nodes []types.InstanceDef
	for _, ref := range refs {
		nodes = append(nodes, types.InstanceDef{Id: "n_" + ref, Definition: ref})
	}
	return pipelineDef(name, types.PortSpec{}, nodes)
}

func TestDefineOrderIndependence(t *testing.T) {
	r := NewDefinitionRegistry(newHarness().config(), nil)
	require.Nil(t, r.DefineAll([]*types.Definition{
		usesDef("a", "b"),
		usesDef("b", "c"),
		scriptDef("c", "", types.Statement{Code: "event"}),
	}))
	assert.Equal(t, []string{"a", "b", "c"}, r.Names())

	a, ok := r.Lookup("a")
	require.True(t, ok)
	assert.Equal(t, types.KindPipeline, a.Kind)
	require.Len(t, a.pipeline.nodes, 1)
	assert.Equal(t, "b", a.pipeline.nodes[0].template.Name)
}

func TestDefineCycle(t *testing.T) {
	r := NewDefinitionRegistry(newHarness().config(), nil)
	err := r.DefineAll([]*types.Definition{
		usesDef("a", "b"),
		usesDef("b", "a"),
		scriptDef("c", "", types.Statement{Code: "event"}),
	})
	assert.ErrorIs(t, err, types.ErrCyclicDefinition)
	var flowErr *types.FlowError
	require.ErrorAs(t, err, &flowErr)
	assert.Equal(t, "a -> b -> a", flowErr.Ref)
	// 批次整体失败
	assert.Empty(t, r.Names())

	err = r.DefineAll([]*types.Definition{usesDef("self", "self")})
	assert.ErrorIs(t, err, types.ErrCyclicDefinition)
	require.ErrorAs(t, err, &flowErr)
	assert.Equal(t, "self -> self", flowErr.Ref)

	// 单个定义只能引用已经存在的模板
	assert.ErrorIs(t, r.DefineAll([]*types.Definition{usesDef("d", "missing")}), types.ErrDefinitionNotFound)
	_, err = r.Define(usesDef("d", "d"))
	assert.ErrorIs(t, err, types.ErrCyclicDefinition)
}

func TestDefineScopes(t *testing.T) {
	config := newHarness().config()
	parent := NewDefinitionRegistry(config, nil)
	_, err := parent.Define(scriptDef("shared", "", types.Statement{Code: "event"}))
	require.Nil(t, err)

	child := NewDefinitionRegistry(config, parent)
	_, err = child.Define(usesDef("user", "shared"))
	require.Nil(t, err)
	_, ok := parent.Lookup("user")
	assert.False(t, ok)
	_, ok = child.Lookup("shared")
	assert.True(t, ok)

	// 同名模板在子作用域中遮蔽父作用域
	_, err = child.Define(scriptDef("shared", "", types.Statement{Code: "1"}))
	require.Nil(t, err)
	_, err = child.Define(scriptDef("shared", "", types.Statement{Code: "2"}))
	assert.ErrorIs(t, err, types.ErrNameConflict)

	// 模块限定名
	def := scriptDef("upper", "", types.Statement{Code: "upper(event)"})
	def.Module = "text"
	_, err = child.Define(def)
	require.Nil(t, err)
	_, ok = child.Lookup("text::upper")
	assert.True(t, ok)
	_, ok = child.Lookup("upper")
	assert.False(t, ok)
}

func TestDefineLocalDefinitions(t *testing.T) {
	r := NewDefinitionRegistry(newHarness().config(), nil)
	outer := pipelineDef("outer", types.PortSpec{}, []types.InstanceDef{{Id: "x", Definition: "local"}},
		types.SelectDef{Into: []string{"x"}},
		types.SelectDef{From: "x", Into: []string{"out"}},
	)
	outer.Pipeline.Definitions = []*types.Definition{scriptDef("local", "", types.Statement{Code: "event"})}
	_, err := r.Define(outer)
	require.Nil(t, err)
	_, ok := r.Lookup("local")
	assert.False(t, ok)

	// 局部模板之间的循环
	bad := pipelineDef("bad", types.PortSpec{}, nil)
	bad.Pipeline.Definitions = []*types.Definition{usesDef("p", "q"), usesDef("q", "p")}
	_, err = r.Define(bad)
	assert.ErrorIs(t, err, types.ErrCyclicDefinition)
}

func TestDefineInvalid(t *testing.T) {
	r := NewDefinitionRegistry(newHarness().config(), nil)

	_, err := r.Define(nil)
	assert.ErrorIs(t, err, types.ErrInvalidDefinition)
	_, err = r.Define(&types.Definition{Name: "x", Kind: types.KindScript})
	assert.ErrorIs(t, err, types.ErrInvalidDefinition)
	_, err = r.Define(&types.Definition{Name: "bad name", Kind: types.KindConnector, Connector: &types.ConnectorDef{Type: "test/sink"}})
	assert.ErrorIs(t, err, types.ErrInvalidDefinition)
	_, err = r.Define(scriptDef("broken", "", types.Statement{Code: "event +"}))
	assert.ErrorIs(t, err, types.ErrInvalidDefinition)

	_, err = r.Define(connectorDef("sink", "test/sink"))
	require.Nil(t, err)
	_, err = r.Define(usesDef("wrapper", "sink"))
	assert.ErrorIs(t, err, types.ErrInvalidDefinition)

	_, err = r.Define(pipelineDef("unknown", types.PortSpec{}, nil, types.SelectDef{From: "ghost", Into: []string{"out"}}))
	assert.ErrorIs(t, err, types.ErrUnknownNode)

	_, err = r.Define(pipelineDef("noport", types.PortSpec{}, nil, types.SelectDef{Into: []string{"missing"}}))
	assert.ErrorIs(t, err, types.ErrUnknownNode)

	script := scriptDef("s", "", types.Statement{Code: "event"})
	_, err = r.Define(script)
	require.Nil(t, err)
	_, err = r.Define(pipelineDef("badport", types.PortSpec{}, []types.InstanceDef{{Id: "s", Definition: "s"}},
		types.SelectDef{From: "s/nope", Into: []string{"out"}}))
	assert.ErrorIs(t, err, types.ErrPortNotFound)
}

func TestDefineSelectInto(t *testing.T) {
	r := NewDefinitionRegistry(newHarness().config(), nil)
	// 省略 into 时使用 out、err，未声明的 err 被忽略
	onlyOut := pipelineDef("onlyOut", types.PortSpec{Out: []string{"out"}}, nil, types.SelectDef{})
	_, err := r.Define(onlyOut)
	require.Nil(t, err)
	t1, _ := r.Lookup("onlyOut")
	assert.Equal(t, []string{"out", ""}, t1.pipeline.routes[0].targets)

	// 显式 into 未声明的端口是错误
	_, err = r.Define(pipelineDef("explicit", types.PortSpec{Out: []string{"out"}}, nil, types.SelectDef{Into: []string{"out", "err"}}))
	assert.ErrorIs(t, err, types.ErrUnknownNode)
}

func TestConnectorPorts(t *testing.T) {
	r := NewDefinitionRegistry(newHarness().config(), nil)
	_, err := r.Define(connectorDef("sink", "test/sink"))
	require.Nil(t, err)
	sink, _ := r.Lookup("sink")
	assert.Equal(t, []string{"in", "err"}, sink.Ports.In)
	assert.Empty(t, sink.Ports.Out)

	_, err = r.Define(connectorDef("boom", "test/panic"))
	require.Nil(t, err)
	boom, _ := r.Lookup("boom")
	assert.Equal(t, types.PortSpec{In: []string{"in"}, Out: []string{"out", "err"}}, boom.Ports)

	custom := connectorDef("custom", "test/sink")
	custom.Ports = types.PortSpec{In: []string{"a"}}
	_, err = r.Define(custom)
	require.Nil(t, err)
	c, _ := r.Lookup("custom")
	assert.Equal(t, []string{"a"}, c.Ports.In)
}
