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

package query

import (
	"errors"
	"testing"

	"github.com/rulego/flowgo/api/types"
	"github.com/rulego/flowgo/builtin/funcs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func compile(t *testing.T, def types.SelectDef) *Select {
	s, err := Compile(def, types.DefaultPortDefaults(), funcs.NewRegistry())
	require.Nil(t, err)
	return s
}

func TestCompileDefaults(t *testing.T) {
	s := compile(t, types.SelectDef{})
	assert.Equal(t, "in", s.From)
	assert.Equal(t, []string{"out", "err"}, s.Into)
	assert.Equal(t, "event", s.Projection)
	assert.Equal(t, "select event from in into out, err", s.String())

	s = compile(t, types.SelectDef{From: "punctuate", Into: []string{"out"}})
	assert.Equal(t, "punctuate", s.From)
	assert.Equal(t, []string{"out"}, s.Into)

	_, err := Compile(types.SelectDef{Where: "event =="}, types.DefaultPortDefaults(), nil)
	assert.True(t, errors.Is(err, types.ErrInvalidDefinition))
	_, err = Compile(types.SelectDef{Select: "("}, types.DefaultPortDefaults(), nil)
	assert.True(t, errors.Is(err, types.ErrInvalidDefinition))
}

func TestEvaluate(t *testing.T) {
	t.Run("TestPassthrough", func(t *testing.T) {
		s := compile(t, types.SelectDef{})
		ev := types.NewEvent(map[string]interface{}{"a": 1}, types.Metadata{"k": "v"})
		out, ok, err := s.Evaluate(ev, nil)
		assert.Nil(t, err)
		assert.True(t, ok)
		assert.Equal(t, ev.Payload, out.Payload)
		assert.Equal(t, ev.Id, out.Id)
		assert.Equal(t, ev.Metadata, out.Metadata)
	})

	t.Run("TestGuard", func(t *testing.T) {
		s := compile(t, types.SelectDef{Where: `event != "exit"`, Select: "capitalize(event)"})
		out, ok, err := s.Evaluate(types.NewEvent("hello", nil), nil)
		assert.Nil(t, err)
		assert.True(t, ok)
		assert.Equal(t, "Hello", out.Payload)

		_, ok, err = s.Evaluate(types.NewEvent("exit", nil), nil)
		assert.Nil(t, err)
		assert.False(t, ok)
	})

	t.Run("TestMetaAndArgs", func(t *testing.T) {
		s := compile(t, types.SelectDef{Where: `meta.source == args.source`, Select: `{"v": event, "n": args.n}`})
		out, ok, err := s.Evaluate(types.NewEvent(1, types.Metadata{"source": "a"}), map[string]interface{}{"source": "a", "n": 2})
		assert.Nil(t, err)
		assert.True(t, ok)
		assert.Equal(t, map[string]interface{}{"v": 1, "n": 2}, out.Payload)
	})

	t.Run("TestGuardError", func(t *testing.T) {
		s := compile(t, types.SelectDef{Where: "event"})
		_, ok, err := s.Evaluate(types.NewEvent("x", nil), nil)
		assert.False(t, ok)
		assert.True(t, errors.Is(err, types.ErrGuardEvaluation))

		s = compile(t, types.SelectDef{Where: "json_decode(event) != nil"})
		_, _, err = s.Evaluate(types.NewEvent("{", nil), nil)
		assert.True(t, errors.Is(err, types.ErrGuardEvaluation))
	})

	t.Run("TestProjectionError", func(t *testing.T) {
		s := compile(t, types.SelectDef{Select: "json_decode(event)"})
		_, ok, err := s.Evaluate(types.NewEvent("{", nil), nil)
		assert.False(t, ok)
		assert.True(t, errors.Is(err, types.ErrScriptRuntime))
		var flowErr *types.FlowError
		require.True(t, errors.As(err, &flowErr))
		assert.Equal(t, s.String(), flowErr.Ref)
	})
}

type emitted struct {
	stmt   *Select
	target string
	ev     types.Event
}

func TestDispatch(t *testing.T) {
	exit := compile(t, types.SelectDef{Where: `event == "exit"`, Select: `{"graceful": false}`, Into: []string{"exit"}})
	punctuate := compile(t, types.SelectDef{Where: `event != "exit"`, Select: "capitalize(event)", Into: []string{"punctuate"}})
	all := compile(t, types.SelectDef{Into: []string{"a", "b"}})
	failing := compile(t, types.SelectDef{Select: "json_decode(event)", Into: []string{"c"}})
	table := NewTable(exit, punctuate, all, failing)
	assert.Equal(t, 4, table.Len())
	assert.Len(t, table.Lookup("in"), 4)
	assert.Equal(t, []string{"in"}, table.Sources())

	var outputs []emitted
	var errs []error
	dispatch := func(payload interface{}) {
		outputs = nil
		errs = nil
		table.Dispatch("in", types.NewEvent(payload, nil), nil, func(s *Select, target int, ev types.Event) {
			outputs = append(outputs, emitted{stmt: s, target: s.Into[target], ev: ev})
		}, func(s *Select, err error) {
			errs = append(errs, err)
		})
	}

	// 广播独立性：每条语句独立执行，失败的语句不影响其他语句
	dispatch("hello")
	require.Len(t, outputs, 3)
	assert.Equal(t, "punctuate", outputs[0].target)
	assert.Equal(t, "Hello", outputs[0].ev.Payload)
	assert.Equal(t, "a", outputs[1].target)
	assert.Equal(t, "b", outputs[2].target)
	assert.Equal(t, "hello", outputs[2].ev.Payload)
	require.Len(t, errs, 1)
	assert.True(t, errors.Is(errs[0], types.ErrScriptRuntime))

	dispatch("exit")
	require.Len(t, outputs, 3)
	assert.Equal(t, "exit", outputs[0].target)
	assert.Equal(t, map[string]interface{}{"graceful": false}, outputs[0].ev.Payload)

	// 多个目标之间按值复制
	dispatch(map[string]interface{}{"n": 1})
	var a, b types.Event
	for _, o := range outputs {
		switch o.target {
		case "a":
			a = o.ev
		case "b":
			b = o.ev
		}
	}
	a.Payload.(map[string]interface{})["n"] = 2
	assert.Equal(t, 1, b.Payload.(map[string]interface{})["n"])

	// 未注册的源端口没有输出
	outputs = nil
	table.Dispatch("other", types.NewEvent("x", nil), nil, func(s *Select, target int, ev types.Event) {
		outputs = append(outputs, emitted{})
	}, func(s *Select, err error) {})
	assert.Empty(t, outputs)
}
