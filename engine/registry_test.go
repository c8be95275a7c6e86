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
	"github.com/rulego/flowgo/components/connector"
	"github.com/rulego/flowgo/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComponentRegistry(t *testing.T) {
	r := NewComponentRegistry(&test.Sink{Recorder: test.NewRecorder()})
	assert.True(t, r.Has("test/sink"))
	assert.NotNil(t, r.Register(&test.Sink{}))

	node, err := r.NewNode("test/sink")
	require.Nil(t, err)
	assert.Equal(t, "test/sink", node.Type())
	_, err = r.NewNode("missing")
	assert.NotNil(t, err)

	require.Nil(t, r.Register(&test.Panic{}))
	assert.Len(t, r.GetComponents(), 2)
	require.Nil(t, r.Unregister("test/panic"))
	assert.NotNil(t, r.Unregister("test/panic"))
	assert.Len(t, r.GetComponents(), 1)
}

func TestDefaultRegistry(t *testing.T) {
	for _, node := range connector.Registry.Components() {
		assert.True(t, Registry.Has(node.Type()), node.Type())
	}
	var _ types.ComponentRegistry = Registry
}
