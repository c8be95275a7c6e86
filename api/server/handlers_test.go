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

package main

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rulego/flowgo/api/types"
	"github.com/rulego/flowgo/engine"
	"github.com/rulego/flowgo/test"
	"github.com/rulego/flowgo/utils/json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var flowDef = `{
  "flow": {"id": "ignored"},
  "definitions": [
    {"name": "sink", "kind": "connector", "connector": {"type": "test/sink"}},
    {"name": "upper", "kind": "script", "script": {"statements": [{"code": "upper(event.name)"}]}}
  ],
  "creates": [{"id": "u", "definition": "upper"}, {"id": "s", "definition": "sink"}],
  "connections": [{"fromId": "u", "toId": "s"}]
}`

func newTestServer(t *testing.T) (*httptest.Server, *engine.Pool, *test.Recorder) {
	recorder := test.NewRecorder()
	pool := engine.NewPool(
		types.WithLogger(types.DiscardLogger()),
		types.WithComponentsRegistry(engine.NewComponentRegistry(&test.Sink{Recorder: recorder})),
	)
	server := httptest.NewServer(NewRouter(pool, types.DiscardLogger()))
	t.Cleanup(func() {
		server.Close()
		pool.Stop()
	})
	return server, pool, recorder
}

func do(t *testing.T, method, url, body string) (int, []byte) {
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.Nil(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.Nil(t, err)
	defer resp.Body.Close()
	var buf strings.Builder
	_, _ = buf.ReadFrom(resp.Body)
	return resp.StatusCode, []byte(buf.String())
}

func TestFlowApi(t *testing.T) {
	server, pool, recorder := newTestServer(t)
	base := server.URL + flowsPath

	code, body := do(t, http.MethodPost, base+"/demo", flowDef)
	require.Equal(t, http.StatusCreated, code, string(body))
	var status engine.FlowStatus
	require.Nil(t, json.Unmarshal(body, &status))
	assert.Equal(t, "demo", status.Id)
	assert.Equal(t, types.StateDeployed, status.State)
	assert.Len(t, status.Nodes, 2)

	code, _ = do(t, http.MethodPost, base+"/demo", flowDef)
	assert.Equal(t, http.StatusConflict, code)

	code, body = do(t, http.MethodPost, base+"/demo/nodes/u/ports/in?source=api", `{"name": "bob"}`)
	require.Equal(t, http.StatusAccepted, code, string(body))
	var injected injectResponse
	require.Nil(t, json.Unmarshal(body, &injected))
	items, ok := recorder.Wait(1, 3*time.Second)
	require.True(t, ok)
	assert.Equal(t, "BOB", items[0].Event.Payload)
	assert.Equal(t, injected.Id, items[0].Event.Id)
	assert.Equal(t, "api", items[0].Event.Metadata.GetValue("source"))

	code, body = do(t, http.MethodGet, base, "")
	require.Equal(t, http.StatusOK, code)
	var list []engine.FlowStatus
	require.Nil(t, json.Unmarshal(body, &list))
	require.Len(t, list, 1)
	assert.Equal(t, int64(1), list[0].Nodes[1].Metrics.In)

	code, body = do(t, http.MethodGet, base+"/demo/definition", "")
	require.Equal(t, http.StatusOK, code)
	def, err := (&engine.JsonParser{}).DecodeFlow(body)
	require.Nil(t, err)
	assert.Equal(t, "demo", def.Flow.ID)
	assert.Len(t, def.Creates, 2)

	code, _ = do(t, http.MethodDelete, base+"/demo?graceful=maybe", "")
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = do(t, http.MethodDelete, base+"/demo?graceful=false", "")
	assert.Equal(t, http.StatusNoContent, code)
	_, ok = pool.Get("demo")
	assert.False(t, ok)

	code, body = do(t, http.MethodGet, base+"/demo", "")
	assert.Equal(t, http.StatusNotFound, code)
	var problem map[string]interface{}
	require.Nil(t, json.Unmarshal(body, &problem))
	assert.Equal(t, "flow_not_found", problem["type"])
	assert.Equal(t, float64(http.StatusNotFound), problem["status"])
	assert.Equal(t, flowsPath+"/demo", problem["instance"])
}

func TestFlowApiErrors(t *testing.T) {
	server, _, _ := newTestServer(t)
	base := server.URL + flowsPath

	code, _ := do(t, http.MethodPost, base+"/broken", "{")
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = do(t, http.MethodDelete, base+"/missing", "")
	assert.Equal(t, http.StatusNotFound, code)
	code, _ = do(t, http.MethodPost, base+"/missing/nodes/u/ports/in", "1")
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = do(t, http.MethodPost, base+"/demo", flowDef)
	require.Equal(t, http.StatusCreated, code)
	code, _ = do(t, http.MethodPost, base+"/demo/nodes/ghost/ports/in", "1")
	assert.Equal(t, http.StatusNotFound, code)
	code, _ = do(t, http.MethodPost, base+"/demo/nodes/u/ports/nope", "1")
	assert.Equal(t, http.StatusNotFound, code)
	code, _ = do(t, http.MethodPost, base+"/demo/nodes/u/ports/in", "{")
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestStatusCode(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, statusCode(types.NewFlowError(types.ErrUnknownNode, nil)))
	assert.Equal(t, http.StatusConflict, statusCode(types.NewFlowError(types.ErrFlowStopped, nil)))
	assert.Equal(t, http.StatusServiceUnavailable, statusCode(types.NewFlowError(types.ErrQueueFull, nil)))
	assert.Equal(t, http.StatusBadRequest, statusCode(types.NewFlowError(types.ErrCyclicDefinition, nil)))
	assert.Equal(t, http.StatusInternalServerError, statusCode(types.NewFlowError(types.ErrScriptRuntime, nil)))

	assert.Equal(t, "queue_full", problemType(types.NewFlowError(types.ErrQueueFull, nil)))
	assert.Equal(t, "invalid_flow_state", problemType(types.NewFlowError(types.ErrInvalidState, nil)))
	assert.Equal(t, "internal_error", problemType(assert.AnError))
}
