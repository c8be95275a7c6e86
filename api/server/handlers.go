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
	"errors"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/julienschmidt/httprouter"
	"github.com/moogar0880/problems"
	"github.com/rulego/flowgo/api/types"
	"github.com/rulego/flowgo/engine"
	"github.com/rulego/flowgo/utils/json"
)

const (
	// base HTTP paths.
	apiVersion  = "v1"
	apiBasePath = "/api/" + apiVersion

	flowsPath = apiBasePath + "/flows"
	// /api/v1/flows/{id}
	flowPath = flowsPath + "/:id"
	// /api/v1/flows/{id}/definition
	definitionPath = flowPath + "/definition"
	// /api/v1/flows/{id}/nodes/{node}/ports/{port}
	injectPath = flowPath + "/nodes/:node/ports/:port"

	JsonContextType    = "application/json"
	ProblemContextType = "application/problem+json"
	ContentTypeKey     = "Content-Type"
	// GracefulKey 删除流时的查询参数，默认 true
	GracefulKey = "graceful"
)

// injectResponse 注入事件响应
type injectResponse struct {
	Id string `json:"id"`
}

// NewRouter 创建流池管理接口路由
func NewRouter(pool *engine.Pool, logger types.Logger) *httprouter.Router {
	h := &handlers{pool: pool, logger: types.NewLogger(logger)}
	router := httprouter.New()
	router.GET(flowsPath, h.listFlows)
	router.GET(flowPath, h.getFlow)
	router.POST(flowPath, h.newFlow)
	router.DELETE(flowPath, h.delFlow)
	router.GET(definitionPath, h.getDefinition)
	router.POST(injectPath, h.inject)
	router.PanicHandler = func(w http.ResponseWriter, r *http.Request, e interface{}) {
		h.logger.Printf("%s %s handler err :%v", r.Method, r.URL.Path, e)
		w.WriteHeader(http.StatusInternalServerError)
	}
	return router
}

type handlers struct {
	pool   *engine.Pool
	logger types.Logger
}

// listFlows 所有流的状态，按ID排序
func (h *handlers) listFlows(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	list := make([]engine.FlowStatus, 0)
	h.pool.Range(func(id string, flow *engine.Flow) bool {
		list = append(list, flow.Status())
		return true
	})
	sort.Slice(list, func(i, j int) bool {
		return list[i].Id < list[j].Id
	})
	h.write(w, http.StatusOK, list)
}

func (h *handlers) getFlow(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	flow, ok := h.pool.Get(params.ByName("id"))
	if !ok {
		h.fail(w, r, types.NewFlowError(types.ErrFlowNotFound, nil).WithRef(params.ByName("id")))
		return
	}
	h.write(w, http.StatusOK, flow.Status())
}

func (h *handlers) getDefinition(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	flow, ok := h.pool.Get(params.ByName("id"))
	if !ok {
		h.fail(w, r, types.NewFlowError(types.ErrFlowNotFound, nil).WithRef(params.ByName("id")))
		return
	}
	def, err := (&engine.JsonParser{}).EncodeFlow(flow.Definition())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	w.Header().Set(ContentTypeKey, JsonContextType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(def)
}

// newFlow 通过请求体中的流定义文档创建并部署流
func (h *handlers) newFlow(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	def, err := io.ReadAll(r.Body)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	flow, err := h.pool.New(params.ByName("id"), def)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.logger.Printf("flow=%s deployed", flow.Id())
	h.write(w, http.StatusCreated, flow.Status())
}

func (h *handlers) delFlow(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	graceful := true
	if v := r.URL.Query().Get(GracefulKey); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			h.problem(w, r, http.StatusBadRequest, "bad_request", err)
			return
		}
		graceful = b
	}
	if err := h.pool.Del(params.ByName("id"), graceful); err != nil {
		h.fail(w, r, err)
		return
	}
	h.logger.Printf("flow=%s deleted graceful=%t", params.ByName("id"), graceful)
	w.WriteHeader(http.StatusNoContent)
}

// inject 请求体为json事件内容，查询参数作为事件元数据
func (h *handlers) inject(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	flow, ok := h.pool.Get(params.ByName("id"))
	if !ok {
		h.fail(w, r, types.NewFlowError(types.ErrFlowNotFound, nil).WithRef(params.ByName("id")))
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var payload interface{}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &payload); err != nil {
			h.problem(w, r, http.StatusBadRequest, "bad_request", err)
			return
		}
	}
	metadata := types.NewMetadata()
	for k, v := range r.URL.Query() {
		if len(v) > 0 {
			metadata.PutValue(k, v[0])
		}
	}
	ev := types.NewEvent(payload, metadata)
	if err := flow.Inject(params.ByName("node"), params.ByName("port"), ev); err != nil {
		h.fail(w, r, err)
		return
	}
	h.write(w, http.StatusAccepted, injectResponse{Id: ev.Id})
}

func (h *handlers) write(w http.ResponseWriter, statusCode int, v interface{}) {
	b, err := json.Marshal(v)
	if err != nil {
		h.logger.Printf("encode response error: %v", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set(ContentTypeKey, JsonContextType)
	w.WriteHeader(statusCode)
	_, _ = w.Write(b)
}

// fail 按错误类型返回 problem 响应，type 为错误码，例如 flow_not_found
func (h *handlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	h.problem(w, r, statusCode(err), problemType(err), err)
}

func (h *handlers) problem(w http.ResponseWriter, r *http.Request, statusCode int, problemType string, err error) {
	problem := problems.NewStatusProblem(statusCode).
		WithInstance(r.URL.Path).
		WithType(problemType).
		WithDetail(err.Error())
	b, e := json.Marshal(problem)
	if e != nil {
		h.logger.Printf("encode response error: %v", e)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set(ContentTypeKey, ProblemContextType)
	w.WriteHeader(statusCode)
	_, _ = w.Write(b)
}

// problemType 错误码，非 FlowError 返回 internal_error
func problemType(err error) string {
	var flowErr *types.FlowError
	if errors.As(err, &flowErr) {
		return strings.ReplaceAll(flowErr.Code.Error(), " ", "_")
	}
	return "internal_error"
}

// statusCode 错误对应的http状态码
func statusCode(err error) int {
	switch {
	case errors.Is(err, types.ErrFlowNotFound), errors.Is(err, types.ErrUnknownNode), errors.Is(err, types.ErrPortNotFound):
		return http.StatusNotFound
	case errors.Is(err, types.ErrNameConflict), errors.Is(err, types.ErrInvalidState), errors.Is(err, types.ErrFlowStopped):
		return http.StatusConflict
	case errors.Is(err, types.ErrQueueFull):
		return http.StatusServiceUnavailable
	case types.ErrorPhase(err) == types.PhaseTopology:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
