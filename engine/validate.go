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
	"regexp"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/rulego/flowgo/api/types"
)

// identRegex 节点、端口、模板名称
var identRegex = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_\-]*$`)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// Validator 返回定义文档校验器，注册了 ident 规则
func Validator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
		_ = validate.RegisterValidation("ident", func(fl validator.FieldLevel) bool {
			return identRegex.MatchString(fl.Field().String())
		})
	})
	return validate
}

// IsIdent 是否是合法的名称
func IsIdent(s string) bool {
	return identRegex.MatchString(s)
}

// validateStruct 校验定义结构，失败返回 ErrInvalidDefinition
func validateStruct(v interface{}, ref string) error {
	if err := Validator().Struct(v); err != nil {
		return types.NewFlowError(types.ErrInvalidDefinition, err).WithRef(ref)
	}
	return nil
}
