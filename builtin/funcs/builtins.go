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

package funcs

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/gofrs/uuid/v5"
	"github.com/rulego/flowgo/utils/json"
)

var builtins = map[string]Function{
	"capitalize":  capitalize,
	"lowercase":   stringFunc("lowercase", strings.ToLower),
	"uppercase":   stringFunc("uppercase", strings.ToUpper),
	"starts_with": stringPredicate("starts_with", strings.HasPrefix),
	"ends_with":   stringPredicate("ends_with", strings.HasSuffix),
	"includes":    stringPredicate("includes", strings.Contains),
	"format":      format,
	"json_encode": jsonEncode,
	"json_decode": jsonDecode,
	"uuid":        newUuid,
}

// capitalize 首字母大写，其余不变
func capitalize(params ...interface{}) (interface{}, error) {
	s, err := stringArg("capitalize", params, 0)
	if err != nil {
		return nil, err
	}
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s, nil
	}
	return string(unicode.ToUpper(r)) + s[size:], nil
}

func stringFunc(name string, f func(string) string) Function {
	return func(params ...interface{}) (interface{}, error) {
		s, err := stringArg(name, params, 0)
		if err != nil {
			return nil, err
		}
		return f(s), nil
	}
}

func stringPredicate(name string, f func(string, string) bool) Function {
	return func(params ...interface{}) (interface{}, error) {
		if len(params) != 2 {
			return nil, fmt.Errorf("%s: expected 2 arguments, got %d", name, len(params))
		}
		s, err := stringArg(name, params, 0)
		if err != nil {
			return nil, err
		}
		sub, err := stringArg(name, params, 1)
		if err != nil {
			return nil, err
		}
		return f(s, sub), nil
	}
}

// format fmt.Sprintf 风格格式化
func format(params ...interface{}) (interface{}, error) {
	pattern, err := stringArg("format", params, 0)
	if err != nil {
		return nil, err
	}
	return fmt.Sprintf(pattern, params[1:]...), nil
}

func jsonEncode(params ...interface{}) (interface{}, error) {
	if len(params) != 1 {
		return nil, fmt.Errorf("json_encode: expected 1 argument, got %d", len(params))
	}
	b, err := json.Marshal(params[0])
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func jsonDecode(params ...interface{}) (interface{}, error) {
	s, err := stringArg("json_decode", params, 0)
	if err != nil {
		return nil, err
	}
	var v interface{}
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, err
	}
	return v, nil
}

func newUuid(params ...interface{}) (interface{}, error) {
	id, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}
	return id.String(), nil
}

func stringArg(name string, params []interface{}, index int) (string, error) {
	if len(params) <= index {
		return "", fmt.Errorf("%s: missing argument %d", name, index+1)
	}
	s, ok := params[index].(string)
	if !ok {
		return "", fmt.Errorf("%s: argument %d must be a string, got %T", name, index+1, params[index])
	}
	return s, nil
}
