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

// Package pattern 实现 match 语句 case 分支的模式匹配。
// 模式在定义阶段编译一次，编译结果不可变，可以被多个节点实例并发共享。
package pattern

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/dlclark/regexp2"
	"github.com/rulego/flowgo/api/types"
	"github.com/rulego/flowgo/utils/cast"
)

// DefaultMatchTimeout 单次正则匹配最长时间
var DefaultMatchTimeout = time.Second

var (
	// ErrWildcardNotLast 通配分支后面还有其他分支
	ErrWildcardNotLast = errors.New("wildcard case must be the last case")
	// ErrInvalidPattern 模式定义不合法
	ErrInvalidPattern = errors.New("invalid pattern")
)

// Pattern 编译后的模式
type Pattern struct {
	kind   types.PatternKind
	value  interface{}
	values []interface{}
	re     *regexp2.Regexp
	bind   string
	// unnamed 第 i 个未命名分组在表达式中的位置（按左括号顺序，从1开始）
	unnamed []int
}

// Compile 编译模式
func Compile(def types.PatternDef) (*Pattern, error) {
	p := &Pattern{kind: def.Kind, bind: def.Bind}
	switch def.Kind {
	case types.PatternLiteral:
		p.value = def.Value
	case types.PatternOneOf:
		if len(def.Values) == 0 {
			return nil, fmt.Errorf("%w: oneOf requires at least one value", ErrInvalidPattern)
		}
		p.values = def.Values
	case types.PatternRegex:
		expr, ok := def.Value.(string)
		if !ok {
			return nil, fmt.Errorf("%w: regex value must be a string, got %T", ErrInvalidPattern, def.Value)
		}
		re, err := regexp2.Compile(expr, regexp2.RE2)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrInvalidPattern, err.Error())
		}
		re.MatchTimeout = DefaultMatchTimeout
		p.re = re
		p.unnamed = unnamedGroups(expr)
	case types.PatternWildcard:
	default:
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidPattern, def.Kind)
	}
	if p.bind != "" && p.kind != types.PatternRegex {
		return nil, fmt.Errorf("%w: bind is only supported by regex patterns", ErrInvalidPattern)
	}
	return p, nil
}

// CompileAll 按顺序编译 case 分支的模式
// 通配分支是否在最后由调用方检查，带守卫的通配分支不是兜底分支
func CompileAll(defs []types.PatternDef) ([]*Pattern, error) {
	patterns := make([]*Pattern, 0, len(defs))
	for _, def := range defs {
		p, err := Compile(def)
		if err != nil {
			return nil, err
		}
		patterns = append(patterns, p)
	}
	return patterns, nil
}

// Kind 模式种类
func (p *Pattern) Kind() types.PatternKind {
	return p.kind
}

// Bind 捕获分组绑定的变量名，空表示不绑定
func (p *Pattern) Bind() string {
	return p.bind
}

// Match 测试 subject 是否匹配
// 正则模式只匹配字符串，匹配成功并且设置了 Bind 时返回捕获分组，key 为分组名称，
// 未命名分组使用它在表达式中的序号（按左括号从左到右计数，命名分组也占序号），"0" 为整个匹配
func (p *Pattern) Match(subject interface{}) (bool, map[string]interface{}, error) {
	switch p.kind {
	case types.PatternWildcard:
		return true, nil, nil
	case types.PatternLiteral:
		return Equal(p.value, subject), nil, nil
	case types.PatternOneOf:
		for _, v := range p.values {
			if Equal(v, subject) {
				return true, nil, nil
			}
		}
		return false, nil, nil
	case types.PatternRegex:
		s, ok := subject.(string)
		if !ok {
			return false, nil, nil
		}
		if p.bind == "" {
			matched, err := p.re.MatchString(s)
			return matched, nil, err
		}
		m, err := p.re.FindStringMatch(s)
		if err != nil || m == nil {
			return false, nil, err
		}
		captures := make(map[string]interface{})
		for _, g := range m.Groups() {
			captures[p.groupKey(g.Name)] = g.String()
		}
		return true, captures, nil
	}
	return false, nil, nil
}

// groupKey regexp2 先给未命名分组编号再给命名分组编号，这里换算成表达式中的位置
func (p *Pattern) groupKey(name string) string {
	n, err := strconv.Atoi(name)
	if err != nil || n < 1 || n > len(p.unnamed) {
		return name
	}
	return strconv.Itoa(p.unnamed[n-1])
}

// unnamedGroups 扫描表达式，返回未命名捕获分组按出现顺序的位置
func unnamedGroups(expr string) []int {
	var result []int
	position := 0
	inClass := false
	for i := 0; i < len(expr); i++ {
		switch c := expr[i]; {
		case c == '\\':
			i++
		case inClass:
			if c == ']' {
				inClass = false
			}
		case c == '[':
			inClass = true
			// []] 和 [^]] 中第一个 ] 是字面量
			if i+1 < len(expr) && expr[i+1] == '^' {
				i++
			}
			if i+1 < len(expr) && expr[i+1] == ']' {
				i++
			}
		case c == '(':
			rest := expr[i+1:]
			if !strings.HasPrefix(rest, "?") {
				position++
				result = append(result, position)
			} else if isNamedGroup(rest) {
				position++
			}
		}
	}
	return result
}

// isNamedGroup (?P<name>、(?<name> 和 (?'name' 是命名分组，(?<= (?<! 是后行断言
func isNamedGroup(rest string) bool {
	switch {
	case strings.HasPrefix(rest, "?P<"), strings.HasPrefix(rest, "?'"):
		return true
	case strings.HasPrefix(rest, "?<"):
		return !strings.HasPrefix(rest, "?<=") && !strings.HasPrefix(rest, "?<!")
	}
	return false
}

// Equal 字面量相等，数值类型按值比较，1 和 1.0 相等
func Equal(a, b interface{}) bool {
	if cast.IsNumber(a) && cast.IsNumber(b) {
		return cast.ToFloat64(a) == cast.ToFloat64(b)
	}
	return reflect.DeepEqual(a, b)
}
