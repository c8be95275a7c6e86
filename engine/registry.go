/*
 * Copyright 2023 The RuleGo Authors.
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
	"errors"
	"fmt"
	"sync"

	"github.com/rulego/flowgo/api/types"
	"github.com/rulego/flowgo/components/connector"
)

// Registry is the default registry for connector components.
var Registry = new(ComponentRegistry)

// init registers default components to the default component registry.
func init() {
	for _, node := range connector.Registry.Components() {
		_ = Registry.Register(node)
	}
}

var _ types.ComponentRegistry = (*ComponentRegistry)(nil)

// ComponentRegistry is a registry for connector components.
type ComponentRegistry struct {
	// components is a map of connector components.
	components map[string]types.Node
	// RWMutex is a read/write mutex lock.
	sync.RWMutex
}

// NewComponentRegistry creates a registry holding the given components.
func NewComponentRegistry(nodes ...types.Node) *ComponentRegistry {
	r := new(ComponentRegistry)
	for _, node := range nodes {
		_ = r.Register(node)
	}
	return r
}

// Register adds a connector component to the registry.
func (r *ComponentRegistry) Register(node types.Node) error {
	r.Lock()
	defer r.Unlock()
	if r.components == nil {
		r.components = make(map[string]types.Node)
	}
	if _, ok := r.components[node.Type()]; ok {
		return errors.New("the component already exists. componentType=" + node.Type())
	}
	r.components[node.Type()] = node

	return nil
}

// Unregister removes a component from the registry by its type.
func (r *ComponentRegistry) Unregister(componentType string) error {
	r.Lock()
	defer r.Unlock()
	if _, ok := r.components[componentType]; ok {
		delete(r.components, componentType)
		return nil
	}
	return fmt.Errorf("component not found. componentType=%s", componentType)
}

// NewNode creates a new instance of a connector component by its type.
func (r *ComponentRegistry) NewNode(componentType string) (types.Node, error) {
	r.RLock()
	defer r.RUnlock()

	if node, ok := r.components[componentType]; !ok {
		return nil, fmt.Errorf("component not found. componentType=%s", componentType)
	} else {
		return node.New(), nil
	}
}

// Has reports whether a component type is registered.
func (r *ComponentRegistry) Has(componentType string) bool {
	r.RLock()
	defer r.RUnlock()
	_, ok := r.components[componentType]
	return ok
}

// GetComponents returns a map of all registered components.
func (r *ComponentRegistry) GetComponents() map[string]types.Node {
	r.RLock()
	defer r.RUnlock()
	var components = map[string]types.Node{}
	for k, v := range r.components {
		components[k] = v
	}
	return components
}
