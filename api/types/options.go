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

package types

import (
	"time"

	"github.com/rulego/flowgo/builtin/funcs"
)

// Option is a function type that modifies the Config.
type Option func(*Config) error

// WithComponentsRegistry is an option that sets the components' registry of the Config.
func WithComponentsRegistry(componentsRegistry ComponentRegistry) Option {
	return func(c *Config) error {
		c.ComponentsRegistry = componentsRegistry
		return nil
	}
}

// WithOnDebug is an option that sets the on debug callback of the Config.
func WithOnDebug(onDebug func(flowId string, flowType string, nodeId string, ev Event, port string, err error)) Option {
	return func(c *Config) error {
		c.OnDebug = onDebug
		return nil
	}
}

// WithOnDiagnostic is an option that sets the runtime diagnostic callback of the Config.
func WithOnDiagnostic(onDiagnostic func(d Diagnostic)) Option {
	return func(c *Config) error {
		c.OnDiagnostic = onDiagnostic
		return nil
	}
}

// WithQueueSize sets the capacity of every input port queue.
func WithQueueSize(size int) Option {
	return func(c *Config) error {
		if size > 0 {
			c.QueueSize = size
		}
		return nil
	}
}

// WithBackpressure sets the policy applied when an input queue is full.
func WithBackpressure(policy BackpressurePolicy) Option {
	return func(c *Config) error {
		c.Backpressure = policy
		return nil
	}
}

// WithShutdownTimeout sets how long a graceful stop waits for in-flight events.
func WithShutdownTimeout(timeout time.Duration) Option {
	return func(c *Config) error {
		c.ShutdownTimeout = timeout
		return nil
	}
}

// WithPortDefaults overrides the default port sets.
func WithPortDefaults(ports PortDefaults) Option {
	return func(c *Config) error {
		c.Ports = ports
		return nil
	}
}

// WithProperties sets the global properties of the Config.
func WithProperties(properties Metadata) Option {
	return func(c *Config) error {
		c.Properties = properties
		return nil
	}
}

// WithFunctions sets the function registry used by expressions.
func WithFunctions(functions *funcs.Registry) Option {
	return func(c *Config) error {
		c.Functions = functions
		return nil
	}
}

// WithParser is an option that sets the parser of the Config.
func WithParser(parser Parser) Option {
	return func(c *Config) error {
		c.Parser = parser
		return nil
	}
}

// WithLogger is an option that sets the logger of the Config.
func WithLogger(logger Logger) Option {
	return func(c *Config) error {
		c.Logger = logger
		return nil
	}
}
