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

// Package base provides foundational utilities shared by the flow runtime and connectors.
package base

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rulego/flowgo/api/types"
)

// GracefulShutdown provides a two-phase stop for a unit of work that owns in-flight events.
// Phase 1 rejects new work and waits until every tracked operation has finished.
// Phase 2 cancels the shutdown context to interrupt whatever is still running.
//
// GracefulShutdown 为持有在途事件的工作单元提供两阶段停止。
// 第一阶段拒绝新的工作，并等待所有被跟踪的操作完成。
// 第二阶段取消停机上下文，中断仍在运行的操作。
//
// Usage Pattern:
// 使用模式：
//  1. Call InitGracefulShutdown() before any work starts  工作开始前调用 InitGracefulShutdown()
//  2. Call IncrementActiveOperations() when an event is accepted  接收事件时调用 IncrementActiveOperations()
//  3. Call DecrementActiveOperations() when the event is finished or discarded  事件处理完成或者被丢弃时调用 DecrementActiveOperations()
//  4. Call GracefulStop() to drain, or ForceStop() to interrupt  调用 GracefulStop() 排空，或者 ForceStop() 中断
type GracefulShutdown struct {
	// shutdownCtx is canceled in phase 2
	// shutdownCtx 在第二阶段取消
	shutdownCtx    context.Context
	shutdownCancel context.CancelFunc

	// shutdownTimeout defines the maximum time phase 1 waits
	// shutdownTimeout 定义第一阶段的最大等待时间
	shutdownTimeout time.Duration

	isShuttingDown int32

	activeOperations int64
	// idle is signaled whenever activeOperations drops to zero
	idle *sync.Cond
	mu   sync.Mutex

	logger types.Logger
}

// InitGracefulShutdown initializes the graceful shutdown functionality.
// A timeout of 0 uses types.DefaultShutdownTimeout.
//
// InitGracefulShutdown 初始化优雅停机功能，timeout 为0时使用默认值（10秒）
func (g *GracefulShutdown) InitGracefulShutdown(parent context.Context, logger types.Logger, timeout time.Duration) {
	if timeout == 0 {
		timeout = types.DefaultShutdownTimeout
	}
	if parent == nil {
		parent = context.Background()
	}
	g.shutdownTimeout = timeout
	g.logger = logger
	g.idle = sync.NewCond(&g.mu)
	g.shutdownCtx, g.shutdownCancel = context.WithCancel(parent)
	atomic.StoreInt32(&g.isShuttingDown, 0)
	atomic.StoreInt64(&g.activeOperations, 0)
}

// GetShutdownContext returns the context canceled when phase 2 starts.
//
// GetShutdownContext 返回第二阶段开始时取消的上下文
func (g *GracefulShutdown) GetShutdownContext() context.Context {
	return g.shutdownCtx
}

// IsShuttingDown reports whether phase 1 has started.
//
// IsShuttingDown 是否已经开始停机
func (g *GracefulShutdown) IsShuttingDown() bool {
	return atomic.LoadInt32(&g.isShuttingDown) == 1
}

// BeginShutdown sets the shutdown flag. It returns false when shutdown was already started.
//
// BeginShutdown 设置停机标志，如果已经在停机则返回 false
func (g *GracefulShutdown) BeginShutdown() bool {
	return atomic.CompareAndSwapInt32(&g.isShuttingDown, 0, 1)
}

// GracefulStop waits for all active operations up to the shutdown timeout, then cancels the shutdown context.
// It returns false when the timeout was reached and work was interrupted.
//
// GracefulStop 等待所有在途操作完成（最长 shutdownTimeout），然后取消停机上下文。
// 超时被强制中断时返回 false
func (g *GracefulShutdown) GracefulStop() bool {
	g.BeginShutdown()
	drained := g.WaitForActiveOperations(g.shutdownTimeout)
	if !drained {
		g.logf("graceful stop timeout after %s, %d operations interrupted", g.shutdownTimeout, g.GetActiveOperations())
	}
	g.ForceStop()
	return drained
}

// ForceStop immediately cancels the shutdown context.
//
// ForceStop 立即取消停机上下文
func (g *GracefulShutdown) ForceStop() {
	g.BeginShutdown()
	if g.shutdownCancel != nil {
		g.shutdownCancel()
	}
	// 唤醒等待者，让它们重新检查上下文
	g.mu.Lock()
	g.idle.Broadcast()
	g.mu.Unlock()
}

// IncrementActiveOperations atomically increments the active operations counter.
//
// IncrementActiveOperations 增加在途操作计数
func (g *GracefulShutdown) IncrementActiveOperations() int64 {
	return atomic.AddInt64(&g.activeOperations, 1)
}

// DecrementActiveOperations atomically decrements the active operations counter.
//
// DecrementActiveOperations 减少在途操作计数，减到0时唤醒等待者
func (g *GracefulShutdown) DecrementActiveOperations() int64 {
	n := atomic.AddInt64(&g.activeOperations, -1)
	if n <= 0 {
		g.mu.Lock()
		g.idle.Broadcast()
		g.mu.Unlock()
	}
	return n
}

// GetActiveOperations returns the current number of active operations.
//
// GetActiveOperations 当前在途操作数量
func (g *GracefulShutdown) GetActiveOperations() int64 {
	return atomic.LoadInt64(&g.activeOperations)
}

// WaitForActiveOperations waits until there are no active operations or the timeout elapses.
// It returns true if all operations completed.
//
// WaitForActiveOperations 等待所有在途操作完成，超时返回 false
func (g *GracefulShutdown) WaitForActiveOperations(timeout time.Duration) bool {
	timer := time.AfterFunc(timeout, func() {
		g.mu.Lock()
		g.idle.Broadcast()
		g.mu.Unlock()
	})
	defer timer.Stop()
	deadline := time.Now().Add(timeout)

	g.mu.Lock()
	defer g.mu.Unlock()
	for atomic.LoadInt64(&g.activeOperations) > 0 {
		if !time.Now().Before(deadline) || g.shutdownCtx.Err() != nil {
			return atomic.LoadInt64(&g.activeOperations) <= 0
		}
		g.idle.Wait()
	}
	return true
}

// logf provides internal logging with null-check
// logf 提供带空检查的内部日志记录
func (g *GracefulShutdown) logf(format string, args ...interface{}) {
	if g.logger != nil {
		g.logger.Printf(format, args...)
	}
}
