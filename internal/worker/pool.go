/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package worker

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// Pool bounds how many handlers touch the store at once so a slow storage
// call cannot stall the inbound event loop.
type Pool struct {
	sem  *semaphore.Weighted
	size int64
	wg   sync.WaitGroup
}

func NewPool(size int) *Pool {
	if size <= 0 {
		size = 1
	}
	return &Pool{sem: semaphore.NewWeighted(int64(size)), size: int64(size)}
}

func (p *Pool) Size() int {
	return int(p.size)
}

// Do runs fn on the calling goroutine once a slot is free
func (p *Pool) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("worker pool: %w", err)
	}
	defer p.sem.Release(1)
	return fn(ctx)
}

// Go waits for a free slot and runs fn on its own goroutine. It returns an
// error only when ctx ends before a slot frees up; fn is then never run.
func (p *Pool) Go(ctx context.Context, fn func(ctx context.Context)) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("worker pool: %w", err)
	}
	p.start(ctx, fn)
	return nil
}

// TryGo runs fn only if a slot is free right now
func (p *Pool) TryGo(ctx context.Context, fn func(ctx context.Context)) bool {
	if !p.sem.TryAcquire(1) {
		return false
	}
	p.start(ctx, fn)
	return true
}

func (p *Pool) start(ctx context.Context, fn func(ctx context.Context)) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.sem.Release(1)
		defer func() {
			if r := recover(); r != nil {
				zap.L().Error("Worker panicked", zap.Any("panic", r), zap.Stack("stack"))
			}
		}()
		fn(ctx)
	}()
}

// Wait blocks until every task started with Go or TryGo has returned
func (p *Pool) Wait() {
	p.wg.Wait()
}
