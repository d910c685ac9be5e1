package workerpool

import (
	"context"
	"fmt"
	"sync"
)

// Pool 有界工作池：并发槽位耗尽时 Do 阻塞等待，避免慢任务占满连接
type Pool struct {
	name        string
	threadChan  chan struct{}
	taskWg      sync.WaitGroup
	serviceLock sync.RWMutex
	closed      bool
}

func New(name string, maxThread int) *Pool {
	if maxThread <= 0 {
		maxThread = 4
	}
	return &Pool{
		name:       name,
		threadChan: make(chan struct{}, maxThread),
	}
}

// Do 占用一个槽位并同步执行 fn，拿不到槽位时等待 ctx
func (p *Pool) Do(ctx context.Context, fn func()) error {
	p.serviceLock.RLock()
	if p.closed {
		p.serviceLock.RUnlock()
		return fmt.Errorf("worker pool %s is closed", p.name)
	}
	p.taskWg.Add(1)
	p.serviceLock.RUnlock()
	defer p.taskWg.Done()

	select {
	case p.threadChan <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-p.threadChan }()

	fn()
	return nil
}

// Close 等待在途任务结束，之后的 Do 直接报错
func (p *Pool) Close() {
	p.serviceLock.Lock()
	if p.closed {
		p.serviceLock.Unlock()
		return
	}
	p.closed = true
	p.serviceLock.Unlock()

	p.taskWg.Wait()
}
