package websocket

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/charging-platform/central-system/internal/domain/ocpp16"
)

// callResult 一次下行调用的应答或错误
type callResult struct {
	payload json.RawMessage
	err     error
}

// pendingCall 等待充电桩应答的下行调用，只接受发出该调用的会话上的应答
type pendingCall struct {
	session      *Session
	action       ocpp16.Action
	deadline     time.Time
	ResponseChan chan callResult
}

func newPendingCall(session *Session, action ocpp16.Action, deadline time.Time) *pendingCall {
	return &pendingCall{
		session:      session,
		action:       action,
		deadline:     deadline,
		ResponseChan: make(chan callResult, 1),
	}
}

// pendingCalls 按消息ID关联应答
type pendingCalls struct {
	mu    sync.Mutex
	calls map[string]*pendingCall
}

func newPendingCalls() *pendingCalls {
	return &pendingCalls{calls: make(map[string]*pendingCall)}
}

func (p *pendingCalls) add(messageID string, call *pendingCall) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls[messageID] = call
}

func (p *pendingCalls) remove(messageID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.calls, messageID)
}

// resolve 投递应答，消息ID未知或应答来自其他会话时返回 false
func (p *pendingCalls) resolve(s *Session, messageID string, result callResult) bool {
	p.mu.Lock()
	call, ok := p.calls[messageID]
	if ok && call.session == s {
		delete(p.calls, messageID)
	} else {
		ok = false
	}
	p.mu.Unlock()

	if ok {
		call.ResponseChan <- result
	}
	return ok
}

// expire 使超过截止时间的调用失败，返回失败数
func (p *pendingCalls) expire(now time.Time, err error) int {
	p.mu.Lock()
	var expired []*pendingCall
	for id, call := range p.calls {
		if now.After(call.deadline) {
			expired = append(expired, call)
			delete(p.calls, id)
		}
	}
	p.mu.Unlock()

	for _, call := range expired {
		call.ResponseChan <- callResult{err: err}
	}
	return len(expired)
}

// failSession 会话关闭或被替换时使其上的所有调用失败
func (p *pendingCalls) failSession(s *Session, err error) int {
	p.mu.Lock()
	var failed []*pendingCall
	for id, call := range p.calls {
		if call.session == s {
			failed = append(failed, call)
			delete(p.calls, id)
		}
	}
	p.mu.Unlock()

	for _, call := range failed {
		call.ResponseChan <- callResult{err: err}
	}
	return len(failed)
}

func (p *pendingCalls) len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}
