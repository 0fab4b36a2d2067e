package gateway

import (
	"encoding/json"
	"fmt"
	"sync"
)

// ResultStatus 单个目标的执行状态
type ResultStatus string

const (
	ResultSucceeded ResultStatus = "Succeeded"
	ResultFailed    ResultStatus = "Failed"
	ResultTimeout   ResultStatus = "Timeout"
)

// Result 一次下发的归一化结果，失败时 Outcome 为失败描述
type Result struct {
	ChargePointID string       `json:"chargePointId"`
	Command       string       `json:"command"`
	Status        ResultStatus `json:"status"`
	Outcome       string       `json:"outcome"`
	Response      interface{}  `json:"response,omitempty"`
	Error         string       `json:"error,omitempty"`
}

func (r *Result) String() string {
	return fmt.Sprintf("Charge point: %s, Request: %s, Response: %s", r.ChargePointID, r.Command, r.Outcome)
}

// Aggregate 多目标结果集合，按充电桩ID保存，可并发写入
//
// 封存后不再接受写入，未完成的目标以 Timeout 占位，保证每个目标恰好一条结果。
type Aggregate struct {
	Command string

	mu        sync.Mutex
	targets   []string
	results   map[string]*Result
	sealed    bool
	discarded int
}

// NewAggregate 创建结果集合
func NewAggregate(command string, targets []string) *Aggregate {
	return &Aggregate{
		Command: command,
		targets: dedupe(targets),
		results: make(map[string]*Result, len(targets)),
	}
}

// Record 写入一个结果，封存后返回 false
func (a *Aggregate) Record(r *Result) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.sealed {
		a.discarded++
		return false
	}
	a.results[r.ChargePointID] = r
	return true
}

// Seal 封存集合并为缺失的目标填充超时标记
func (a *Aggregate) Seal() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.sealed {
		return
	}
	a.sealed = true
	for _, cp := range a.targets {
		if _, ok := a.results[cp]; !ok {
			a.results[cp] = &Result{
				ChargePointID: cp,
				Command:       a.Command,
				Status:        ResultTimeout,
				Outcome:       "Timed out",
				Error:         "no result before fan-out deadline",
			}
		}
	}
}

// Get 查询单个目标的结果
func (a *Aggregate) Get(chargePointID string) (*Result, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	r, ok := a.results[chargePointID]
	return r, ok
}

// Results 按目标顺序返回结果
func (a *Aggregate) Results() []*Result {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]*Result, 0, len(a.results))
	for _, cp := range a.targets {
		if r, ok := a.results[cp]; ok {
			out = append(out, r)
		}
	}
	return out
}

// Discarded 封存后到达而被丢弃的结果数
func (a *Aggregate) Discarded() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.discarded
}

// Counts 按状态统计
func (a *Aggregate) Counts() map[ResultStatus]int {
	counts := make(map[ResultStatus]int)
	for _, r := range a.Results() {
		counts[r.Status]++
	}
	return counts
}

// MarshalJSON 输出命令名与结果列表
func (a *Aggregate) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Command string    `json:"command"`
		Results []*Result `json:"results"`
	}{a.Command, a.Results()})
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok || id == "" {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
