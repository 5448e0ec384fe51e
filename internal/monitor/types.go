package monitor

import (
	"time"

	"follow-mm/internal/ladder"
)

// EventType 表示监控事件类型。
type EventType string

const (
	EventRebase    EventType = "rebase"
	EventTopup     EventType = "topup"
	EventPlacement EventType = "placement"
	EventCancel    EventType = "cancel"
	EventError     EventType = "error"
)

// ParseEventType 解析查询参数中的事件类型，空字符串表示全部。
func ParseEventType(s string) (EventType, bool) {
	switch t := EventType(s); t {
	case "", EventRebase, EventTopup, EventPlacement, EventCancel, EventError:
		return t, true
	default:
		return "", false
	}
}

// Event 封装通用监控事件。
type Event struct {
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// CyclePayload 记录一次重置或补单周期。
type CyclePayload struct {
	RunID  string             `json:"run_id,omitempty"`
	Report ladder.CycleReport `json:"report"`
}

// PlacementPayload 记录一次下单尝试。
type PlacementPayload struct {
	RunID     string           `json:"run_id,omitempty"`
	Placement ladder.Placement `json:"placement"`
}

// CancelPayload 记录一次撤单尝试。
type CancelPayload struct {
	RunID  string              `json:"run_id,omitempty"`
	Cancel ladder.Cancellation `json:"cancel"`
}

// ErrorPayload 记录异常。
type ErrorPayload struct {
	RunID string `json:"run_id,omitempty"`
	Op    string `json:"op"`
	Error string `json:"error"`
}
