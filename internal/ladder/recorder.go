package ladder

import (
	"context"
	"time"

	"follow-mm/internal/market"
)

// CycleKind 区分重置与补单周期。
type CycleKind string

const (
	CycleRebase CycleKind = "rebase"
	CycleTopup  CycleKind = "topup"
)

// CycleReport 汇总一次周期的结果。
type CycleReport struct {
	Kind           CycleKind     `json:"kind"`
	Side           market.Side   `json:"side"`
	Ticker         string        `json:"ticker"`
	Anchor         float64       `json:"anchor"`
	Discount       float64       `json:"discount"`
	OpenBefore     int           `json:"open_before"`
	CancelAttempts int           `json:"cancel_attempts"`
	Cancelled      int           `json:"cancelled"`
	PlaceAttempts  int           `json:"place_attempts"`
	Placed         int           `json:"placed"`
	Duration       time.Duration `json:"duration"`
	At             time.Time     `json:"at"`
}

// Placement 记录一次下单尝试。
type Placement struct {
	Side   market.Side `json:"side"`
	Ticker string      `json:"ticker"`
	Price  float64     `json:"price"`
	Qty    float64     `json:"qty"`
	OK     bool        `json:"ok"`
	At     time.Time   `json:"at"`
}

// Cancellation 记录一次撤单尝试。
type Cancellation struct {
	Side    market.Side `json:"side"`
	Ticker  string      `json:"ticker"`
	OrderID string      `json:"order_id"`
	Price   float64     `json:"price"`
	OK      bool        `json:"ok"`
	At      time.Time   `json:"at"`
}

// Recorder 接收引擎活动，用于监控与活动日志。实现不应阻塞主循环。
type Recorder interface {
	RecordCycle(ctx context.Context, report CycleReport)
	RecordPlacement(ctx context.Context, p Placement)
	RecordCancel(ctx context.Context, c Cancellation)
	RecordError(ctx context.Context, op string, err error)
}

// NopRecorder 丢弃所有活动。
type NopRecorder struct{}

func (NopRecorder) RecordCycle(context.Context, CycleReport)  {}
func (NopRecorder) RecordPlacement(context.Context, Placement) {}
func (NopRecorder) RecordCancel(context.Context, Cancellation) {}
func (NopRecorder) RecordError(context.Context, string, error) {}
