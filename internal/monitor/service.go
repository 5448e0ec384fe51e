package monitor

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"follow-mm/internal/ladder"
	"follow-mm/internal/store"
)

// Service 将引擎活动写入指标与活动日志。
// 未配置数据库时只更新指标，ListEvents 返回空列表。
type Service struct {
	db      *sql.DB
	metrics *Metrics
	runID   string
	logger  *zap.Logger
}

var _ ladder.Recorder = (*Service)(nil)

// NewService 初始化监控服务，store 为空时不写活动日志。
func NewService(store *store.Store, metrics *Metrics, runID string, logger *zap.Logger) (*Service, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = NewMetrics()
	}

	s := &Service{
		metrics: metrics,
		runID:   runID,
		logger:  logger,
	}
	if store == nil {
		return s, nil
	}

	s.db = store.DB()
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

// Metrics 返回指标集合。
func (s *Service) Metrics() *Metrics {
	return s.metrics
}

// JournalEnabled 表示是否写入活动日志。
func (s *Service) JournalEnabled() bool {
	return s.db != nil
}

func (s *Service) initSchema() error {
	stmt := `
CREATE TABLE IF NOT EXISTS monitor_events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	event_type TEXT NOT NULL,
	payload TEXT NOT NULL,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_monitor_events_type ON monitor_events(event_type);
`
	if _, err := s.db.Exec(stmt); err != nil {
		return fmt.Errorf("monitor: 初始化表失败: %w", err)
	}
	return nil
}

// Record 写入单个事件。
func (s *Service) Record(ctx context.Context, event Event) error {
	if s.db == nil {
		return nil
	}

	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("monitor: 序列化事件失败: %w", err)
	}

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO monitor_events (event_type, payload, created_at) VALUES (?, ?, ?)`,
		string(event.Type), string(payload), event.Timestamp.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("monitor: 写入事件失败: %w", err)
	}

	return nil
}

// RecordCycle 记录重置或补单周期。
func (s *Service) RecordCycle(ctx context.Context, report ladder.CycleReport) {
	side := string(report.Side)
	s.metrics.cycles.WithLabelValues(side, string(report.Kind)).Inc()

	typ := EventTopup
	if report.Kind == ladder.CycleRebase {
		typ = EventRebase
		s.metrics.anchor.WithLabelValues(side, report.Ticker).Set(report.Anchor)
	}

	if err := s.Record(ctx, Event{
		Type:      typ,
		Timestamp: report.At,
		Payload:   CyclePayload{RunID: s.runID, Report: report},
	}); err != nil {
		s.logger.Warn("记录周期事件失败", zap.Error(err))
	}
}

// RecordPlacement 记录下单尝试。
func (s *Service) RecordPlacement(ctx context.Context, p ladder.Placement) {
	s.metrics.placements.WithLabelValues(string(p.Side), result(p.OK)).Inc()
	if err := s.Record(ctx, Event{
		Type:      EventPlacement,
		Timestamp: p.At,
		Payload:   PlacementPayload{RunID: s.runID, Placement: p},
	}); err != nil {
		s.logger.Warn("记录下单事件失败", zap.Error(err))
	}
}

// RecordCancel 记录撤单尝试。
func (s *Service) RecordCancel(ctx context.Context, c ladder.Cancellation) {
	s.metrics.cancels.WithLabelValues(string(c.Side), result(c.OK)).Inc()
	if err := s.Record(ctx, Event{
		Type:      EventCancel,
		Timestamp: c.At,
		Payload:   CancelPayload{RunID: s.runID, Cancel: c},
	}); err != nil {
		s.logger.Warn("记录撤单事件失败", zap.Error(err))
	}
}

// RecordError 记录被吞掉的单步异常。
func (s *Service) RecordError(ctx context.Context, op string, err error) {
	if err == nil {
		return
	}
	s.metrics.errors.WithLabelValues(op).Inc()
	if recErr := s.Record(ctx, Event{
		Type:      EventError,
		Timestamp: time.Now().UTC(),
		Payload:   ErrorPayload{RunID: s.runID, Op: op, Error: err.Error()},
	}); recErr != nil {
		s.logger.Warn("记录异常事件失败", zap.Error(recErr))
	}
}

// ListEvents 按类型检索最近事件。
func (s *Service) ListEvents(ctx context.Context, eventType EventType, limit int) ([]Event, error) {
	if s.db == nil {
		return []Event{}, nil
	}
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT event_type, payload, created_at FROM monitor_events`
	args := make([]interface{}, 0, 2)
	if eventType != "" {
		query += ` WHERE event_type = ?`
		args = append(args, string(eventType))
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("monitor: 查询事件失败: %w", err)
	}
	defer rows.Close()

	events := make([]Event, 0, limit)
	for rows.Next() {
		var (
			typ     string
			payload string
			created string
		)
		if scanErr := rows.Scan(&typ, &payload, &created); scanErr != nil {
			return nil, fmt.Errorf("monitor: 解析事件失败: %w", scanErr)
		}

		ts, parseErr := time.Parse(time.RFC3339Nano, created)
		if parseErr != nil {
			ts = time.Now().UTC()
		}

		events = append(events, Event{
			Type:      EventType(typ),
			Timestamp: ts,
			Payload:   json.RawMessage(payload),
		})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("monitor: 读取事件失败: %w", err)
	}

	return events, nil
}
