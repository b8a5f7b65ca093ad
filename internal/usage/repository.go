package usage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/park285/clarification-agent-go/internal/config"
)

const (
	defaultRecentDays = 7
	defaultTotalDays  = 30
)

// Repository 는 usage DB 접근을 담당한다. 연결은 첫 사용 시점에 연다.
type Repository struct {
	cfg    config.DatabaseConfig
	logger *slog.Logger
	mu     sync.Mutex
	db     *gorm.DB
}

// NewRepository 는 usage 저장소를 생성한다.
func NewRepository(cfg config.DatabaseConfig, logger *slog.Logger) *Repository {
	return &Repository{cfg: cfg, logger: logger}
}

// RecordUsage 는 지정한 날짜(또는 오늘)의 토큰 사용량을 누적 저장한다.
func (r *Repository) RecordUsage(ctx context.Context, delta Delta, usageDate time.Time) error {
	if delta.empty() {
		return nil
	}
	db, err := r.getDB(ctx)
	if err != nil {
		return err
	}

	targetDate := todayDate()
	if !usageDate.IsZero() {
		targetDate = truncateDate(usageDate)
	}
	row := TokenUsage{
		UsageDate:       targetDate,
		InputTokens:     delta.InputTokens,
		OutputTokens:    delta.OutputTokens,
		ReasoningTokens: delta.ReasoningTokens,
		RequestCount:    delta.RequestCount,
	}

	// postgres 와 sqlite 모두 ON CONFLICT ... DO UPDATE 와 excluded 참조를 지원합니다.
	err = db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "usage_date"}},
		DoUpdates: clause.Assignments(map[string]any{
			"input_tokens":     gorm.Expr("token_usage.input_tokens + excluded.input_tokens"),
			"output_tokens":    gorm.Expr("token_usage.output_tokens + excluded.output_tokens"),
			"reasoning_tokens": gorm.Expr("token_usage.reasoning_tokens + excluded.reasoning_tokens"),
			"request_count":    gorm.Expr("token_usage.request_count + excluded.request_count"),
			"version":          gorm.Expr("token_usage.version + 1"),
		}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("upsert token usage: %w", err)
	}
	return nil
}

// GetDailyUsage 는 특정 날짜(또는 오늘)의 사용량을 조회한다. 기록이 없으면 nil 이다.
func (r *Repository) GetDailyUsage(ctx context.Context, usageDate time.Time) (*DailyUsage, error) {
	db, err := r.getDB(ctx)
	if err != nil {
		return nil, err
	}

	targetDate := todayDate()
	if !usageDate.IsZero() {
		targetDate = truncateDate(usageDate)
	}

	var row TokenUsage
	result := db.WithContext(ctx).Where("usage_date = ?", targetDate).Limit(1).Find(&row)
	if result.Error != nil {
		return nil, fmt.Errorf("get daily usage: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, nil
	}
	daily := row.daily()
	return &daily, nil
}

// GetRecentUsage 는 최근 N개 일자의 사용량을 최신순으로 조회한다.
func (r *Repository) GetRecentUsage(ctx context.Context, days int) ([]DailyUsage, error) {
	db, err := r.getDB(ctx)
	if err != nil {
		return nil, err
	}
	if days <= 0 {
		days = defaultRecentDays
	}

	var rows []TokenUsage
	if err := db.WithContext(ctx).Order("usage_date desc").Limit(days).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("get recent usage: %w", err)
	}
	usages := make([]DailyUsage, 0, len(rows))
	for _, row := range rows {
		usages = append(usages, row.daily())
	}
	return usages, nil
}

// GetTotalUsage 는 오늘을 포함한 최근 N일 합계를 조회한다.
func (r *Repository) GetTotalUsage(ctx context.Context, days int) (DailyUsage, error) {
	db, err := r.getDB(ctx)
	if err != nil {
		return DailyUsage{}, err
	}
	if days <= 0 {
		days = defaultTotalDays
	}
	today := todayDate()
	since := today.AddDate(0, 0, -(days - 1))

	var total struct {
		InputTokens     int64
		OutputTokens    int64
		ReasoningTokens int64
		RequestCount    int64
	}
	err = db.WithContext(ctx).Model(&TokenUsage{}).
		Select(
			"COALESCE(SUM(input_tokens), 0) AS input_tokens, "+
				"COALESCE(SUM(output_tokens), 0) AS output_tokens, "+
				"COALESCE(SUM(reasoning_tokens), 0) AS reasoning_tokens, "+
				"COALESCE(SUM(request_count), 0) AS request_count",
		).
		Where("usage_date >= ?", since).
		Scan(&total).Error
	if err != nil {
		return DailyUsage{}, fmt.Errorf("get total usage: %w", err)
	}

	return DailyUsage{
		UsageDate:       today,
		InputTokens:     total.InputTokens,
		OutputTokens:    total.OutputTokens,
		ReasoningTokens: total.ReasoningTokens,
		RequestCount:    total.RequestCount,
	}, nil
}

// Ping: DB 연결을 확인합니다.
func (r *Repository) Ping(ctx context.Context) error {
	db, err := r.getDB(ctx)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get usage db handle: %w", err)
	}
	return sqlDB.PingContext(ctx)
}

// Close 는 DB 연결을 닫는다.
func (r *Repository) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.db == nil {
		return
	}
	if sqlDB, err := r.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	r.db = nil
}

func (r *Repository) getDB(ctx context.Context) (*gorm.DB, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.db != nil {
		return r.db, nil
	}
	if !r.cfg.Enabled {
		return nil, errors.New("usage database disabled")
	}

	dialector := postgres.Open(r.cfg.DSN())
	if r.cfg.IsSQLite() {
		dialector = sqlite.Open(r.cfg.DSN())
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("open usage db: %w", err)
	}
	if err := db.WithContext(ctx).AutoMigrate(&TokenUsage{}); err != nil {
		return nil, fmt.Errorf("prepare usage db: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get usage db handle: %w", err)
	}
	if r.cfg.IsSQLite() {
		// sqlite 는 단일 writer 라 연결을 하나로 고정합니다.
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxIdleConns(r.cfg.MinPool)
		sqlDB.SetMaxOpenConns(r.cfg.MaxPool)
		if r.cfg.ConnMaxLifetimeMinutes > 0 {
			sqlDB.SetConnMaxLifetime(time.Duration(r.cfg.ConnMaxLifetimeMinutes) * time.Minute)
		}
	}

	if r.logger != nil {
		r.logger.Info("usage_db_connected", "driver", r.cfg.Driver, "name", r.cfg.Name)
	}
	r.db = db
	return db, nil
}
