package sql

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql" // MySQL driver
	_ "github.com/lib/pq"              // PostgreSQL driver
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"tempmail/portal/internal/domain"
)

// Store SQL 数据库配额存储（支持 MySQL 5.7+ 和 PostgreSQL）。
//
// 迁移走 GORM AutoMigrate，读写走 database/sql：用量自增必须是单条
// upsert 语句，读改写回的方式在并发创建时会丢计数。
type Store struct {
	db         *sql.DB
	gormDB     *gorm.DB // GORM 实例，仅用于迁移
	driverName string   // "mysql" or "postgres"
}

// NewStore 创建 SQL 配额存储。
func NewStore(
	driverName string,
	dsn string,
	maxOpenConns int,
	maxIdleConns int,
	connMaxLifetime time.Duration,
) (*Store, error) {
	if driverName != "mysql" && driverName != "postgres" {
		return nil, fmt.Errorf("unsupported database driver: %s (supported: mysql, postgres)", driverName)
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}

	var gormDB *gorm.DB
	if driverName == "mysql" {
		gormDB, err = gorm.Open(mysql.New(mysql.Config{Conn: db}), gormConfig)
	} else {
		gormDB, err = gorm.Open(postgres.New(postgres.Config{Conn: db}), gormConfig)
	}
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize GORM: %w", err)
	}

	store := &Store{
		db:         db,
		gormDB:     gormDB,
		driverName: driverName,
	}

	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// migrate 执行数据库迁移（使用 GORM AutoMigrate）
func (s *Store) migrate() error {
	if s.gormDB == nil {
		return nil
	}
	return s.gormDB.AutoMigrate(&domain.UserPlan{})
}

// GetPlan 读取用户套餐记录。
func (s *Store) GetPlan(ctx context.Context, userID string) (*domain.UserPlan, error) {
	query := fmt.Sprintf(
		`SELECT user_id, plan_type, emails_used_today, last_email_date, created_at, updated_at
		 FROM user_plans WHERE user_id = %s`,
		s.placeholder(1),
	)

	var plan domain.UserPlan
	err := s.db.QueryRowContext(ctx, query, userID).Scan(
		&plan.UserID,
		&plan.PlanType,
		&plan.EmailsUsedToday,
		&plan.LastEmailDate,
		&plan.CreatedAt,
		&plan.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, domain.ErrPlanNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get plan: %w", err)
	}
	return &plan, nil
}

// IncrementUsage 原子地为指定日期的用量加一。
//
// 单条 upsert：记录不存在时以用量 1 初始化；记录存在但日期变了
// 说明跨天，计数从 1 重新开始。
func (s *Store) IncrementUsage(ctx context.Context, userID, date string) error {
	var query string
	if s.driverName == "postgres" {
		query = `INSERT INTO user_plans (user_id, plan_type, emails_used_today, last_email_date, created_at, updated_at)
			 VALUES ($1, 'free', 1, $2, NOW(), NOW())
			 ON CONFLICT (user_id) DO UPDATE SET
				 emails_used_today = CASE
					 WHEN user_plans.last_email_date = EXCLUDED.last_email_date
					 THEN user_plans.emails_used_today + 1
					 ELSE 1
				 END,
				 last_email_date = EXCLUDED.last_email_date,
				 updated_at = NOW()`
	} else {
		query = `INSERT INTO user_plans (user_id, plan_type, emails_used_today, last_email_date, created_at, updated_at)
			 VALUES (?, 'free', 1, ?, NOW(), NOW())
			 ON DUPLICATE KEY UPDATE
				 emails_used_today = IF(last_email_date = VALUES(last_email_date), emails_used_today + 1, 1),
				 last_email_date = VALUES(last_email_date),
				 updated_at = NOW()`
	}

	if _, err := s.db.ExecContext(ctx, query, userID, date); err != nil {
		return fmt.Errorf("failed to increment usage: %w", err)
	}
	return nil
}

// SetPlanType 设置用户套餐类型，记录不存在则创建。
func (s *Store) SetPlanType(ctx context.Context, userID string, planType domain.PlanType) error {
	var query string
	if s.driverName == "postgres" {
		query = `INSERT INTO user_plans (user_id, plan_type, emails_used_today, last_email_date, created_at, updated_at)
			 VALUES ($1, $2, 0, '', NOW(), NOW())
			 ON CONFLICT (user_id) DO UPDATE SET
				 plan_type = EXCLUDED.plan_type,
				 updated_at = NOW()`
	} else {
		query = `INSERT INTO user_plans (user_id, plan_type, emails_used_today, last_email_date, created_at, updated_at)
			 VALUES (?, ?, 0, '', NOW(), NOW())
			 ON DUPLICATE KEY UPDATE
				 plan_type = VALUES(plan_type),
				 updated_at = NOW()`
	}

	if _, err := s.db.ExecContext(ctx, query, userID, string(planType)); err != nil {
		return fmt.Errorf("failed to set plan type: %w", err)
	}
	return nil
}

// Health 检查数据库健康状态
func (s *Store) Health() error {
	if s.db == nil {
		return fmt.Errorf("database connection is nil")
	}
	return s.db.Ping()
}

// Close 关闭数据库连接
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// placeholder 根据数据库类型返回占位符
func (s *Store) placeholder(n int) string {
	if s.driverName == "postgres" {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}
