package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"wakeclock/internal/models"

	"go.uber.org/zap"
)

// PostgresAlarmRepository 闹钟集合的 PostgreSQL 持久化（对应 alarms 表）
// 实现 store.Persistence 契约：SaveAll 以集合整体替换语义落库
//
// 建表参考（timestamptz 保证 next_ring_time 以绝对时刻往返）：
//
//	CREATE TABLE alarms (
//	    id              UUID PRIMARY KEY,
//	    name            TEXT NOT NULL,
//	    hour            INT NOT NULL,
//	    minute          INT NOT NULL,
//	    repeat_days     JSONB NOT NULL DEFAULT '[]',
//	    active          BOOLEAN NOT NULL DEFAULT TRUE,
//	    wake_up         JSONB NOT NULL,
//	    next_ring_time  TIMESTAMPTZ,
//	    notification_id TEXT,
//	    created_at      TIMESTAMPTZ NOT NULL,
//	    updated_at      TIMESTAMPTZ NOT NULL
//	);
type PostgresAlarmRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPostgresAlarmRepository 创建 PostgreSQL 闹钟仓库
func NewPostgresAlarmRepository(db *sql.DB, logger *zap.Logger) *PostgresAlarmRepository {
	return &PostgresAlarmRepository{
		db:     db,
		logger: logger,
	}
}

// LoadAll 加载全部闹钟记录
func (r *PostgresAlarmRepository) LoadAll(ctx context.Context) ([]models.Alarm, error) {
	query := `
		SELECT
			id,
			name,
			hour,
			minute,
			repeat_days,
			active,
			wake_up,
			next_ring_time,
			notification_id,
			created_at,
			updated_at
		FROM alarms
		ORDER BY created_at
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query alarms: %w", err)
	}
	defer rows.Close()

	var alarms []models.Alarm
	for rows.Next() {
		var alarm models.Alarm
		var repeatDaysJSON, wakeUpJSON []byte
		var nextRingTime sql.NullTime
		var notificationID sql.NullString

		err := rows.Scan(
			&alarm.ID,
			&alarm.Name,
			&alarm.Hour,
			&alarm.Minute,
			&repeatDaysJSON,
			&alarm.Active,
			&wakeUpJSON,
			&nextRingTime,
			&notificationID,
			&alarm.CreatedAt,
			&alarm.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alarm: %w", err)
		}

		if err := json.Unmarshal(repeatDaysJSON, &alarm.RepeatDays); err != nil {
			return nil, fmt.Errorf("failed to unmarshal repeat_days: %w", err)
		}
		if err := json.Unmarshal(wakeUpJSON, &alarm.WakeUp); err != nil {
			return nil, fmt.Errorf("failed to unmarshal wake_up: %w", err)
		}
		if nextRingTime.Valid {
			t := nextRingTime.Time
			alarm.NextRingTime = &t
		}
		if notificationID.Valid {
			id := notificationID.String
			alarm.NotificationID = &id
		}

		alarms = append(alarms, alarm)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate alarms: %w", err)
	}

	return alarms, nil
}

// SaveAll 保存全部闹钟记录（单事务内整体替换）
func (r *PostgresAlarmRepository) SaveAll(ctx context.Context, alarms []models.Alarm) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM alarms`); err != nil {
		return fmt.Errorf("failed to clear alarms: %w", err)
	}

	insertQuery := `
		INSERT INTO alarms (
			id, name, hour, minute, repeat_days, active,
			wake_up, next_ring_time, notification_id, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	for _, alarm := range alarms {
		repeatDaysJSON, err := json.Marshal(alarm.RepeatDays)
		if err != nil {
			return fmt.Errorf("failed to marshal repeat_days: %w", err)
		}
		wakeUpJSON, err := json.Marshal(alarm.WakeUp)
		if err != nil {
			return fmt.Errorf("failed to marshal wake_up: %w", err)
		}

		var nextRingTime interface{}
		if alarm.NextRingTime != nil {
			nextRingTime = alarm.NextRingTime.UTC()
		}
		var notificationID interface{}
		if alarm.NotificationID != nil {
			notificationID = *alarm.NotificationID
		}

		_, err = tx.ExecContext(ctx, insertQuery,
			alarm.ID,
			alarm.Name,
			alarm.Hour,
			alarm.Minute,
			repeatDaysJSON,
			alarm.Active,
			wakeUpJSON,
			nextRingTime,
			notificationID,
			alarm.CreatedAt.UTC(),
			alarm.UpdatedAt.UTC(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert alarm %s: %w", alarm.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	r.logger.Debug("Saved alarms",
		zap.Int("alarm_count", len(alarms)),
	)

	return nil
}
