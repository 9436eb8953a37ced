package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"wakeclock/internal/config"
	"wakeclock/internal/notify"
	"wakeclock/internal/repository"
	"wakeclock/internal/ringer"
	"wakeclock/internal/store"
	"wakeclock/pkg/database"
	"wakeclock/pkg/mqttutil"
	"wakeclock/pkg/redisutil"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// AlarmClockService 闹钟服务（整合各层）
type AlarmClockService struct {
	config      *config.Config
	db          *sql.DB
	redisClient *redis.Client
	mqttClient  *mqttutil.Client
	logger      *zap.Logger

	scheduleStore *store.ScheduleStore
	poller        *ringer.Poller
}

// NewAlarmClockService 创建闹钟服务
func NewAlarmClockService(cfg *config.Config, logger *zap.Logger) (*AlarmClockService, error) {
	// 1. 连接 Redis（响铃事件流与缓存始终需要）
	redisClient := redisutil.NewRedisClient(&cfg.Redis)

	ctx := context.Background()
	if err := redisutil.Ping(ctx, redisClient); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	// 2. 按配置选择持久化后端
	var db *sql.DB
	var persistence store.Persistence
	switch cfg.Storage.Backend {
	case config.StorageBackendPostgres:
		var err error
		db, err = database.NewPostgresDB(&cfg.Database)
		if err != nil {
			redisClient.Close()
			return nil, fmt.Errorf("failed to connect database: %w", err)
		}
		persistence = repository.NewPostgresAlarmRepository(db, logger)
	case config.StorageBackendRedis:
		persistence = repository.NewRedisAlarmRepository(redisClient, cfg.Alarm.Cache.AlarmsKey, logger)
	default:
		redisClient.Close()
		return nil, fmt.Errorf("unknown storage backend: %s", cfg.Storage.Backend)
	}

	// 3. 连接 MQTT（提醒下发）
	mqttClient, err := mqttutil.NewClient(&cfg.MQTT)
	if err != nil {
		if db != nil {
			database.Close(db)
		}
		redisClient.Close()
		return nil, fmt.Errorf("failed to connect MQTT broker: %w", err)
	}

	// 4. 创建调度器与存储
	scheduler := notify.NewMQTTReminderScheduler(
		mqttClient,
		cfg.Alarm.Notify.TopicPrefix,
		byte(cfg.Alarm.Notify.QoS),
		logger,
	)
	scheduleStore := store.NewScheduleStore(persistence, scheduler, logger)

	// 5. 创建响铃发布器与轮询器
	publisher := ringer.NewRingPublisher(
		redisClient,
		cfg.Alarm.Cache.RingStreamName,
		cfg.Alarm.Cache.NextAlarmKey,
		time.Duration(cfg.Alarm.Cache.NextAlarmTTL)*time.Second,
		logger,
	)
	poller := ringer.NewPoller(cfg, scheduleStore, publisher, logger)

	logger.Info("Alarm clock service initialized",
		zap.String("storage_backend", cfg.Storage.Backend),
	)

	return &AlarmClockService{
		config:        cfg,
		db:            db,
		redisClient:   redisClient,
		mqttClient:    mqttClient,
		logger:        logger,
		scheduleStore: scheduleStore,
		poller:        poller,
	}, nil
}

// Store 返回闹钟调度存储（供嵌入方调用状态迁移操作）
func (s *AlarmClockService) Store() *store.ScheduleStore {
	return s.scheduleStore
}

// Start 启动服务（阻塞运行轮询器直到 ctx 取消）
func (s *AlarmClockService) Start(ctx context.Context) error {
	return s.poller.Start(ctx)
}

// Stop 停止服务并释放连接
func (s *AlarmClockService) Stop() {
	if s.mqttClient != nil {
		s.mqttClient.Disconnect()
	}
	if s.db != nil {
		if err := database.Close(s.db); err != nil {
			s.logger.Error("Failed to close database", zap.Error(err))
		}
	}
	if s.redisClient != nil {
		if err := s.redisClient.Close(); err != nil {
			s.logger.Error("Failed to close redis client", zap.Error(err))
		}
	}
	s.logger.Info("Alarm clock service stopped")
}
