package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"posture-monitor/common/database"
	mqttcommon "posture-monitor/common/mqtt"
	rediscommon "posture-monitor/common/redis"
	"posture-monitor/internal/config"
	"posture-monitor/internal/repository"
)

// Infra 外部连接及存储
type Infra struct {
	DB    *sql.DB // DB 关闭时为 nil
	Redis *redis.Client
	MQTT  *mqttcommon.Client // 未使用 MQTT 时为 nil
	Repos *repository.Repositories

	logger *zap.Logger
}

// OpenInfra 连接 Redis、数据库（可选）和 MQTT（可选）
func OpenInfra(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Infra, error) {
	infra := &Infra{logger: logger}

	redisClient, err := rediscommon.Connect(ctx, &cfg.Redis)
	if err != nil {
		return nil, err
	}
	infra.Redis = redisClient

	if cfg.DBEnabled {
		db, err := database.NewPostgresDB(ctx, &cfg.Database)
		if err != nil {
			infra.Close()
			return nil, err
		}
		infra.DB = db
		if err := repository.Migrate(ctx, db); err != nil {
			infra.Close()
			return nil, fmt.Errorf("failed to migrate schema: %w", err)
		}
		infra.Repos = repository.NewPostgres(db, logger)
		logger.Info("Using PostgreSQL storage",
			zap.String("host", cfg.Database.Host),
			zap.String("database", cfg.Database.Database),
		)
	} else {
		infra.Repos = repository.NewMemory(time.Now)
		logger.Warn("DB disabled, using in-memory storage")
	}

	if cfg.NeedsMQTT() {
		client, err := mqttcommon.NewClient(&cfg.MQTT, logger)
		if err != nil {
			infra.Close()
			return nil, err
		}
		infra.MQTT = client
	}

	return infra, nil
}

// Close 关闭所有连接
func (i *Infra) Close() {
	if i.MQTT != nil {
		i.MQTT.Disconnect()
	}
	if i.DB != nil {
		if err := i.DB.Close(); err != nil {
			i.logger.Error("Failed to close database", zap.Error(err))
		}
	}
	if i.Redis != nil {
		if err := i.Redis.Close(); err != nil {
			i.logger.Error("Failed to close redis", zap.Error(err))
		}
	}
}
