package settings

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-redis/redis/v8"

	"github.com/charging-platform/csms-gateway/internal/logger"
)

// Redis键前缀，每个充电桩一个hash
const keyPrefix = "csms:cp:settings:"

// redisRepository 基于Redis hash的设置仓库
type redisRepository struct {
	client *redis.Client
	logger *logger.Logger
}

// NewRedisRepository 创建Redis仓库。连接探测失败不视为致命，
// 调用方可以选择降级为NoopRepository。
func NewRedisRepository(client *redis.Client, log *logger.Logger) (Repository, error) {
	if log == nil {
		log = logger.Default()
	}
	ctx, cancel := context.WithTimeout(context.Background(), client.Options().DialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return &redisRepository{client: client, logger: log}, nil
}

// NewRedisRepositoryWithClient 测试注入用，跳过连接探测
func NewRedisRepositoryWithClient(client *redis.Client, log *logger.Logger) Repository {
	if log == nil {
		log = logger.Default()
	}
	return &redisRepository{client: client, logger: log}
}

func key(chargePointID string) string {
	return keyPrefix + chargePointID
}

// Upsert 写入一条设置
func (r *redisRepository) Upsert(ctx context.Context, record Record) error {
	fields := map[string]interface{}{
		"enabled":      boolField(record.Enabled),
		"ocpp_version": record.OCPPVersion,
	}
	if record.Alias != nil {
		fields["alias"] = *record.Alias
	}

	pipe := r.client.TxPipeline()
	if record.Alias == nil {
		pipe.HDel(ctx, key(record.ChargePointID), "alias")
	}
	pipe.HSet(ctx, key(record.ChargePointID), fields)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("upsert settings for %s: %w", record.ChargePointID, err)
	}
	return nil
}

// Load 读取单条设置，不存在时返回nil
func (r *redisRepository) Load(ctx context.Context, chargePointID string) (*Record, error) {
	fields, err := r.client.HGetAll(ctx, key(chargePointID)).Result()
	if err != nil {
		return nil, fmt.Errorf("load settings for %s: %w", chargePointID, err)
	}
	if len(fields) == 0 {
		return nil, nil
	}
	record := fromFields(chargePointID, fields)
	return &record, nil
}

// LoadAll 扫描全部设置
func (r *redisRepository) LoadAll(ctx context.Context) ([]Record, error) {
	var records []Record
	iter := r.client.Scan(ctx, 0, keyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		fullKey := iter.Val()
		fields, err := r.client.HGetAll(ctx, fullKey).Result()
		if err != nil {
			r.logger.Warnf("skip settings key %s: %v", fullKey, err)
			continue
		}
		if len(fields) == 0 {
			continue
		}
		records = append(records, fromFields(strings.TrimPrefix(fullKey, keyPrefix), fields))
	}
	if err := iter.Err(); err != nil {
		return records, fmt.Errorf("scan settings: %w", err)
	}
	return records, nil
}

// Close 关闭Redis连接
func (r *redisRepository) Close() error {
	return r.client.Close()
}

func boolField(v bool) string {
	if v {
		return "1"
	}
	return "0"
}

func fromFields(chargePointID string, fields map[string]string) Record {
	record := Record{
		ChargePointID: chargePointID,
		Enabled:       fields["enabled"] == "1",
		OCPPVersion:   fields["ocpp_version"],
	}
	if alias, exists := fields["alias"]; exists {
		record.Alias = &alias
	}
	return record
}
