package settings

import "context"

// Record 一个充电桩的持久化设置
type Record struct {
	ChargePointID string  `json:"charge_point_id"`
	Alias         *string `json:"alias"`
	Enabled       bool    `json:"enabled"`
	OCPPVersion   string  `json:"ocpp_version"`
}

// Repository 设置仓库。网关对仓库故障保持宽容：
// 调用方把错误当作降级信号记录日志，不中断业务流程。
type Repository interface {
	// Upsert 写入或更新一条设置
	Upsert(ctx context.Context, record Record) error
	// Load 读取单个充电桩的设置
	Load(ctx context.Context, chargePointID string) (*Record, error)
	// LoadAll 读取全部已知设置，启动时用于预热别名缓存
	LoadAll(ctx context.Context) ([]Record, error)
	// Close 释放底层连接
	Close() error
}

// noopRepository 无持久化的空实现，仓库不可用时的降级选择
type noopRepository struct{}

// NewNoopRepository 创建空仓库
func NewNoopRepository() Repository {
	return noopRepository{}
}

func (noopRepository) Upsert(ctx context.Context, record Record) error {
	return nil
}

func (noopRepository) Load(ctx context.Context, chargePointID string) (*Record, error) {
	return nil, nil
}

func (noopRepository) LoadAll(ctx context.Context) ([]Record, error) {
	return nil, nil
}

func (noopRepository) Close() error {
	return nil
}
