package session

import (
	"context"
	"sync"
	"time"

	"github.com/charging-platform/csms-gateway/internal/eventbus"
	"github.com/charging-platform/csms-gateway/internal/logger"
	"github.com/charging-platform/csms-gateway/internal/metrics"
	"github.com/charging-platform/csms-gateway/internal/settings"
)

// Registry 在线会话注册表。同一充电桩标识最多一条会话，
// 新连接会顶掉旧连接。别名在断线后存活于本地缓存，
// 并尽力镜像到设置仓库。
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	aliases  map[string]*string

	bus    *eventbus.Bus
	repo   settings.Repository
	logger *logger.Logger
}

// NewRegistry 创建注册表。repo可以是NoopRepository。
func NewRegistry(bus *eventbus.Bus, repo settings.Repository, log *logger.Logger) *Registry {
	if log == nil {
		log = logger.Default()
	}
	if repo == nil {
		repo = settings.NewNoopRepository()
	}
	return &Registry{
		sessions: make(map[string]*Session),
		aliases:  make(map[string]*string),
		bus:      bus,
		repo:     repo,
		logger:   log,
	}
}

// Register 注册会话。同标识的旧会话先被关闭并注销，
// 随后从别名缓存注入别名。
func (r *Registry) Register(s *Session) {
	r.mu.Lock()
	evicted := r.sessions[s.ID()]
	if evicted != nil {
		r.logger.Warnf("evicting stale session for %s", s.ID())
		delete(r.sessions, s.ID())
		metrics.ActiveSessions.Dec()
	}
	if alias, exists := r.aliases[s.ID()]; exists {
		s.SetAlias(alias)
	}
	r.sessions[s.ID()] = s
	metrics.ActiveSessions.Inc()
	r.mu.Unlock()

	if evicted != nil {
		evicted.Close()
		r.publishDisconnected(evicted)
	}

	r.bus.Publish(eventbus.TopicChargePointConnected, s.ID(), s.Version().String(), nil)
	r.mirror(s)
	r.logger.Infof("charge point %s registered (ocpp %s)", s.ID(), s.Version())
}

// Deregister 注销会话。只接受当前登记的同一实例，
// 被顶掉的旧会话在这里是no-op，断开事件不会重复发布。
func (r *Registry) Deregister(s *Session) {
	r.mu.Lock()
	stored := r.sessions[s.ID()]
	if stored != s {
		r.mu.Unlock()
		return
	}
	delete(r.sessions, s.ID())
	r.aliases[s.ID()] = s.Settings().Alias
	metrics.ActiveSessions.Dec()
	r.mu.Unlock()

	s.Close()
	r.publishDisconnected(s)
	r.mirror(s)
	r.logger.Infof("charge point %s deregistered", s.ID())
}

// Get 查找在线会话
func (r *Registry) Get(chargePointID string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, exists := r.sessions[chargePointID]
	return s, exists
}

// List 当前在线充电桩快照
func (r *Registry) List() []ChargePointInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]ChargePointInfo, 0, len(r.sessions))
	for _, s := range r.sessions {
		st := s.Settings()
		infos = append(infos, ChargePointInfo{
			ChargePointID: st.ChargePointID,
			Alias:         st.Alias,
			Enabled:       st.Enabled,
			OCPPVersion:   st.OCPPVersion,
			Connected:     true,
		})
	}
	return infos
}

// Count 在线会话数
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// RememberAlias 更新别名缓存，在线会话同步生效并镜像到仓库
func (r *Registry) RememberAlias(chargePointID string, alias *string) {
	r.mu.Lock()
	r.aliases[chargePointID] = alias
	live := r.sessions[chargePointID]
	r.mu.Unlock()

	if live != nil {
		live.SetAlias(alias)
		r.mirror(live)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := r.repo.Upsert(ctx, settings.Record{
		ChargePointID: chargePointID,
		Alias:         alias,
	}); err != nil {
		r.logger.Warnf("settings mirror for %s failed: %v", chargePointID, err)
	}
}

// PreloadAliases 启动时从仓库恢复别名缓存
func (r *Registry) PreloadAliases(records []settings.Record) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, record := range records {
		if record.Alias != nil {
			r.aliases[record.ChargePointID] = record.Alias
		}
	}
	r.logger.Infof("preloaded %d charge point aliases", len(r.aliases))
}

// CloseAll 关停时注销所有会话
func (r *Registry) CloseAll() {
	r.mu.Lock()
	all := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		all = append(all, s)
	}
	r.mu.Unlock()

	for _, s := range all {
		r.Deregister(s)
	}
}

// publishDisconnected 发布断开事件，随会话移除恰好一次
func (r *Registry) publishDisconnected(s *Session) {
	r.bus.Publish(eventbus.TopicChargePointDisconnected, s.ID(), s.Version().String(), nil)
}

// mirror 尽力把设置写回仓库，失败只记录
func (r *Registry) mirror(s *Session) {
	st := s.Settings()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := r.repo.Upsert(ctx, settings.Record{
		ChargePointID: st.ChargePointID,
		Alias:         st.Alias,
		Enabled:       st.Enabled,
		OCPPVersion:   st.OCPPVersion.String(),
	}); err != nil {
		r.logger.Warnf("settings mirror for %s failed: %v", st.ChargePointID, err)
	}
}
