package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/charging-platform/csms-gateway/internal/command"
	"github.com/charging-platform/csms-gateway/internal/config"
	"github.com/charging-platform/csms-gateway/internal/dashboard"
	"github.com/charging-platform/csms-gateway/internal/domain/protocol"
	"github.com/charging-platform/csms-gateway/internal/logger"
	ocpp16handler "github.com/charging-platform/csms-gateway/internal/protocol/ocpp16"
	ocpp201handler "github.com/charging-platform/csms-gateway/internal/protocol/ocpp201"
	"github.com/charging-platform/csms-gateway/internal/session"

	"github.com/charging-platform/csms-gateway/internal/eventbus"
)

// Server HTTP/WebSocket接入层：充电桩OCPP通道、前端推送通道
// 与REST命令接口。
type Server struct {
	config   *config.Config
	registry *session.Registry
	service  *command.Service
	fanout   *dashboard.Fanout
	bus      *eventbus.Bus
	logger   *logger.Logger
	upgrader websocket.Upgrader
	started  time.Time

	httpServer *http.Server
}

// NewServer 创建接入层
func NewServer(cfg *config.Config, registry *session.Registry, service *command.Service, fanout *dashboard.Fanout, bus *eventbus.Bus, log *logger.Logger) *Server {
	if log == nil {
		log = logger.Default()
	}
	s := &Server{
		config:   cfg,
		registry: registry,
		service:  service,
		fanout:   fanout,
		bus:      bus,
		logger:   log,
		started:  time.Now(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// 充电桩来自各家网络，不做Origin限制
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	s.httpServer = &http.Server{
		Addr:         cfg.GetServerAddr(),
		Handler:      s.Routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	return s
}

// Routes 路由表
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("GET /health", s.handleHealth)

	mux.HandleFunc("/api/ws/ocpp/{identity...}", s.handleOCPP)
	mux.HandleFunc("/api/ws/frontend", s.handleFrontend)

	mux.HandleFunc("POST /api/v1/charge-points/{id}/commands", s.handleCommands)
	mux.HandleFunc("PUT /api/v1/charge-points/{id}/set-alias", s.handleSetAlias)
	mux.HandleFunc("GET /api/v1/charge-points/{id}/settings", s.handleSettings)
	mux.HandleFunc("POST /api/v1/charge-points/{id}/enable", s.handleEnable)
	mux.HandleFunc("POST /api/v1/charge-points/{id}/disable", s.handleDisable)
	mux.HandleFunc("POST /api/v1/charge-points/{id}/start", s.handleRemoteStart)
	mux.HandleFunc("POST /api/v1/charge-points/{id}/stop", s.handleRemoteStop)
	mux.HandleFunc("POST /api/v1/charge-points/{id}/charging-current", s.handleChargingCurrent)
	mux.HandleFunc("GET /api/v1/charge-points/{id}/configuration", s.handleConfiguration)
	mux.HandleFunc("GET /api/v1/get-all-charge-points", s.handleListChargePoints)

	return mux
}

// Start 启动HTTP服务
func (s *Server) Start() error {
	s.logger.Infof("gateway listening on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown 优雅关停
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ---------------------------------------------------------------- WebSocket

// handleOCPP 充电桩接入。路径段是充电桩标识，缺失时分配一个。
func (s *Server) handleOCPP(w http.ResponseWriter, r *http.Request) {
	identity := strings.Trim(r.PathValue("identity"), "/")
	if identity == "" {
		identity = "CP-" + uuid.New().String()[:8]
		s.logger.Warnf("charge point connected without identity, assigned %s", identity)
	}

	version, matched := negotiateVersion(websocket.Subprotocols(r))
	if !matched {
		s.logger.Warnf("charge point %s offered no known subprotocol, defaulting to ocpp %s", identity, version)
	}

	responseHeader := http.Header{}
	if len(websocket.Subprotocols(r)) > 0 {
		responseHeader.Set("Sec-WebSocket-Protocol", version.Subprotocol())
	}

	conn, err := s.upgrader.Upgrade(w, r, responseHeader)
	if err != nil {
		s.logger.ErrorWithErr(err, "websocket upgrade failed")
		return
	}
	conn.SetReadLimit(s.config.OCPP.MaxMessageSize)

	var handler session.Handler
	if version == protocol.VersionV201 {
		handler = ocpp201handler.NewHandler(identity, s.bus, s.config.OCPP.HeartbeatInterval, s.logger)
	} else {
		handler = ocpp16handler.NewHandler(identity, s.bus, s.config.OCPP.HeartbeatInterval, s.logger)
	}

	sess := session.New(identity, version,
		session.NewWSChannel(conn, s.config.Server.WriteTimeout),
		handler, s.logger, s.config.OCPP.CallTimeout)

	s.registry.Register(sess)
	defer s.registry.Deregister(sess)
	sess.Run()
}

// negotiateVersion 宽容的子协议协商：逐个扫描客户端提供的
// 子协议，没有命中时回落到默认版本。
func negotiateVersion(offered []string) (protocol.Version, bool) {
	for _, sub := range offered {
		if version, matched := protocol.FromSubprotocol(sub); matched {
			return version, true
		}
	}
	return protocol.DefaultVersion, false
}

// handleFrontend 前端推送通道
func (s *Server) handleFrontend(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.ErrorWithErr(err, "frontend upgrade failed")
		return
	}
	s.fanout.Handle(conn)
}

// ---------------------------------------------------------------- REST

// commandRequest 通用命令请求体
type commandRequest struct {
	Action     string                 `json:"action"`
	Parameters map[string]interface{} `json:"parameters"`
}

// aliasRequest 别名请求体
type aliasRequest struct {
	Alias *string `json:"alias"`
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"message": "CSMS gateway running"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":         "ok",
		"sessions":       s.registry.Count(),
		"uptime_seconds": int(time.Since(s.started).Seconds()),
	})
}

func (s *Server) handleCommands(w http.ResponseWriter, r *http.Request) {
	var req commandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, command.ErrBadRequest("Invalid request body"))
		return
	}
	if req.Action == "" {
		s.writeError(w, command.ErrBadRequest("Missing 'action'"))
		return
	}
	if req.Parameters == nil {
		req.Parameters = map[string]interface{}{}
	}

	result, err := s.service.Send(r.Context(), r.PathValue("id"), req.Action, req.Parameters)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleSetAlias(w http.ResponseWriter, r *http.Request) {
	var req aliasRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, command.ErrBadRequest("Invalid request body"))
		return
	}
	id := r.PathValue("id")
	s.registry.RememberAlias(id, req.Alias)
	writeJSON(w, http.StatusOK, map[string]interface{}{"id": id, "alias": req.Alias})
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	sess, err := s.service.Session(r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	st := sess.Settings()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":           st.ChargePointID,
		"ocpp_version": st.OCPPVersion.String(),
		"active":       st.Enabled,
		"alias":        st.Alias,
	})
}

func (s *Server) handleEnable(w http.ResponseWriter, r *http.Request) {
	s.setEnabled(w, r, true)
}

func (s *Server) handleDisable(w http.ResponseWriter, r *http.Request) {
	s.setEnabled(w, r, false)
}

func (s *Server) setEnabled(w http.ResponseWriter, r *http.Request, enabled bool) {
	sess, err := s.service.Session(r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	sess.SetEnabled(enabled)
	writeJSON(w, http.StatusOK, map[string]interface{}{"id": sess.ID(), "active": enabled})
}

// handleRemoteStart 远程启动：按版本选择action，应答202
func (s *Server) handleRemoteStart(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	sess, err := s.service.Session(id)
	if err != nil {
		s.writeError(w, err)
		return
	}

	action := "RemoteStartTransaction"
	params := map[string]interface{}{"id_tag": "DEFAULT_TAG", "connector_id": 1}
	if sess.Version() == protocol.VersionV201 {
		action = "RequestStartTransaction"
		params = map[string]interface{}{"id_tag": "DEFAULT_TAG", "remote_start_id": 1234}
	}

	result, err := s.service.Send(r.Context(), id, action, params)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, result)
}

// handleRemoteStop 远程停止：按版本选择action，应答202
func (s *Server) handleRemoteStop(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	sess, err := s.service.Session(id)
	if err != nil {
		s.writeError(w, err)
		return
	}

	action := "RemoteStopTransaction"
	if sess.Version() == protocol.VersionV201 {
		action = "RequestStopTransaction"
	}

	result, err := s.service.Send(r.Context(), id, action, map[string]interface{}{"transaction_id": 1})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, result)
}

// handleChargingCurrent 设置充电电流。请求体是裸JSON整数。
// 1.6走ChangeConfiguration，2.0.1走SetVariables。
func (s *Server) handleChargingCurrent(w http.ResponseWriter, r *http.Request) {
	var current int
	if err := json.NewDecoder(r.Body).Decode(&current); err != nil || current < 1 {
		s.writeError(w, command.ErrBadRequest("Body must be an integer >= 1"))
		return
	}

	id := r.PathValue("id")
	sess, err := s.service.Session(id)
	if err != nil {
		s.writeError(w, err)
		return
	}

	var result map[string]interface{}
	if sess.Version() == protocol.VersionV201 {
		result, err = s.service.Send(r.Context(), id, "SetVariables", map[string]interface{}{
			"key": map[string]interface{}{
				"component":     map[string]interface{}{"name": "SmartChargingCtrlr"},
				"variable_name": "ChargingCurrent",
			},
			"value": strconv.Itoa(current),
		})
	} else {
		result, err = s.service.Send(r.Context(), id, "ChangeConfiguration", map[string]interface{}{
			"key":   "MaxChargingCurrent",
			"value": strconv.Itoa(current),
		})
	}
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleConfiguration(w http.ResponseWriter, r *http.Request) {
	result, err := s.service.Configuration(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleListChargePoints 在线充电桩列表，active参数可过滤启用状态
func (s *Server) handleListChargePoints(w http.ResponseWriter, r *http.Request) {
	var filter *bool
	if raw := r.URL.Query().Get("active"); raw != "" {
		active, err := strconv.ParseBool(raw)
		if err != nil {
			s.writeError(w, command.ErrBadRequest("Invalid 'active' query parameter"))
			return
		}
		filter = &active
	}

	items := make([]map[string]interface{}, 0)
	for _, info := range s.registry.List() {
		if filter != nil && info.Enabled != *filter {
			continue
		}
		items = append(items, map[string]interface{}{
			"id":           info.ChargePointID,
			"ocpp_version": info.OCPPVersion.String(),
			"active":       info.Enabled,
			"alias":        info.Alias,
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"connected": items})
}

// ---------------------------------------------------------------- helpers

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// writeError APIError携带HTTP状态，其余错误一律500
func (s *Server) writeError(w http.ResponseWriter, err error) {
	var apiErr *command.APIError
	if errors.As(err, &apiErr) {
		writeJSON(w, apiErr.Status, map[string]interface{}{"detail": apiErr.Detail})
		return
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		writeJSON(w, http.StatusGatewayTimeout, map[string]interface{}{"detail": "Request canceled"})
		return
	}
	s.logger.ErrorWithErr(err, "unhandled request error")
	writeJSON(w, http.StatusInternalServerError, map[string]interface{}{"detail": fmt.Sprintf("Internal error: %v", err)})
}
