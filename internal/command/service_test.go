package command

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charging-platform/csms-gateway/internal/domain/protocol"
	"github.com/charging-platform/csms-gateway/internal/domain/serialization"
	"github.com/charging-platform/csms-gateway/internal/eventbus"
	ocpp16handler "github.com/charging-platform/csms-gateway/internal/protocol/ocpp16"
	ocpp201handler "github.com/charging-platform/csms-gateway/internal/protocol/ocpp201"
	"github.com/charging-platform/csms-gateway/internal/session"
)

// fakeChannel 进程内session.Channel实现
type fakeChannel struct {
	incoming  chan string
	outgoing  chan string
	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{
		incoming: make(chan string, 64),
		outgoing: make(chan string, 64),
		closed:   make(chan struct{}),
	}
}

func (c *fakeChannel) Recv() (string, error) {
	select {
	case msg := <-c.incoming:
		return msg, nil
	case <-c.closed:
		return "", session.ErrChannelClosed
	}
}

func (c *fakeChannel) Send(message string) error {
	select {
	case <-c.closed:
		return session.ErrChannelClosed
	default:
	}
	c.outgoing <- message
	return nil
}

func (c *fakeChannel) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

// chargePointScript 模拟充电桩：读下行Call并按action应答。
// 返回nil表示保持沉默（测试超时路径）。
type chargePointScript func(action string, payload map[string]interface{}, ch *fakeChannel) interface{}

func runScript(ch *fakeChannel, script chargePointScript) {
	go func() {
		for {
			select {
			case raw := <-ch.outgoing:
				frame, err := serialization.DecodeFrame([]byte(raw))
				if err != nil || frame.MessageType != serialization.MessageTypeCall {
					// 会话对入站Call的确认帧，跳过
					continue
				}
				ack := script(frame.Action, serialization.PayloadToMap(frame.Payload), ch)
				if ack == nil {
					continue
				}
				data, err := serialization.EncodeCallResult(frame.MessageID, ack)
				if err != nil {
					continue
				}
				select {
				case ch.incoming <- string(data):
				case <-ch.closed:
					return
				}
			case <-ch.closed:
				return
			}
		}
	}()
}

type testEnv struct {
	registry *session.Registry
	service  *Service
	bus      *eventbus.Bus
}

func newTestEnv(t *testing.T, reportTimeout time.Duration) *testEnv {
	t.Helper()
	bus := eventbus.New(nil)
	registry := session.NewRegistry(bus, nil, nil)
	return &testEnv{
		registry: registry,
		service:  NewService(registry, bus, reportTimeout, nil),
		bus:      bus,
	}
}

// connect 注册一条运行中的会话并挂上充电桩脚本
func (env *testEnv) connect(t *testing.T, id string, version protocol.Version, callTimeout time.Duration, script chargePointScript) *session.Session {
	t.Helper()

	ch := newFakeChannel()
	var handler session.Handler
	if version == protocol.VersionV201 {
		handler = ocpp201handler.NewHandler(id, env.bus, 10, nil)
	} else {
		handler = ocpp16handler.NewHandler(id, env.bus, 10, nil)
	}

	sess := session.New(id, version, ch, handler, nil, callTimeout)
	go sess.Run()
	require.Eventually(t, func() bool {
		return sess.State() == session.StateRunning
	}, time.Second, 5*time.Millisecond)

	env.registry.Register(sess)
	if script != nil {
		runScript(ch, script)
	}
	t.Cleanup(func() { env.registry.Deregister(sess) })
	return sess
}

func acceptedScript(action string, payload map[string]interface{}, ch *fakeChannel) interface{} {
	return map[string]interface{}{"status": "Accepted"}
}

func TestService_Send_NotConnected(t *testing.T) {
	env := newTestEnv(t, time.Second)

	_, err := env.service.Send(context.Background(), "ghost", "RemoteStopTransaction", map[string]interface{}{"transaction_id": 1})
	require.Error(t, err)

	apiErr, ok := err.(*APIError)
	require.True(t, ok)
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
}

func TestService_Send_Success(t *testing.T) {
	env := newTestEnv(t, time.Second)
	env.connect(t, "CP1", protocol.VersionV16, time.Second, acceptedScript)

	result, err := env.service.Send(context.Background(), "CP1", "RemoteStopTransaction", map[string]interface{}{
		"transaction_id": float64(10),
	})
	require.NoError(t, err)

	inner, ok := result["result"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "Accepted", inner["status"])
}

func TestService_Send_Timeout(t *testing.T) {
	env := newTestEnv(t, time.Second)
	env.connect(t, "CP1", protocol.VersionV16, 50*time.Millisecond, func(action string, payload map[string]interface{}, ch *fakeChannel) interface{} {
		return nil // 充电桩沉默
	})

	_, err := env.service.Send(context.Background(), "CP1", "GetConfiguration", map[string]interface{}{})
	require.Error(t, err)

	apiErr, ok := err.(*APIError)
	require.True(t, ok)
	assert.Equal(t, http.StatusGatewayTimeout, apiErr.Status)
}

func TestService_Send_DisconnectDuringCall(t *testing.T) {
	env := newTestEnv(t, time.Second)
	env.connect(t, "CP1", protocol.VersionV16, 5*time.Second, func(action string, payload map[string]interface{}, ch *fakeChannel) interface{} {
		ch.Close() // 调用进行中断开
		return nil
	})

	_, err := env.service.Send(context.Background(), "CP1", "GetConfiguration", map[string]interface{}{})
	require.Error(t, err)

	apiErr, ok := err.(*APIError)
	require.True(t, ok)
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.Status)

	// 门面顺手注销了僵尸会话
	assert.Equal(t, 0, env.registry.Count())
}

func TestService_Send_StrategyErrorBeforeWire(t *testing.T) {
	env := newTestEnv(t, time.Second)

	calls := 0
	env.connect(t, "CP1", protocol.VersionV16, time.Second, func(action string, payload map[string]interface{}, ch *fakeChannel) interface{} {
		calls++
		return map[string]interface{}{}
	})

	_, err := env.service.Send(context.Background(), "CP1", "RemoteStopTransaction", map[string]interface{}{})
	require.Error(t, err)

	apiErr, ok := err.(*APIError)
	require.True(t, ok)
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Equal(t, 0, calls)
}

func TestService_Send_CallErrorMapsToBadRequest(t *testing.T) {
	env := newTestEnv(t, time.Second)

	ch := newFakeChannel()
	handler := ocpp16handler.NewHandler("CP1", env.bus, 10, nil)
	sess := session.New("CP1", protocol.VersionV16, ch, handler, nil, time.Second)
	go sess.Run()
	require.Eventually(t, func() bool { return sess.State() == session.StateRunning }, time.Second, 5*time.Millisecond)
	env.registry.Register(sess)
	t.Cleanup(func() { env.registry.Deregister(sess) })

	// 充电桩以CALLERROR应答
	go func() {
		raw := <-ch.outgoing
		frame, err := serialization.DecodeFrame([]byte(raw))
		if err != nil {
			return
		}
		data, _ := serialization.EncodeCallError(frame.MessageID, "NotSupported", "unsupported", nil)
		ch.incoming <- string(data)
	}()

	_, err := env.service.Send(context.Background(), "CP1", "GetConfiguration", map[string]interface{}{})
	require.Error(t, err)

	apiErr, ok := err.(*APIError)
	require.True(t, ok)
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Contains(t, apiErr.Detail, "NotSupported")
}

func TestService_Send_PublishesConfigurationChanged(t *testing.T) {
	env := newTestEnv(t, time.Second)

	var events []eventbus.Event
	var mu sync.Mutex
	env.bus.Subscribe(eventbus.TopicConfigurationChanged, func(e eventbus.Event) error {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, e)
		return nil
	})

	env.connect(t, "CP1", protocol.VersionV16, time.Second, acceptedScript)

	// 读命令不广播
	_, err := env.service.Send(context.Background(), "CP1", "GetConfiguration", map[string]interface{}{})
	require.NoError(t, err)

	mu.Lock()
	assert.Empty(t, events)
	mu.Unlock()

	// 写命令成功后广播
	_, err = env.service.Send(context.Background(), "CP1", "ChangeConfiguration", map[string]interface{}{
		"key": "MaxChargingCurrent", "value": "16",
	})
	require.NoError(t, err)

	mu.Lock()
	require.Len(t, events, 1)
	assert.Equal(t, "CP1", events[0].ChargePointID)
	assert.Equal(t, "ChangeConfiguration", events[0].Payload["ocpp_action"])
	params, _ := events[0].Payload["parameters"].(map[string]interface{})
	require.NotNil(t, params)
	assert.Equal(t, "MaxChargingCurrent", params["key"])
	mu.Unlock()
}
