package app

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/taoyao-code/meshcore-bridge/internal/companion"
	cfgpkg "github.com/taoyao-code/meshcore-bridge/internal/config"
	"github.com/taoyao-code/meshcore-bridge/internal/metrics"
	"github.com/taoyao-code/meshcore-bridge/internal/transport"
)

// NewDialer 按设备配置拨号；接收字节数计入指标
func NewDialer(cfg cfgpkg.DeviceConfig, appm *metrics.AppMetrics) Dialer {
	return func(ctx context.Context) (transport.Transport, error) {
		opts := transport.Options{
			Kind:         transport.Kind(cfg.Transport),
			Addr:         cfg.Addr,
			SerialPath:   cfg.SerialPath,
			Baud:         cfg.Baud,
			DialTimeout:  cfg.DialTimeout,
			WriteTimeout: cfg.WriteTimeout,
		}
		if appm != nil {
			opts.OnRecv = func(n int) { appm.BytesReceived.Add(float64(n)) }
		}
		conn, err := transport.Open(ctx, opts)
		if err != nil {
			return nil, err
		}
		return conn, nil
	}
}

// NewClientFactory 按设备配置创建 companion 客户端
func NewClientFactory(cfg cfgpkg.DeviceConfig, log *zap.Logger, obs companion.Observer) func(transport.Transport) *companion.Client {
	return func(t transport.Transport) *companion.Client {
		return companion.New(t,
			companion.WithLogger(log),
			companion.WithObserver(obs),
			companion.WithTimeout(cfg.CallTimeout),
			companion.WithAppName(cfg.AppName),
			companion.WithSendRate(cfg.SendRate, cfg.SendBurst),
		)
	}
}

// SessionHook 连接建立后执行 AppStart，按需用本机时间校准设备时钟
func SessionHook(cfg cfgpkg.DeviceConfig, log *zap.Logger) ConnectHook {
	return func(ctx context.Context, c *companion.Client) {
		self, err := c.AppStart(ctx)
		if err != nil {
			log.Warn("app start failed", zap.String("conn_id", c.ID()), zap.Error(err))
			return
		}
		log.Info("companion session started",
			zap.String("conn_id", c.ID()),
			zap.String("node", self.Name),
			zap.Stringer("public_key", self.PublicKey))

		if !cfg.SyncClock {
			return
		}
		devTime, err := c.GetDeviceTime(ctx)
		if err != nil {
			log.Warn("read device time failed", zap.Error(err))
			return
		}
		drift := time.Since(devTime)
		if drift < 0 {
			drift = -drift
		}
		if drift < 2*time.Second {
			return
		}
		if err := c.SetDeviceTime(ctx, time.Time{}); err != nil {
			log.Warn("set device time failed", zap.Error(err))
			return
		}
		log.Info("device clock synced", zap.Duration("drift", drift))
	}
}
