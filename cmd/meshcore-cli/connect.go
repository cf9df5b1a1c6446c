package main

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/taoyao-code/meshcore-bridge/internal/companion"
	"github.com/taoyao-code/meshcore-bridge/internal/logging"
	"github.com/taoyao-code/meshcore-bridge/internal/transport"
)

const (
	defaultTimeout = 5 * time.Second
	dialTimeout    = 10 * time.Second
)

// globalFlags 所有子命令共享的链路与输出参数
type globalFlags struct {
	tcp     string
	serial  string
	baud    int
	timeout time.Duration
	output  string
	verbose bool
}

func (g *globalFlags) logger() *zap.Logger { return logging.NewCLI(g.verbose) }

func (g *globalFlags) transportOptions() (transport.Options, error) {
	switch {
	case g.tcp != "" && g.serial != "":
		return transport.Options{}, errors.New("--tcp and --serial are mutually exclusive")
	case g.tcp != "":
		return transport.Options{Kind: transport.KindTCP, Addr: g.tcp, DialTimeout: dialTimeout}, nil
	case g.serial != "":
		return transport.Options{Kind: transport.KindSerial, SerialPath: g.serial, Baud: g.baud}, nil
	}
	return transport.Options{}, errors.New("one of --tcp or --serial is required")
}

// connect 打开链路并启动客户端；调用方负责 Close
func (g *globalFlags) connect(ctx context.Context) (*companion.Client, error) {
	opts, err := g.transportOptions()
	if err != nil {
		return nil, err
	}
	conn, err := transport.Open(ctx, opts)
	if err != nil {
		return nil, err
	}
	c := companion.New(conn,
		companion.WithLogger(g.logger()),
		companion.WithTimeout(g.timeout),
		companion.WithAppName("meshcore-cli"))
	if err := c.Start(ctx); err != nil {
		_ = c.Close()
		return nil, err
	}
	return c, nil
}

// withClient 连接后执行 fn，结束时关闭连接
func (g *globalFlags) withClient(cmd *cobra.Command, fn func(ctx context.Context, c *companion.Client) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	c, err := g.connect(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()
	return fn(ctx, c)
}
