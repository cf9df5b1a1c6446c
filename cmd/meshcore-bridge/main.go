package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/taoyao-code/meshcore-bridge/internal/app/bootstrap"
	cfgpkg "github.com/taoyao-code/meshcore-bridge/internal/config"
	"github.com/taoyao-code/meshcore-bridge/internal/logging"
)

func main() {
	if err := newRootCmd(serve).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newRootCmd run 接收配置文件路径；空串表示读取 MESHCORE_CONFIG 或 ./configs
func newRootCmd(run func(configPath string) error) *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:           "meshcore-bridge",
		Short:         "MeshCore companion bridge daemon",
		Version:       bootstrap.Version,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "配置文件路径")
	return cmd
}

func serve(configPath string) error {
	// 1) 加载配置
	cfg, err := cfgpkg.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// 2) 初始化日志
	logger, err := logging.InitLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)

	// 3) 启动
	if err := bootstrap.Run(cfg, zap.L()); err != nil {
		zap.L().Error("bridge exited with error", zap.Error(err))
		return err
	}
	return nil
}
