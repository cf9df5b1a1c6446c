package app

import (
	"fmt"
	"os"

	"github.com/google/uuid"
)

// GenerateInstanceID 生成网桥实例ID（MQTT clientId 后缀、日志字段）
// 优先使用环境变量 MESHCORE_INSTANCE_ID，否则生成 meshcore-bridge-{hostname}-{uuid8}
func GenerateInstanceID() string {
	if id := os.Getenv("MESHCORE_INSTANCE_ID"); id != "" {
		return id
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}

	shortUUID := uuid.New().String()[:8]
	return fmt.Sprintf("meshcore-bridge-%s-%s", hostname, shortUUID)
}
