// internal/zookeeper/conn.go
package zookeeper

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-zookeeper/zk"
	"promocode/internal/pkg/logger"
)

// Conn 包装 zk.Conn，统一连接参数和日志
type Conn struct {
	*zk.Conn
}

// Connect servers 格式为 "host1:2181,host2:2181"，会等到会话建立或超时
func Connect(servers string, sessionTimeout time.Duration) (*Conn, error) {
	list := strings.Split(servers, ",")
	conn, events, err := zk.Connect(list, sessionTimeout, zk.WithLogInfo(false))
	if err != nil {
		return nil, fmt.Errorf("failed to connect zookeeper %s: %w", servers, err)
	}

	timeout := time.After(sessionTimeout)
	for {
		select {
		case ev := <-events:
			if ev.State == zk.StateHasSession {
				logger.L().Printf("Connected to ZooKeeper %s", servers)
				return &Conn{Conn: conn}, nil
			}
		case <-timeout:
			conn.Close()
			return nil, fmt.Errorf("timeout waiting for zookeeper session on %s", servers)
		}
	}
}
