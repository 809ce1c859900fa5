// internal/pkg/redis/client.go
package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	goredis "github.com/redis/go-redis/v9"
)

// Client 封装 go-redis 的 UniversalClient，并管理预加载的 Lua 脚本。
// 单地址时是普通客户端，多地址时是 cluster 客户端。
type Client struct {
	client goredis.UniversalClient

	mu      sync.RWMutex
	scripts map[string]*goredis.Script
}

// NewClient addrs 格式为 "host1:port1,host2:port2"
func NewClient(addrs, password string) (*Client, error) {
	list := strings.Split(addrs, ",")
	if len(list) == 0 || list[0] == "" {
		return nil, fmt.Errorf("redis address list is empty")
	}
	client := goredis.NewUniversalClient(&goredis.UniversalOptions{
		Addrs:    list,
		Password: password,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis %s: %w", addrs, err)
	}
	return Wrap(client), nil
}

// Wrap 包装一个已有的客户端，测试里配合 miniredis 使用。
func Wrap(client goredis.UniversalClient) *Client {
	return &Client{client: client, scripts: make(map[string]*goredis.Script)}
}

// LoadScriptFromContent 注册并预加载一个 Lua 脚本。
func (c *Client) LoadScriptFromContent(name, content string) error {
	script := goredis.NewScript(content)
	if err := script.Load(context.Background(), c.client).Err(); err != nil {
		return fmt.Errorf("failed to load script %s: %w", name, err)
	}
	c.mu.Lock()
	c.scripts[name] = script
	c.mu.Unlock()
	return nil
}

// RunScript 执行已注册的脚本。EVALSHA 失败 (NOSCRIPT) 时 go-redis 会自动退回 EVAL。
func (c *Client) RunScript(ctx context.Context, name string, keys []string, args ...interface{}) (interface{}, error) {
	c.mu.RLock()
	script, ok := c.scripts[name]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("script %s is not loaded", name)
	}
	return script.Run(ctx, c.client, keys, args...).Result()
}

// GetClient 暴露底层客户端，用于 pipeline 等原生操作。
func (c *Client) GetClient() goredis.UniversalClient {
	return c.client
}

func (c *Client) Close() error {
	return c.client.Close()
}

// IsNil 判断是否为 key 不存在。
func IsNil(err error) bool {
	return errors.Is(err, goredis.Nil)
}
