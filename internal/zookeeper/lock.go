// internal/zookeeper/lock.go
package zookeeper

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/go-zookeeper/zk"
)

const (
	lockRoot = "/distributed_locks" // 所有分布式锁的根节点
)

// DistributedLock 定义了一个分布式锁对象，不是并发安全的，一个实例只给一个 goroutine 用
type DistributedLock struct {
	conn     *Conn  // ZooKeeper连接
	path     string // 锁的路径，例如 /distributed_locks/redemption-sweeper
	lockNode string // 成功获取锁后，自己创建的节点路径
}

// NewDistributedLock 创建一个新的分布式锁实例，必要时创建父节点
func NewDistributedLock(conn *Conn, resourceID string) (*DistributedLock, error) {
	lockPath := lockRoot + "/" + resourceID
	for _, p := range []string{lockRoot, lockPath} {
		exists, _, err := conn.Exists(p)
		if err != nil {
			return nil, fmt.Errorf("failed to check lock node %s: %w", p, err)
		}
		if exists {
			continue
		}
		_, err = conn.Create(p, []byte(""), 0, zk.WorldACL(zk.PermAll))
		if err != nil && !errors.Is(err, zk.ErrNodeExists) {
			return nil, fmt.Errorf("failed to create lock node %s: %w", p, err)
		}
	}
	return &DistributedLock{conn: conn, path: lockPath}, nil
}

// TryLock 不阻塞地尝试获取锁，拿不到时删除自己的节点并返回 false
func (l *DistributedLock) TryLock(ctx context.Context) (bool, error) {
	if l.lockNode != "" {
		return true, nil
	}
	if err := l.createNode(); err != nil {
		return false, err
	}
	first, err := l.position()
	if err != nil {
		_ = l.Unlock()
		return false, err
	}
	if first {
		return true, nil
	}
	return false, l.Unlock()
}

func (l *DistributedLock) createNode() error {
	// 在锁路径下创建一个临时顺序节点，会话断开时自动删除
	nodePath, err := l.conn.CreateProtectedEphemeralSequential(l.path+"/lock-", []byte(""), zk.WorldACL(zk.PermAll))
	if err != nil {
		return fmt.Errorf("failed to create sequential node: %w", err)
	}
	l.lockNode = nodePath
	return nil
}

// position 判断自己是否是最小节点
func (l *DistributedLock) position() (bool, error) {
	children, _, err := l.conn.Children(l.path)
	if err != nil {
		return false, fmt.Errorf("failed to get children nodes: %w", err)
	}
	// protected 节点带有 _c_<guid>- 前缀，按序号部分排序
	sort.Slice(children, func(i, j int) bool { return sequence(children[i]) < sequence(children[j]) })

	myNodeName := strings.TrimPrefix(l.lockNode, l.path+"/")
	for i, child := range children {
		if child == myNodeName {
			return i == 0, nil
		}
	}
	return false, errors.New("cannot find own lock node, session may have expired")
}

func sequence(node string) string {
	if idx := strings.LastIndex(node, "lock-"); idx >= 0 {
		return node[idx+len("lock-"):]
	}
	return node
}

// Unlock 释放锁
func (l *DistributedLock) Unlock() error {
	if l.lockNode == "" {
		return errors.New("no lock to unlock")
	}
	err := l.conn.Delete(l.lockNode, -1)
	if err != nil && !errors.Is(err, zk.ErrNoNode) {
		return fmt.Errorf("failed to delete lock node: %w", err)
	}
	l.lockNode = ""
	return nil
}
