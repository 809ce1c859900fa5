package bootstrap

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseConfigKeepsDefaults(t *testing.T) {
	cfg, err := ParseConfig([]byte(`
app:
  port: 9090
redemption:
  applyTimeout: 3s
  sweeper:
    interval: 30s
infra:
  kafka:
    brokers: ["kafka-1:9092", "kafka-2:9092"]
`))
	require.NoError(t, err)
	require.Equal(t, 9090, cfg.App.Port)
	require.Equal(t, "redemption-service", cfg.App.Name)
	require.Equal(t, 3*time.Second, cfg.Redemption.ApplyTimeout)
	require.Equal(t, 30*time.Second, cfg.Redemption.Sweeper.Interval)
	require.Equal(t, 5*time.Minute, cfg.Redemption.Sweeper.StaleAfter)
	require.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Infra.Kafka.Brokers)
	require.Equal(t, "redemption-events", cfg.Infra.Kafka.EventsTopic)
}

func TestParseConfigRejectsBadYAML(t *testing.T) {
	_, err := ParseConfig([]byte("app: [unterminated"))
	require.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "7070")
	t.Setenv("KAFKA_BROKERS", "a:9092, b:9092,")
	t.Setenv("ZOOKEEPER_SERVERS", "zk-1:2181")
	t.Setenv("MYSQL_DSN", "u:p@tcp(db:3306)/x")

	cfg, err := ParseConfig([]byte("app:\n  port: 9090\n"))
	require.NoError(t, err)
	require.Equal(t, 7070, cfg.App.Port)
	require.Equal(t, []string{"a:9092", "b:9092"}, cfg.Infra.Kafka.Brokers)
	require.Equal(t, []string{"zk-1:2181"}, cfg.Infra.Zookeeper.Servers)
	require.Equal(t, "u:p@tcp(db:3306)/x", cfg.Infra.MySQL.FormatDSN())
}

func TestMySQLFormatDSN(t *testing.T) {
	dsn := MySQLConfig{Host: "db", Port: 3306, User: "app", Password: "secret", Database: "promocode"}.FormatDSN()
	require.Contains(t, dsn, "app:secret@tcp(db:3306)/promocode?")
	require.Contains(t, dsn, "parseTime=true")
	require.Contains(t, dsn, "charset=utf8mb4")
}

func TestInitFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "svc.yaml")
	require.NoError(t, os.WriteFile(path, []byte("app:\n  logLevel: debug\n"), 0o600))
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("NACOS_SERVER_ADDRS", "")

	cfg, err := Init()
	require.NoError(t, err)
	require.Equal(t, "debug", cfg.App.LogLevel)
	require.Same(t, cfg, GetCurrentConfig())
}

func TestInitMissingFileFallsBackToDefaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "absent.yaml"))
	t.Setenv("NACOS_SERVER_ADDRS", "")

	cfg, err := Init()
	require.NoError(t, err)
	require.Equal(t, 8080, cfg.App.Port)
}
