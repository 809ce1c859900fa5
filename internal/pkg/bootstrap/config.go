// internal/pkg/bootstrap/config.go
package bootstrap

import (
	"net"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/nacos-group/nacos-sdk-go/v2/clients/config_client"
	"github.com/nacos-group/nacos-sdk-go/v2/common/constant"
	"github.com/nacos-group/nacos-sdk-go/v2/vo"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
	"promocode/internal/pkg/logger"
	"promocode/internal/pkg/nacos"
)

const defaultConfigFile = "configs/redemption-service.yaml"

// Config 是服务的完整配置，本地来自 YAML 文件，线上来自 Nacos 配置中心
type Config struct {
	App        AppConfig        `yaml:"app"`
	Redemption RedemptionConfig `yaml:"redemption"`
	Infra      InfraConfig      `yaml:"infra"`
}

type AppConfig struct {
	Name     string `yaml:"name"`
	Port     int    `yaml:"port"`
	LogLevel string `yaml:"logLevel"`
}

type RedemptionConfig struct {
	ApplyTimeout time.Duration `yaml:"applyTimeout"` // 单次发放的超时
	Sweeper      SweeperConfig `yaml:"sweeper"`
}

type SweeperConfig struct {
	Enabled     bool          `yaml:"enabled"`
	Interval    time.Duration `yaml:"interval"`
	StaleAfter  time.Duration `yaml:"staleAfter"`
	BatchSize   int           `yaml:"batchSize"`
	MaxAttempts int           `yaml:"maxAttempts"`
	Concurrency int           `yaml:"concurrency"`
	LockName    string        `yaml:"lockName"` // ZooKeeper 上领导权锁的资源名
}

type InfraConfig struct {
	MySQL     MySQLConfig     `yaml:"mysql"`
	Redis     RedisConfig     `yaml:"redis"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Jaeger    JaegerConfig    `yaml:"jaeger"`
	Zookeeper ZookeeperConfig `yaml:"zookeeper"`
	Ledger    LedgerConfig    `yaml:"ledger"`
}

type MySQLConfig struct {
	DSN          string `yaml:"dsn"` // 设置后忽略下面的分项
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	User         string `yaml:"user"`
	Password     string `yaml:"password"`
	Database     string `yaml:"database"`
	MaxOpenConns int    `yaml:"maxOpenConns"`
	MaxIdleConns int    `yaml:"maxIdleConns"`
}

// FormatDSN 拼出 go-sql-driver 格式的连接串，时间统一按 UTC 解析
func (c MySQLConfig) FormatDSN() string {
	if c.DSN != "" {
		return c.DSN
	}
	cfg := mysql.NewConfig()
	cfg.User = c.User
	cfg.Passwd = c.Password
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
	cfg.DBName = c.Database
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	cfg.Params = map[string]string{"charset": "utf8mb4"}
	return cfg.FormatDSN()
}

type RedisConfig struct {
	Addrs    string        `yaml:"addrs"` // 逗号分隔，多个地址时走集群模式
	Password string        `yaml:"password"`
	DedupTTL time.Duration `yaml:"dedupTTL"` // 积分发放去重 key 的保留时间
}

type KafkaConfig struct {
	Brokers     []string `yaml:"brokers"`
	EventsTopic string   `yaml:"eventsTopic"`
}

type JaegerConfig struct {
	Endpoint    string  `yaml:"endpoint"`
	SampleRatio float64 `yaml:"sampleRatio"`
}

type ZookeeperConfig struct {
	Servers        []string      `yaml:"servers"`
	SessionTimeout time.Duration `yaml:"sessionTimeout"`
}

type LedgerConfig struct {
	BaseURL     string `yaml:"baseURL"`
	ServiceName string `yaml:"serviceName"` // 设置后通过 Nacos 发现账本服务地址
	Token       string `yaml:"token"`
}

var (
	currentConfig     atomic.Pointer[Config]
	nacosConfigClient config_client.IConfigClient
)

// GetCurrentConfig 返回当前生效的配置快照。Nacos 推送新配置后快照会被整体替换
func GetCurrentConfig() *Config {
	if cfg := currentConfig.Load(); cfg != nil {
		return cfg
	}
	cfg := defaultConfig()
	return &cfg
}

func defaultConfig() Config {
	return Config{
		App: AppConfig{Name: "redemption-service", Port: 8080, LogLevel: "info"},
		Redemption: RedemptionConfig{
			ApplyTimeout: 15 * time.Second,
			Sweeper: SweeperConfig{
				Enabled:     true,
				Interval:    time.Minute,
				StaleAfter:  5 * time.Minute,
				BatchSize:   100,
				MaxAttempts: 5,
				Concurrency: 4,
				LockName:    "redemption-sweeper",
			},
		},
		Infra: InfraConfig{
			MySQL:     MySQLConfig{Host: "localhost", Port: 3306, User: "root", Database: "promocode", MaxOpenConns: 50, MaxIdleConns: 10},
			Redis:     RedisConfig{Addrs: "localhost:6379", DedupTTL: 7 * 24 * time.Hour},
			Kafka:     KafkaConfig{EventsTopic: "redemption-events"},
			Jaeger:    JaegerConfig{SampleRatio: 1},
			Zookeeper: ZookeeperConfig{SessionTimeout: 10 * time.Second},
		},
	}
}

// ParseConfig 在默认值之上解析 YAML，文件里没写的字段保持默认
func ParseConfig(content []byte) (*Config, error) {
	cfg := defaultConfig()
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		return nil, errors.Wrap(err, "parse config")
	}
	applyEnvOverrides(&cfg)
	return &cfg, nil
}

// Init 加载配置。设置了 NACOS_SERVER_ADDRS 时从 Nacos 配置中心读取并监听变更，
// 否则读取 CONFIG_FILE 指向的本地文件
func Init() (*Config, error) {
	var (
		cfg *Config
		err error
	)
	if addrs := os.Getenv("NACOS_SERVER_ADDRS"); addrs != "" {
		cfg, err = loadFromNacos(addrs)
	} else {
		cfg, err = loadFromFile(getEnv("CONFIG_FILE", defaultConfigFile))
	}
	if err != nil {
		return nil, err
	}
	currentConfig.Store(cfg)
	return cfg, nil
}

func loadFromFile(path string) (*Config, error) {
	content, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		logger.L().Warn().Str("path", path).Msg("config file not found, using defaults")
		cfg := defaultConfig()
		applyEnvOverrides(&cfg)
		return &cfg, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "read config file %s", path)
	}
	return ParseConfig(content)
}

func loadFromNacos(addrs string) (*Config, error) {
	serverConfigs, err := createNacosServerConfigs(addrs)
	if err != nil {
		return nil, err
	}
	clientConfig := createNacosClientConfig(getEnv("NACOS_NAMESPACE", ""))
	client, err := nacos.NewConfigClient(serverConfigs, &clientConfig)
	if err != nil {
		return nil, err
	}
	nacosConfigClient = client

	param := vo.ConfigParam{
		DataId: getEnv("NACOS_CONFIG_DATA_ID", "redemption-service.yaml"),
		Group:  getEnv("NACOS_GROUP", nacos.DefaultGroup),
	}
	content, err := client.GetConfig(param)
	if err != nil {
		return nil, errors.Wrap(err, "get config from nacos")
	}
	cfg, err := ParseConfig([]byte(content))
	if err != nil {
		return nil, err
	}

	// 推送的新配置解析失败时保留旧快照
	param.OnChange = func(namespace, group, dataId, data string) {
		next, err := ParseConfig([]byte(data))
		if err != nil {
			logger.L().Error().Err(err).Str("dataId", dataId).Msg("ignore invalid config pushed by nacos")
			return
		}
		currentConfig.Store(next)
		logger.L().Info().Str("dataId", dataId).Msg("config reloaded from nacos")
	}
	if err := client.ListenConfig(param); err != nil {
		logger.L().Warn().Err(err).Msg("listen nacos config failed, hot reload disabled")
	}
	return cfg, nil
}

// applyEnvOverrides 环境变量优先级最高，方便容器部署时覆盖连接信息
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.App.Port = port
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.App.LogLevel = v
	}
	if v := os.Getenv("MYSQL_DSN"); v != "" {
		cfg.Infra.MySQL.DSN = v
	}
	if v := os.Getenv("REDIS_ADDRS"); v != "" {
		cfg.Infra.Redis.Addrs = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Infra.Redis.Password = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		cfg.Infra.Kafka.Brokers = splitList(v)
	}
	if v := os.Getenv("JAEGER_ENDPOINT"); v != "" {
		cfg.Infra.Jaeger.Endpoint = v
	}
	if v := os.Getenv("ZOOKEEPER_SERVERS"); v != "" {
		cfg.Infra.Zookeeper.Servers = splitList(v)
	}
	if v := os.Getenv("LEDGER_BASE_URL"); v != "" {
		cfg.Infra.Ledger.BaseURL = v
	}
	if v := os.Getenv("LEDGER_TOKEN"); v != "" {
		cfg.Infra.Ledger.Token = v
	}
}

func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func createNacosServerConfigs(addrs string) ([]constant.ServerConfig, error) {
	return nacos.ParseServerConfigs(addrs)
}

func createNacosClientConfig(namespace string) constant.ClientConfig {
	return nacos.NewClientConfig(namespace)
}
