// cmd/redemption-service/main.go
package main

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	"promocode/internal/pkg/bootstrap"
	"promocode/internal/pkg/httpclient"
	"promocode/internal/pkg/logger"
	"promocode/internal/pkg/mq"
	"promocode/internal/pkg/redis"
	"promocode/internal/service/redemption/application"
	"promocode/internal/service/redemption/domain"
	"promocode/internal/service/redemption/infrastructure"
	"promocode/internal/service/redemption/infrastructure/adapter"
	"promocode/internal/service/redemption/infrastructure/rule"
	"promocode/internal/service/redemption/interfaces"
	"promocode/internal/zookeeper"
)

const serviceName = "redemption-service"

func main() {
	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName:      serviceName,
		RegisterHandlers: wire,
	})
}

// wire 组装兑换服务的所有依赖
func wire(app *bootstrap.AppCtx) error {
	cfg := app.Config
	tracer := otel.Tracer(serviceName)

	// 1. MySQL
	db, err := gorm.Open(mysql.Open(cfg.Infra.MySQL.FormatDSN()), &gorm.Config{
		Logger:  gormlogger.Default.LogMode(gormlogger.Warn),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return fmt.Errorf("failed to connect database: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	sqlDB.SetMaxOpenConns(cfg.Infra.MySQL.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.Infra.MySQL.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Hour)
	app.OnShutdown(func() { _ = sqlDB.Close() })
	if err := infrastructure.AutoMigrate(db); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}

	// 2. 积分账本 (Redis)
	redisClient, err := redis.NewClient(cfg.Infra.Redis.Addrs, cfg.Infra.Redis.Password)
	if err != nil {
		return fmt.Errorf("failed to connect redis: %w", err)
	}
	app.OnShutdown(func() { _ = redisClient.Close() })
	points, err := adapter.NewPointsRedisAdapter(redisClient, cfg.Infra.Redis.DedupTTL)
	if err != nil {
		return err
	}

	// 3. 结算账本 (HTTP)，未配置地址时 diamond 奖励会发放失败并补偿
	var currency domain.CurrencyLedger
	if baseURL := ledgerBaseURL(app); baseURL != "" {
		currency = adapter.NewCurrencyHTTPAdapter(httpclient.NewClient(tracer), baseURL, cfg.Infra.Ledger.Token)
	} else {
		logger.L().Warn().Msg("currency ledger is not configured, diamond rewards will fail")
	}

	// 4. 领域事件 (Kafka)
	var events domain.EventPublisher = adapter.NoopEventPublisher{}
	if len(cfg.Infra.Kafka.Brokers) > 0 {
		writer := mq.NewKafkaWriter(cfg.Infra.Kafka.Brokers, cfg.Infra.Kafka.EventsTopic)
		app.OnShutdown(func() { _ = writer.Close() })
		events = adapter.NewKafkaEventPublisher(writer)
	}

	rules, err := rule.NewCELRuleEngine()
	if err != nil {
		return err
	}

	// 5. 应用服务
	applicator := application.NewRewardApplicator(
		points,
		currency,
		infrastructure.NewGormMembershipStore(db),
		infrastructure.NewGormCouponStore(db),
		tracer,
	)
	svc := application.NewRedemptionService(
		infrastructure.NewGormRedemptionRepository(db),
		applicator,
		rules,
		events,
		infrastructure.NewMetrics(prometheus.DefaultRegisterer),
		tracer,
		cfg.Redemption.ApplyTimeout,
	)

	// 6. 补偿扫描，配置了 ZooKeeper 时只有持有锁的实例执行
	if sc := cfg.Redemption.Sweeper; sc.Enabled {
		var locker application.Locker
		if len(cfg.Infra.Zookeeper.Servers) > 0 {
			conn, err := zookeeper.Connect(strings.Join(cfg.Infra.Zookeeper.Servers, ","), cfg.Infra.Zookeeper.SessionTimeout)
			if err != nil {
				return err
			}
			app.OnShutdown(conn.Close)
			lock, err := zookeeper.NewDistributedLock(conn, sc.LockName)
			if err != nil {
				return err
			}
			locker = lock
		}
		sweeper := application.NewSweeper(svc, locker, application.SweeperConfig{
			Interval:    sc.Interval,
			StaleAfter:  sc.StaleAfter,
			BatchSize:   sc.BatchSize,
			MaxAttempts: sc.MaxAttempts,
			Concurrency: sc.Concurrency,
		})
		app.Go(sweeper.Run)
	}

	// 7. HTTP 路由
	interfaces.NewRedemptionHandler(svc).RegisterRoutes(app.Mux)
	app.Mux.Handle("/metrics", promhttp.Handler())
	app.Mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := sqlDB.PingContext(r.Context()); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return nil
}

// ledgerBaseURL 优先使用配置的地址，否则通过 Nacos 发现账本服务
func ledgerBaseURL(app *bootstrap.AppCtx) string {
	ledger := app.Config.Infra.Ledger
	if ledger.BaseURL != "" || ledger.ServiceName == "" || app.Nacos == nil {
		return ledger.BaseURL
	}
	ip, port, err := app.Nacos.DiscoverServiceInstance(ledger.ServiceName)
	if err != nil {
		logger.L().Error().Err(err).Str("service", ledger.ServiceName).Msg("discover currency ledger failed")
		return ""
	}
	return fmt.Sprintf("http://%s:%d", ip, port)
}
