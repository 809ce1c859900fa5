// internal/pkg/bootstrap/app.go
package bootstrap

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"promocode/internal/pkg/logger"
	"promocode/internal/pkg/nacos"
	"promocode/internal/pkg/tracing"
	"promocode/internal/pkg/utils"
)

type AppCtx struct {
	Mux    *http.ServeMux
	Nacos  *nacos.Client // 没有配置 NACOS_SERVER_ADDRS 时为 nil
	Config *Config

	ctx     context.Context
	wg      sync.WaitGroup
	closers []func()
}

// Go 启动一个后台任务，服务关停时 ctx 会被取消，并等待任务退出
func (a *AppCtx) Go(fn func(ctx context.Context)) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		fn(a.ctx)
	}()
}

// OnShutdown 注册资源清理函数，关停时按注册的逆序执行
func (a *AppCtx) OnShutdown(fn func()) {
	a.closers = append(a.closers, fn)
}

// AppInfo 包含了启动一个微服务所需的所有特定信息。
type AppInfo struct {
	ServiceName      string
	Port             int
	RegisterHandlers func(appCtx *AppCtx) error // 注册 HTTP 路由、后台任务和清理函数
}

// StartService 封装了所有微服务的通用启动和优雅关停逻辑。
func StartService(info AppInfo) {
	// 1. 加载配置
	cfg, err := Init()
	if err != nil {
		logger.L().Fatal().Err(err).Msg("failed to load config")
	}
	if info.Port == 0 {
		info.Port = cfg.App.Port
	}
	logger.Init(info.ServiceName, cfg.App.LogLevel)

	// 2. 初始化核心组件
	// a. Tracer
	tp, err := tracing.InitTracerProvider(info.ServiceName, cfg.Infra.Jaeger.Endpoint, cfg.Infra.Jaeger.SampleRatio)
	if err != nil {
		logger.L().Fatal().Err(err).Msg("failed to initialize tracer provider")
	}

	// b. Nacos 注册是可选的，本地开发时不依赖注册中心
	var namingClient *nacos.Client
	var ip string
	if addrs := os.Getenv("NACOS_SERVER_ADDRS"); addrs != "" {
		serverConfigs, err := createNacosServerConfigs(addrs)
		if err != nil {
			logger.L().Fatal().Err(err).Msg("invalid nacos server address format")
		}
		clientConfig := createNacosClientConfig(getEnv("NACOS_NAMESPACE", ""))
		namingClient, err = nacos.NewNacosClientWithConfigs(serverConfigs, &clientConfig, getEnv("NACOS_GROUP", nacos.DefaultGroup))
		if err != nil {
			logger.L().Fatal().Err(err).Msg("failed to initialize nacos client")
		}

		// 3. 获取本机 IP 用于注册
		ip, err = utils.GetOutboundIP()
		if err != nil {
			logger.L().Fatal().Err(err).Msg("failed to get outbound IP address")
		}
	}

	// 4. 注册路由和后台任务
	workerCtx, stopWorkers := context.WithCancel(context.Background())
	mux := http.NewServeMux()
	appCtx := &AppCtx{Mux: mux, Nacos: namingClient, Config: cfg, ctx: workerCtx}
	if info.RegisterHandlers != nil {
		if err := info.RegisterHandlers(appCtx); err != nil {
			logger.L().Fatal().Err(err).Msg("failed to wire service components")
		}
	}

	// 5. 创建并启动 HTTP Server
	server := &http.Server{
		Addr:              ":" + strconv.Itoa(info.Port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.L().Printf("%s listening on :%d", info.ServiceName, info.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.L().Fatal().Err(err).Msgf("could not listen on %s", server.Addr)
		}
	}()

	// 6. 服务就绪后再注册到 Nacos
	if namingClient != nil {
		if err := namingClient.RegisterServiceInstance(info.ServiceName, ip, info.Port); err != nil {
			logger.L().Fatal().Err(err).Msg("failed to register service with nacos")
		}
	}

	// 7. 优雅关停
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	// 阻塞主 goroutine，直到接收到退出信号
	<-quit
	logger.L().Printf("Shutting down service %s...", info.ServiceName)

	// 创建一个有超时的 context，用于关停流程
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// 8. 在关停流程中，按顺序执行清理操作
	// a. 从 Nacos 注销服务，不再接收新流量
	if namingClient != nil {
		if err := namingClient.DeregisterServiceInstance(info.ServiceName, ip, info.Port); err != nil {
			logger.L().Error().Err(err).Msg("Error deregistering from Nacos")
		}
		namingClient.Close()
	}
	if nacosConfigClient != nil {
		nacosConfigClient.CloseClient()
	}

	// b. 关闭 HTTP 服务器，等待进行中的请求结束
	if err := server.Shutdown(ctx); err != nil {
		logger.L().Error().Err(err).Msg("Error shutting down http server")
	} else {
		logger.L().Printf("HTTP server shut down.")
	}

	// c. 停止后台任务
	stopWorkers()
	appCtx.wg.Wait()

	// d. 关闭各服务自己注册的资源 (后进先出)
	for i := len(appCtx.closers) - 1; i >= 0; i-- {
		appCtx.closers[i]()
	}

	// e. 关闭 Tracer Provider，确保所有缓冲的 trace 都被发送出去
	if err := tp.Shutdown(ctx); err != nil {
		logger.L().Error().Err(err).Msg("Error shutting down tracer provider")
	} else {
		logger.L().Printf("Tracer provider shut down.")
	}

	logger.L().Printf("Service %s gracefully shut down.", info.ServiceName)
}

// getEnv 是一个内部辅助函数，从环境变量中读取配置。
func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
