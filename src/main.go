package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"rupiah-scanner/src/configs"
	"rupiah-scanner/src/configs/database"
	cfgserver "rupiah-scanner/src/configs/server"
	"rupiah-scanner/src/core/auth"
	"rupiah-scanner/src/core/camera"
	"rupiah-scanner/src/core/health"
	"rupiah-scanner/src/core/permission"
	"rupiah-scanner/src/core/providers/tts"
	"rupiah-scanner/src/core/providers/vlllm"
	"rupiah-scanner/src/core/scanner"
	"rupiah-scanner/src/core/speech"
	"rupiah-scanner/src/core/utils"
	"rupiah-scanner/src/mcp"
	"rupiah-scanner/src/screen"
	"rupiah-scanner/src/vision"

	// 导入所有驱动和providers以确保init函数被调用
	_ "rupiah-scanner/src/core/camera/ffmpeg"
	_ "rupiah-scanner/src/core/camera/file"
	_ "rupiah-scanner/src/core/camera/snapshot"
	_ "rupiah-scanner/src/core/providers/tts/edge"
	_ "rupiah-scanner/src/core/providers/vlllm/ollama"
	_ "rupiah-scanner/src/core/providers/vlllm/openai"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
)

const version = "1.0.0"

// App 运行中的各个组件
type App struct {
	config     *configs.Config
	logger     *utils.Logger
	ui         *screen.Dispatcher
	hub        *screen.Hub
	screen     *screen.Screen
	gate       *permission.Gate
	recognizer vlllm.Provider
	controller *scanner.Controller
	authToken  *auth.AuthToken
}

func LoadConfigAndLogger() (*configs.Config, *utils.Logger, error) {
	// 加载配置,默认使用.config.yaml
	config, configPath, err := configs.LoadConfig()
	if err != nil {
		return nil, nil, err
	}

	// 初始化日志系统
	logger, err := utils.NewLogger(config)
	if err != nil {
		return nil, nil, err
	}
	logger.Info(fmt.Sprintf("日志系统初始化成功, 配置文件路径: %s", configPath))

	return config, logger, nil
}

// newPermissionStore 配置了 DATABASE_URL 时持久化授权结果，否则只保存在内存中
func newPermissionStore(logger *utils.Logger) (permission.Store, error) {
	db, dbType, err := database.InitDB()
	if errors.Is(err, database.ErrNoDatabaseURL) {
		logger.Info("未配置 DATABASE_URL，权限记录保存在内存中")
		return permission.NewMemoryStore(), nil
	}
	if err != nil {
		return nil, err
	}
	logger.Info(fmt.Sprintf("数据库连接成功: %s", dbType))
	return permission.NewDBStore(db)
}

func selected(config *configs.Config, module string) (string, error) {
	name := config.SelectedModule[module]
	if name == "" {
		return "", fmt.Errorf("请在 selected_module 中选择 %s", module)
	}
	return name, nil
}

func newCameraSession(config *configs.Config, logger *utils.Logger) (*camera.Session, error) {
	name, err := selected(config, "Camera")
	if err != nil {
		return nil, err
	}
	cameraConfig, ok := config.Camera[name]
	if !ok {
		return nil, fmt.Errorf("找不到相机配置: %s", name)
	}
	driver, sessionConfig, err := camera.Create(cameraConfig.Type, &cameraConfig)
	if err != nil {
		return nil, err
	}
	return camera.NewSession(driver, sessionConfig, logger), nil
}

func newRecognizer(config *configs.Config, logger *utils.Logger) (vlllm.Provider, error) {
	name, err := selected(config, "VLLLM")
	if err != nil {
		return nil, err
	}
	vlllmConfig, ok := config.VLLLM[name]
	if !ok {
		return nil, fmt.Errorf("找不到VLLLM配置: %s", name)
	}
	return vlllm.Create(vlllmConfig.Type, &vlllmConfig, logger)
}

func newSpeaker(config *configs.Config, player speech.Player, logger *utils.Logger) (*speech.Engine, error) {
	name, err := selected(config, "TTS")
	if err != nil {
		return nil, err
	}
	ttsConfig, ok := config.TTS[name]
	if !ok {
		return nil, fmt.Errorf("找不到TTS配置: %s", name)
	}
	provider, err := tts.Create(ttsConfig.Type, &tts.Config{
		Type:      ttsConfig.Type,
		OutputDir: ttsConfig.OutputDir,
		Voice:     ttsConfig.Voice,
		Voices:    ttsConfig.Voices,
		Format:    ttsConfig.Format,
	}, config.DeleteAudio)
	if err != nil {
		return nil, err
	}

	engine := speech.NewEngine(provider, player, config.Scanner.Locale, config.DeleteAudio, logger)
	if ttsConfig.CacheDir != "" {
		engine.SetCache(tts.NewAudioCache(ttsConfig.CacheDir, ttsConfig.Type, ttsConfig.Format))
	}
	return engine, nil
}

// NewApp 按配置组装屏幕、相机、识别服务和朗读引擎
func NewApp(config *configs.Config, logger *utils.Logger) (*App, error) {
	app := &App{config: config, logger: logger}

	app.ui = screen.NewDispatcher(0)
	app.hub = screen.NewHub(logger)
	app.screen = screen.New(app.ui, app.hub, logger)

	store, err := newPermissionStore(logger)
	if err != nil {
		return nil, fmt.Errorf("初始化权限存储失败: %w", err)
	}
	var prompter permission.Prompter = app.screen
	if config.Permission.AutoGrant {
		prompter = permission.AutoGrant
	}
	app.gate = permission.NewGate(store, prompter, logger)

	session, err := newCameraSession(config, logger)
	if err != nil {
		return nil, fmt.Errorf("初始化相机失败: %w", err)
	}

	app.recognizer, err = newRecognizer(config, logger)
	if err != nil {
		return nil, fmt.Errorf("初始化识别服务失败: %w", err)
	}

	speaker, err := newSpeaker(config, app.screen, logger)
	if err != nil {
		return nil, fmt.Errorf("初始化TTS失败: %w", err)
	}

	if config.Server.Token != "" {
		app.authToken, err = auth.NewAuthToken(config.Server.Token, 0)
		if err != nil {
			return nil, err
		}
	}

	app.controller = scanner.New(scanner.Config{
		Prompt:       config.Scanner.Prompt,
		CaptureDir:   config.Scanner.CaptureDir,
		CycleTimeout: config.CycleTimeout(),
	}, scanner.Deps{
		Gate:       app.gate,
		Camera:     session,
		Recognizer: app.recognizer,
		Presenter:  app.screen,
		Speaker:    speaker,
		Preview:    app.screen,
	}, logger)

	return app, nil
}

func (app *App) StartHttpServer(g *errgroup.Group, groupCtx context.Context) (*http.Server, error) {
	config, logger := app.config, app.logger

	// 初始化Gin引擎
	if config.Log.LogLevel == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()
	router.SetTrustedProxies([]string{"0.0.0.0"})

	// API路由全部挂载到/api前缀下
	apiGroup := router.Group("/api")

	screenService, err := screen.NewDefaultScreenService(config, logger, app.screen, app.hub, app.controller, app.gate, app.authToken)
	if err != nil {
		return nil, err
	}
	visionService, err := vision.NewDefaultVisionService(config, logger, app.recognizer, app.authToken)
	if err != nil {
		return nil, err
	}
	cfgService, err := cfgserver.NewDefaultCfgService(config, logger)
	if err != nil {
		return nil, err
	}

	services := map[string]interface {
		Start(ctx context.Context, engine *gin.Engine, apiGroup *gin.RouterGroup) error
	}{
		"Screen": screenService,
		"Vision": visionService,
		"Cfg":    cfgService,
	}
	if config.MCP.Enabled {
		baseURL := config.MCP.BaseURL
		if baseURL == "" {
			baseURL = fmt.Sprintf("http://127.0.0.1:%d", config.Server.Port)
		}
		mcpServer := mcp.NewServer(app.controller, baseURL, version, logger)
		if config.Server.Auth.Enabled {
			if app.authToken == nil {
				return nil, fmt.Errorf("启用认证时必须配置 server.token")
			}
			mcpServer.RequireAuth(app.authToken, config.Server.Auth.AllowedDevices)
		}
		services["MCP"] = mcpServer
	}
	for name, service := range services {
		if err := service.Start(groupCtx, router, apiGroup); err != nil {
			logger.Error(fmt.Sprintf("%s 服务启动失败: %v", name, err))
			return nil, err
		}
	}

	// HTTP Server（支持优雅关机）
	httpServer := &http.Server{
		Addr:    config.Server.IP + ":" + strconv.Itoa(config.Server.Port),
		Handler: router,
	}

	httpLog := logger.WithTag("http")
	g.Go(func() error {
		httpLog.Info(fmt.Sprintf("Gin 服务已启动，访问地址: http://%s", httpServer.Addr))

		go func() {
			<-groupCtx.Done()
			httpLog.Info("收到关闭信号，开始关闭HTTP服务...")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				httpLog.Error(fmt.Sprintf("HTTP服务关闭失败: %v", err))
			} else {
				httpLog.Info("HTTP服务已优雅关闭")
			}
		}()

		// ListenAndServe 返回 ErrServerClosed 时表示正常关闭
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			httpLog.Error(fmt.Sprintf("HTTP 服务启动失败: %v", err))
			return err
		}
		return nil
	})

	return httpServer, nil
}

// StartScanner 启动UI循环并打开扫描控制器，关闭信号到来时按相反顺序释放
func (app *App) StartScanner(g *errgroup.Group, groupCtx context.Context) error {
	g.Go(func() error {
		app.ui.Run(groupCtx)
		return nil
	})

	if err := app.controller.Open(groupCtx); err != nil {
		return err
	}

	g.Go(func() error {
		<-groupCtx.Done()
		app.logger.Info("收到关闭信号，开始关闭扫描控制器...")
		if err := app.controller.Close(); err != nil {
			app.logger.Error(fmt.Sprintf("扫描控制器关闭失败: %v", err))
		}
		if err := app.recognizer.Cleanup(); err != nil {
			app.logger.Warn(fmt.Sprintf("识别服务清理失败: %v", err))
		}
		app.logger.Info("扫描控制器已关闭")
		return nil
	})
	return nil
}

func GracefulShutdown(cancel context.CancelFunc, logger *utils.Logger, g *errgroup.Group) {
	// 监听系统信号
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	// 等待信号
	sig := <-sigChan
	logger.Info(fmt.Sprintf("接收到系统信号: %v，开始优雅关闭服务", sig))

	// 取消上下文，通知所有服务开始关闭
	cancel()

	// 等待所有服务关闭，设置超时保护
	done := make(chan error, 1)
	go func() {
		done <- g.Wait()
	}()

	select {
	case err := <-done:
		if err != nil {
			logger.Error(fmt.Sprintf("服务关闭过程中出现错误: %v", err))
			os.Exit(1)
		}
		logger.Info("所有服务已优雅关闭")
	case <-time.After(15 * time.Second):
		logger.Error("服务关闭超时，强制退出")
		os.Exit(1)
	}
}

// issueToken 为屏幕客户端签发访问token
func issueToken(config *configs.Config, deviceID string, ttl time.Duration) error {
	at, err := auth.NewAuthToken(config.Server.Token, ttl)
	if err != nil {
		return fmt.Errorf("请先配置 server.token: %w", err)
	}
	token, err := at.GenerateToken(deviceID)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}

// runHealthCheck 检查所选组件，mode 为功能性检查时会真实拍照、识别和合成
func runHealthCheck(config *configs.Config, logger *utils.Logger, mode health.CheckMode) error {
	connConfig := health.ConfigFromYAML(&config.ConnectivityCheck)
	if mode == health.FunctionalCheck {
		connConfig.Enabled = true
	}
	if !connConfig.Enabled {
		return nil
	}
	checker := health.NewChecker(config, connConfig, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	err := checker.CheckAll(ctx, mode)
	checker.PrintReport()
	return err
}

func main() {
	check := flag.Bool("check", false, "执行相机、识别服务和TTS的功能性检查后退出")
	tokenDevice := flag.String("issue-token", "", "为指定设备ID签发访问token后退出")
	tokenTTL := flag.Duration("token-ttl", 30*24*time.Hour, "签发token的有效期")
	flag.Parse()

	// 加载 .env 文件，配置中的 ${VAR} 依赖这些环境变量
	envErr := godotenv.Load()

	// 加载配置和初始化日志系统
	config, logger, err := LoadConfigAndLogger()
	if err != nil {
		fmt.Println("加载配置或初始化日志系统失败:", err)
		os.Exit(1)
	}
	defer logger.Close()
	if envErr != nil {
		logger.Warn("未找到 .env 文件，使用系统环境变量")
	}

	if *tokenDevice != "" {
		if err := issueToken(config, *tokenDevice, *tokenTTL); err != nil {
			logger.Error(fmt.Sprintf("签发token失败: %v", err))
			os.Exit(1)
		}
		return
	}

	if *check {
		if err := runHealthCheck(config, logger, health.FunctionalCheck); err != nil {
			os.Exit(1)
		}
		return
	}
	if err := runHealthCheck(config, logger, health.BasicCheck); err != nil {
		logger.Error(fmt.Sprintf("连通性检查失败: %v", err))
		os.Exit(1)
	}

	app, err := NewApp(config, logger)
	if err != nil {
		logger.Error(fmt.Sprintf("初始化失败: %v", err))
		os.Exit(1)
	}

	// 创建可取消的上下文
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	g, groupCtx := errgroup.WithContext(ctx)

	if err := app.StartScanner(g, groupCtx); err != nil {
		logger.Error(fmt.Sprintf("启动扫描控制器失败: %v", err))
		cancel()
		os.Exit(1)
	}
	if _, err := app.StartHttpServer(g, groupCtx); err != nil {
		logger.Error(fmt.Sprintf("启动 Http 服务失败: %v", err))
		cancel()
		os.Exit(1)
	}

	// 启动优雅关机处理
	GracefulShutdown(cancel, logger, g)

	logger.Info("程序已成功退出")
}
