// Package main 是应用程序的入口点。
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"praivio-go/internal/config"
	"praivio-go/internal/handler"
	"praivio-go/internal/model"
	"praivio-go/internal/pipeline"
	"praivio-go/internal/prompt"
	"praivio-go/internal/ratelimit"
	"praivio-go/internal/repository"
	"praivio-go/internal/service"
	"praivio-go/pkg/database"
	"praivio-go/pkg/es"
	"praivio-go/pkg/kafka"
	"praivio-go/pkg/llm"
	"praivio-go/pkg/log"
	"praivio-go/pkg/secure"
	"praivio-go/pkg/storage"
	"praivio-go/pkg/tika"
	"praivio-go/pkg/token"
	"praivio-go/pkg/transcribe"
)

func main() {
	// 1. 初始化配置
	configPath := os.Getenv("PRAIVIO_CONFIG")
	if configPath == "" {
		configPath = "./configs/config.yaml"
	}
	config.Init(configPath)
	cfg := config.Conf

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync() // 确保在程序退出时刷新所有缓冲的日志条目
	log.Info("日志记录器初始化成功")

	// 3. 初始化数据库、Redis、对象存储和审计索引
	database.InitDB(cfg.Database)
	if err := database.Migrate(database.DB, model.AllModels()...); err != nil {
		log.Fatal("数据库迁移失败", err)
	}
	database.InitRedis(cfg.Database.Redis)

	var store storage.ObjectStore
	if cfg.MinIO.Endpoint != "" {
		storage.InitMinIO(cfg.MinIO)
		store = storage.NewMinIOStore(storage.MinioClient, cfg.MinIO.BucketName)
	} else {
		log.Warnf("MinIO 未配置，附件上传接口不可用")
	}

	var mirror service.AuditMirror
	if cfg.Elasticsearch.Addresses != "" {
		if err := es.InitES(cfg.Elasticsearch); err != nil {
			log.Errorf("es 初始化失败，审计检索不可用: %s", err)
		} else {
			mirror = es.NewAuditIndex(es.ESClient, cfg.Elasticsearch.IndexName)
		}
	}

	// 4. 初始化 Repository
	userRepo := repository.NewUserRepository(database.DB)
	chatRepo := repository.NewChatRepository(database.DB)
	generationRepo := repository.NewGenerationRepository(database.DB)
	fileRepo := repository.NewFileRepository(database.DB)
	auditRepo := repository.NewAuditRepository(database.DB)
	blacklist := repository.NewMemoryTokenBlacklist()
	if database.RDB != nil {
		blacklist = repository.NewRedisTokenBlacklist(database.RDB)
	}

	// 5. 初始化外部服务客户端
	cipher, err := secure.NewCipher(cfg.Security.SecretKey)
	if err != nil {
		log.Fatal("初始化加密组件失败", err)
	}
	jwtManager := token.NewJWTManager(cfg.Security.SecretKey, cfg.JWT.AccessTokenExpireHours, cfg.JWT.RefreshTokenExpireDays)
	llmClient := llm.NewClient(cfg.LLM)

	var documents pipeline.DocumentExtractor
	if cfg.Tika.ServerURL != "" {
		documents = tika.NewClient(cfg.Tika)
	}
	var transcriber pipeline.Transcriber
	if cfg.Transcription.BaseURL != "" {
		transcriber = transcribe.NewClient(cfg.Transcription)
	}

	// 6. 初始化 Service (依赖注入)
	auditTrail := service.NewAuditTrail(auditRepo, mirror)
	recorder := service.NewRecorder(generationRepo, chatRepo)
	defaults := service.DefaultGenerationDefaults(cfg.LLM.DefaultModel)
	limits := service.UploadLimits{PDF: cfg.Upload.MaxPDFSize, Image: cfg.Upload.MaxImageSize, Audio: cfg.Upload.MaxAudioSize}

	consumerCtx, stopConsumer := context.WithCancel(context.Background())
	defer stopConsumer()

	var (
		fileService service.FileService
		resolver    prompt.FileResolver
		producer    *kafka.Producer
	)
	if store != nil {
		processor := pipeline.NewProcessor(pipeline.NewExtractor(documents, transcriber), store, fileRepo, cipher)
		var publisher service.ExtractionPublisher
		if cfg.Kafka.Brokers != "" {
			producer = kafka.NewProducer(cfg.Kafka)
			publisher = producer
			// 7. 启动后台 Kafka 消费者
			go kafka.StartConsumer(consumerCtx, cfg.Kafka, processor)
		}
		fileService = service.NewFileService(fileRepo, chatRepo, store, cipher, processor, publisher, auditTrail, limits)
		resolver = fileService
	}

	userService := service.NewUserService(userRepo, blacklist, jwtManager, auditTrail)

	// 8. 设置 Gin 模式并创建路由引擎
	gin.SetMode(cfg.Server.Mode)
	r := handler.NewRouter(handler.Deps{
		Users:       userService,
		Admin:       service.NewAdminService(userRepo, auditTrail),
		Generations: service.NewGenerationService(llmClient, recorder, auditTrail, generationRepo, defaults),
		Chats:       service.NewChatService(chatRepo, prompt.NewAssembler(resolver), llmClient, recorder, auditTrail, defaults),
		Files:       fileService,
		Stats:       service.NewStatsService(generationRepo, auditRepo, userRepo),
		Audit:       auditTrail,
		LLM:         llmClient,
		Gate:        ratelimit.NewGate(cfg.RateLimit.Requests, cfg.RateLimit.Window),
		DB:          database.DB,
		Version:     cfg.Server.Version,
		Limits:      limits,
	})

	// 启动 HTTP 服务器并实现优雅停机
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Infof("服务启动于 %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("HTTP 服务监听失败: %s\n", err)
		}
	}()

	// 等待中断信号以实现优雅停机
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("接收到停机信号，正在关闭服务...")

	// 设置一个5秒的超时上下文
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// 关闭 HTTP 服务器
	if err := srv.Shutdown(ctx); err != nil {
		log.Errorf("HTTP 服务器关闭失败: %v", err)
	}

	stopConsumer()
	if producer != nil {
		if err := producer.Close(); err != nil {
			log.Errorf("关闭 Kafka 生产者失败: %v", err)
		}
	}
	log.Info("服务已优雅关闭")
}
