// Package main 是应用程序的入口点。
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"ai-chat-go/internal/config"
	"ai-chat-go/internal/handler"
	"ai-chat-go/internal/middleware"
	"ai-chat-go/internal/model"
	"ai-chat-go/internal/repository"
	"ai-chat-go/internal/service"
	"ai-chat-go/pkg/aibackend"
	"ai-chat-go/pkg/database"
	"ai-chat-go/pkg/log"
)

func main() {
	// 1. 加载配置
	cfg, err := config.Load("./configs/config.yaml")
	if err != nil {
		panic(err)
	}

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync()
	log.Info("日志记录器初始化成功")

	// 3. 初始化数据库和 Redis
	db, err := database.NewMySQL(cfg.Database.MySQL.DSN)
	if err != nil {
		log.Fatal("MySQL 初始化失败", err)
	}
	if err := db.AutoMigrate(&model.SavedPrompt{}, &model.PromptVersion{}); err != nil {
		log.Fatal("数据库迁移失败", err)
	}
	rdb, err := database.NewRedis(cfg.Database.Redis.Addr, cfg.Database.Redis.Password, cfg.Database.Redis.DB)
	if err != nil {
		log.Fatal("Redis 初始化失败", err)
	}

	// 4. 初始化 Repository
	conversationRepo := repository.NewConversationRepository(rdb)
	promptRepo := repository.NewPromptRepository(db)

	// 5. 初始化 Service (依赖注入)
	backendClient := aibackend.NewClient(aibackend.Config{
		BaseURL: cfg.AI.BackendURL,
		Timeout: cfg.AI.Timeout(),
	})
	chatService := service.NewChatService(backendClient, cfg.AI)
	conversationService := service.NewConversationService(conversationRepo, chatService)
	promptService := service.NewPromptService(promptRepo)

	// 6. 设置 Gin 模式并创建路由引擎
	gin.SetMode(cfg.Server.Mode)
	r := gin.New()
	r.Use(middleware.RequestLogger(), gin.Recovery())

	// 7. 注册路由
	apiV1 := r.Group("/api/v1")
	{
		chat := apiV1.Group("/chat")
		{
			chatHandler := handler.NewChatHandler(chatService)
			chat.POST("/generate", chatHandler.Generate)
			chat.GET("/health", chatHandler.Health)
			chat.POST("/test", chatHandler.Test)
		}

		conversations := apiV1.Group("/conversations")
		{
			conversationHandler := handler.NewConversationHandler(conversationService)
			conversations.POST("", conversationHandler.Create)
			conversations.GET("", conversationHandler.List)
			conversations.GET("/:id", conversationHandler.Get)
			conversations.DELETE("/:id", conversationHandler.Delete)
			conversations.POST("/:id/messages", conversationHandler.AppendMessage)
			conversations.PUT("/:id/messages/:index", conversationHandler.EditMessage)
		}

		prompts := apiV1.Group("/prompts")
		{
			promptHandler := handler.NewPromptHandler(promptService)
			prompts.POST("", promptHandler.Create)
			prompts.GET("", promptHandler.List)
			prompts.GET("/:id", promptHandler.Get)
			prompts.GET("/:id/latest", promptHandler.Latest)
			prompts.PUT("/:id", promptHandler.Update)
			prompts.DELETE("/:id", promptHandler.Delete)
		}
	}

	// 启动 HTTP 服务器并实现优雅停机
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Infof("服务启动于 %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP 服务监听失败: %s\n", err)
		}
	}()

	// 等待中断信号以实现优雅停机
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("接收到停机信号，正在关闭服务...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("HTTP 服务器关闭失败: %v", err)
	}
	log.Info("服务已优雅关闭")
}
