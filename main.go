package main

import (
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v2"

	"rulelens/db"
	api "rulelens/http"
	"rulelens/llm"
	"rulelens/logging"
	"rulelens/miner"
	"rulelens/ml"
	"rulelens/monitoring"
)

type Config struct {
	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`
	Http struct {
		Port           int      `yaml:"port"`
		TimeoutSeconds int      `yaml:"timeout_seconds"`
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"http"`
	Log logging.Config `yaml:"log"`
	LLM struct {
		APIKey         string `yaml:"api_key"`
		Model          string `yaml:"model"`
		TimeoutSeconds int    `yaml:"timeout_seconds"`
		MaxTokens      int    `yaml:"max_tokens"`
	} `yaml:"llm"`
	Miner struct {
		Bin   string `yaml:"bin"`
		Dir   string `yaml:"dir"`
		Debug bool   `yaml:"debug"`
	} `yaml:"miner"`
	// Models are preloaded from the database at startup.
	Models []string `yaml:"models"`
	// WatchModel, when set, hot-reloads a model file written by the offline
	// trainer.
	WatchModel string `yaml:"watch_model"`
}

func main() {
	// 1. Load config
	config, err := loadConfig("config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 2. Initialize logging
	logger, err := logging.New(config.Log)
	if err != nil {
		log.Fatalf("Failed to initialize logging: %v", err)
	}
	defer logger.Sync()

	// 3. Initialize database
	if err := db.InitDB(config.Database.Path); err != nil {
		logger.Fatal("initialize database", zap.Error(err))
	}
	defer db.Close()
	logger.Info("database initialized", zap.String("path", config.Database.Path))

	// 4. Preload models
	registry := api.NewRegistry()
	for _, name := range config.Models {
		payload, version, err := db.LoadLatestModel(name)
		if err != nil {
			logger.Warn("preload model", zap.String("model", name), zap.Error(err))
			continue
		}
		var model ml.RuleListModel
		if err := json.Unmarshal(payload, &model); err != nil {
			logger.Warn("decode stored model", zap.String("model", name), zap.Error(err))
			continue
		}
		registry.Publish(name, &model, version)
		logger.Info("model loaded", zap.String("model", name), zap.Int("version", version))
	}

	// 5. Start progress hub
	hub := monitoring.NewHub(logger)
	go hub.Run()
	defer hub.Stop()

	// 6. Start HTTP server
	engine := &miner.Script{
		Bin: config.Miner.Bin,
		Dir: config.Miner.Dir,
		Deb: config.Miner.Debug,
	}
	handlers, err := api.NewHandlers(registry, engine, hub, logger)
	if err != nil {
		logger.Fatal("build handlers", zap.Error(err))
	}
	if config.LLM.APIKey != "" {
		handlers.Summarizer = llm.NewSummarizer(
			config.LLM.APIKey,
			config.LLM.Model,
			time.Duration(config.LLM.TimeoutSeconds)*time.Second,
			config.LLM.MaxTokens)
		logger.Info("summarizer enabled", zap.String("llm_model", config.LLM.Model))
	}

	serverConfig := api.DefaultServerConfig()
	if config.Http.Port != 0 {
		serverConfig.Port = config.Http.Port
	}
	if config.Http.TimeoutSeconds != 0 {
		serverConfig.Timeout = time.Duration(config.Http.TimeoutSeconds) * time.Second
	}
	if len(config.Http.AllowedOrigins) != 0 {
		serverConfig.AllowedOrigins = config.Http.AllowedOrigins
	}

	server := api.NewServer(serverConfig, handlers)
	go func() {
		if err := server.Start(); err != nil {
			logger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	// 7. Watch for models trained offline
	if config.WatchModel != "" {
		watcher, err := ml.WatchModel(config.WatchModel,
			func(model *ml.RuleListModel) {
				registry.Publish(model.Name, model, 0)
				hub.Publish(monitoring.Event{Type: monitoring.ModelPublished, Model: model.Name})
				logger.Info("model reloaded from file",
					zap.String("model", model.Name),
					zap.String("path", config.WatchModel))
			},
			func(err error) {
				logger.Warn("model watch", zap.Error(err))
			})
		if err != nil {
			logger.Fatal("watch model file", zap.Error(err))
		}
		defer watcher.Close()
	}

	// 8. Handle graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")

	if err := server.Stop(); err != nil {
		logger.Warn("server forced to shutdown", zap.Error(err))
	}

	logger.Info("exiting")
}

func loadConfig(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var config Config
	if err := yaml.NewDecoder(file).Decode(&config); err != nil {
		return nil, err
	}
	return &config, nil
}
