package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ziad784/whatsapp-bot2/internal/api"
	"github.com/ziad784/whatsapp-bot2/internal/bot"
	"github.com/ziad784/whatsapp-bot2/internal/config"
	"github.com/ziad784/whatsapp-bot2/internal/convert"
	"github.com/ziad784/whatsapp-bot2/internal/dedup"
	"github.com/ziad784/whatsapp-bot2/internal/payment"
	"github.com/ziad784/whatsapp-bot2/internal/redis"
	"github.com/ziad784/whatsapp-bot2/internal/storage"
	"github.com/ziad784/whatsapp-bot2/internal/transport"
)

func main() {
	cfgPath := os.Getenv("PRINTBOT_CONFIG")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	dbType := os.Getenv("PRINTBOT_DB")
	if dbType == "" {
		dbType = "sqlite3"
	}
	log.Printf("dbType: %s\n", dbType)
	db, err := storage.Open(dbType, cfg)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()
	if err := storage.Migrate(db, dbType); err != nil {
		log.Fatalf("migrate database: %v", err)
	}

	// Redis backs webhook deduplication across restarts; the bot still
	// works on the in-memory filter alone when it is unreachable.
	var cache *redis.Client
	if rdb, err := redis.NewRedisClient(cfg); err != nil {
		log.Printf("redis unavailable, using in-memory dedup only: %v", err)
	} else {
		cache = rdb
		defer rdb.Close()
	}

	wa := transport.NewWebhookClient(cfg.Transport.ReplyURL, cfg.Transport.Token)
	gateway := payment.NewPaystack(cfg.Payment.SecretKey, cfg.Payment.BaseURL, cfg.Payment.CallbackURL)

	printing := cfg.Printing
	engine := bot.NewEngine(bot.Config{
		Transport:  wa,
		ImageToPDF: &convert.ImageToPDF{ToolPath: printing.MagickPath},
		DocToPDF: &convert.DocToPDF{
			ToolPath: printing.SofficePath,
			Rename:   os.Rename,
			Exists: func(path string) bool {
				_, err := os.Stat(path)
				return err == nil
			},
		},
		Extractor:    &convert.PageExtractor{ToolPath: printing.QpdfPath},
		Grayscale:    &convert.Grayscale{ToolPath: printing.GhostscriptPath},
		Printer:      &convert.PrintDispatcher{ToolPath: printing.PrintToolPath, PrinterName: printing.PrinterName},
		Pages:        &convert.QpdfPageCounter{ToolPath: printing.QpdfPath},
		Gateway:      gateway,
		DB:           db,
		UploadsDir:   cfg.BasicConfig.UploadsDir,
		StageTimeout: time.Duration(printing.StageTimeoutMinutes) * time.Minute,
	})

	sweepCtx, sweepCancel := context.WithCancel(context.Background())
	defer sweepCancel()
	sweepInterval := time.Duration(cfg.BasicConfig.SweepIntervalMinutes) * time.Minute
	if sweepInterval <= 0 {
		sweepInterval = 30 * time.Minute
	}
	sweepMaxAge := time.Duration(cfg.BasicConfig.SweepMaxAgeMinutes) * time.Minute
	if sweepMaxAge <= 0 {
		sweepMaxAge = 24 * time.Hour
	}
	engine.StartUploadSweeper(sweepCtx, sweepInterval, sweepMaxAge)

	filter := dedup.NewFilter(cache, dedup.DefaultRetention)
	handlers := api.NewHandler(engine, filter, db, cfg.BasicConfig.AdminToken, cfg.BasicConfig.WhatsappNumber)

	router := gin.Default()
	handlers.RegisterRoutes(router)

	addr := cfg.BasicConfig.ServerAddress
	if addr == "" {
		addr = ":8090"
	}

	if err := router.Run(addr); err != nil {
		log.Fatalf("server stopped: %v", err)
	}
}
