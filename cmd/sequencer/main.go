package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/wyfcoding/dexcore/internal/sequencer/application"
	"github.com/wyfcoding/dexcore/internal/sequencer/infrastructure/journal"
	"github.com/wyfcoding/dexcore/internal/sequencer/infrastructure/persistence/mysql"
	"github.com/wyfcoding/dexcore/internal/sequencer/interfaces/consumer"
	sequencerhttp "github.com/wyfcoding/dexcore/internal/sequencer/interfaces/http"
	"github.com/wyfcoding/dexcore/pkg/config"
	"github.com/wyfcoding/dexcore/pkg/db"
	"github.com/wyfcoding/dexcore/pkg/logger"
	"github.com/wyfcoding/dexcore/pkg/metrics"
	"github.com/wyfcoding/dexcore/pkg/mq"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "configs/sequencer/config.toml", "path to config file")
	flag.Parse()

	// 1. 配置
	cfg, err := config.Load(configPath)
	if err != nil {
		panic(fmt.Sprintf("load config failed: %v", err))
	}

	// 2. 日志
	if err := logger.Init(cfg.Logger); err != nil {
		panic(fmt.Sprintf("init logger failed: %v", err))
	}
	log := logger.Get()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 3. 指标
	m := metrics.New("sequencer")
	if cfg.Metrics.Enabled {
		go func() {
			if err := m.Serve(ctx, cfg.Metrics.Port, cfg.Metrics.Path); err != nil {
				log.Error("metrics server failed", "error", err)
			}
		}()
	}

	// 4. 状态恢复：检查点 + 请求日志重放
	core, in, out, ckpt, err := application.OpenState(cfg.Journal.Dir, cfg.Journal.Fsync, cfg.Sequencer.FeeWallet, log)
	if err != nil {
		panic(fmt.Sprintf("open sequencer state failed: %v", err))
	}
	defer in.Close()
	defer out.Close()

	// 写入侧：HTTP 接口追加请求日志，worker 只负责消费
	reqAppender, err := journal.OpenAppender(application.RequestJournalPath(cfg.Journal.Dir), cfg.Journal.Fsync)
	if err != nil {
		panic(fmt.Sprintf("open request journal failed: %v", err))
	}
	defer reqAppender.Close()

	// 5. 单写者工作循环。追赶阶段将重放结果与既有响应日志比对，
	// 比对尾随器由 worker 在追上后关闭。
	verify, err := journal.OpenTailer(application.ResponseJournalPath(cfg.Journal.Dir), in.NextSequence())
	if err != nil {
		panic(fmt.Sprintf("open response journal failed: %v", err))
	}
	worker := application.NewWorker(core, in, out, verify, ckpt, application.WorkerConfig{
		CheckpointEvery: cfg.Journal.CheckpointEvery,
		SnapshotDepth:   cfg.Sequencer.SnapshotDepth,
	}, m, log)
	workerErr := make(chan error, 1)
	go func() {
		workerErr <- worker.Run(ctx)
	}()

	// 6. 下游分发：响应日志 → Kafka / 成交归档
	var tradeRepo *mysql.TradeRepository
	if cfg.Database.Enabled {
		gdb, err := db.Init(db.Config{
			DSN:          cfg.Database.DSN,
			MaxOpenConns: cfg.Database.MaxOpenConns,
			MaxIdleConns: cfg.Database.MaxIdleConns,
		})
		if err != nil {
			panic(fmt.Sprintf("init database failed: %v", err))
		}
		tradeRepo = mysql.NewTradeRepository(gdb)
	}
	if cfg.Kafka.Enabled || tradeRepo != nil {
		var producer *mq.Producer
		if cfg.Kafka.Enabled {
			producer = mq.NewProducer(mq.Config{
				Brokers:      cfg.Kafka.Brokers,
				MaxRetries:   cfg.Kafka.MaxRetries,
				RetryBackoff: cfg.Kafka.RetryBackoff,
			})
			defer producer.Close()
		}
		fanoutIn, err := journal.OpenTailer(application.ResponseJournalPath(cfg.Journal.Dir), 1)
		if err != nil {
			panic(fmt.Sprintf("open response journal failed: %v", err))
		}
		defer fanoutIn.Close()
		fanout := consumer.NewFanout(fanoutIn, producer, tradeRepo, cfg.Kafka.TopicPrefix, m, log)
		go func() {
			if err := fanout.Run(ctx); err != nil {
				log.Error("response fanout failed", "error", err)
			}
		}()
	}

	// 7. HTTP 接口
	if cfg.Environment == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	handler := sequencerhttp.NewSequencerHandler(reqAppender, worker, tradeRepo)
	handler.RegisterRoutes(router.Group(""))

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeout) * time.Second,
	}
	go func() {
		log.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("http server failed", "error", err)
		}
	}()

	// 8. 优雅退出
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
		log.Info("shutdown signal received")
	case err := <-workerErr:
		if err != nil {
			log.Error("sequencer worker failed", "error", err)
		}
	}

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "error", err)
	}
	log.Info("sequencer exiting")
}
