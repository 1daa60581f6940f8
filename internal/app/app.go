// Package app はアプリケーションの起動とワイヤリングを行う。
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/promptbox/internal/artifact"
	"github.com/hitoshi/promptbox/internal/botapi"
	"github.com/hitoshi/promptbox/internal/catalog"
	"github.com/hitoshi/promptbox/internal/config"
	"github.com/hitoshi/promptbox/internal/database"
	"github.com/hitoshi/promptbox/internal/handler"
	"github.com/hitoshi/promptbox/internal/intake"
	"github.com/hitoshi/promptbox/internal/logger"
	"github.com/hitoshi/promptbox/internal/metrics"
	"github.com/hitoshi/promptbox/internal/middleware"
	"github.com/hitoshi/promptbox/internal/repository"
	"github.com/hitoshi/promptbox/internal/security"
	"github.com/hitoshi/promptbox/internal/session"
	"github.com/hitoshi/promptbox/internal/worker/fulfill"
)

// 保留キューとカタログのファイルストア名。DATA_DIR配下に置かれる。
const (
	pendingFileName = "pending.json"
	catalogFileName = "data.json"
	lockFileName    = "fulfill.lock"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("store_driver", cfg.StoreDriver),
	)

	switch cmd {
	case CommandFulfill:
		return runFulfill(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// stores は構成されたストレージドライバのリポジトリ一式。
type stores struct {
	pending repository.PendingQueueRepository
	catalog repository.CatalogRepository
	closeFn func() error
}

// Close はドライバが保持するリソースを解放する。
func (s *stores) Close() error {
	if s.closeFn != nil {
		return s.closeFn()
	}
	return nil
}

// openStores はSTORE_DRIVERに応じてリポジトリを構築する。
// fileドライバはDATA_DIR配下のJSONファイル、postgresドライバはDATABASE_URLを使う。
func openStores(cfg *config.Config) (*stores, error) {
	switch cfg.StoreDriver {
	case config.StoreDriverPostgres:
		db, err := database.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		if err := db.Ping(); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		slog.Info("database connection established")
		return &stores{
			pending: repository.NewPostgresPendingQueueRepo(db),
			catalog: repository.NewPostgresCatalogRepo(db),
			closeFn: db.Close,
		}, nil

	default:
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data dir %s: %w", cfg.DataDir, err)
		}
		return &stores{
			pending: repository.NewFilePendingQueueRepo(filepath.Join(cfg.DataDir, pendingFileName)),
			catalog: repository.NewFileCatalogRepo(filepath.Join(cfg.DataDir, catalogFileName)),
		}, nil
	}
}

// newBotClient は会話トランスポートのクライアントを構築する。
// ファイルダウンロード側はSSRF防止機能付きクライアントを使う。
func newBotClient(cfg *config.Config) *botapi.Client {
	ssrfGuard := security.NewSSRFGuard()
	apiClient := &http.Client{Timeout: cfg.ResolveTimeout}
	downloadClient := ssrfGuard.NewSafeClient(cfg.ResolveTimeout)

	return botapi.NewClient(
		apiClient, downloadClient, ssrfGuard, slog.Default(),
		cfg.BotAPIBaseURL, cfg.BotToken, cfg.ResolveMaxSize,
	)
}

// runServe は受付サーバーモードで起動する。
// ストレージを開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. ストレージの初期化
	st, err := openStores(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	// 2. 会話ストアの初期化
	sessions := session.NewStore(cfg.SessionTTL)
	defer sessions.Stop()

	// 3. メトリクスの初期化
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// 4. ドメインサービスの初期化
	catalogService := catalog.NewService(st.catalog)
	machine := intake.NewMachine(
		sessions, st.pending, catalogService,
		security.NewTextSanitizer(), collector, slog.Default(),
		cfg.BotPassword,
	)

	// 5. トランスポートクライアントとレート制限の初期化
	botClient := newBotClient(cfg)
	limiter := middleware.NewEventLimiter(middleware.DefaultEventLimiterConfig(cfg.RateLimitEvents))
	defer limiter.Stop()

	// 6. ルーターの構築
	router := handler.NewRouter(&handler.RouterDeps{
		Logger:         slog.Default(),
		Dispatcher:     machine,
		Sender:         botClient,
		EventLimiter:   limiter,
		WebhookSecret:  cfg.WebhookSecret,
		CatalogService: catalogService,
		Gatherer:       registry,
	})

	// 7. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("intake server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down intake server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("intake server stopped gracefully")
	return nil
}

// runFulfill は取り込みジョブを1回実行する。
// プロセスロックで多重起動を防ぎ、保留キューを処理して終了する。
// 外部スケジューラからの定期起動を想定し、完了まで実行するか全体で失敗する。
func runFulfill(cfg *config.Config) error {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("failed to create data dir %s: %w", cfg.DataDir, err)
	}

	// 多重起動の防止
	lock, err := fulfill.AcquireLock(filepath.Join(cfg.DataDir, lockFileName))
	if err != nil {
		return fmt.Errorf("failed to acquire fulfill lock: %w", err)
	}
	defer func() {
		if releaseErr := lock.Release(); releaseErr != nil {
			slog.Error("failed to release fulfill lock", slog.String("error", releaseErr.Error()))
		}
	}()

	st, err := openStores(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	job := fulfill.NewJob(
		st.pending, st.catalog,
		newBotClient(cfg),
		artifact.NewStore(cfg.DataDir),
		collector, slog.Default(),
		cfg.ResolveTimeout,
	)

	return job.Run(context.Background())
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。postgresドライバ専用。
func runMigrate(cfg *config.Config) error {
	if cfg.StoreDriver != config.StoreDriverPostgres {
		return fmt.Errorf("migrate requires STORE_DRIVER=%s (current: %s)",
			config.StoreDriverPostgres, cfg.StoreDriver)
	}

	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
