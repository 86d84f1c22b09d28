package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sourcegraph/conc"
	"github.com/spf13/pflag"

	"sniper/internal/app"
	"sniper/internal/app/recognizers"
	"sniper/internal/config"
	"sniper/internal/control"
	"sniper/internal/database"
	"sniper/internal/interrupt"
	"sniper/internal/ledger"
	"sniper/internal/logger"
	"sniper/internal/metrics"
	"sniper/internal/screenshot"
	"sniper/internal/telemetry"
)

func main() {
	fs := pflag.NewFlagSet("sniper", pflag.ExitOnError)
	config.RegisterFlags(fs)
	stdio := fs.Bool("stdio", false, "режим дочернего процесса: команды JSON на stdin, телеметрия на stdout")
	_ = fs.Parse(os.Args[1:])

	// .env необязателен, нужен для DSN базы и переопределений SNIPER_*
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("⚠️ .env не прочитан: %v", err)
	}

	loader := config.NewLoader(fs, nil)
	c, err := loader.Load(nil)
	if err != nil {
		log.Fatal("Ошибка конфигурации: ", err)
	}

	// Инициализация логгера
	loggerManager, err := logger.NewLoggerManager(c.LogFilePath)
	if err != nil {
		log.Fatal("Error initializing logger: ", err)
	}
	defer loggerManager.Close()
	loggerManager.SetLevel(logger.ParseLevel(c.LogLevel))
	loader.Logger = loggerManager

	loggerManager.Info("🚀 Запуск sniper (stdio=%v, dry_run=%v)", *stdio, c.DryRun)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, loader, c, loggerManager, *stdio); err != nil {
		loggerManager.LogError(err, "Фатальная ошибка")
		loggerManager.Close()
		os.Exit(1)
	}
	loggerManager.Info("👋 sniper завершен")
}

func run(ctx context.Context, loader *config.Loader, c *config.Config, loggerManager *logger.LoggerManager, stdio bool) error {
	// Телеметрия: stdout для супервизора или лог в автономном режиме
	var primary telemetry.Sink = telemetry.NewLogSink(loggerManager.Info)
	if stdio {
		primary = telemetry.NewWriterSink(os.Stdout)
	}
	emitter := telemetry.NewEmitter(c.Telemetry.Buffer, loggerManager, primary)

	emitCtx, stopEmitter := context.WithCancel(context.Background())
	var bg conc.WaitGroup
	bg.Go(func() { emitter.Run(emitCtx) })
	defer func() {
		stopEmitter()
		bg.Wait()
	}()

	// История и ее зеркало в БД
	led := ledger.Open(c.Ledger.Path, c.Ledger.Capacity, loggerManager)
	loggerManager.Info("📒 история: %s (%d записей)", c.Ledger.Path, led.Len())
	if c.Database.DSN != "" {
		db, err := database.Open(c.Database.Driver, c.Database.DSN)
		if err != nil {
			loggerManager.LogError(err, "БД недоступна, история пишется только в файл")
		} else {
			defer db.Close()
			dbManager := database.NewDatabaseManager(db, c.Database.Driver, loggerManager)
			if err := dbManager.EnsureSchema(); err != nil {
				loggerManager.LogError(err, "Ошибка подготовки схемы")
			} else {
				led.SetMirror(dbManager)
				defer dbManager.WaitForAsyncOperations()
				loggerManager.Info("✅ Успешное подключение к базе данных (%s)", c.Database.Driver)
			}
		}
	}

	// Устройство ввода
	actuator, port, err := app.OpenActuator(c, loggerManager)
	if err != nil {
		return fmt.Errorf("ошибка открытия порта Arduino: %w", err)
	}
	if port != nil {
		defer func() {
			if err := port.Close(); err != nil {
				loggerManager.LogError(err, "Error closing port")
			}
		}()
	}

	m := metrics.New()
	m.CounterFunc("telemetry_dropped_total", "Сообщения телеметрии, отброшенные при полной очереди.", emitter.Dropped)

	runtime := &app.Runtime{
		Logger:      loggerManager,
		Emitter:     emitter,
		Ledger:      led,
		Actuator:    actuator,
		Display:     screenshot.SystemDisplay(),
		Recognizers: recognizers.New,
		Metrics:     m,
	}
	defer runtime.Close()

	scanner := screenshot.NewScanner(c.WindowTopOffset)

	var configure control.ConfigFunc = loader.Load
	if !stdio {
		watcher, err := loader.Watch()
		if err != nil {
			return err
		}
		watcher.OnChange(func(*config.Config) {
			emitter.Emit(telemetry.KindInfo, "config reloaded")
		})
		configure = func(overrides map[string]any) (*config.Config, error) {
			if len(overrides) == 0 {
				return watcher.Current(), nil
			}
			return loader.Load(overrides)
		}
	}

	// отступ заголовка окна берется из конфига очередного start;
	// мост вызывает configure и ScanRegion под своим мьютексом
	withOffset := func(overrides map[string]any) (*config.Config, error) {
		next, err := configure(overrides)
		if err == nil {
			scanner.TopOffset = next.WindowTopOffset
		}
		return next, err
	}
	bridge := control.NewBridge(withOffset, scanner, runtime.Build, emitter, loggerManager)

	// websocket телеметрии и /metrics; входящие сообщения websocket тоже команды
	if c.Telemetry.ListenAddr != "" {
		hub := telemetry.NewHub(loggerManager)
		hub.OnMessage(func(data []byte) { bridge.Handle(ctx, data) })
		emitter.AddSink(hub)

		mux := http.NewServeMux()
		mux.Handle("/ws", hub)
		mux.Handle("/metrics", m.Handler())
		srv := &http.Server{Addr: c.Telemetry.ListenAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		bg.Go(func() {
			loggerManager.Info("🌐 телеметрия: ws://%s/ws", c.Telemetry.ListenAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				loggerManager.LogError(err, "Ошибка сервера телеметрии")
			}
		})
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
			hub.Close()
		}()
	}

	if stdio {
		emitter.Emit(telemetry.KindInfo, "Bridge listener starting...")
		return bridge.Listen(ctx, os.Stdin)
	}
	return runHotkeys(ctx, bridge, loggerManager)
}

// runHotkeys автономный режим: Shift+Enter запускает сессию, Q останавливает
func runHotkeys(ctx context.Context, bridge *control.Bridge, loggerManager *logger.LoggerManager) error {
	interruptManager := interrupt.NewInterruptManager(loggerManager)
	loggerManager.Info("⏸️ Программа готова к работе. Нажмите Shift+Enter для запуска, Q для остановки")
	interruptManager.StartMonitoring()

	for {
		select {
		case <-ctx.Done():
			bridge.Stop(context.Background())
			return nil
		case <-interruptManager.GetScriptStartChan():
			loggerManager.Info("🚀 Запуск сессии...")
			if err := bridge.Start(ctx, nil); err != nil {
				loggerManager.LogError(err, "Сессия не запущена")
				continue
			}
			interruptManager.SetScriptRunning(bridge.Running())
		case <-interruptManager.GetScriptInterruptChan():
			bridge.Stop(ctx)
			interruptManager.SetScriptRunning(false)
			loggerManager.Info("✅ Сессия остановлена. Нажмите Shift+Enter для повторного запуска")
		}
	}
}
