package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/go-gl/mathgl/mgl64"
	"go.uber.org/zap"

	"upper-mountains/backend/internal/app"
	"upper-mountains/backend/internal/config"
	"upper-mountains/backend/internal/logging"
)

// Клавиши времени суток
var atmosphereKeys = map[rune]string{
	'1': "dawn",
	'2': "day",
	'3': "dusk",
	'4': "night",
	'0': "neutral",
}

func main() {
	configPath := flag.String("config", "", "путь к YAML конфигурации")
	logLevel := flag.String("log-level", "", "уровень логирования (debug, info, warn, error)")
	logFile := flag.String("log-file", "", "файл логов, при выводе в терминал по умолчанию upper-mountains.log")
	present := flag.String("present", "", "вывод кадра: terminal или none")
	addr := flag.String("addr", "", "адрес WebSocket сервера, пустая строка берет значение из конфигурации")
	flag.Parse()

	if err := run(*configPath, *logLevel, *logFile, *present, *addr); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configPath, logLevel, logFile, present, addr string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if present != "" {
		cfg.Render.Presenter = present
	}
	if addr != "" {
		cfg.Server.Addr = addr
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	terminal := cfg.Render.Presenter == config.PresenterTerminal
	logOpts := logging.Options{Level: cfg.LogLevel, Console: !terminal}
	// Логи в stderr поверх кадра в терминале нечитаемы
	if logFile == "" && terminal {
		logFile = "upper-mountains.log"
	}
	if logFile != "" {
		logOpts.OutputPaths = []string{logFile}
	}
	logger, err := logging.New(logOpts)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var screen tcell.Screen
	if terminal {
		screen, err = tcell.NewScreen()
		if err != nil {
			return fmt.Errorf("терминал: %w", err)
		}
		if err := screen.Init(); err != nil {
			return fmt.Errorf("терминал: %w", err)
		}
		defer screen.Fini()
		screen.HideCursor()
	}

	application, err := app.New(ctx, cfg, logger, app.WithScreen(screen))
	if err != nil {
		return err
	}
	defer func() {
		if err := application.Close(); err != nil {
			logger.Warn("Ошибка при остановке", zap.Error(err))
		}
	}()

	if screen != nil {
		go handleInput(screen, application, logger)
	}

	ticker := time.NewTicker(time.Second / time.Duration(cfg.Loop.TargetFPS))
	defer ticker.Stop()

	logger.Info("Запуск",
		zap.String("presenter", cfg.Render.Presenter),
		zap.String("blend", cfg.Grain.Mode),
		zap.Float64("grain_weight", cfg.Grain.Weight))
	return application.Run(ctx, ticker.C)
}

// handleInput читает клавиатуру до закрытия экрана
func handleInput(screen tcell.Screen, application *app.App, logger *zap.Logger) {
	for {
		ev := screen.PollEvent()
		if ev == nil {
			return
		}
		switch ev := ev.(type) {
		case *tcell.EventResize:
			screen.Sync()
		case *tcell.EventKey:
			switch {
			case ev.Key() == tcell.KeyEscape || ev.Key() == tcell.KeyCtrlC || ev.Rune() == 'q':
				application.Stop()
				return
			case ev.Rune() == ' ':
				application.Kick(mgl64.Vec3{0, 60, 0})
			default:
				if preset, ok := atmosphereKeys[ev.Rune()]; ok {
					if err := application.SetAtmosphere(preset); err != nil {
						logger.Warn("Ошибка смены атмосферы", zap.Error(err))
					}
				}
			}
		}
	}
}
