package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math"
	"math/rand/v2"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"upper-mountains/backend/internal/logging"
	"upper-mountains/backend/internal/render"
	"upper-mountains/backend/internal/transport/ws"
)

// Bot толкает шары сцены через WebSocket протокол сервера
type Bot struct {
	client   *ws.Client
	logger   *zap.Logger
	pattern  string
	strength float64
	start    time.Time
}

// impulse направление толчка по паттерну, длина равна strength
func (b *Bot) impulse() mgl64.Vec3 {
	elapsed := time.Since(b.start).Seconds()
	var dir mgl64.Vec3
	switch b.pattern {
	case "up":
		dir = mgl64.Vec3{0, 1, 0}
	case "circle":
		// Плавное вращение направления по горизонтали с подбросом вверх
		angle := elapsed * 0.5
		dir = mgl64.Vec3{math.Cos(angle), 0.3, math.Sin(angle)}
	default: // "random"
		dir = mgl64.Vec3{rand.Float64()*2 - 1, rand.Float64() * 0.5, rand.Float64()*2 - 1}
	}
	if dir.Len() == 0 {
		dir = mgl64.Vec3{0, 1, 0}
	}
	return dir.Normalize().Mul(b.strength)
}

func (b *Bot) kick() {
	balls := b.client.Balls()
	if len(balls) == 0 {
		// Сцена еще не пришла или шаров нет
		return
	}
	id := balls[rand.IntN(len(balls))]
	v := b.impulse()
	if err := b.client.Impulse(id, v); err != nil {
		b.logger.Warn("Ошибка отправки импульса", zap.String("id", id), zap.Error(err))
		return
	}
	b.logger.Debug("Импульс отправлен", zap.String("id", id), zap.Float64s("impulse", v[:]))
}

func main() {
	var (
		serverURL   = flag.String("url", "ws://localhost:8080/ws", "URL WebSocket сервера")
		pattern     = flag.String("pattern", "random", "паттерн толчков (random, circle, up)")
		duration    = flag.Duration("duration", 30*time.Second, "длительность работы бота")
		commandRate = flag.Duration("rate", 500*time.Millisecond, "частота отправки импульсов")
		strength    = flag.Float64("strength", 20, "величина импульса")
		cycle       = flag.Duration("atmosphere-cycle", 0, "период смены времени суток, 0 отключает")
		logLevel    = flag.String("log-level", "info", "уровень логирования")
	)
	flag.Parse()

	if err := run(*serverURL, *pattern, *duration, *commandRate, *strength, *cycle, *logLevel); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(serverURL, pattern string, duration, rate time.Duration, strength float64, cycle time.Duration, logLevel string) error {
	if rate <= 0 {
		return fmt.Errorf("частота команд должна быть положительной: %v", rate)
	}
	logger, err := logging.New(logging.Options{Level: logLevel, Console: true})
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	logger = logger.Named("Bot")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, duration)
		defer cancel()
	}

	client, err := ws.Dial(ctx, serverURL, logger)
	if err != nil {
		return err
	}
	logger.Info("Подключен", zap.String("url", serverURL), zap.String("pattern", pattern))

	bot := &Bot{client: client, logger: logger, pattern: pattern, strength: strength, start: time.Now()}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return client.Run(ctx) })
	g.Go(func() error {
		pingTicker := time.NewTicker(5 * time.Second)
		defer pingTicker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-pingTicker.C:
				if err := client.Ping(); err != nil {
					logger.Warn("Ошибка отправки ping", zap.Error(err))
				}
			}
		}
	})
	g.Go(func() error {
		commandTicker := time.NewTicker(rate)
		defer commandTicker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-commandTicker.C:
				bot.kick()
			}
		}
	})
	if cycle > 0 {
		g.Go(func() error {
			presets := render.PresetNames()
			ticker := time.NewTicker(cycle)
			defer ticker.Stop()
			for i := 0; ; i++ {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
					name := presets[i%len(presets)]
					if err := client.SetAtmosphere(name); err != nil {
						logger.Warn("Ошибка смены атмосферы", zap.String("preset", name), zap.Error(err))
					}
				}
			}
		})
	}

	err = g.Wait()
	_ = client.Close()
	printStats(logger, client.Stats(), time.Since(bot.start))
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func printStats(logger *zap.Logger, st ws.ClientStats, elapsed time.Duration) {
	fields := []zap.Field{
		zap.Duration("elapsed", elapsed),
		zap.Int64("commands_sent", st.CommandsSent),
		zap.Int64("acks", st.AcksReceived),
		zap.Int64("command_errors", st.CommandErrors),
		zap.Int64("creates", st.Creates),
		zap.Int64("updates", st.Updates),
		zap.Int64("removes", st.Removes),
		zap.Duration("last_rtt", st.LastRTT),
	}
	if st.CommandsSent > 0 && elapsed > 0 {
		fields = append(fields, zap.Float64("commands_per_sec", float64(st.CommandsSent)/elapsed.Seconds()))
	}
	logger.Info("Статистика", fields...)
}
