package world

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"upper-mountains/backend/internal/physics"
)

// Asset полностью подготовленный объект сцены.
// Collider nil означает, что объект только рисуется.
type Asset struct {
	Entity   Entity
	Collider physics.Shape
	Mass     float64
	Options  []physics.BodyOption
}

// LoadFunc загружает или генерирует ассет
type LoadFunc func(ctx context.Context) (Asset, error)

// LoaderStats счетчики загрузчика
type LoaderStats struct {
	Started   int64
	Loaded    int64
	Failed    int64
	Discarded int64
}

// AssetLoader загружает ассеты параллельно и передает готовые в сцену через очередь изменений.
// Вставка в сцену и регистрация тела происходят между тиками одним изменением.
type AssetLoader struct {
	scene    *Scene
	registry *Registry
	logger   *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	group  *errgroup.Group

	mu     sync.Mutex
	closed bool
	// inflight учитывает загрузки с момента решения о запуске, до group.Go
	inflight sync.WaitGroup

	started   atomic.Int64
	loaded    atomic.Int64
	failed    atomic.Int64
	discarded atomic.Int64
}

// NewAssetLoader создает загрузчик. concurrency <= 0 снимает ограничение.
func NewAssetLoader(parent context.Context, registry *Registry, concurrency int, logger *zap.Logger) *AssetLoader {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(parent)
	group := &errgroup.Group{}
	if concurrency > 0 {
		group.SetLimit(concurrency)
	}
	return &AssetLoader{
		scene:    registry.Scene(),
		registry: registry,
		logger:   logger.Named("Assets"),
		ctx:      ctx,
		cancel:   cancel,
		group:    group,
	}
}

// Load запускает загрузку. После Shutdown вызов игнорируется.
func (l *AssetLoader) Load(name string, fn LoadFunc) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		l.discarded.Add(1)
		return
	}
	l.started.Add(1)
	l.inflight.Add(1)
	l.mu.Unlock()

	l.group.Go(func() error {
		defer l.inflight.Done()
		asset, err := fn(l.ctx)
		if err != nil {
			l.failed.Add(1)
			l.logger.Warn("Ошибка загрузки ассета", zap.String("asset", name), zap.Error(err))
			return fmt.Errorf("ассет %s: %w", name, err)
		}
		if l.ctx.Err() != nil {
			l.discarded.Add(1)
			return nil
		}
		l.scene.Enqueue(l.insertion(name, asset))
		return nil
	})
}

// insertion изменение сцены, которое вставляет ассет целиком
func (l *AssetLoader) insertion(name string, asset Asset) Mutation {
	return func(s *Scene) error {
		if l.isClosed() {
			l.discarded.Add(1)
			return nil
		}

		var (
			id  string
			err error
		)
		if asset.Collider != nil {
			id, _, err = l.registry.Spawn(asset.Entity, asset.Collider, asset.Mass, asset.Options...)
		} else {
			id, err = s.AddEntity(asset.Entity)
		}
		if err != nil {
			l.failed.Add(1)
			return fmt.Errorf("ассет %s: %w", name, err)
		}

		l.loaded.Add(1)
		l.logger.Info("Ассет добавлен в сцену", zap.String("asset", name), zap.String("entity", id))
		return nil
	}
}

func (l *AssetLoader) isClosed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

// Wait ждет завершения всех запущенных загрузок и возвращает первую ошибку
func (l *AssetLoader) Wait() error {
	l.inflight.Wait()
	return l.group.Wait()
}

// Shutdown отменяет загрузки. Ассеты, завершившиеся позже, отбрасываются.
func (l *AssetLoader) Shutdown() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	l.mu.Unlock()

	l.cancel()
	if err := l.Wait(); err != nil {
		l.logger.Debug("Загрузки завершены с ошибкой", zap.Error(err))
	}
}

// Stats возвращает счетчики загрузчика
func (l *AssetLoader) Stats() LoaderStats {
	return LoaderStats{
		Started:   l.started.Load(),
		Loaded:    l.loaded.Load(),
		Failed:    l.failed.Load(),
		Discarded: l.discarded.Load(),
	}
}
