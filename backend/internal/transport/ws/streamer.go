package ws

import (
	"go.uber.org/zap"

	"upper-mountains/backend/internal/game"
	"upper-mountains/backend/internal/physics"
	"upper-mountains/backend/internal/world"
)

// Streamer система тика, рассылающая клиентам изменения сцены
type Streamer struct {
	server   *Server
	scene    *world.Scene
	interval float64
	logger   *zap.Logger

	lastSent float64
	known    map[string]physics.Pose
	seen     map[string]bool
}

// NewStreamer создает систему рассылки. interval минимальный интервал между рассылками в секундах.
func NewStreamer(server *Server, scene *world.Scene, interval float64, logger *zap.Logger) *Streamer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Streamer{
		server:   server,
		scene:    scene,
		interval: interval,
		logger:   logger.Named("Streamer"),
		lastSent: -1,
		known:    make(map[string]physics.Pose),
		seen:     make(map[string]bool),
	}
}

// GetName возвращает имя системы
func (s *Streamer) GetName() string { return "Streamer" }

// GetPriority возвращает приоритет системы
func (s *Streamer) GetPriority() int { return game.PriorityNetwork }

// Update рассылает создание, обновление и удаление сущностей с прошлой рассылки
func (s *Streamer) Update(frame game.Frame) error {
	if s.lastSent >= 0 && frame.Elapsed-s.lastSent < s.interval {
		return nil
	}
	s.lastSent = frame.Elapsed

	created, updated, removed := 0, 0, 0
	for k := range s.seen {
		delete(s.seen, k)
	}

	for _, e := range s.scene.Entities() {
		s.seen[e.ID] = true
		prev, ok := s.known[e.ID]
		switch {
		case !ok:
			s.server.Broadcast(NewCreateMessage(e))
			created++
		case prev != e.Pose:
			s.server.Broadcast(NewUpdateMessage(e.ID, e.Pose))
			updated++
		default:
			continue
		}
		s.known[e.ID] = e.Pose
	}

	for id := range s.known {
		if !s.seen[id] {
			s.server.Broadcast(NewRemoveMessage(id))
			delete(s.known, id)
			removed++
		}
	}

	if created+updated+removed > 0 {
		s.logger.Debug("Рассылка изменений",
			zap.Uint64("frame", frame.Index),
			zap.Int("created", created),
			zap.Int("updated", updated),
			zap.Int("removed", removed),
			zap.Int("clients", s.server.ClientCount()))
	}
	return nil
}
