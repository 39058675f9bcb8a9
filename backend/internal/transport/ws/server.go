package ws

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"upper-mountains/backend/internal/world"
)

// defaultQueueSize сколько сообщений может ждать отправки одному клиенту
const defaultQueueSize = 1024

// clientConn подключенный клиент с очередью исходящих сообщений
type clientConn struct {
	writer *SafeWriter
	send   chan interface{}
	done   chan struct{}
	once   sync.Once
}

func newClientConn(writer *SafeWriter, queueSize int) *clientConn {
	return &clientConn{
		writer: writer,
		send:   make(chan interface{}, queueSize),
		done:   make(chan struct{}),
	}
}

func (c *clientConn) stop() {
	c.once.Do(func() {
		close(c.done)
		_ = c.writer.Abort()
	})
}

// CommandHandler обработчик команды клиента
type CommandHandler func(ctx context.Context, cmd *CommandMessage) error

// Server WebSocket сервер наблюдения за сценой
type Server struct {
	upgrader websocket.Upgrader
	scene    *world.Scene
	logger   *zap.Logger

	handlers   map[string]CommandHandler
	handlersMu sync.RWMutex

	clients   map[*clientConn]struct{}
	clientsMu sync.RWMutex
	// queueSize емкость очереди исходящих сообщений клиента
	queueSize int

	ctx    context.Context
	cancel context.CancelFunc
}

// NewServer создает сервер поверх сцены
func NewServer(scene *world.Scene, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		scene:     scene,
		logger:    logger.Named("WSServer"),
		handlers:  make(map[string]CommandHandler),
		clients:   make(map[*clientConn]struct{}),
		queueSize: defaultQueueSize,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// RegisterCommand регистрирует обработчик команды cmd
func (s *Server) RegisterCommand(name string, h CommandHandler) {
	s.handlersMu.Lock()
	defer s.handlersMu.Unlock()
	s.handlers[name] = h
}

// HandleWS обрабатывает подключение клиента
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("Ошибка апгрейда соединения", zap.Error(err))
		return
	}
	client := newClientConn(NewSafeWriter(conn), s.queueSize)
	defer s.disconnect(client)

	if err := client.writer.WriteJSON(NewInfoMessage("upper-mountains")); err != nil {
		s.logger.Warn("Ошибка отправки приветствия", zap.Error(err))
		return
	}

	// Регистрация до снимка: рассылки копятся в очереди клиента, пока пишется снимок.
	// Сущность, добавленная между ними, придет дважды, но не потеряется.
	s.clientsMu.Lock()
	s.clients[client] = struct{}{}
	s.clientsMu.Unlock()

	for _, e := range s.scene.Entities() {
		if err := client.writer.WriteJSON(NewCreateMessage(e)); err != nil {
			s.logger.Warn("Ошибка отправки снимка сцены", zap.Error(err))
			return
		}
	}
	go s.startClientStreaming(client)
	s.logger.Info("Клиент подключен", zap.String("addr", client.writer.RemoteAddr()))

	for {
		_, data, err := client.writer.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug("Ошибка чтения", zap.Error(err))
			}
			return
		}
		if err := s.handleMessage(client.writer, data); err != nil {
			s.logger.Warn("Ошибка обработки сообщения", zap.Error(err))
			return
		}
	}
}

// startClientStreaming пишет клиенту сообщения из его очереди до отключения
func (s *Server) startClientStreaming(c *clientConn) {
	for {
		select {
		case <-c.done:
			return
		case v := <-c.send:
			if err := c.writer.WriteJSON(v); err != nil {
				s.logger.Debug("Клиент отключен после ошибки записи", zap.Error(err))
				s.disconnect(c)
				return
			}
		}
	}
}

func (s *Server) handleMessage(writer *SafeWriter, data []byte) error {
	msg, err := ParseMessage(data)
	if err != nil {
		return writer.WriteJSON(NewInfoMessage(err.Error()))
	}

	switch m := msg.(type) {
	case *PingMessage:
		return writer.WriteJSON(NewPongMessage(m.ClientTime))
	case *CommandMessage:
		return writer.WriteJSON(NewAckMessage(m.Cmd, m.ClientTime, s.dispatch(m)))
	default:
		s.logger.Debug("Сообщение проигнорировано", zap.String("type", fmt.Sprintf("%T", msg)))
		return nil
	}
}

func (s *Server) dispatch(cmd *CommandMessage) error {
	s.handlersMu.RLock()
	h, ok := s.handlers[cmd.Cmd]
	s.handlersMu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownCommand, cmd.Cmd)
	}
	return h(s.ctx, cmd)
}

// Broadcast ставит сообщение в очередь каждого клиента и возвращает число клиентов,
// принявших его. Запись идет в горутине клиента. Клиент с переполненной очередью отключается.
func (s *Server) Broadcast(v interface{}) int {
	s.clientsMu.RLock()
	sent := 0
	var slow []*clientConn
	for c := range s.clients {
		select {
		case c.send <- v:
			sent++
		default:
			slow = append(slow, c)
		}
	}
	s.clientsMu.RUnlock()

	for _, c := range slow {
		s.logger.Warn("Клиент не успевает читать, отключен", zap.String("addr", c.writer.RemoteAddr()))
		s.disconnect(c)
	}
	return sent
}

// ClientCount количество подключенных клиентов
func (s *Server) ClientCount() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}

// disconnect убирает клиента и рвет соединение, не дожидаясь текущей записи
func (s *Server) disconnect(c *clientConn) {
	s.clientsMu.Lock()
	delete(s.clients, c)
	s.clientsMu.Unlock()
	c.stop()
}

// Close отменяет контекст команд и закрывает все соединения
func (s *Server) Close() {
	s.cancel()
	s.clientsMu.Lock()
	clients := s.clients
	s.clients = make(map[*clientConn]struct{})
	s.clientsMu.Unlock()

	for c := range clients {
		c.stop()
	}
	s.logger.Info("Сервер закрыт", zap.Int("clients", len(clients)))
}

// Handler маршруты сервера: /ws для клиентов, /healthz для проверки живости
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.HandleWS)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprintf(w, `{"status":"ok","clients":%d}`, s.ClientCount())
	})
	return mux
}
