package ws

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// ClientStats счетчики клиента
type ClientStats struct {
	CommandsSent  int64
	AcksReceived  int64
	CommandErrors int64
	Creates       int64
	Updates       int64
	Removes       int64
	Pongs         int64
	LastRTT       time.Duration
}

// Client клиент протокола сцены: повторяет у себя набор объектов сервера и отправляет команды
type Client struct {
	conn   *SafeWriter
	logger *zap.Logger

	mu      sync.RWMutex
	objects map[string]ObjectMessage
	stats   ClientStats
}

// Dial подключается к серверу по адресу вида ws://host:port/ws
func Dial(ctx context.Context, url string, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
	}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("подключение к %s: %w", url, err)
	}
	return &Client{
		conn:    NewSafeWriter(conn),
		logger:  logger.Named("WSClient"),
		objects: make(map[string]ObjectMessage),
	}, nil
}

// Run читает сообщения сервера, пока не отменен ctx или не закрыто соединение
func (c *Client) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { _ = c.conn.Close() })
	defer stop()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) || websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil
			}
			return fmt.Errorf("чтение сообщения: %w", err)
		}
		msg, err := ParseMessage(data)
		if err != nil {
			c.logger.Warn("Ошибка разбора сообщения", zap.Error(err))
			continue
		}
		c.handle(msg)
	}
}

func (c *Client) handle(msg interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch m := msg.(type) {
	case *ObjectMessage:
		switch m.Type {
		case MessageTypeCreate:
			c.objects[m.ID] = *m
			c.stats.Creates++
		case MessageTypeUpdate:
			obj, ok := c.objects[m.ID]
			if !ok {
				// обновление раньше создания: форма придет позже
				obj = ObjectMessage{ID: m.ID}
			}
			obj.X, obj.Y, obj.Z = m.X, m.Y, m.Z
			obj.QX, obj.QY, obj.QZ, obj.QW = m.QX, m.QY, m.QZ, m.QW
			obj.ServerTime = m.ServerTime
			c.objects[m.ID] = obj
			c.stats.Updates++
		case MessageTypeRemove:
			delete(c.objects, m.ID)
			c.stats.Removes++
		}
	case *AckMessage:
		c.stats.AcksReceived++
		if m.Error != "" {
			c.stats.CommandErrors++
			c.logger.Warn("Команда отклонена", zap.String("cmd", m.Cmd), zap.String("error", m.Error))
		}
	case *PongMessage:
		c.stats.Pongs++
		c.stats.LastRTT = time.Duration(GetCurrentServerTime()-m.ClientTime) * time.Millisecond
	case *InfoMessage:
		c.logger.Info("Сообщение сервера", zap.String("message", m.Message))
	}
}

// Objects возвращает известные объекты, упорядоченные по идентификатору
func (c *Client) Objects() []ObjectMessage {
	c.mu.RLock()
	out := make([]ObjectMessage, 0, len(c.objects))
	for _, o := range c.objects {
		out = append(out, o)
	}
	c.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Object возвращает объект по идентификатору
func (c *Client) Object(id string) (ObjectMessage, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	o, ok := c.objects[id]
	return o, ok
}

// Balls идентификаторы шаров, привязанных к телам
func (c *Client) Balls() []string {
	var ids []string
	for _, o := range c.Objects() {
		if o.ObjectType == "sphere" && o.Bound {
			ids = append(ids, o.ID)
		}
	}
	return ids
}

// Send отправляет команду с произвольными данными
func (c *Client) Send(cmd string, data interface{}) error {
	msg := struct {
		Type       string      `json:"type"`
		Cmd        string      `json:"cmd"`
		ClientTime int64       `json:"client_time"`
		Data       interface{} `json:"data"`
	}{MessageTypeCommand, cmd, GetCurrentServerTime(), data}

	if err := c.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("отправка команды %s: %w", cmd, err)
	}
	c.mu.Lock()
	c.stats.CommandsSent++
	c.mu.Unlock()
	return nil
}

// Impulse толкает тело, привязанное к сущности id
func (c *Client) Impulse(id string, impulse mgl64.Vec3) error {
	return c.Send("impulse", ImpulseData{ID: id, X: impulse[0], Y: impulse[1], Z: impulse[2]})
}

// SetAtmosphere переключает время суток на сервере
func (c *Client) SetAtmosphere(preset string) error {
	return c.Send("atmosphere", map[string]string{"preset": preset})
}

// Ping измеряет задержку, ответ учитывается в LastRTT
func (c *Client) Ping() error {
	return c.conn.WriteJSON(PingMessage{Type: MessageTypePing, ClientTime: GetCurrentServerTime()})
}

// Stats возвращает счетчики клиента
func (c *Client) Stats() ClientStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stats
}

// Close закрывает соединение
func (c *Client) Close() error {
	return c.conn.Close()
}
