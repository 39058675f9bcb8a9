package ws

import "encoding/json"

// Константы для WebSocket сообщений
const (
	MessageTypeCreate  = "create"  // Создание объекта
	MessageTypeUpdate  = "update"  // Обновление позы объекта
	MessageTypeRemove  = "remove"  // Удаление объекта
	MessageTypePing    = "ping"    // Пинг для измерения задержки
	MessageTypePong    = "pong"    // Ответ на пинг
	MessageTypeCommand = "cmd"     // Команда от клиента
	MessageTypeAck     = "cmd_ack" // Подтверждение команды
	MessageTypeInfo    = "info"    // Информационное сообщение
)

// ObjectMessage сообщение о создании, обновлении или удалении объекта
type ObjectMessage struct {
	Type       string    `json:"type"`
	ID         string    `json:"id"`
	ObjectType string    `json:"object_type,omitempty"`
	X          float64   `json:"x"`
	Y          float64   `json:"y"`
	Z          float64   `json:"z"`
	QX         float64   `json:"qx"`
	QY         float64   `json:"qy"`
	QZ         float64   `json:"qz"`
	QW         float64   `json:"qw"`
	Radius     float64   `json:"radius,omitempty"`
	Width      float64   `json:"width,omitempty"`
	Height     float64   `json:"height,omitempty"`
	Depth      float64   `json:"depth,omitempty"`
	Color      string    `json:"color,omitempty"`
	Bound      bool      `json:"bound,omitempty"`
	ServerTime int64     `json:"server_time"`
	HeightData []float64 `json:"height_data,omitempty"`
	HeightmapW int       `json:"heightmap_w,omitempty"`
	HeightmapH int       `json:"heightmap_h,omitempty"`
	CellSize   float64   `json:"cell_size,omitempty"`
}

// CommandMessage команда от клиента
type CommandMessage struct {
	Type       string          `json:"type"`
	Cmd        string          `json:"cmd,omitempty"`
	ClientTime int64           `json:"client_time,omitempty"`
	Data       json.RawMessage `json:"data,omitempty"`
}

// AckMessage подтверждение команды сервером
type AckMessage struct {
	Type       string `json:"type"`
	Cmd        string `json:"cmd"`
	ClientTime int64  `json:"client_time"`
	ServerTime int64  `json:"server_time"`
	Error      string `json:"error,omitempty"`
}

// PingMessage пинг от клиента
type PingMessage struct {
	Type       string `json:"type"`
	ClientTime int64  `json:"client_time"`
}

// PongMessage ответ на пинг
type PongMessage struct {
	Type       string `json:"type"`
	ClientTime int64  `json:"client_time"`
	ServerTime int64  `json:"server_time"`
}

// InfoMessage информационное сообщение от сервера
type InfoMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}
