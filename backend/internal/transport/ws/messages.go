package ws

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"upper-mountains/backend/internal/physics"
	"upper-mountains/backend/internal/world"
)

// ParseMessage разбирает входящее сообщение в соответствующий тип
func ParseMessage(data []byte) (interface{}, error) {
	var baseMessage struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &baseMessage); err != nil {
		return nil, fmt.Errorf("error parsing message: %w", err)
	}

	var msg interface{}
	switch baseMessage.Type {
	case MessageTypeCreate, MessageTypeUpdate, MessageTypeRemove:
		msg = &ObjectMessage{}
	case MessageTypeCommand:
		msg = &CommandMessage{}
	case MessageTypePing:
		msg = &PingMessage{}
	case MessageTypePong:
		msg = &PongMessage{}
	case MessageTypeAck:
		msg = &AckMessage{}
	case MessageTypeInfo:
		msg = &InfoMessage{}
	default:
		return nil, errors.New("unknown message type: " + baseMessage.Type)
	}

	if err := json.Unmarshal(data, msg); err != nil {
		return nil, fmt.Errorf("error parsing %s message: %w", baseMessage.Type, err)
	}
	return msg, nil
}

// GetCurrentServerTime возвращает текущее серверное время в миллисекундах
func GetCurrentServerTime() int64 {
	return time.Now().UnixMilli()
}

// NewCreateMessage описание сущности для клиента, который еще ее не видел
func NewCreateMessage(e world.Entity) *ObjectMessage {
	msg := poseMessage(MessageTypeCreate, e.ID, e.Pose)
	msg.Color = e.Color
	msg.Bound = e.Bound()

	if e.Shape == nil {
		return msg
	}
	msg.ObjectType = e.Shape.Type.String()
	switch e.Shape.Type {
	case world.SPHERE:
		if e.Shape.Sphere != nil {
			msg.Radius = e.Shape.Sphere.Radius
		}
	case world.BOX:
		if e.Shape.Box != nil {
			msg.Width = e.Shape.Box.Width
			msg.Height = e.Shape.Box.Height
			msg.Depth = e.Shape.Box.Depth
		}
	case world.TERRAIN:
		if e.Shape.Terrain != nil && e.Shape.Terrain.Field != nil {
			f := e.Shape.Terrain.Field
			msg.HeightData = f.Heights
			msg.HeightmapW = f.Width
			msg.HeightmapH = f.Depth
			msg.CellSize = f.CellSize
		}
	}
	return msg
}

// NewUpdateMessage новая поза сущности
func NewUpdateMessage(id string, pose physics.Pose) *ObjectMessage {
	return poseMessage(MessageTypeUpdate, id, pose)
}

// NewRemoveMessage сущность покинула сцену
func NewRemoveMessage(id string) *ObjectMessage {
	return &ObjectMessage{Type: MessageTypeRemove, ID: id, QW: 1, ServerTime: GetCurrentServerTime()}
}

func poseMessage(kind, id string, pose physics.Pose) *ObjectMessage {
	return &ObjectMessage{
		Type:       kind,
		ID:         id,
		X:          pose.Position[0],
		Y:          pose.Position[1],
		Z:          pose.Position[2],
		QX:         pose.Orientation.V[0],
		QY:         pose.Orientation.V[1],
		QZ:         pose.Orientation.V[2],
		QW:         pose.Orientation.W,
		ServerTime: GetCurrentServerTime(),
	}
}

// NewPongMessage ответ на пинг
func NewPongMessage(clientTime int64) *PongMessage {
	return &PongMessage{Type: MessageTypePong, ClientTime: clientTime, ServerTime: GetCurrentServerTime()}
}

// NewAckMessage подтверждение команды, err != nil передается клиенту текстом
func NewAckMessage(cmd string, clientTime int64, err error) *AckMessage {
	ack := &AckMessage{Type: MessageTypeAck, Cmd: cmd, ClientTime: clientTime, ServerTime: GetCurrentServerTime()}
	if err != nil {
		ack.Error = err.Error()
	}
	return ack
}

// NewInfoMessage информационное сообщение
func NewInfoMessage(message string) *InfoMessage {
	return &InfoMessage{Type: MessageTypeInfo, Message: message}
}
