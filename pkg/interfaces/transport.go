// pkg/interfaces/transport.go
package interfaces

import (
	"context"
	"errors"
)

var (
	ErrConnectionFailed = errors.New("connection failed")
	ErrConnectionLost   = errors.New("connection lost")
	ErrNotConnected     = errors.New("not connected")
)

// TransportProtocol carries encoded units and control messages to a
// downstream server.
type TransportProtocol interface {
	Connect(ctx context.Context) error
	Send(data []byte, msgType MessageType) error
	Receive() <-chan Message
	Close() error
	ProtocolType() string
}

type Message struct {
	Payload []byte
	Type    MessageType
}

type MessageType int

const (
	MsgText    MessageType = iota // JSON文本
	MsgBinary                     // 二进制数据（如音频）
	MsgControl                    // 控制指令
)
