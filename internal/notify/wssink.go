package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/coder/websocket"
)

// WSSink delivers notifications over the shell's notification websocket.
type WSSink struct {
	conn *websocket.Conn
}

func NewWSSink(conn *websocket.Conn) *WSSink {
	return &WSSink{conn: conn}
}

const deliverTimeout = 5 * time.Second

// Deliver marshals the notification and writes it as one text frame.
func (s *WSSink) Deliver(n Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), deliverTimeout)
	defer cancel()
	if err := s.conn.Write(ctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("write notification: %w", err)
	}
	return nil
}

// LogSink writes notifications to the process log. It is the fallback when
// no UI surface is attached.
type LogSink struct{}

func (LogSink) Deliver(n Notification) error {
	data, _ := json.Marshal(n.Data)
	log.Printf("[notify] %s/%s %s", n.Target, n.Channel, data)
	return nil
}
