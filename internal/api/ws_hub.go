package api

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Типы сообщений WebSocket
const (
	MessageOrderStatus  = "order_status"
	MessageTicketUpdate = "ticket_update"
	MessageAlert        = "alert"
	MessagePlaySound    = "play_sound"
)

const writeTimeout = 5 * time.Second

// Hub управляет WebSocket соединениями экранов зала и кухни
type Hub struct {
	clients   map[*websocket.Conn]bool
	broadcast chan []byte
	mutex     sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		clients:   make(map[*websocket.Conn]bool),
		broadcast: make(chan []byte, 256),
	}
}

// Run - единственный писатель в соединения; клиенты с ошибкой записи отключаются
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case msg := <-h.broadcast:
			h.mutex.RLock()
			var failed []*websocket.Conn
			for client := range h.clients {
				_ = client.SetWriteDeadline(time.Now().Add(writeTimeout))
				if err := client.WriteMessage(websocket.TextMessage, msg); err != nil {
					failed = append(failed, client)
				}
			}
			h.mutex.RUnlock()
			for _, client := range failed {
				h.RemoveClient(client)
			}
		case <-ctx.Done():
			h.closeAll()
			return
		}
	}
}

func (h *Hub) AddClient(conn *websocket.Conn) {
	h.mutex.Lock()
	h.clients[conn] = true
	h.mutex.Unlock()
}

func (h *Hub) RemoveClient(conn *websocket.Conn) {
	h.mutex.Lock()
	if _, ok := h.clients[conn]; ok {
		delete(h.clients, conn)
		conn.Close()
	}
	h.mutex.Unlock()
}

func (h *Hub) closeAll() {
	h.mutex.Lock()
	for conn := range h.clients {
		conn.Close()
		delete(h.clients, conn)
	}
	h.mutex.Unlock()
}

// BroadcastMessage не блокирует: при переполнении канала сообщение пропускается
func (h *Hub) BroadcastMessage(message []byte) {
	select {
	case h.broadcast <- message:
	default:
		log.Println("⚠️ WebSocket: канал рассылки переполнен, сообщение пропущено")
	}
}

// Broadcast оборачивает данные в {type, data, timestamp} и рассылает всем
func (h *Hub) Broadcast(messageType string, data interface{}) {
	payload, err := json.Marshal(map[string]interface{}{
		"type":      messageType,
		"data":      data,
		"timestamp": time.Now().Unix(),
	})
	if err != nil {
		log.Printf("⚠️ Ошибка маршалинга WebSocket сообщения %s: %v", messageType, err)
		return
	}
	h.BroadcastMessage(payload)
}

func (h *Hub) GetClientsCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// SoundPlayer - звук алерта на подключенных экранах
type SoundPlayer struct {
	hub *Hub
}

func NewSoundPlayer(hub *Hub) *SoundPlayer {
	return &SoundPlayer{hub: hub}
}

func (p *SoundPlayer) PlayAlertSound() error {
	p.hub.Broadcast(MessagePlaySound, map[string]string{"sound": "alert"})
	return nil
}
