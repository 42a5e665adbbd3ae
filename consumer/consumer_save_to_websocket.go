package consumer

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/paymesh/payment-pipeline-workflow/processor"
)

// SaveToWebSocket broadcasts settlement records to connected websocket
// clients, giving dashboards a live feed of the gateway's activity.
type SaveToWebSocket struct {
	mu       sync.Mutex
	clients  map[*websocket.Conn]bool
	upgrader websocket.Upgrader
	server   *http.Server
}

func NewSaveToWebSocket(config map[string]interface{}) (*SaveToWebSocket, error) {
	address, ok := config["address"].(string)
	if !ok || address == "" {
		return nil, fmt.Errorf("missing address in config")
	}

	s := &SaveToWebSocket{
		clients: make(map[*websocket.Conn]bool),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleConnection)
	s.server = &http.Server{Addr: address, Handler: mux}

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("SaveToWebSocket: server error: %v", err)
		}
	}()

	log.Printf("SaveToWebSocket: listening on %s", address)
	return s, nil
}

func (s *SaveToWebSocket) handleConnection(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("SaveToWebSocket: upgrade error: %v", err)
		return
	}

	s.mu.Lock()
	s.clients[conn] = true
	s.mu.Unlock()
	log.Printf("SaveToWebSocket: client connected from %s", r.RemoteAddr)

	// Drain reads so pings and close frames are handled; drop the client on
	// the first read error.
	go func() {
		defer s.dropClient(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (s *SaveToWebSocket) dropClient(conn *websocket.Conn) {
	s.mu.Lock()
	delete(s.clients, conn)
	s.mu.Unlock()
	conn.Close()
}

func (s *SaveToWebSocket) Process(ctx context.Context, msg processor.Message) error {
	payload, ok := msg.Payload.([]byte)
	if !ok {
		return fmt.Errorf("expected []byte payload, got %T", msg.Payload)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.clients {
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			log.Printf("SaveToWebSocket: write error, dropping client: %v", err)
			delete(s.clients, conn)
			conn.Close()
		}
	}
	return nil
}

func (s *SaveToWebSocket) Close() error {
	s.mu.Lock()
	for conn := range s.clients {
		conn.Close()
	}
	s.clients = make(map[*websocket.Conn]bool)
	s.mu.Unlock()
	return s.server.Close()
}
