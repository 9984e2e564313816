package events

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
)

// Gate lifecycle events, in the order a run emits them
const (
	RunStarted    = "run_started"
	CheckStarted  = "check_started"
	CheckFinished = "check_finished"
	RunFinished   = "run_finished"
)

const clientBuffer = 32

// Broker fans SSE-framed events out to subscribed clients.
// A client whose buffer is full misses the event; publishers never block.
type Broker struct {
	clients map[chan string]struct{}
	mu      sync.RWMutex
}

func NewBroker() *Broker {
	return &Broker{clients: make(map[chan string]struct{})}
}

var broker = NewBroker()

// GetBroker returns the process-wide broker
func GetBroker() *Broker {
	return broker
}

// Subscribe registers a new client and returns its message channel
func (b *Broker) Subscribe() chan string {
	client := make(chan string, clientBuffer)

	b.mu.Lock()
	b.clients[client] = struct{}{}
	total := len(b.clients)
	b.mu.Unlock()

	log.Printf("📡 SSE client connected (total: %d)", total)
	return client
}

// Unsubscribe removes a client and closes its channel
func (b *Broker) Unsubscribe(client chan string) {
	b.mu.Lock()
	if _, ok := b.clients[client]; !ok {
		b.mu.Unlock()
		return
	}
	delete(b.clients, client)
	close(client)
	total := len(b.clients)
	b.mu.Unlock()

	log.Printf("📡 SSE client disconnected (total: %d)", total)
}

// Clients returns the number of subscribed clients
func (b *Broker) Clients() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// Broadcast sends an event to all connected clients
func (b *Broker) Broadcast(eventType string, data interface{}) {
	message, err := Format(eventType, data)
	if err != nil {
		log.Printf("Failed to marshal event data: %v", err)
		return
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for client := range b.clients {
		select {
		case client <- message:
		default:
			// slow client, drop
		}
	}
}

// Format renders one server-sent event
func Format(eventType string, data interface{}) (string, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("event: %s\ndata: %s\n\n", eventType, jsonData), nil
}
