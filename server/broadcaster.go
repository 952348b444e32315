package server

import (
	"sync"

	"socialfeed/models"

	log "github.com/sirupsen/logrus"
)

// Broadcaster fans snapshot events out to connected SSE clients
type Broadcaster struct {
	sync.RWMutex
	clients map[string]chan models.SnapshotEvent
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		clients: make(map[string]chan models.SnapshotEvent),
	}
}

// BroadcastSnapshot never blocks, a slow client misses the event
func (b *Broadcaster) BroadcastSnapshot(event models.SnapshotEvent) {
	b.RLock()
	defer b.RUnlock()

	for key, client := range b.clients {
		select {
		case client <- event:
		default:
			log.Warnf("Client channel full, skipping snapshot for client: %v", key)
		}
	}
}

func (b *Broadcaster) AddClient(key string, client chan models.SnapshotEvent) {
	b.Lock()
	defer b.Unlock()
	b.clients[key] = client
	log.WithFields(log.Fields{
		"key":   key,
		"count": len(b.clients),
	}).Info("Adding client to broadcaster")
}

func (b *Broadcaster) RemoveClient(key string) {
	b.Lock()
	defer b.Unlock()

	if client, ok := b.clients[key]; ok {
		close(client)
		delete(b.clients, key)
	}

	log.WithFields(log.Fields{
		"key":   key,
		"count": len(b.clients),
	}).Info("Removed client from broadcaster")
}

func (b *Broadcaster) Clients() int {
	b.RLock()
	defer b.RUnlock()
	return len(b.clients)
}

// Shutdown closes every client channel, ending their streams
func (b *Broadcaster) Shutdown() {
	log.Info("Shutting down broadcaster")
	b.Lock()
	defer b.Unlock()
	for key, client := range b.clients {
		close(client)
		delete(b.clients, key)
	}
}
