package stream

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"backend-tanquecheio/internal/notify"
	"backend-tanquecheio/internal/recommend"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Hub fans notifications out to the websocket clients of a user. With Redis
// configured, each instance subscribes to notify:{user} while it holds a
// client for that user, so a publish reaches every instance with a live socket.
type Hub struct {
	redis      *redis.Client
	pubsub     *redis.PubSub
	instanceID string
	clients    map[string]map[*Client]struct{}
	mu         sync.RWMutex
}

type Client struct {
	UserID string
	Send   chan []byte
}

type envelope struct {
	Origin  string          `json:"origin"`
	Payload json.RawMessage `json:"payload"`
}

func NewHub(redisClient *redis.Client) *Hub {
	h := &Hub{
		redis:      redisClient,
		instanceID: uuid.NewString(),
		clients:    map[string]map[*Client]struct{}{},
	}

	if redisClient != nil {
		h.pubsub = redisClient.Subscribe(context.Background())
		go h.subscribeRedis()
	}
	return h
}

func (h *Hub) Close() error {
	if h.pubsub != nil {
		return h.pubsub.Close()
	}
	return nil
}

func (h *Hub) Register(userID string) *Client {
	client := &Client{
		UserID: userID,
		Send:   make(chan []byte, 64),
	}

	h.mu.Lock()
	first := h.clients[userID] == nil
	if first {
		h.clients[userID] = map[*Client]struct{}{}
	}
	h.clients[userID][client] = struct{}{}
	h.mu.Unlock()

	if first && h.pubsub != nil {
		if err := h.pubsub.Subscribe(context.Background(), redisChannel(userID)); err != nil {
			log.Printf("redis subscribe error: %v", err)
		}
	}
	return client
}

func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	last := false
	if userClients, ok := h.clients[client.UserID]; ok {
		delete(userClients, client)
		if len(userClients) == 0 {
			delete(h.clients, client.UserID)
			last = true
		}
	}
	close(client.Send)
	h.mu.Unlock()

	if last && h.pubsub != nil {
		if err := h.pubsub.Unsubscribe(context.Background(), redisChannel(client.UserID)); err != nil {
			log.Printf("redis unsubscribe error: %v", err)
		}
	}
}

// Broadcast delivers payload to the local clients of userID and publishes it
// for other instances. It reports whether at least one socket, local or
// remote, was reached. With Redis configured payload must be valid JSON.
func (h *Hub) Broadcast(ctx context.Context, userID string, payload []byte) (bool, error) {
	local := h.deliverLocal(userID, payload)
	if h.redis == nil {
		return local > 0, nil
	}

	b, err := json.Marshal(envelope{Origin: h.instanceID, Payload: payload})
	if err != nil {
		return local > 0, err
	}
	receivers, err := h.redis.Publish(ctx, redisChannel(userID), b).Result()
	if err != nil {
		log.Printf("redis publish error: %v", err)
		return local > 0, err
	}
	if h.connected(userID) > 0 {
		// this instance is one of the receivers
		receivers--
	}
	return local > 0 || receivers > 0, nil
}

// Send implements notify.Dispatcher.
func (h *Hub) Send(ctx context.Context, userID string, result recommend.Result) (bool, error) {
	payload, err := json.Marshal(notify.NewMessage(userID, result))
	if err != nil {
		return false, err
	}
	return h.Broadcast(ctx, userID, payload)
}

func (h *Hub) deliverLocal(userID string, payload []byte) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for client := range h.clients[userID] {
		select {
		case client.Send <- payload:
			delivered++
		default:
		}
	}
	return delivered
}

func (h *Hub) connected(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

func (h *Hub) subscribeRedis() {
	for msg := range h.pubsub.Channel() {
		var env envelope
		if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
			log.Printf("redis message decode error: %v", err)
			continue
		}
		if env.Origin == h.instanceID {
			continue
		}
		h.deliverLocal(userIDFromChannel(msg.Channel), env.Payload)
	}
}

func redisChannel(userID string) string {
	return "notify:" + userID
}

func userIDFromChannel(ch string) string {
	const prefix = "notify:"
	if len(ch) <= len(prefix) || ch[:len(prefix)] != prefix {
		return ""
	}
	return ch[len(prefix):]
}
