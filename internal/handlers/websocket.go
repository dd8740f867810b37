package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/tubeq/internal/common"
	"github.com/ternarybob/tubeq/internal/interfaces"
	"github.com/ternarybob/tubeq/internal/models"
	"github.com/ternarybob/tubeq/internal/services/cookies"
	"golang.org/x/time/rate"
)

const (
	writeWait = 10 * time.Second

	// versionRefresh bounds how often the snapshot re-reads the yt-dlp version
	versionRefresh = time.Minute

	defaultSnapshotInterval = 200 * time.Millisecond
)

// Message types pushed to clients
const (
	MessageStatus       = "status"
	MessageDownloads    = "downloads"
	MessageYtDlpVersion = "ytdlp_version"
	MessageCookiesInfo  = "cookies_info"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

// WSMessage is the envelope of every pushed message
type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// StatusUpdate is sent once when a client connects
type StatusUpdate struct {
	Service          string `json:"service"`
	Version          string `json:"version"`
	ServerInstanceID string `json:"serverInstanceId"` // Unique ID per server startup - clients clear state on change
}

// CookieInfoProvider reports the state of the cookies file
type CookieInfoProvider interface {
	Info() (*cookies.Info, error)
}

// WebSocketHandler pushes job snapshots to connected browsers. Snapshots are
// sent on a fixed interval while at least one client is connected, and
// sooner when a job event arrives.
type WebSocketHandler struct {
	logger  arbor.ILogger
	jobs    VisibleJobLister
	tool    interfaces.ToolManager
	cookies CookieInfoProvider

	clients map[*websocket.Conn]*sync.Mutex
	mu      sync.RWMutex

	snapshotInterval time.Duration
	refreshThrottler *rate.Limiter   // nil = no throttling
	allowedEvents    map[string]bool // empty = allow all
	refresh          chan struct{}
	serverInstanceID string

	versionMu sync.Mutex
	version   string
	versionAt time.Time
	now       func() time.Time
}

// NewWebSocketHandler creates the push channel. tool and cookieInfo may be nil,
// in which case their snapshot messages are skipped.
func NewWebSocketHandler(
	jobs VisibleJobLister,
	tool interfaces.ToolManager,
	cookieInfo CookieInfoProvider,
	config *common.WebSocketConfig,
	logger arbor.ILogger,
) *WebSocketHandler {
	h := &WebSocketHandler{
		logger:           logger,
		jobs:             jobs,
		tool:             tool,
		cookies:          cookieInfo,
		clients:          make(map[*websocket.Conn]*sync.Mutex),
		snapshotInterval: defaultSnapshotInterval,
		allowedEvents:    make(map[string]bool),
		refresh:          make(chan struct{}, 1),
		serverInstanceID: uuid.New().String(),
		now:              time.Now,
	}

	if config != nil {
		h.snapshotInterval = common.ParseDurationOrDefault(config.SnapshotInterval, defaultSnapshotInterval)

		if config.RefreshThrottle != "" {
			if interval, err := time.ParseDuration(config.RefreshThrottle); err == nil && interval > 0 {
				h.refreshThrottler = rate.NewLimiter(rate.Every(interval), 1)
			} else {
				logger.Warn().
					Str("interval", config.RefreshThrottle).
					Msg("Invalid refresh throttle interval - throttler disabled")
			}
		}

		for _, eventType := range config.AllowedEvents {
			h.allowedEvents[eventType] = true
		}
	}

	logger.Debug().
		Str("server_instance_id", h.serverInstanceID).
		Str("snapshot_interval", h.snapshotInterval.String()).
		Int("allowed_events", len(h.allowedEvents)).
		Msg("WebSocket handler initialized")

	return h
}

// ServerInstanceID identifies this process to clients
func (h *WebSocketHandler) ServerInstanceID() string {
	return h.serverInstanceID
}

// ClientCount returns the number of connected clients
func (h *WebSocketHandler) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// SubscribeToEvents requests a refresh whenever a job or tag changes
func (h *WebSocketHandler) SubscribeToEvents(eventService interfaces.EventService) error {
	eventTypes := []interfaces.EventType{
		interfaces.EventJobCreated,
		interfaces.EventJobUpdated,
		interfaces.EventJobDeleted,
		interfaces.EventJobsArchived,
		interfaces.EventTagsChanged,
	}
	for _, eventType := range eventTypes {
		if err := eventService.Subscribe(eventType, h.handleEvent); err != nil {
			return err
		}
	}
	return nil
}

func (h *WebSocketHandler) handleEvent(ctx context.Context, event interfaces.Event) error {
	if len(h.allowedEvents) > 0 && !h.allowedEvents[string(event.Type)] {
		return nil
	}
	// A throttled event is covered by the next periodic snapshot
	if h.refreshThrottler != nil && !h.refreshThrottler.Allow() {
		return nil
	}

	select {
	case h.refresh <- struct{}{}:
	default:
	}
	return nil
}

// HandleWebSocket handles WebSocket connections
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}

	mutex := &sync.Mutex{}
	h.mu.Lock()
	h.clients[conn] = mutex
	clientCount := len(h.clients)
	h.mu.Unlock()

	h.logger.Debug().Msgf("WebSocket client connected (total: %d)", clientCount)

	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		remaining := len(h.clients)
		h.mu.Unlock()

		conn.Close()
		h.logger.Debug().Msgf("WebSocket client disconnected (remaining: %d)", remaining)
	}()

	status := StatusUpdate{
		Service:          "ONLINE",
		Version:          common.GetVersion(),
		ServerInstanceID: h.serverInstanceID,
	}
	if err := h.write(conn, mutex, encode(MessageStatus, status)); err != nil {
		h.logger.Warn().Err(err).Msg("Failed to send initial status")
		return
	}

	// New clients get a full snapshot without waiting for the next tick
	for _, data := range h.snapshot(r.Context(), true) {
		if err := h.write(conn, mutex, data); err != nil {
			return
		}
	}

	// Read messages from client (keep connection alive)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Warn().Err(err).Msg("WebSocket error")
			}
			return
		}
	}
}

// Run broadcasts snapshots until ctx is cancelled. Nothing is queried while
// no client is connected.
func (h *WebSocketHandler) Run(ctx context.Context) {
	ticker := time.NewTicker(h.snapshotInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if h.ClientCount() > 0 {
				h.broadcast(h.snapshot(ctx, true))
			}
		case <-h.refresh:
			if h.ClientCount() > 0 {
				h.broadcast(h.snapshot(ctx, false))
			}
		}
	}
}

// snapshot builds the encoded messages of one broadcast. A partial snapshot
// carries only the job list.
func (h *WebSocketHandler) snapshot(ctx context.Context, full bool) [][]byte {
	var messages [][]byte

	jobs, err := h.jobs.ListVisible(ctx)
	if err != nil {
		h.logger.Warn().Err(err).Msg("Failed to list downloads for snapshot")
	} else {
		if jobs == nil {
			jobs = []*models.Job{}
		}
		messages = appendEncoded(messages, MessageDownloads, jobs)
	}

	if !full {
		return messages
	}

	if h.tool != nil {
		messages = appendEncoded(messages, MessageYtDlpVersion, map[string]string{"version": h.ytdlpVersion(ctx)})
	}

	if h.cookies != nil {
		if info, err := h.cookies.Info(); err == nil {
			messages = appendEncoded(messages, MessageCookiesInfo, info)
		} else {
			h.logger.Debug().Err(err).Msg("Failed to read cookies info for snapshot")
		}
	}

	return messages
}

// ytdlpVersion returns the cached tool version, re-reading it at most once per versionRefresh
func (h *WebSocketHandler) ytdlpVersion(ctx context.Context) string {
	h.versionMu.Lock()
	defer h.versionMu.Unlock()

	now := h.now()
	if !h.versionAt.IsZero() && now.Sub(h.versionAt) < versionRefresh {
		return h.version
	}

	// A failed read keeps the previous value until the next refresh
	h.versionAt = now
	version, err := h.tool.Version(ctx)
	if err != nil {
		h.logger.Debug().Err(err).Msg("Failed to read yt-dlp version")
		return h.version
	}
	h.version = version
	return version
}

func (h *WebSocketHandler) broadcast(messages [][]byte) {
	if len(messages) == 0 {
		return
	}

	h.mu.RLock()
	clients := make([]*websocket.Conn, 0, len(h.clients))
	mutexes := make([]*sync.Mutex, 0, len(h.clients))
	for conn, mutex := range h.clients {
		clients = append(clients, conn)
		mutexes = append(mutexes, mutex)
	}
	h.mu.RUnlock()

	for i, conn := range clients {
		for _, data := range messages {
			if err := h.write(conn, mutexes[i], data); err != nil {
				h.logger.Debug().Err(err).Msg("Failed to send snapshot to client")
				// Closing unblocks the reader, which unregisters the client
				conn.Close()
				break
			}
		}
	}
}

func (h *WebSocketHandler) write(conn *websocket.Conn, mutex *sync.Mutex, data []byte) error {
	if data == nil {
		return nil
	}
	mutex.Lock()
	defer mutex.Unlock()

	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, data)
}

func encode(msgType string, payload interface{}) []byte {
	data, err := json.Marshal(WSMessage{Type: msgType, Payload: payload})
	if err != nil {
		common.GetLogger().Error().Err(err).Str("type", msgType).Msg("Failed to marshal websocket message")
		return nil
	}
	return data
}

func appendEncoded(messages [][]byte, msgType string, payload interface{}) [][]byte {
	if data := encode(msgType, payload); data != nil {
		messages = append(messages, data)
	}
	return messages
}
