// Package ws exposes the agent-facing WebSocket gateway: connected trading
// agents submit analysis requests with their own metrics snapshots and
// receive structured recommendations, plus a live feed of analyses completed
// through any gateway.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/quantpair/pairgate/internal/domain"
	"github.com/quantpair/pairgate/internal/upstream"
)

const (
	// writeWait is the maximum time to wait for a write to complete.
	writeWait = 10 * time.Second

	// pongWait is the maximum time to wait for a pong from the agent.
	pongWait = 60 * time.Second

	// pingPeriod sends pings at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize bounds incoming frames; a request with a full metrics
	// snapshot fits comfortably.
	maxMessageSize = 8192

	// sendBufferSize is the per-agent outgoing message buffer.
	sendBufferSize = 64
)

// analysisChannel is the bus channel the hub mirrors to connected agents.
const analysisChannel = "analysis"

// Message type identifiers for the envelope protocol.
const (
	typeConnected        = "connected"
	typeAnalyzeRequest   = "analyze_request"
	typeAnalysisResponse = "analysis_response"
	typeAnalysisEvent    = "analysis_event"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Agents connect from arbitrary hosts; auth happens at the
		// middleware layer.
		return true
	},
}

// ProvidedAnalyzer runs the reasoning stage over agent-supplied metrics.
type ProvidedAnalyzer interface {
	AnalyzeProvided(ctx context.Context, symbolA, symbolB string, metrics domain.MetricsRecord) (domain.AnalysisResult, error)
}

// envelope is the framing for every message in either direction.
type envelope struct {
	Type string          `json:"type"`
	ID   string          `json:"id,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// analyzeRequestData is the payload of an analyze_request frame. Agents send
// their own metrics snapshot as flat fields; volatility is optional and runs
// through the same fallback chain the metrics fetcher applies.
type analyzeRequestData struct {
	SymbolA     string   `json:"symbolA"`
	SymbolB     string   `json:"symbolB"`
	ZScore      float64  `json:"zScore"`
	Correlation float64  `json:"correlation"`
	SpreadMean  float64  `json:"spread_mean"`
	SpreadStd   *float64 `json:"spread_std"`
	Beta        float64  `json:"beta"`
	Volatility  *float64 `json:"volatility"`
}

// metricsRecord derives a full MetricsRecord from the agent's snapshot,
// applying the volatility and spreadStd fallbacks.
func (d analyzeRequestData) metricsRecord() domain.MetricsRecord {
	var rawSpreadStd float64
	if d.SpreadStd != nil {
		rawSpreadStd = *d.SpreadStd
	}
	beta := d.Beta
	if beta == 0 {
		beta = 1.0
	}
	return domain.MetricsRecord{
		ZScore:      d.ZScore,
		Correlation: d.Correlation,
		SpreadMean:  d.SpreadMean,
		SpreadStd:   upstream.DeriveSpreadStd(d.SpreadStd),
		Beta:        beta,
		Volatility:  upstream.DeriveVolatility(d.Volatility, rawSpreadStd),
	}
}

// agent represents one connected WebSocket client.
type agent struct {
	hub  *Hub
	id   uuid.UUID
	conn *websocket.Conn
	send chan []byte
}

// Hub manages connected agents, answers their analysis requests, and mirrors
// the bus analysis feed to all of them. The bus is optional; without one no
// feed is mirrored but requests still work.
type Hub struct {
	id        uuid.UUID
	analyzer  ProvidedAnalyzer
	bus       domain.SignalBus
	logger    *slog.Logger
	startedAt time.Time

	agents     map[*agent]bool
	broadcast  chan []byte
	register   chan *agent
	unregister chan *agent
	mu         sync.RWMutex

	// ctx is cancelled when Run exits; sends into the hub channels select on
	// it so connection goroutines never block on a stopped event loop.
	ctx    context.Context
	cancel context.CancelFunc
}

// NewHub creates an agent hub with a fresh identity.
func NewHub(analyzer ProvidedAnalyzer, bus domain.SignalBus, logger *slog.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		id:         uuid.New(),
		analyzer:   analyzer,
		bus:        bus,
		logger:     logger.With(slog.String("component", "agent_ws")),
		startedAt:  time.Now().UTC(),
		agents:     make(map[*agent]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *agent),
		unregister: make(chan *agent),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// ID returns the hub's identity, assigned once at startup and reported by
// the health endpoint.
func (h *Hub) ID() string { return h.id.String() }

// Run starts the hub event loop; call it in a goroutine. It exits when the
// context is cancelled.
func (h *Hub) Run(ctx context.Context) error {
	defer h.cancel()

	if h.bus != nil {
		go h.mirrorAnalyses(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for a := range h.agents {
				close(a.send)
				delete(h.agents, a)
			}
			h.mu.Unlock()
			return ctx.Err()

		case a := <-h.register:
			h.mu.Lock()
			h.agents[a] = true
			h.mu.Unlock()
			h.logger.Info("agent connected",
				slog.String("agent_id", a.id.String()),
				slog.Int("total_agents", h.agentCount()),
			)

		case a := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.agents[a]; ok {
				delete(h.agents, a)
				close(a.send)
			}
			h.mu.Unlock()
			h.logger.Info("agent disconnected",
				slog.String("agent_id", a.id.String()),
				slog.Int("total_agents", h.agentCount()),
			)

		case msg := <-h.broadcast:
			h.mu.RLock()
			for a := range h.agents {
				select {
				case a.send <- msg:
				default:
					h.logger.Warn("dropping feed message for slow agent",
						slog.String("agent_id", a.id.String()))
				}
			}
			h.mu.RUnlock()
		}
	}
}

// mirrorAnalyses subscribes to the bus analysis channel and rebroadcasts
// every event to connected agents wrapped in an analysis_event envelope.
func (h *Hub) mirrorAnalyses(ctx context.Context) {
	msgCh, err := h.bus.Subscribe(ctx, analysisChannel)
	if err != nil {
		h.logger.Error("subscribe to analysis channel failed",
			slog.String("error", err.Error()))
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-msgCh:
			if !ok {
				h.logger.Warn("analysis channel subscription closed")
				return
			}
			frame, err := json.Marshal(envelope{Type: typeAnalysisEvent, Data: data})
			if err != nil {
				continue
			}
			select {
			case h.broadcast <- frame:
			case <-ctx.Done():
				return
			}
		}
	}
}

// HandleWS upgrades an HTTP request to a WebSocket connection, assigns the
// agent an identity, and registers it with the hub.
// GET /agent/ws
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("upgrade failed", slog.String("error", err.Error()))
		return
	}

	a := &agent{
		hub:  h,
		id:   uuid.New(),
		conn: conn,
		send: make(chan []byte, sendBufferSize),
	}

	select {
	case h.register <- a:
	case <-h.ctx.Done():
		conn.Close()
		return
	}
	a.sendConnected()

	go a.writePump()
	// The request context dies when this handler returns, so the read loop
	// runs on the hub's lifecycle context instead.
	go a.readPump(h.ctx)
}

func (h *Hub) agentCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.agents)
}

// readPump reads request frames from the agent and dispatches them. Each
// analyze_request runs in its own goroutine so a slow reasoning call does not
// block the connection.
func (a *agent) readPump(ctx context.Context) {
	defer func() {
		select {
		case a.hub.unregister <- a:
		case <-ctx.Done():
		}
		a.conn.Close()
	}()

	a.conn.SetReadLimit(maxMessageSize)
	a.conn.SetReadDeadline(time.Now().Add(pongWait))
	a.conn.SetPongHandler(func(string) error {
		a.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := a.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				a.hub.logger.Warn("unexpected close",
					slog.String("agent_id", a.id.String()),
					slog.String("error", err.Error()),
				)
			}
			return
		}

		var env envelope
		if err := json.Unmarshal(message, &env); err != nil {
			a.hub.logger.Warn("unparsable frame from agent",
				slog.String("agent_id", a.id.String()))
			continue
		}

		switch env.Type {
		case typeAnalyzeRequest:
			go a.handleAnalyzeRequest(ctx, env)
		default:
			a.hub.logger.Warn("unknown frame type from agent",
				slog.String("agent_id", a.id.String()),
				slog.String("type", env.Type),
			)
		}
	}
}

// handleAnalyzeRequest runs the reasoning stage over the agent's metrics and
// replies on the same connection. A failed analysis never drops the frame:
// the agent gets a neutral recommendation with the failure explained in the
// reasoning text, so its own pipeline keeps moving.
func (a *agent) handleAnalyzeRequest(ctx context.Context, env envelope) {
	var req analyzeRequestData
	if err := json.Unmarshal(env.Data, &req); err != nil {
		a.reply(env.ID, neutralResult("", "", "invalid analyze_request payload: "+err.Error()))
		return
	}

	result, err := a.hub.analyzer.AnalyzeProvided(ctx, req.SymbolA, req.SymbolB, req.metricsRecord())
	if err != nil {
		a.hub.logger.WarnContext(ctx, "agent analysis failed",
			slog.String("agent_id", a.id.String()),
			slog.String("symbol_a", req.SymbolA),
			slog.String("symbol_b", req.SymbolB),
			slog.String("error", err.Error()),
		)
		a.reply(env.ID, neutralResult(req.SymbolA, req.SymbolB, "analysis failed: "+err.Error()))
		return
	}

	a.reply(env.ID, result)
}

// reply sends an analysis_response frame, echoing the request ID.
func (a *agent) reply(id string, result domain.AnalysisResult) {
	data, err := json.Marshal(result)
	if err != nil {
		return
	}
	frame, err := json.Marshal(envelope{Type: typeAnalysisResponse, ID: id, Data: data})
	if err != nil {
		return
	}

	select {
	case a.send <- frame:
	default:
		a.hub.logger.Warn("dropping response for slow agent",
			slog.String("agent_id", a.id.String()))
	}
}

// sendConnected pushes the identity frame so the agent learns its assigned ID.
func (a *agent) sendConnected() {
	data, err := json.Marshal(map[string]any{
		"agent_id":  a.id.String(),
		"server_up": time.Since(a.hub.startedAt).Truncate(time.Second).String(),
	})
	if err != nil {
		return
	}
	frame, err := json.Marshal(envelope{Type: typeConnected, Data: data})
	if err != nil {
		return
	}

	select {
	case a.send <- frame:
	default:
	}
}

// writePump pumps frames from the hub to the connection and keeps the
// connection alive with periodic pings.
func (a *agent) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		a.conn.Close()
	}()

	for {
		select {
		case message, ok := <-a.send:
			a.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				a.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := a.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			a.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := a.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// neutralResult builds the do-nothing recommendation returned when a request
// cannot be analyzed.
func neutralResult(symbolA, symbolB, explanation string) domain.AnalysisResult {
	return domain.AnalysisResult{
		SymbolA: symbolA,
		SymbolB: symbolB,
		Analysis: domain.AnalysisRecord{
			Signal:              domain.SignalNeutral,
			Confidence:          0.0,
			Reasoning:           explanation,
			RiskLevel:           domain.RiskHigh,
			KeyFactors:          []string{},
			EntryRecommendation: "Do not enter; retry when analysis succeeds",
		},
	}
}
