// Pernocta - Short-Term Rental Price Intelligence Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pernocta

// Package events broadcasts pipeline lifecycle messages to WebSocket
// dashboard clients: ingest progress, feature assembly stages, per-model
// training status, and evaluation completion. Slow clients are dropped
// rather than allowed to block the pipeline.
package events

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/tomtom215/pernocta/internal/logging"
	"github.com/tomtom215/pernocta/internal/metrics"
)

// Message types sent over the WebSocket.
const (
	MessageTypePing            = "ping"
	MessageTypePong            = "pong"
	MessageTypeIngestProgress  = "ingest_progress"
	MessageTypeAssemblyStage   = "assembly_stage"
	MessageTypeTrainingStatus  = "training_status"
	MessageTypeEvaluationDone  = "evaluation_done"
	MessageTypePipelineFailure = "pipeline_failure"
)

// Message is one event envelope.
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Hub maintains the set of active clients and broadcasts messages to them.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan Message
	Register   chan *Client
	Unregister chan *Client
	mu         sync.RWMutex
}

// NewHub creates an empty hub. Run RunWithContext (typically under the
// supervision tree) before registering clients.
func NewHub() *Hub {
	return &Hub{
		broadcast:  make(chan Message, 256),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
	}
}

// RunWithContext runs the hub loop until the context is canceled, then
// closes every client and returns ctx.Err().
//
// Channel selection is prioritized: shutdown first, then client lifecycle,
// then broadcasts. Go's select picks randomly among ready channels, so the
// non-blocking pre-checks keep client state consistent before any message
// is delivered.
func (h *Hub) RunWithContext(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			h.shutdown(ctx)
			return ctx.Err()
		default:
		}

		select {
		case client := <-h.Register:
			h.addClient(client)
			continue
		case client := <-h.Unregister:
			h.removeClient(client)
			continue
		default:
		}

		select {
		case <-ctx.Done():
			h.shutdown(ctx)
			return ctx.Err()
		case client := <-h.Register:
			h.addClient(client)
		case client := <-h.Unregister:
			h.removeClient(client)
		case message := <-h.broadcast:
			h.broadcastToClients(message)
		}
	}
}

// Serve implements suture.Service.
func (h *Hub) Serve(ctx context.Context) error {
	return h.RunWithContext(ctx)
}

// String implements fmt.Stringer for supervisor log messages.
func (h *Hub) String() string {
	return "events-hub"
}

func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	h.clients[client] = true
	total := len(h.clients)
	h.mu.Unlock()

	metrics.WebSocketClients.Set(float64(total))
	logging.Info().Int("total_clients", total).Msg("Progress client connected")
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
	}
	total := len(h.clients)
	h.mu.Unlock()

	metrics.WebSocketClients.Set(float64(total))
	logging.Info().Int("total_clients", total).Msg("Progress client disconnected")
}

// broadcastToClients delivers one message to every client in ID order.
// Clients whose send buffer is full are dropped.
func (h *Hub) broadcastToClients(message Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	sort.Slice(clients, func(i, j int) bool {
		return clients[i].id < clients[j].id
	})

	var toRemove []*Client
	for _, client := range clients {
		select {
		case client.send <- message:
		default:
			toRemove = append(toRemove, client)
		}
	}

	for _, client := range toRemove {
		close(client.send)
		delete(h.clients, client)
		metrics.WebSocketDropped.Inc()
		logging.Warn().Uint64("client_id", client.id).Msg("Dropped slow progress client")
	}
	if len(toRemove) > 0 {
		metrics.WebSocketClients.Set(float64(len(h.clients)))
	}
}

func (h *Hub) shutdown(ctx context.Context) {
	h.mu.Lock()
	closed := len(h.clients)
	for client := range h.clients {
		close(client.send)
		delete(h.clients, client)
	}
	h.mu.Unlock()

	metrics.WebSocketClients.Set(0)

	reason := "context_canceled"
	if ctx.Err() == context.DeadlineExceeded {
		reason = "context_deadline"
	}
	logging.Info().
		Str("component", "events-hub").
		Str("reason", reason).
		Int("clients_closed", closed).
		Msg("Progress hub stopped")
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast enqueues a message for delivery. A full broadcast queue drops
// the message so pipeline goroutines never block on dashboards.
func (h *Hub) Broadcast(messageType string, data any) {
	select {
	case h.broadcast <- Message{Type: messageType, Data: data}:
	default:
		logging.Warn().Str("message_type", messageType).Msg("Broadcast queue full, dropping message")
	}
}

// IngestProgressData reports dataset loading progress.
type IngestProgressData struct {
	Timestamp string `json:"timestamp"`
	Dataset   string `json:"dataset"`
	Rows      int    `json:"rows"`
	Accepted  int    `json:"accepted"`
	Dropped   int    `json:"dropped"`
}

// BroadcastIngestProgress reports rows processed during dataset loading.
func (h *Hub) BroadcastIngestProgress(dataset string, rows, accepted, dropped int) {
	h.Broadcast(MessageTypeIngestProgress, IngestProgressData{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Dataset:   dataset,
		Rows:      rows,
		Accepted:  accepted,
		Dropped:   dropped,
	})
}

// AssemblyStageData reports a completed feature assembly stage.
type AssemblyStageData struct {
	Timestamp string `json:"timestamp"`
	Stage     string `json:"stage"`
	Rows      int    `json:"rows"`
	Total     int    `json:"total"`
}

// BroadcastAssemblyStage reports feature assembly progress.
func (h *Hub) BroadcastAssemblyStage(stage string, rows, total int) {
	h.Broadcast(MessageTypeAssemblyStage, AssemblyStageData{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Stage:     stage,
		Rows:      rows,
		Total:     total,
	})
}

// TrainingStatusData reports one regressor's training outcome.
type TrainingStatusData struct {
	Timestamp string `json:"timestamp"`
	RunID     string `json:"run_id"`
	Model     string `json:"model"`
	Status    string `json:"status"` // running, trained, failed
	Error     string `json:"error,omitempty"`
}

// BroadcastTrainingStatus reports per-model training lifecycle changes.
func (h *Hub) BroadcastTrainingStatus(runID, model, status, errMsg string) {
	h.Broadcast(MessageTypeTrainingStatus, TrainingStatusData{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		RunID:     runID,
		Model:     model,
		Status:    status,
		Error:     errMsg,
	})
}

// EvaluationDoneData announces a finished training run.
type EvaluationDoneData struct {
	Timestamp     string `json:"timestamp"`
	RunID         string `json:"run_id"`
	PrimaryMetric string `json:"primary_metric"`
	BestModel     string `json:"best_model"`
	TestRows      int    `json:"test_rows"`
}

// BroadcastEvaluationDone announces a completed run and its winner.
func (h *Hub) BroadcastEvaluationDone(runID, primaryMetric, bestModel string, testRows int) {
	h.Broadcast(MessageTypeEvaluationDone, EvaluationDoneData{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		RunID:         runID,
		PrimaryMetric: primaryMetric,
		BestModel:     bestModel,
		TestRows:      testRows,
	})
}

// PipelineFailureData reports a failed pipeline stage.
type PipelineFailureData struct {
	Timestamp string `json:"timestamp"`
	Stage     string `json:"stage"`
	Error     string `json:"error"`
}

// BroadcastPipelineFailure reports a failed stage to dashboards.
func (h *Hub) BroadcastPipelineFailure(stage string, err error) {
	data := PipelineFailureData{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Stage:     stage,
	}
	if err != nil {
		data.Error = err.Error()
	}
	h.Broadcast(MessageTypePipelineFailure, data)
}
