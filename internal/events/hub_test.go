// Pernocta - Short-Term Rental Price Intelligence Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pernocta

package events

import (
	"context"
	"errors"
	"testing"
	"time"
)

// startHub runs the hub loop and returns a cancel func plus a channel that
// yields the loop's return value.
func startHub(t *testing.T) (*Hub, context.CancelFunc, chan error) {
	t.Helper()
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- hub.RunWithContext(ctx) }()
	return hub, cancel, done
}

// waitForClients polls until the hub reports the wanted client count.
func waitForClients(t *testing.T, hub *Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if hub.ClientCount() == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("client count = %d, want %d", hub.ClientCount(), want)
}

func TestHubRegisterUnregister(t *testing.T) {
	hub, cancel, done := startHub(t)
	defer cancel()

	client := NewClient(hub, nil)
	hub.Register <- client
	waitForClients(t, hub, 1)

	hub.Unregister <- client
	waitForClients(t, hub, 0)

	// Unregistering closes the send channel.
	select {
	case _, ok := <-client.send:
		if ok {
			t.Error("expected closed send channel")
		}
	case <-time.After(time.Second):
		t.Error("send channel not closed after unregister")
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("RunWithContext returned %v, want context.Canceled", err)
	}
}

func TestHubBroadcastDelivers(t *testing.T) {
	hub, cancel, _ := startHub(t)
	defer cancel()

	client := NewClient(hub, nil)
	hub.Register <- client
	waitForClients(t, hub, 1)

	hub.BroadcastTrainingStatus("run-1", "ridge", "trained", "")

	select {
	case msg := <-client.send:
		if msg.Type != MessageTypeTrainingStatus {
			t.Errorf("message type = %q", msg.Type)
		}
		data, ok := msg.Data.(TrainingStatusData)
		if !ok {
			t.Fatalf("data type = %T", msg.Data)
		}
		if data.RunID != "run-1" || data.Model != "ridge" || data.Status != "trained" {
			t.Errorf("data = %+v", data)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("broadcast not delivered")
	}
}

func TestHubDropsSlowClient(t *testing.T) {
	hub, cancel, _ := startHub(t)
	defer cancel()

	slow := NewClient(hub, nil)
	// A full send buffer marks the client as slow.
	slow.send = make(chan Message)
	fast := NewClient(hub, nil)

	hub.Register <- slow
	hub.Register <- fast
	waitForClients(t, hub, 2)

	hub.BroadcastIngestProgress("listings", 5000, 4900, 100)
	waitForClients(t, hub, 1)

	select {
	case msg := <-fast.send:
		if msg.Type != MessageTypeIngestProgress {
			t.Errorf("message type = %q", msg.Type)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("fast client should still receive broadcasts")
	}
}

func TestHubShutdownClosesClients(t *testing.T) {
	hub, cancel, done := startHub(t)

	a := NewClient(hub, nil)
	b := NewClient(hub, nil)
	hub.Register <- a
	hub.Register <- b
	waitForClients(t, hub, 2)

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("RunWithContext returned %v", err)
	}
	if hub.ClientCount() != 0 {
		t.Errorf("clients remaining after shutdown: %d", hub.ClientCount())
	}
	for _, c := range []*Client{a, b} {
		if _, ok := <-c.send; ok {
			t.Error("client send channel should be closed after shutdown")
		}
	}
}

func TestBroadcastQueueOverflowDoesNotBlock(t *testing.T) {
	// No hub loop running: the queue fills and further broadcasts drop.
	hub := NewHub()
	for i := 0; i < 1000; i++ {
		hub.BroadcastAssemblyStage("grid", i, 1000)
	}
	if len(hub.broadcast) != cap(hub.broadcast) {
		t.Errorf("broadcast queue = %d, want full at %d", len(hub.broadcast), cap(hub.broadcast))
	}
}
