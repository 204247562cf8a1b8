package sse

import (
	"context"
	"sync"

	"ms-speakers/internal/models"
)

const clientBuffer = 10

// CheckinEmitter fans scanned tickets out to door dashboards subscribed per event.
type CheckinEmitter struct {
	mu      sync.RWMutex
	clients map[string][]chan models.Ticket
	closed  bool
}

func NewCheckinEmitter() *CheckinEmitter {
	return &CheckinEmitter{clients: make(map[string][]chan models.Ticket)}
}

// Subscribe registers a client for an event. The channel is closed once ctx is done.
func (e *CheckinEmitter) Subscribe(ctx context.Context, eventID string) <-chan models.Ticket {
	ch := make(chan models.Ticket, clientBuffer)

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		close(ch)
		return ch
	}
	e.clients[eventID] = append(e.clients[eventID], ch)
	e.mu.Unlock()

	go func() {
		<-ctx.Done()
		e.remove(eventID, ch)
	}()
	return ch
}

// EmitCheckin broadcasts a scanned ticket. Slow clients miss the update
// rather than stall the scanner.
func (e *CheckinEmitter) EmitCheckin(ticket models.Ticket) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	for _, ch := range e.clients[ticket.EventID] {
		select {
		case ch <- ticket:
		default:
		}
	}
}

func (e *CheckinEmitter) remove(eventID string, ch chan models.Ticket) {
	e.mu.Lock()
	defer e.mu.Unlock()

	clients := e.clients[eventID]
	for i, c := range clients {
		if c == ch {
			e.clients[eventID] = append(clients[:i], clients[i+1:]...)
			close(ch)
			break
		}
	}
	if len(e.clients[eventID]) == 0 {
		delete(e.clients, eventID)
	}
}

// Close ends every open stream. Used on server shutdown.
func (e *CheckinEmitter) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.closed = true
	for eventID, clients := range e.clients {
		for _, ch := range clients {
			close(ch)
		}
		delete(e.clients, eventID)
	}
}

// ClientCount returns the number of clients subscribed to an event.
func (e *CheckinEmitter) ClientCount(eventID string) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.clients[eventID])
}
