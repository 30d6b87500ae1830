package services

import (
	"context"
	"log"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/TheeGreenGenie/ticket-leader/config"
	"github.com/TheeGreenGenie/ticket-leader/monitoring"
	"github.com/TheeGreenGenie/ticket-leader/store"
)

// BackgroundService owns the periodic sweeps: position broadcasts,
// trust reordering, stale-session cleanup and health reporting. One
// goroutine per concern, all sharing one stop channel.
type BackgroundService struct {
	store    store.Store
	queue    *QueueService
	notifier Notifier
	config   *config.Config
	monitor  *monitoring.Monitor

	stopChan         chan struct{}
	wg               sync.WaitGroup
	activeGoroutines int64
}

func NewBackgroundService(st store.Store, queue *QueueService, notifier Notifier, cfg *config.Config, monitor *monitoring.Monitor) *BackgroundService {
	return &BackgroundService{
		store:    st,
		queue:    queue,
		notifier: notifier,
		config:   cfg,
		monitor:  monitor,
		stopChan: make(chan struct{}),
	}
}

func (s *BackgroundService) Start() {
	s.wg.Add(1)
	go s.positionSweeper()

	s.wg.Add(1)
	go s.reorderSweeper()

	s.wg.Add(1)
	go s.cleanupSweeper()

	s.wg.Add(1)
	go s.healthMonitor()

	log.Printf("Started %d background goroutines", 4)
}

// Position sweeper - periodic position broadcast for ALL events
func (s *BackgroundService) positionSweeper() {
	defer s.wg.Done()
	atomic.AddInt64(&s.activeGoroutines, 1)
	defer atomic.AddInt64(&s.activeGoroutines, -1)

	ticker := time.NewTicker(s.config.PositionUpdateInterval)
	defer ticker.Stop()

	log.Println("Position sweeper started")

	for {
		select {
		case <-ticker.C:
			s.broadcastAllPositions()
		case <-s.stopChan:
			log.Println("Position sweeper stopping")
			return
		}
	}
}

func (s *BackgroundService) broadcastAllPositions() {
	ctx := context.Background()

	waiting, err := s.store.ListAllWaiting(ctx)
	if err != nil {
		log.Printf("Error listing waiting sessions: %v", err)
		return
	}

	perEvent := make(map[string]int)
	for _, session := range waiting {
		perEvent[session.EventID]++
		s.notifier.PositionUpdate(session.SessionID, session.CurrentPosition, EstimatedWait(session.CurrentPosition))
	}

	for eventID, size := range perEvent {
		s.notifier.QueueSize(eventID, size)
		s.monitor.SetWaitingSessions(eventID, size)
	}

	if len(waiting) > 0 {
		log.Printf("Broadcast positions for %d sessions across %d events", len(waiting), len(perEvent))
	}
}

// Reorder sweeper - re-ranks every live event by trust
func (s *BackgroundService) reorderSweeper() {
	defer s.wg.Done()
	atomic.AddInt64(&s.activeGoroutines, 1)
	defer atomic.AddInt64(&s.activeGoroutines, -1)

	ticker := time.NewTicker(s.config.ReorderInterval)
	defer ticker.Stop()

	log.Println("Reorder sweeper started")

	for {
		select {
		case <-ticker.C:
			s.reorderAllEvents()
		case <-s.stopChan:
			log.Println("Reorder sweeper stopping")
			return
		}
	}
}

func (s *BackgroundService) reorderAllEvents() {
	ctx := context.Background()

	waiting, err := s.store.ListAllWaiting(ctx)
	if err != nil {
		log.Printf("Error listing waiting sessions: %v", err)
		return
	}

	eventIDs := make(map[string]struct{})
	for _, session := range waiting {
		eventIDs[session.EventID] = struct{}{}
	}

	for eventID := range eventIDs {
		if _, err := s.queue.ReorderByTrust(ctx, eventID); err != nil {
			log.Printf("Error reordering event %s: %v", eventID, err)
		}
	}
}

// Cleanup sweeper - expires abandoned sessions and purges finished ones
func (s *BackgroundService) cleanupSweeper() {
	defer s.wg.Done()
	atomic.AddInt64(&s.activeGoroutines, 1)
	defer atomic.AddInt64(&s.activeGoroutines, -1)

	ticker := time.NewTicker(s.config.CleanupInterval)
	defer ticker.Stop()

	log.Println("Cleanup sweeper started")

	for {
		select {
		case <-ticker.C:
			s.cleanupSessions()
		case <-s.stopChan:
			log.Println("Cleanup sweeper stopping")
			return
		}
	}
}

func (s *BackgroundService) cleanupSessions() {
	ctx := context.Background()
	now := time.Now()

	stale, err := s.store.ListStaleWaiting(ctx, now.Add(-s.config.StaleAfter))
	if err != nil {
		log.Printf("Error listing stale sessions: %v", err)
		return
	}

	expired := 0
	for _, session := range stale {
		// Leave handles compaction, so everyone behind a dead session
		// moves up instead of sitting behind a ghost.
		if err := s.queue.Leave(ctx, session.SessionID); err != nil {
			log.Printf("Error expiring session %s: %v", session.SessionID, err)
			continue
		}
		expired++
	}

	purged, err := s.store.PurgeFinished(ctx, now.Add(-s.config.FinishedTTL))
	if err != nil {
		log.Printf("Error purging finished sessions: %v", err)
	}

	if expired > 0 || purged > 0 {
		log.Printf("Cleanup pass: expired %d stale sessions, purged %d finished", expired, purged)
	}
}

// Health monitor
func (s *BackgroundService) healthMonitor() {
	defer s.wg.Done()
	atomic.AddInt64(&s.activeGoroutines, 1)
	defer atomic.AddInt64(&s.activeGoroutines, -1)

	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.logHealthStats()
		case <-s.stopChan:
			return
		}
	}
}

func (s *BackgroundService) logHealthStats() {
	ctx := context.Background()

	waiting, err := s.store.ListAllWaiting(ctx)
	if err != nil {
		log.Printf("Error reading queue stats: %v", err)
		return
	}

	events := make(map[string]struct{})
	for _, session := range waiting {
		events[session.EventID] = struct{}{}
	}

	goroutines := atomic.LoadInt64(&s.activeGoroutines)
	s.monitor.SetGoroutines(goroutines)

	memStats := &runtime.MemStats{}
	runtime.ReadMemStats(memStats)

	log.Printf("Health Stats - Events: %d, Waiting: %d, Goroutines: %d, Memory: %.1fMB",
		len(events), len(waiting), goroutines,
		float64(memStats.Alloc)/1024/1024)
}

// Shutdown stops all sweepers and waits for them, bounded by a timeout.
func (s *BackgroundService) Shutdown() {
	log.Println("Shutting down background service...")

	close(s.stopChan)

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Println("All goroutines stopped gracefully")
	case <-time.After(30 * time.Second):
		log.Println("Timeout waiting for goroutines to stop")
	}
}
