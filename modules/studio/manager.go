package studio

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"portfolio-studio-server/modules/common/model"
)

const (
	closedSweepInterval  = 5 * time.Minute
	expiredSweepInterval = 30 * time.Minute
	inactiveThreshold    = 2 * time.Hour
)

// Manager - open modals keyed by id
type Manager struct {
	deps      *Deps
	catalogue *Catalogue
	log       zerolog.Logger

	mutex   sync.RWMutex
	modals  map[string]*Modal
	metrics *Metrics
}

// NewManager - deps.Jobs, deps.Encoder and deps.Registry are required
func NewManager(deps Deps, catalogue *Catalogue) *Manager {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if catalogue == nil {
		catalogue = OpenCatalogue()
	}
	deps.metrics = newMetrics(deps.Now())
	return &Manager{
		deps:      &deps,
		catalogue: catalogue,
		log:       deps.Log,
		modals:    make(map[string]*Modal),
		metrics:   deps.metrics,
	}
}

// Open - new modal for a project; the project's screenshot becomes the default input
func (sm *Manager) Open(projectID string, kind model.JobKind) (*Modal, error) {
	if kind == "" {
		kind = model.KindImageEdit
	}
	if kind != model.KindImageEdit && kind != model.KindVideoGenerate {
		return nil, &model.InputError{Msg: fmt.Sprintf("unknown modal kind %q", kind)}
	}
	project, ok := sm.catalogue.Lookup(projectID)
	if !ok {
		return nil, &model.InputError{Msg: fmt.Sprintf("unknown project %q", projectID)}
	}

	modal := newModal(uuid.NewString(), project.ID, kind, sm.deps)
	if project.ImageURL != "" {
		modal.SetInput(Input{Asset: model.URLAsset(project.ImageURL, "")})
	}

	sm.mutex.Lock()
	sm.modals[modal.ID()] = modal
	sm.mutex.Unlock()
	sm.metrics.modalOpened()

	sm.log.Info().Str("modal_id", modal.ID()).Str("project_id", project.ID).Str("kind", string(kind)).Msg("✅ [Studio] Modal opened")
	return modal, nil
}

// Get - modal by id
func (sm *Manager) Get(id string) (*Modal, bool) {
	sm.mutex.RLock()
	defer sm.mutex.RUnlock()
	modal, ok := sm.modals[id]
	return modal, ok
}

// CloseModal - close and forget a modal
func (sm *Manager) CloseModal(id string) bool {
	sm.mutex.Lock()
	modal, ok := sm.modals[id]
	delete(sm.modals, id)
	sm.mutex.Unlock()
	if !ok {
		return false
	}
	modal.Close()
	sm.metrics.modalRemoved()
	return true
}

// Views - every open modal, oldest first
func (sm *Manager) Views() []View {
	sm.mutex.RLock()
	modals := make([]*Modal, 0, len(sm.modals))
	for _, modal := range sm.modals {
		modals = append(modals, modal)
	}
	sm.mutex.RUnlock()

	views := make([]View, 0, len(modals))
	for _, modal := range modals {
		views = append(views, modal.View())
	}
	sort.Slice(views, func(i, j int) bool { return views[i].CreatedAt.Before(views[j].CreatedAt) })
	return views
}

// Metrics - counters snapshot
func (sm *Manager) Metrics() MetricsSnapshot {
	return sm.metrics.Snapshot(sm.deps.Now())
}

// Catalogue - projects the manager accepts
func (sm *Manager) Catalogue() *Catalogue {
	return sm.catalogue
}

// cleanupClosedModals - drop modals closed without going through CloseModal
func (sm *Manager) cleanupClosedModals() int {
	sm.mutex.RLock()
	candidates := make([]*Modal, 0, len(sm.modals))
	for _, modal := range sm.modals {
		candidates = append(candidates, modal)
	}
	sm.mutex.RUnlock()

	cleaned := 0
	for _, modal := range candidates {
		if !modal.isClosed() {
			continue
		}
		sm.mutex.Lock()
		if current, ok := sm.modals[modal.ID()]; ok && current == modal {
			delete(sm.modals, modal.ID())
			sm.metrics.modalRemoved()
			cleaned++
		}
		sm.mutex.Unlock()
	}
	if cleaned > 0 {
		sm.log.Info().Int("cleaned", cleaned).Msg("🗑️  [Studio] Cleaned up closed modals")
	}
	return cleaned
}

// cleanupInactiveModals - close modals nobody touched for inactiveThreshold
// Closing cancels their in-flight job observation. Modals are inspected outside
// sm.mutex so a busy modal cannot stall the manager.
func (sm *Manager) cleanupInactiveModals() int {
	now := sm.deps.Now()

	sm.mutex.RLock()
	candidates := make([]*Modal, 0, len(sm.modals))
	for _, modal := range sm.modals {
		candidates = append(candidates, modal)
	}
	sm.mutex.RUnlock()

	var stale []*Modal
	for _, modal := range candidates {
		if modal.idleFor(now) <= inactiveThreshold {
			continue
		}
		sm.mutex.Lock()
		current, ok := sm.modals[modal.ID()]
		if ok && current == modal {
			delete(sm.modals, modal.ID())
			stale = append(stale, modal)
		}
		sm.mutex.Unlock()
	}

	for _, modal := range stale {
		modal.Close()
		sm.metrics.modalRemoved()
		sm.log.Info().Str("modal_id", modal.ID()).Msg("⏰ [Studio] Closed inactive modal")
	}
	if len(stale) > 0 {
		sm.log.Info().Int("cleaned", len(stale)).Msg("🧼 [Studio] Cleaned up inactive modals")
	}
	return len(stale)
}

// Cleanup - run both sweeps now
func (sm *Manager) Cleanup() int {
	return sm.cleanupClosedModals() + sm.cleanupInactiveModals()
}

// StartCleanupRoutine - periodic sweeps until ctx is done
func (sm *Manager) StartCleanupRoutine(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(closedSweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				sm.cleanupClosedModals()
			}
		}
	}()

	go func() {
		ticker := time.NewTicker(expiredSweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				sm.cleanupInactiveModals()
			}
		}
	}()

	sm.log.Info().Msg("🔄 [Studio] Started modal cleanup routines (closed: 5min, inactive: 30min)")
}

// Shutdown - close every modal
func (sm *Manager) Shutdown() {
	sm.mutex.Lock()
	modals := sm.modals
	sm.modals = make(map[string]*Modal)
	sm.mutex.Unlock()

	for _, modal := range modals {
		modal.Close()
		sm.metrics.modalRemoved()
	}
}
