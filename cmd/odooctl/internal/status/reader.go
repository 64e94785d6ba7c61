// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package status reduces the compose container listing to one coarse
// stack state and caches it briefly.
package status

import (
	"context"
	"sync"
	"time"

	"github.com/AleutianAI/odooctl/cmd/odooctl/internal/infra/compose"
	"github.com/AleutianAI/odooctl/pkg/logging"
)

// DefaultTTL is how long a reading is reused. One menu render issues
// several state reads; they should cost one runtime query.
const DefaultTTL = 2 * time.Second

// Expected compose service names.
const (
	ServiceOdoo = "odoo"
	ServiceDB   = "db"
)

// StackState is the coarse state of the two-service stack.
type StackState int

const (
	// NotCreated means neither service has a container.
	NotCreated StackState = iota

	// Stopped means at least one service has a container but the two are
	// not both running.
	Stopped

	// Running means both services report state "running".
	Running
)

// String returns the machine-readable name.
func (s StackState) String() string {
	switch s {
	case Running:
		return "running"
	case Stopped:
		return "stopped"
	default:
		return "not_created"
	}
}

// Snapshot is one reading of the stack.
type Snapshot struct {
	State StackState

	// Odoo and DB are nil when the service has no container.
	Odoo *compose.ServiceStatus
	DB   *compose.ServiceStatus

	// Err is the query failure that forced State to NotCreated.
	Err error

	ReadAt time.Time
}

// Reduce maps a container listing to a StackState. A nil listing is
// NotCreated.
func Reduce(st *compose.ComposeStatus) StackState {
	odoo, hasOdoo := st.Service(ServiceOdoo)
	db, hasDB := st.Service(ServiceDB)

	switch {
	case !hasOdoo && !hasDB:
		return NotCreated
	case hasOdoo && hasDB && odoo.IsRunning() && db.IsRunning():
		return Running
	default:
		return Stopped
	}
}

// Reader reads and caches the stack state.
//
// # Thread Safety
//
// Safe for concurrent use. Concurrent callers during a refresh wait for
// that refresh instead of issuing their own query.
type Reader struct {
	exec   compose.ComposeExecutor
	ttl    time.Duration
	now    func() time.Time
	logger *logging.Logger

	mu     sync.Mutex
	cached *Snapshot
}

// NewReader creates a Reader with DefaultTTL.
func NewReader(exec compose.ComposeExecutor, logger *logging.Logger) *Reader {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Reader{
		exec:   exec,
		ttl:    DefaultTTL,
		now:    time.Now,
		logger: logger,
	}
}

// Snapshot returns the cached reading if it is younger than the TTL and
// queries the runtime otherwise. It never returns an error: a failed query
// yields NotCreated with Err set and is not cached, so the next call
// queries again.
func (r *Reader) Snapshot(ctx context.Context) Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if r.cached != nil && now.Sub(r.cached.ReadAt) < r.ttl {
		return *r.cached
	}

	snap := r.read(ctx)
	snap.ReadAt = now
	if snap.Err == nil {
		r.cached = &snap
	}
	return snap
}

// Invalidate drops the cached reading. Call after any action that changes
// the stack.
func (r *Reader) Invalidate() {
	r.mu.Lock()
	r.cached = nil
	r.mu.Unlock()
}

func (r *Reader) read(ctx context.Context) Snapshot {
	st, err := r.exec.Status(ctx)
	if err != nil {
		r.logger.Debug("status query failed, assuming not created", "error", err)
		return Snapshot{State: NotCreated, Err: err}
	}

	snap := Snapshot{State: Reduce(st)}
	if svc, ok := st.Service(ServiceOdoo); ok {
		snap.Odoo = &svc
	}
	if svc, ok := st.Service(ServiceDB); ok {
		snap.DB = &svc
	}
	return snap
}
