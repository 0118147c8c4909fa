// SPDX-FileCopyrightText: Copyright 2026 Signet Authors
// SPDX-License-Identifier: Apache-2.0

package ciba

import "sync"

// waiter is a one-shot subscription to a status transition.
type waiter struct {
	ch chan Status
}

// waiterSet is the per-auth_req_id registry of parked long-poll requests.
// Multi-producer (status transitions), multi-consumer (token requests).
type waiterSet struct {
	mu      sync.Mutex
	waiters map[string]map[*waiter]struct{}
}

func newWaiterSet() *waiterSet {
	return &waiterSet{waiters: make(map[string]map[*waiter]struct{})}
}

// register adds a waiter for the auth_req_id. Callers must register BEFORE
// re-checking the stored status, otherwise a transition landing between the
// check and the registration would be lost.
func (s *waiterSet) register(authReqID string) *waiter {
	w := &waiter{ch: make(chan Status, 1)}
	s.mu.Lock()
	set, ok := s.waiters[authReqID]
	if !ok {
		set = make(map[*waiter]struct{})
		s.waiters[authReqID] = set
	}
	set[w] = struct{}{}
	s.mu.Unlock()
	return w
}

// deregister removes a waiter; safe to call after a signal.
func (s *waiterSet) deregister(authReqID string, w *waiter) {
	s.mu.Lock()
	if set, ok := s.waiters[authReqID]; ok {
		delete(set, w)
		if len(set) == 0 {
			delete(s.waiters, authReqID)
		}
	}
	s.mu.Unlock()
}

// signal wakes every waiter with the new status. The buffered channel makes
// the send non-blocking; each waiter consumes at most one signal.
func (s *waiterSet) signal(authReqID string, status Status) {
	s.mu.Lock()
	set := s.waiters[authReqID]
	delete(s.waiters, authReqID)
	s.mu.Unlock()

	for w := range set {
		select {
		case w.ch <- status:
		default:
		}
	}
}
