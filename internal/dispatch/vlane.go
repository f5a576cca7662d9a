// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: 2026
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package dispatch

import (
	"container/list"
	"sync"
)

// vActor is a per-key ordered queue. Every Vector-lane event for a given
// source IP is enqueued here in arrival order, independent of when (or
// whether) it is drained for audit.
type vActor struct {
	mu    sync.Mutex
	queue *list.List
}

func newVActor() *vActor { return &vActor{queue: list.New()} }

func (a *vActor) enqueue(ev Event) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.queue.PushBack(ev)
}

func (a *vActor) drain() []Event {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Event, 0, a.queue.Len())
	for e := a.queue.Front(); e != nil; e = e.Next() {
		out = append(out, e.Value.(Event))
	}
	a.queue.Init()
	return out
}

// VectorRouter is a single mutex-guarded map from source IP to its ordered
// actor. One
// Router instance per process; every Vector-lane Event for a given IP
// always lands in the same actor, so draining it reconstructs exactly the
// order those events occurred in for that IP.
type VectorRouter struct {
	mu     sync.Mutex
	actors map[string]*vActor
}

// NewVectorRouter builds an empty router.
func NewVectorRouter() *VectorRouter {
	return &VectorRouter{actors: make(map[string]*vActor)}
}

func (r *VectorRouter) actorFor(ip string) *vActor {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.actors[ip]
	if !ok {
		a = newVActor()
		r.actors[ip] = a
	}
	return a
}

// Enqueue appends ev to its source IP's ordered queue.
func (r *VectorRouter) Enqueue(ev Event) {
	r.actorFor(ev.SourceIP).enqueue(ev)
}

// Drain returns and clears every queued event for ip, in arrival order.
func (r *VectorRouter) Drain(ip string) []Event {
	return r.actorFor(ip).drain()
}
