package models

import "time"

// EventQueueEntry is one fired domain event awaiting preference resolution.
// Created by event producers, consumed and deleted by the event queue
// manager, never mutated.
type EventQueueEntry struct {
	ID           string
	ResolverName string
	Payload      map[string]string
	Context      ExtendedContext
	CreatedAt    time.Time
}

// NotificationQueueEntry is one (preference, event) pair scheduled to fire at
// DueAt. CreatedAt doubles as the "event occurred at" time when rendering
// placeholders for the queued send.
type NotificationQueueEntry struct {
	ID           string
	PreferenceID uint64
	Payload      map[string]string
	DueAt        time.Time
	CreatedAt    time.Time
}
