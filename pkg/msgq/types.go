// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package msgq implements SlideRule's named, multi-producer/multi-consumer
// message queue fabric: fixed-depth circular queues addressed by name,
// shared by any number of publishers and subscribers, with two delivery
// disciplines (Confidence and Opportunity) governing how a slow subscriber
// affects the rest of the queue.
//
// A Confidence subscriber is guaranteed every message: the queue will not
// recycle a slot until every Confidence subscriber has read it, which means
// a stalled Confidence subscriber applies back-pressure to publishers
// (Post blocks or returns StateFull). An Opportunity subscriber never holds
// a slot back; if it falls too far behind it is fast-forwarded to the
// oldest still-available message and the gap is counted as dropped.
package msgq

import (
	"errors"
	"time"
)

// State is the outcome of a Post or Receive call.
type State int

const (
	StateOK State = iota
	StateTimeout
	StateFull
	StateSizeError
	StateEmpty
	StateNoSubscribers
	StateError
)

func (s State) String() string {
	switch s {
	case StateOK:
		return "ok"
	case StateTimeout:
		return "timeout"
	case StateFull:
		return "full"
	case StateSizeError:
		return "size_error"
	case StateEmpty:
		return "empty"
	case StateNoSubscribers:
		return "no_subscribers"
	default:
		return "error"
	}
}

// SubscriberType selects a queue's delivery discipline for one subscriber.
type SubscriberType int

const (
	// Confidence subscribers are guaranteed delivery of every message; a
	// slow Confidence subscriber back-pressures publishers.
	Confidence SubscriberType = iota
	// Opportunity subscribers are skipped forward over messages they
	// could not keep up with, rather than holding the queue back.
	Opportunity
)

// NoTimeout blocks a Post or Receive call indefinitely.
const NoTimeout = time.Duration(-1)

// DefaultDepth is used when a queue is created with depth <= 0 and Keys
// has not been overridden.
const DefaultDepth = 1024

// Keys holds process-wide msgq defaults. internal/corecfg.Init overwrites
// StandardQueueDepth from the process configuration document the same way
// the teacher's package-level Keys vars are populated from config.Init.
var Keys = struct {
	StandardQueueDepth int
}{StandardQueueDepth: DefaultDepth}

var (
	ErrQueueExists        = errors.New("msgq: queue already exists")
	ErrQueueNotFound      = errors.New("msgq: queue not found")
	ErrInvalidDepth       = errors.New("msgq: invalid queue depth")
	ErrSubscriberNotFound = errors.New("msgq: subscriber not registered on this queue")
)
