// Copyright (c) 2026 Khaled Abbas
//
// This source code is licensed under the Business Source License 1.1.
//
// Change Date: 4 years after the first public release of this version.
// Change License: MIT
//
// On the Change Date, this version of the code automatically converts
// to the MIT License. Prior to that date, use is subject to the
// Additional Use Grant. See the LICENSE file for details.

// Package notify delivers user-facing warnings produced by the linter.
package notify

import (
	"log/slog"
	"sync"

	"lintworker/src/logging"
)

type Notifier interface {
	Warn(msg string)
}

const defaultRecent = 50

// Channel logs every warning, keeps the most recent ones for the status API
// and forwards them to a buffered channel. A full channel drops the message
// rather than blocking the publisher.
type Channel struct {
	mu     sync.Mutex
	recent []string
	limit  int
	ch     chan string
}

func NewChannel(buffer, recent int) *Channel {
	if recent <= 0 {
		recent = defaultRecent
	}
	return &Channel{
		limit: recent,
		ch:    make(chan string, max(buffer, 0)),
	}
}

func (c *Channel) Warn(msg string) {
	logging.Log(msg, slog.LevelWarn)

	c.mu.Lock()
	c.recent = append(c.recent, msg)
	if over := len(c.recent) - c.limit; over > 0 {
		c.recent = append(c.recent[:0], c.recent[over:]...)
	}
	c.mu.Unlock()

	select {
	case c.ch <- msg:
	default:
	}
}

// C exposes delivered warnings.
func (c *Channel) C() <-chan string {
	return c.ch
}

// Recent returns the retained warnings, oldest first.
func (c *Channel) Recent() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.recent))
	copy(out, c.recent)
	return out
}

// Func adapts a plain function.
type Func func(msg string)

func (f Func) Warn(msg string) { f(msg) }
