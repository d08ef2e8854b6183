// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package natsbridge

import (
	"fmt"
	"sync"

	cclog "github.com/ClusterCockpit/cc-lib/v2/ccLogger"
	"github.com/nats-io/nats.go"
)

// Config configures a connection to a NATS server, grounded on
// pkg/nats/config.go's NatsConfig shape.
type Config struct {
	Address       string `json:"address"`
	Username      string `json:"username"`
	Password      string `json:"password"`
	CredsFilePath string `json:"creds_file_path"`
}

// conn wraps a *nats.Conn with the subscription bookkeeping a Bridge needs
// to tear itself down cleanly, the same responsibility pkg/nats/client.go's
// Client carries for cc-backend's own NATS use.
type conn struct {
	nc   *nats.Conn
	mu   sync.Mutex
	subs []*nats.Subscription
}

func dial(cfg Config) (*conn, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("natsbridge: address is required")
	}

	var opts []nats.Option
	if cfg.Username != "" && cfg.Password != "" {
		opts = append(opts, nats.UserInfo(cfg.Username, cfg.Password))
	}
	if cfg.CredsFilePath != "" {
		opts = append(opts, nats.UserCredentials(cfg.CredsFilePath))
	}
	opts = append(opts, nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
		if err != nil {
			cclog.Warnf("natsbridge: disconnected: %v", err)
		}
	}))
	opts = append(opts, nats.ReconnectHandler(func(nc *nats.Conn) {
		cclog.Infof("natsbridge: reconnected to %s", nc.ConnectedUrl())
	}))

	nc, err := nats.Connect(cfg.Address, opts...)
	if err != nil {
		return nil, fmt.Errorf("natsbridge: connecting to %s: %w", cfg.Address, err)
	}
	cclog.Infof("natsbridge: connected to %s", cfg.Address)
	return &conn{nc: nc}, nil
}

func (c *conn) subscribe(subject string, handler nats.MsgHandler) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	sub, err := c.nc.Subscribe(subject, handler)
	if err != nil {
		return fmt.Errorf("natsbridge: subscribing to %q: %w", subject, err)
	}
	c.subs = append(c.subs, sub)
	return nil
}

func (c *conn) publish(subject string, data []byte) error {
	if err := c.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("natsbridge: publishing to %q: %w", subject, err)
	}
	return nil
}

func (c *conn) close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, sub := range c.subs {
		if err := sub.Unsubscribe(); err != nil {
			cclog.Warnf("natsbridge: unsubscribe failed: %v", err)
		}
	}
	c.subs = nil

	if c.nc != nil {
		c.nc.Close()
	}
}
