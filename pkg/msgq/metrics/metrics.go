// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package metrics exports pkg/msgq queue occupancy as Prometheus gauges,
// grounded on the teacher's pkg/schema metric-family conventions
// (internal/memorystore registers its own collectors the same way).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/model"

	"github.com/sliderule-earth/sliderule-core/pkg/msgq"
)

// sanitizeLabel replaces any byte a Prometheus label value must not carry
// raw (CAS-derived queue names can include arbitrary UTF-8) with an
// underscore, using model.LabelValue's own validity check rather than
// hand-rolling a character class.
func sanitizeLabel(name string) string {
	if model.LabelValue(name).IsValid() {
		return name
	}
	out := make([]rune, 0, len(name))
	for _, r := range name {
		if r == 0xFFFD {
			out = append(out, '_')
			continue
		}
		out = append(out, r)
	}
	return string(out)
}

// Collector implements prometheus.Collector over a msgq.Registry, reading a
// fresh Stats snapshot on every scrape rather than maintaining its own
// counters.
type Collector struct {
	registry *msgq.Registry

	depth       *prometheus.Desc
	occupied    *prometheus.Desc
	subscribers *prometheus.Desc
	confidence  *prometheus.Desc
	opportunity *prometheus.Desc
}

// NewCollector returns a Collector scraping r. Pass nil to scrape the
// package-level global registry used by msgq.Create/Publish/Subscribe.
func NewCollector(r *msgq.Registry) *Collector {
	labels := []string{"queue"}
	return &Collector{
		registry:    r,
		depth:       prometheus.NewDesc("sliderule_msgq_depth", "Configured ring capacity of a named queue.", labels, nil),
		occupied:    prometheus.NewDesc("sliderule_msgq_occupied", "Messages currently retained in a named queue.", labels, nil),
		subscribers: prometheus.NewDesc("sliderule_msgq_subscribers", "Subscribers currently attached to a named queue.", labels, nil),
		confidence:  prometheus.NewDesc("sliderule_msgq_confidence_subscribers", "Confidence-discipline subscribers attached to a named queue.", labels, nil),
		opportunity: prometheus.NewDesc("sliderule_msgq_opportunity_subscribers", "Opportunity-discipline subscribers attached to a named queue.", labels, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.depth
	ch <- c.occupied
	ch <- c.subscribers
	ch <- c.confidence
	ch <- c.opportunity
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	var stats []msgq.Stats
	if c.registry != nil {
		stats = c.registry.Stats()
	} else {
		stats = msgq.AllStats()
	}

	for _, s := range stats {
		name := sanitizeLabel(s.Name)
		ch <- prometheus.MustNewConstMetric(c.depth, prometheus.GaugeValue, float64(s.Depth), name)
		ch <- prometheus.MustNewConstMetric(c.occupied, prometheus.GaugeValue, float64(s.Occupied), name)
		ch <- prometheus.MustNewConstMetric(c.subscribers, prometheus.GaugeValue, float64(s.Subscribers), name)
		ch <- prometheus.MustNewConstMetric(c.confidence, prometheus.GaugeValue, float64(s.Confidence), name)
		ch <- prometheus.MustNewConstMetric(c.opportunity, prometheus.GaugeValue, float64(s.Opportunity), name)
	}
}
