// Copyright 2012 The GoSNMP Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package snmpengine

import (
	"github.com/prometheus/client_golang/prometheus"
)

// StatsCollector exports engine statistics and request list occupancy to
// Prometheus. Counter values are read at scrape time.
type StatsCollector struct {
	engine *Engine

	counter   *prometheus.Desc
	poolBytes *prometheus.Desc
	poolBufs  *prometheus.Desc
	cacheUsed *prometheus.Desc
	users     *prometheus.Desc
}

// NewStatsCollector returns a collector for e. Register it with
// prometheus.MustRegister or a custom registry.
func NewStatsCollector(e *Engine) *StatsCollector {
	return &StatsCollector{
		engine: e,
		counter: prometheus.NewDesc(
			"snmpengine_counter_total",
			"SNMP engine statistics counters (snmp, MPD and USM groups)",
			[]string{"name", "oid"}, nil,
		),
		poolBytes: prometheus.NewDesc(
			"snmpengine_request_list_bytes",
			"Request list arena usage by message processing model",
			[]string{"version", "state"}, nil,
		),
		poolBufs: prometheus.NewDesc(
			"snmpengine_request_list_buffers",
			"Request buffers currently held",
			[]string{"version"}, nil,
		),
		cacheUsed: prometheus.NewDesc(
			"snmpengine_usm_cache_slots_in_use",
			"USM security state cache slots currently claimed",
			nil, nil,
		),
		users: prometheus.NewDesc(
			"snmpengine_usm_users",
			"Rows in the USM user table",
			nil, nil,
		),
	}
}

func (c *StatsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.counter
	ch <- c.poolBytes
	ch <- c.poolBufs
	ch <- c.cacheUsed
	ch <- c.users
}

func (c *StatsCollector) Collect(ch chan<- prometheus.Metric) {
	if c == nil || c.engine == nil {
		return
	}
	stats := c.engine.Stats()
	for ctr := Counter(0); ctr < numCounters; ctr++ {
		ch <- prometheus.MustNewConstMetric(c.counter, prometheus.CounterValue,
			float64(stats.Get(ctr)), ctr.String(), ctr.OID())
	}
	for version, pool := range c.engine.pools {
		s := pool.Stats()
		v := version.String()
		ch <- prometheus.MustNewConstMetric(c.poolBytes, prometheus.GaugeValue, float64(s.UsedBytes), v, "used")
		ch <- prometheus.MustNewConstMetric(c.poolBytes, prometheus.GaugeValue, float64(s.FreeBytes), v, "free")
		ch <- prometheus.MustNewConstMetric(c.poolBufs, prometheus.GaugeValue, float64(s.Buffers), v)
	}
	if usm := c.engine.USM(); usm != nil {
		ch <- prometheus.MustNewConstMetric(c.cacheUsed, prometheus.GaugeValue, float64(usm.cache.inUse()))
		ch <- prometheus.MustNewConstMetric(c.users, prometheus.GaugeValue, float64(usm.users.Len()))
	}
}
