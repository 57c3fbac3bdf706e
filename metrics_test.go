// Copyright 2012 The GoSNMP Authors. All rights reserved.  Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package snmpengine

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatsCollector(t *testing.T) {
	e, _, _ := newTestEngine(t, testEngineConfig(), WithCommandProcessor(valueProcessor(Integer, 1)))
	_, err := handle(t, e, managerAddr, communityMessage(t, Version2c, "nope", testGetPDU()))
	require.Error(t, err)

	c := NewStatsCollector(e)
	reg := prometheus.NewPedanticRegistry()
	require.NoError(t, reg.Register(c))

	assert.Equal(t, int(numCounters), testutil.CollectAndCount(c, "snmpengine_counter_total"))
	assert.Equal(t, 2*len(e.pools), testutil.CollectAndCount(c, "snmpengine_request_list_bytes"))
	assert.Equal(t, len(e.pools), testutil.CollectAndCount(c, "snmpengine_request_list_buffers"))

	expected := `
# HELP snmpengine_usm_users Rows in the USM user table
# TYPE snmpengine_usm_users gauge
snmpengine_usm_users 2
`
	err = testutil.CollectAndCompare(c, strings.NewReader(expected), "snmpengine_usm_users")
	assert.NoError(t, err)

	families, err := reg.Gather()
	require.NoError(t, err)
	counters := map[string]float64{}
	for _, mf := range families {
		if mf.GetName() != "snmpengine_counter_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == "name" {
					counters[l.GetValue()] = m.GetCounter().GetValue()
				}
			}
		}
	}
	assert.Equal(t, 1.0, counters["snmpInPkts"])
	assert.Equal(t, 1.0, counters["snmpInBadCommunityNames"])
	assert.Equal(t, 0.0, counters["snmpOutPkts"])
}

func TestStatsCollectorNilEngine(t *testing.T) {
	ch := make(chan prometheus.Metric, 1)
	(&StatsCollector{}).Collect(ch)
	close(ch)
	assert.Empty(t, ch)
}
