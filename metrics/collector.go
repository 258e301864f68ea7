package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector exposes the global counter/gauge state as a prometheus.Collector.
// It does not own a registry; callers register it themselves.
type Collector struct {
	counterDescs map[string]*prometheus.Desc
	gaugeDescs   map[string]*prometheus.Desc
}

// NewCollector builds a Collector with one Desc per registered key.
func NewCollector() *Collector {
	c := &Collector{
		counterDescs: make(map[string]*prometheus.Desc),
		gaugeDescs:   make(map[string]*prometheus.Desc),
	}
	for i := CounterKeyST(0); i < numCounterKeysST; i++ {
		c.counterDescs[i.String()] = desc(i.String(), "counter")
	}
	for i := CounterKeyMT(0); i < numCounterKeysMT; i++ {
		c.counterDescs[i.String()] = desc(i.String(), "counter")
	}
	for i := GaugeKeyST(0); i < numGaugeKeysST; i++ {
		c.gaugeDescs[i.String()] = desc(i.String(), "gauge")
	}
	for i := GaugeKeyMT(0); i < numGaugeKeysMT; i++ {
		c.gaugeDescs[i.String()] = desc(i.String(), "gauge")
	}
	return c
}

func desc(key, kind string) *prometheus.Desc {
	name := "tskv_" + strings.NewReplacer(".", "_").Replace(key)
	return prometheus.NewDesc(name, key+" ("+kind+")", nil, nil)
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range c.counterDescs {
		ch <- d
	}
	for _, d := range c.gaugeDescs {
		ch <- d
	}
}

// Collect implements prometheus.Collector, folding a consistent snapshot of
// every ST and MT slot under the global fold mutex.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	foldMu.Lock()
	defer foldMu.Unlock()

	globalCountersST.ForEach(func(k CounterKeyST, v uint64) {
		ch <- prometheus.MustNewConstMetric(c.counterDescs[k.String()], prometheus.CounterValue, float64(v))
	})
	globalGaugesST.ForEach(func(k GaugeKeyST, v uint64) {
		ch <- prometheus.MustNewConstMetric(c.gaugeDescs[k.String()], prometheus.GaugeValue, float64(v))
	})
	globalCountersMT.ForEach(func(k CounterKeyMT, v uint64) {
		ch <- prometheus.MustNewConstMetric(c.counterDescs[k.String()], prometheus.CounterValue, float64(v))
	})
	globalGaugesMT.ForEach(func(k GaugeKeyMT, v uint64) {
		ch <- prometheus.MustNewConstMetric(c.gaugeDescs[k.String()], prometheus.GaugeValue, float64(v))
	})
}
