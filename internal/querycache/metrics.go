package querycache

import "github.com/prometheus/client_golang/prometheus"

type metrics struct {
	hits          prometheus.Counter
	misses        prometheus.Counter
	shared        prometheus.Counter
	invalidations prometheus.Counter
	evictions     prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) (*metrics, error) {
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "notehub",
			Subsystem: "querycache",
			Name:      name,
			Help:      help,
		})
	}
	m := &metrics{
		hits:          counter("hits_total", "Fetches answered from fresh cache entries."),
		misses:        counter("misses_total", "Fetches that ran the query function."),
		shared:        counter("shared_total", "Fetches that shared an in-flight query."),
		invalidations: counter("invalidations_total", "Entries marked stale by Invalidate."),
		evictions:     counter("evictions_total", "Entries removed by garbage collection."),
	}
	if reg == nil {
		return m, nil
	}
	for _, c := range []prometheus.Collector{m.hits, m.misses, m.shared, m.invalidations, m.evictions} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}
