package timeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	resultAdmitted  = "admitted"
	resultRejected  = "rejected"
	resultDuplicate = "duplicate"
	resultRemoved   = "removed"
)

var (
	admissionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reraw_timeline_admissions_total",
		Help: "Total statuses offered to a timeline by result",
	}, []string{"timeline", "result"})

	removalsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reraw_timeline_removals_total",
		Help: "Total statuses removed by a removal event",
	}, []string{"timeline"})

	trimPassesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reraw_timeline_trim_passes_total",
		Help: "Total trim passes that removed at least one status",
	}, []string{"timeline"})

	trimmedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reraw_timeline_trimmed_statuses_total",
		Help: "Total statuses removed by trimming",
	}, []string{"timeline"})

	rebuildsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reraw_timeline_rebuilds_total",
		Help: "Total reset and rebuild directives",
	}, []string{"timeline"})

	statusesGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "reraw_timeline_statuses",
		Help: "Statuses currently held by a timeline",
	}, []string{"timeline"})
)
