package quality

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// IssuesTotal counts QA issues.
	IssuesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gobimport_qa_issues_total",
		Help: "QA issues reported during imports.",
	}, []string{"catalogue", "entity", "check", "severity"})

	// RecordsTotal counts entities written by imports.
	RecordsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gobimport_records_total",
		Help: "Entities written by imports.",
	}, []string{"catalogue", "entity"})

	// ImportsTotal counts finished imports by result (ok, failed).
	ImportsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gobimport_imports_total",
		Help: "Finished imports by result.",
	}, []string{"catalogue", "entity", "result"})
)
