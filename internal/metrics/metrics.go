package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	UsersCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "referral_users_created_total",
		Help: "Users created, labelled by whether a referral code was used",
	}, []string{"referred"})

	PropagationFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "referral_propagation_failures_total",
		Help: "Signups whose ancestor propagation returned an error after the user was stored",
	})

	PropagationDepth = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "referral_propagation_depth",
		Help:    "Number of referral snapshots written per signup",
		Buckets: []float64{1, 2, 3, 5, 8, 13, 21, 50},
	})

	TreeSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "referral_tree_size",
		Help:    "Nodes in the referrer tree rebuilt at signup",
		Buckets: []float64{1, 10, 100, 1000, 10000, 100000},
	})

	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "referral_cache_lookups_total",
		Help: "Record cache lookups by result",
	}, []string{"result"})
)
