package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	GenerationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "magic_generations_total",
		Help: "Generation requests partitioned by content kind and outcome.",
	}, []string{"kind", "outcome"})

	EnergyDebitedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "magic_energy_debited_total",
		Help: "Total magic energy debited for successful generations.",
	})

	EnergyCreditedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "magic_energy_credited_total",
		Help: "Total magic energy credited through recharges and promos.",
	})
)
