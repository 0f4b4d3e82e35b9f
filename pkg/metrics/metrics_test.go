package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestManagerCreation(t *testing.T) {
	Convey("Given a fresh registry", t, func() {
		registry := prometheus.NewRegistry()

		Convey("When a manager is created with custom options", func() {
			m := NewManager(
				WithNamespace("test"),
				WithSubsystem("unit"),
				WithHistogramBuckets([]float64{1, 10}),
				WithConstLabels(map[string]string{"env": "test"}),
				WithPrometheusRegistry(registry),
			)
			m.runs.WithLabelValues(OutcomePersisted).Inc()

			Convey("Then its collectors are registered under the namespace", func() {
				families, err := registry.Gather()
				So(err, ShouldBeNil)
				names := make([]string, 0, len(families))
				for _, f := range families {
					names = append(names, f.GetName())
				}
				So(names, ShouldContain, "test_unit_runs_total")
			})
		})

		Convey("When two managers share a registry", func() {
			NewManager(WithPrometheusRegistry(registry))

			Convey("Then the second registration panics", func() {
				So(func() { NewManager(WithPrometheusRegistry(registry)) }, ShouldPanic)
			})
		})
	})
}

func TestRecording(t *testing.T) {
	Convey("Given the global manager", t, func() {
		Convey("When a run is recorded", func() {
			before := testutil.ToFloat64(globalManager.runs.WithLabelValues(OutcomeAborted))
			RecordRun(OutcomeAborted, 12)

			Convey("Then the outcome counter moves", func() {
				So(testutil.ToFloat64(globalManager.runs.WithLabelValues(OutcomeAborted)), ShouldEqual, before+1)
			})
		})

		Convey("When bonuses are recorded", func() {
			before := testutil.ToFloat64(globalManager.bonusesAwarded.WithLabelValues("EVEN_PACE"))
			RecordBonus("EVEN_PACE")
			RecordBonus("EVEN_PACE")

			Convey("Then they are counted per type", func() {
				So(testutil.ToFloat64(globalManager.bonusesAwarded.WithLabelValues("EVEN_PACE")), ShouldEqual, before+2)
			})
		})

		Convey("When gauges are set", func() {
			UpdateQueueSize(7)
			UpdateQueueCapacity(64)
			UpdateLocksActive(3)
			UpdateWorkerActiveCount(4)
			UpdateRuleSetsPublished(2)

			Convey("Then they hold the last value", func() {
				So(testutil.ToFloat64(globalManager.queueSize), ShouldEqual, 7)
				So(testutil.ToFloat64(globalManager.queueCapacity), ShouldEqual, 64)
				So(testutil.ToFloat64(globalManager.locksActive), ShouldEqual, 3)
				So(testutil.ToFloat64(globalManager.workerActive), ShouldEqual, 4)
				So(testutil.ToFloat64(globalManager.ruleSetsPublished), ShouldEqual, 2)
			})
		})

		Convey("When the remaining helpers are called", func() {
			Convey("Then none of them panic", func() {
				So(func() {
					RecordStage("rank", 1)
					RecordScoredRows(10, 8)
					RecordLockWait(0.5)
					RecordNotifyFailure()
					RecordQueueEnqueue()
					RecordQueueDequeue()
					RecordQueueEnqueueError("queue_full")
					RecordWorkerProcessingLatency(3)
					RecordWorkerError()
					RecordHTTPRequest("/v1/rulesets", "GET", "200")
					RecordHTTPRequestDuration("/v1/rulesets", "GET", "200", 2)
					RecordErrorByComponent("orchestrator", "persist")
				}, ShouldNotPanic)
			})
		})

		Convey("Then the registry is exposed for the /metrics handler", func() {
			So(GetRegistry(), ShouldEqual, customRegistry)
		})
	})
}
