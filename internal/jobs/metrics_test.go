package jobs

import (
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestNewMetrics(t *testing.T) {
	m := NewMetrics()
	if m == nil {
		t.Fatal("NewMetrics() returned nil")
	}

	collectors := m.Collectors()
	if len(collectors) != 3 {
		t.Errorf("expected 3 collectors, got %d", len(collectors))
	}
}

func TestMetrics_Register(t *testing.T) {
	t.Run("successful registration", func(t *testing.T) {
		m := NewMetrics()
		reg := prometheus.NewRegistry()

		if err := m.Register(reg); err != nil {
			t.Errorf("Register() returned error: %v", err)
		}

		m.IncJobsTotal(JobTypeMirrorReplication, StatusSuccess)
		m.ObserveJobDuration(JobTypeMirrorReplication, 1.0)
		m.IncJobErrors(JobTypeMirrorReplication, "test_error")

		families, err := reg.Gather()
		if err != nil {
			t.Errorf("Gather() returned error: %v", err)
		}

		expectedNames := map[string]bool{
			MetricBackgroundJobsTotal:      false,
			MetricBackgroundJobsDuration:   false,
			MetricBackgroundJobErrorsTotal: false,
		}

		for _, family := range families {
			if _, ok := expectedNames[family.GetName()]; ok {
				expectedNames[family.GetName()] = true
			}
		}

		for name, found := range expectedNames {
			if !found {
				t.Errorf("metric %s not found in gathered metrics", name)
			}
		}
	})

	t.Run("duplicate registration fails", func(t *testing.T) {
		m1 := NewMetrics()
		m2 := NewMetrics()
		reg := prometheus.NewRegistry()

		if err := m1.Register(reg); err != nil {
			t.Fatalf("first Register() returned error: %v", err)
		}

		if err := m2.Register(reg); err == nil {
			t.Error("second Register() should have returned an error")
		}
	})
}

func getCounterVecValue(vec *prometheus.CounterVec, labels ...string) float64 {
	metric, err := vec.GetMetricWithLabelValues(labels...)
	if err != nil {
		return -1
	}
	metricInterface, ok := metric.(prometheus.Metric)
	if !ok {
		return -1
	}
	var m dto.Metric
	if err := metricInterface.Write(&m); err != nil {
		return -1
	}
	return m.GetCounter().GetValue()
}

func getHistogramVecSampleCount(vec *prometheus.HistogramVec, labels ...string) uint64 {
	metric, err := vec.GetMetricWithLabelValues(labels...)
	if err != nil {
		return 0
	}
	metricInterface, ok := metric.(prometheus.Metric)
	if !ok {
		return 0
	}
	var m dto.Metric
	if err := metricInterface.Write(&m); err != nil {
		return 0
	}
	return m.GetHistogram().GetSampleCount()
}

func TestMetrics_IncJobsTotal(t *testing.T) {
	m := NewMetrics()

	cases := []struct {
		jobType string
		status  string
		n       int
	}{
		{JobTypeMirrorReplication, StatusSuccess, 10},
		{JobTypeMirrorReplication, StatusFailure, 2},
		{JobTypeStoreProbe, StatusSuccess, 5},
		{JobTypeStoreProbe, StatusFailure, 1},
	}

	for _, tc := range cases {
		for i := 0; i < tc.n; i++ {
			m.IncJobsTotal(tc.jobType, tc.status)
		}
	}

	for _, tc := range cases {
		got := getCounterVecValue(m.jobsTotal, tc.jobType, tc.status)
		if got != float64(tc.n) {
			t.Errorf("jobsTotal[%s,%s] = %v, want %d", tc.jobType, tc.status, got, tc.n)
		}
	}
}

func TestMetrics_ObserveJobDuration(t *testing.T) {
	m := NewMetrics()

	durations := []float64{0.1, 0.5, 2.0, 7.5}
	for _, d := range durations {
		m.ObserveJobDuration(JobTypeMirrorReplication, d)
	}

	count := getHistogramVecSampleCount(m.jobsDuration, JobTypeMirrorReplication)
	if count != uint64(len(durations)) {
		t.Errorf("sample count = %d, want %d", count, len(durations))
	}
}

func TestMetrics_IncJobErrors(t *testing.T) {
	m := NewMetrics()

	cases := []struct {
		jobType   string
		errorType string
		n         int
	}{
		{JobTypeMirrorReplication, "timeout", 5},
		{JobTypeMirrorReplication, "parked", 3},
		{JobTypeStoreProbe, "probe_failed", 2},
	}

	for _, tc := range cases {
		for i := 0; i < tc.n; i++ {
			m.IncJobErrors(tc.jobType, tc.errorType)
		}
	}

	for _, tc := range cases {
		got := getCounterVecValue(m.jobErrors, tc.jobType, tc.errorType)
		if got != float64(tc.n) {
			t.Errorf("jobErrors[%s,%s] = %v, want %d", tc.jobType, tc.errorType, got, tc.n)
		}
	}
}

func TestMetrics_ConcurrentAccess(t *testing.T) {
	m := NewMetrics()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				m.IncJobsTotal(JobTypeMirrorReplication, StatusSuccess)
				m.ObserveJobDuration(JobTypeStoreProbe, 0.2)
				m.IncJobErrors(JobTypeMirrorReplication, "timeout")
			}
		}()
	}
	wg.Wait()

	got := getCounterVecValue(m.jobsTotal, JobTypeMirrorReplication, StatusSuccess)
	if got != 1000 {
		t.Errorf("jobsTotal after concurrent increments = %v, want 1000", got)
	}
}
