package telemetry

import (
	"context"
	"math/rand/v2"
	"sync"

	"github.com/shirou/gopsutil/v3/host"
)

// Reading is one sensor sample.
type Reading struct {
	Temperature float64
	Humidity    float64
}

// Sampler produces sensor readings.
type Sampler interface {
	Sample(ctx context.Context) (Reading, error)
}

// SensorReader lists host temperature sensors.
// host.SensorsTemperaturesWithContext satisfies it.
type SensorReader func(ctx context.Context) ([]host.TemperatureStat, error)

// HostSampler reads temperature from a host sensor when one is named and
// simulates the rest.
type HostSampler struct {
	sensorKey string
	sensors   SensorReader

	mu  sync.Mutex
	rnd *rand.Rand
}

// NewHostSampler creates a sampler. An empty sensorKey simulates the
// temperature too. rnd may be nil.
func NewHostSampler(sensorKey string, sensors SensorReader, rnd *rand.Rand) *HostSampler {
	if sensors == nil {
		sensors = host.SensorsTemperaturesWithContext
	}
	if rnd == nil {
		rnd = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &HostSampler{sensorKey: sensorKey, sensors: sensors, rnd: rnd}
}

// Sample implements Sampler.
func (s *HostSampler) Sample(ctx context.Context) (Reading, error) {
	r := Reading{
		Temperature: 24.0 + s.jitter(),
		Humidity:    50.0 + s.jitter(),
	}
	if s.sensorKey == "" {
		return r, nil
	}

	// gopsutil returns partial results alongside warnings.
	stats, err := s.sensors(ctx)
	for _, st := range stats {
		if st.SensorKey == s.sensorKey {
			r.Temperature = st.Temperature
			return r, nil
		}
	}
	if err != nil {
		return r, err
	}
	return r, nil
}

// jitter returns 0.0 to 9.9 in steps of 0.1.
func (s *HostSampler) jitter() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return float64(s.rnd.IntN(100)) / 10.0
}
