package service

import "time"

// Metrics helpers; the collector is optional so unit tests can run a
// bare service without touching the default Prometheus registry.

func (s *Service) observeExecute(start time.Time) {
	if s.metrics != nil {
		s.metrics.ObserveExecute(start)
	}
}

func (s *Service) observeQuery(start time.Time) {
	if s.metrics != nil {
		s.metrics.ObserveQuery(start)
	}
}

func (s *Service) incCreated() {
	if s.metrics != nil {
		s.metrics.InstancesCreated.Inc()
	}
}

func (s *Service) incRegistered() {
	if s.metrics != nil {
		s.metrics.InstancesRegistered.Inc()
		s.metrics.ActiveInstances.Inc()
	}
}

func (s *Service) incRejected() {
	if s.metrics != nil {
		s.metrics.RegistrationsRejected.Inc()
	}
}

func (s *Service) incDeactivated() {
	if s.metrics != nil {
		s.metrics.InstancesDeactivated.Inc()
		s.metrics.ActiveInstances.Dec()
	}
}

func (s *Service) incKeyWritten() {
	if s.metrics != nil {
		s.metrics.ViewingKeysWritten.Inc()
	}
}
