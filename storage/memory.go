package storage

import (
	"sync"

	"github.com/vbl-data/punctuality/model"
)

// MemoryStorage is an in-memory Storage implementation. Mainly used
// for testing.
type MemoryStorage struct {
	mutex  sync.Mutex
	events []*model.StopEvent
	config map[string]string
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		config: map[string]string{},
	}
}

func (s *MemoryStorage) StopEvents(filter EventFilter) ([]*model.StopEvent, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	var events []*model.StopEvent
	for _, e := range s.events {
		if filter.DateFrom != "" && e.Date < filter.DateFrom {
			continue
		}
		if filter.DateTo != "" && e.Date > filter.DateTo {
			continue
		}
		if filter.Line != "" && e.LineName != filter.Line {
			continue
		}
		events = append(events, e)
	}

	return events, nil
}

func (s *MemoryStorage) WriteStopEvents(events []*model.StopEvent) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.events = append(s.events, events...)
	return nil
}

func (s *MemoryStorage) DateRange() (string, string, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	var min, max string
	for _, e := range s.events {
		if min == "" || e.Date < min {
			min = e.Date
		}
		if max == "" || e.Date > max {
			max = e.Date
		}
	}

	return min, max, nil
}

func (s *MemoryStorage) GetConfig() (map[string]string, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	config := map[string]string{}
	for key, value := range s.config {
		config[key] = value
	}

	return config, nil
}

func (s *MemoryStorage) SetConfig(values map[string]string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	for key, value := range values {
		s.config[key] = value
	}

	return nil
}

func (s *MemoryStorage) Close() error {
	return nil
}
