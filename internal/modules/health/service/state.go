package service

import (
	"sync"
	"time"
)

// State — агрегированное состояние процесса для health-ручек и /status.
type State struct {
	mu          sync.RWMutex
	started     time.Time
	wsConnected bool
	modelFitted bool
	lastTick    time.Time
}

func NewState() *State {
	return &State{started: time.Now()}
}

func (s *State) SetWSConnected(v bool) {
	s.mu.Lock()
	s.wsConnected = v
	s.mu.Unlock()
}

func (s *State) SetModelFitted() {
	s.mu.Lock()
	s.modelFitted = true
	s.mu.Unlock()
}

func (s *State) TouchTick() {
	s.mu.Lock()
	s.lastTick = time.Now()
	s.mu.Unlock()
}

// Ready: фид подключён и модель хотя бы раз подогнана.
func (s *State) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.wsConnected && s.modelFitted
}

func (s *State) WSConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.wsConnected
}

func (s *State) ModelFitted() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.modelFitted
}

func (s *State) LastTick() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastTick
}

func (s *State) Uptime() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return time.Since(s.started)
}
