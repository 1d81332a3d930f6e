// Package services tracks and manages the long-running processes the setup
// pipeline launches: the web server, the background worker, the scheduler and
// the redis cache.
package services

import (
	"sort"
	"sync"
)

// Status is the lifecycle state of a managed service.
type Status string

const (
	StatusNotInstalled Status = "not_installed"
	StatusInstalled    Status = "installed"
	StatusRunning      Status = "running"
	StatusStopped      Status = "stopped"
	StatusError        Status = "error"
)

// Standard service names.
const (
	ServiceWeb       = "web"
	ServiceWorker    = "worker"
	ServiceScheduler = "scheduler"
	ServiceRedis     = "redis"
	ServiceFrontend  = "frontend"
	ServiceDatabase  = "database"
)

// ServiceInfo describes one managed service.
type ServiceInfo struct {
	Name         string `json:"name"`
	Status       Status `json:"status"`
	Version      string `json:"version,omitempty"`
	Port         int    `json:"port,omitempty"`
	PID          int    `json:"pid,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// Registry is the owned, mutex-guarded map of service state. It is passed by
// pointer to its consumers; nothing else writes service state.
type Registry struct {
	mu       sync.RWMutex
	services map[string]ServiceInfo
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{services: make(map[string]ServiceInfo)}
}

// Set stores or replaces a service record.
func (r *Registry) Set(info ServiceInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.services[info.Name] = info
}

// Get returns the record for a service name.
func (r *Registry) Get(name string) (ServiceInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	info, ok := r.services[name]
	return info, ok
}

// SetStatus updates only the status of an existing record, creating it when
// absent.
func (r *Registry) SetStatus(name string, status Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	info := r.services[name]
	info.Name = name
	info.Status = status
	r.services[name] = info
}

// SetError marks a service failed with a message.
func (r *Registry) SetError(name, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	info := r.services[name]
	info.Name = name
	info.Status = StatusError
	info.ErrorMessage = message
	r.services[name] = info
}

// All returns a snapshot of every record, sorted by name.
func (r *Registry) All() []ServiceInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	list := make([]ServiceInfo, 0, len(r.services))
	for _, info := range r.services {
		list = append(list, info)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	return list
}

// Running returns every record currently marked running.
func (r *Registry) Running() []ServiceInfo {
	all := r.All()
	running := make([]ServiceInfo, 0, len(all))
	for _, info := range all {
		if info.Status == StatusRunning {
			running = append(running, info)
		}
	}
	return running
}

// Remove deletes a service record.
func (r *Registry) Remove(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.services, name)
}
