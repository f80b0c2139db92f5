package application

import (
	"fmt"
	"sync"

	"whalefall/domain/contracts"
	"whalefall/domain/dbaccount"
)

// CollectorRegistry manages the vendor-pluggable collectors. Each deployment
// registers one collector per database engine it manages; the orchestrator
// looks them up by vendor at sync time.
type CollectorRegistry struct {
	collectors map[dbaccount.DbType]contracts.Collector
	mutex      sync.RWMutex
}

// NewCollectorRegistry creates a new collector registry.
func NewCollectorRegistry() *CollectorRegistry {
	return &CollectorRegistry{
		collectors: make(map[dbaccount.DbType]contracts.Collector),
	}
}

// RegisterCollector registers a collector for its vendor. Registering the
// same vendor twice replaces the previous collector.
func (r *CollectorRegistry) RegisterCollector(collector contracts.Collector) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.collectors[collector.DbType()] = collector
}

// GetCollector retrieves the collector for a vendor.
// Returns an error if no collector is registered for the given vendor.
func (r *CollectorRegistry) GetCollector(dbType dbaccount.DbType) (contracts.Collector, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	collector, exists := r.collectors[dbType]
	if !exists {
		return nil, fmt.Errorf("%w: %s", contracts.ErrNoCollector, dbType)
	}

	return collector, nil
}

// SupportedDbTypes returns all vendors that have registered collectors.
func (r *CollectorRegistry) SupportedDbTypes() []dbaccount.DbType {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	types := make([]dbaccount.DbType, 0, len(r.collectors))
	for dbType := range r.collectors {
		types = append(types, dbType)
	}

	return types
}

// IsSupported checks if a vendor has a registered collector.
func (r *CollectorRegistry) IsSupported(dbType dbaccount.DbType) bool {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	_, exists := r.collectors[dbType]
	return exists
}
