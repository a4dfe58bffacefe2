package ils

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"circulation-workers/internal/common/config"
	apperrors "circulation-workers/internal/common/errors"
)

const ProtocolREST = "rest"

// Registry maps institution codes to connectors.
type Registry struct {
	mu         sync.RWMutex
	connectors map[string]Connector
}

func NewRegistry() *Registry {
	return &Registry{connectors: make(map[string]Connector)}
}

func (r *Registry) Register(institution string, c Connector) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connectors[strings.ToUpper(institution)] = c
}

// Get returns the connector for institution or UNKNOWN_INSTITUTION.
func (r *Registry) Get(institution string) (Connector, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.connectors[strings.ToUpper(institution)]
	if !ok {
		return nil, apperrors.NewUnknownInstitutionError(institution)
	}
	return c, nil
}

// Institutions lists registered codes in sorted order.
func (r *Registry) Institutions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	codes := make([]string, 0, len(r.connectors))
	for code := range r.connectors {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// BuildRegistry creates one connector per configured institution.
func BuildRegistry(cfg config.ILSConfig) (*Registry, error) {
	reg := NewRegistry()
	for code, inst := range cfg.Institutions {
		switch strings.ToLower(inst.Protocol) {
		case ProtocolREST, "":
			reg.Register(code, NewRESTConnector(code, inst, cfg.ConnectorTimeout(code)))
		default:
			return nil, fmt.Errorf("institution %s: unknown ILS protocol %q", code, inst.Protocol)
		}
	}
	return reg, nil
}
