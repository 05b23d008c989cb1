package fhir

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/chop-dbhi/smart-framingham/kv"
)

// CachedCodes wraps a Source so the medication value-set expansion is read
// from the server once per TTL. Every other lookup goes straight through.
type CachedCodes struct {
	Source
	store kv.Store
	key   string
	ttl   time.Duration
}

// NewCachedCodes caches under a key derived from the server base URL so
// different servers never share an expansion.
func NewCachedCodes(source Source, store kv.Store, baseURL string, ttl time.Duration) *CachedCodes {
	return &CachedCodes{
		Source: source,
		store:  store,
		key:    "valueset:" + baseURL,
		ttl:    ttl,
	}
}

func (c *CachedCodes) MedicationCodes(ctx context.Context) ([]string, error) {
	if cached, err := c.store.Get(ctx, c.key); err == nil {
		var codes []string
		if err := json.Unmarshal([]byte(cached), &codes); err == nil {
			return codes, nil
		}
	} else if !errors.Is(err, kv.ErrMiss) {
		// Store unavailable; read from the server uncached
		return c.Source.MedicationCodes(ctx)
	}

	codes, err := c.Source.MedicationCodes(ctx)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(codes); err == nil {
		_ = c.store.Set(ctx, c.key, string(data), c.ttl)
	}
	return codes, nil
}
