package cache

import "time"

// TTLPolicy assigns a time-to-live per query shape. Point lookups tolerate
// longer staleness than volatile work-queue aggregates; reference data is
// close to static.
type TTLPolicy struct {
	// Entity applies to point lookups by identity.
	Entity time.Duration

	// Query applies to general filtered listings.
	Query time.Duration

	// Volatile applies to aggregates that churn constantly, such as
	// "needs validation" and "needs price update" queues.
	Volatile time.Duration

	// Reference applies to rarely-changing reference data.
	Reference time.Duration
}

// DefaultTTLPolicy returns the policy used when none is configured.
func DefaultTTLPolicy() TTLPolicy {
	return TTLPolicy{
		Entity:    30 * time.Minute,
		Query:     5 * time.Minute,
		Volatile:  30 * time.Second,
		Reference: 12 * time.Hour,
	}
}

// Validate rejects non-positive durations.
func (p TTLPolicy) Validate() error {
	check := map[string]time.Duration{
		"Entity":    p.Entity,
		"Query":     p.Query,
		"Volatile":  p.Volatile,
		"Reference": p.Reference,
	}
	for field, d := range check {
		if d <= 0 {
			return &PolicyError{Field: field, Message: "must be greater than 0"}
		}
	}
	return nil
}

// PolicyError reports an invalid TTL policy value.
type PolicyError struct {
	Field   string
	Message string
}

func (e *PolicyError) Error() string {
	return "ttl policy error in field " + e.Field + ": " + e.Message
}
