/**
 * @description
 * Catalog lookups consumed by the orchestrator: providers and countries.
 * Catalog CRUD lives outside this service; only the read shapes needed for
 * request validation are modeled here.
 */
package domain

import "github.com/google/uuid"

// Provider is a third-party service whose accounts are pooled.
type Provider struct {
	ID                 uuid.UUID         `json:"id"`
	Name               string            `json:"name"`
	SupportedCountries []ProviderCountry `json:"supported_countries"`
}

// ProviderCountry is one entry of a provider's supported-country set.
type ProviderCountry struct {
	ID       uuid.UUID `json:"id"`
	IsActive bool      `json:"is_active"`
}

// SupportsCountry reports whether the provider's supported-country set has an
// active entry for the given country.
func (p *Provider) SupportsCountry(countryID uuid.UUID) bool {
	for _, c := range p.SupportedCountries {
		if c.ID == countryID {
			return c.IsActive
		}
	}
	return false
}

// Country is a catalog country row.
type Country struct {
	ID       uuid.UUID `json:"id"`
	Code     string    `json:"code"`
	Name     string    `json:"name"`
	IsActive bool      `json:"is_active"`
}
