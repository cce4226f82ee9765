package model

import "time"

// Cluster is a named group of keyword-related prompts under one site.
// Once variants have been generated for it, the seed prompt and keywords are
// treated as immutable; only metadata (name, description) may be edited.
type Cluster struct {
	ID          string    `json:"id"`
	SiteID      string    `json:"site_id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	SeedPrompt  string    `json:"seed_prompt"`
	Keywords    []string  `json:"keywords,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Variant is one generated phrasing of a cluster's seed prompt. Variants are
// created in batches and never mutated; regeneration produces a new batch.
type Variant struct {
	ID        string         `json:"id"`
	ClusterID string         `json:"cluster_id"`
	BatchID   string         `json:"batch_id"`
	Text      string         `json:"text"`
	Strategy  string         `json:"strategy"`
	Params    map[string]any `json:"params,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Site identifies a tracked brand property. Site records live in the external
// tenant store; this is the read-only projection the core needs.
type Site struct {
	ID           string   `json:"id"`
	Domain       string   `json:"domain"`
	BrandName    string   `json:"brand_name"`
	BrandDomains []string `json:"brand_domains,omitempty"`
}

// OwnsDomain reports whether the given normalized domain is the site's own
// domain or one of its brand-controlled properties.
func (s Site) OwnsDomain(domain string) bool {
	if domain == "" {
		return false
	}
	if domain == s.Domain {
		return true
	}
	for _, d := range s.BrandDomains {
		if domain == d {
			return true
		}
	}
	return false
}
