package domain

import "strings"

// CatalogEntry is a named option configured for a clinic (treatment or status).
type CatalogEntry struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Catalog holds the clinic's known treatments and statuses used to resolve
// free-text CSV values into API identifiers.
type Catalog struct {
	Treatments []CatalogEntry `json:"treatments"`
	Statuses   []CatalogEntry `json:"statuses"`
}

// FindTreatment matches a treatment by name, ignoring case and surrounding space.
func (c Catalog) FindTreatment(name string) (CatalogEntry, bool) {
	return findEntry(c.Treatments, name)
}

// FindStatus matches a status by name, ignoring case and surrounding space.
func (c Catalog) FindStatus(name string) (CatalogEntry, bool) {
	return findEntry(c.Statuses, name)
}

func findEntry(entries []CatalogEntry, name string) (CatalogEntry, bool) {
	needle := strings.TrimSpace(name)
	if needle == "" {
		return CatalogEntry{}, false
	}
	for _, entry := range entries {
		if strings.EqualFold(strings.TrimSpace(entry.Name), needle) {
			return entry, true
		}
	}
	return CatalogEntry{}, false
}
