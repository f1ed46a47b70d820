package domain

// Product is an entry of the product catalog.
type Product struct {
	ID               string   `yaml:"id" json:"id"`
	Name             string   `yaml:"name" json:"name"`
	IdentifyingTerms []string `yaml:"terms" json:"identifying_terms"`
}
