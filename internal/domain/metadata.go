package domain

// TermsOfServiceKey is the metadata name holding a service's ToS URL.
const TermsOfServiceKey = "terms-of-service"

// MetadataEntry is one (service, name) -> value record.
type MetadataEntry struct {
	Service string
	Name    string
	Value   string
}

// ServicePattern routes a service name to its URL template.
type ServicePattern struct {
	Service string
	Pattern string
}
