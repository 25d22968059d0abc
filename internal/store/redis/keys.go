package redis

import "strconv"

// Keys holding two caller supplied parts (service and node, service and email)
// encode the service as <len>:<service> so that a ':' inside either part can
// not shift the boundary between them.

const (
	// KeyPrefixNode is the prefix for node hashes (nk:node:<len>:<service>:<node>)
	KeyPrefixNode = "nk:node:"
	// KeyPrefixNodes is the prefix for the per-service set of node addresses
	KeyPrefixNodes = "nk:nodes:"
	// KeyPrefixUser is the prefix for assignment hashes (nk:user:<len>:<service>:<email>)
	KeyPrefixUser = "nk:user:"
	// KeyPrefixUsers is the prefix for the per-service set of assigned emails
	KeyPrefixUsers = "nk:users:"
	// KeyPrefixMetadata is the prefix for per-service metadata hashes
	KeyPrefixMetadata = "nk:metadata:"
	// KeyPrefixPatterns is the prefix for per-service pattern sets
	KeyPrefixPatterns = "nk:patterns:"
	// KeyAllServices is the set of services owning at least one pattern
	KeyAllServices = "nk:services:all"
	// KeyUIDCounter produces user ids
	KeyUIDCounter = "nk:uid"
)

// serviceSegment length-prefixes a service name.
func serviceSegment(service string) string {
	return strconv.Itoa(len(service)) + ":" + service + ":"
}

// NodeKey returns the Redis key for a node
func NodeKey(service, node string) string {
	return KeyPrefixNode + serviceSegment(service) + node
}

// NodesKey returns the set of node addresses registered for a service
func NodesKey(service string) string {
	return KeyPrefixNodes + service
}

// UserKeyPrefix returns the assignment key prefix for a service
func UserKeyPrefix(service string) string {
	return KeyPrefixUser + serviceSegment(service)
}

// UserKey returns the Redis key for an (email, service) assignment
func UserKey(email, service string) string {
	return UserKeyPrefix(service) + email
}

// UsersKey returns the set of emails assigned within a service
func UsersKey(service string) string {
	return KeyPrefixUsers + service
}

// MetadataKey returns the metadata hash of a service
func MetadataKey(service string) string {
	return KeyPrefixMetadata + service
}

// PatternsKey returns the pattern set of a service
func PatternsKey(service string) string {
	return KeyPrefixPatterns + service
}

// AllServicesKey returns the key for the set of all services with patterns
func AllServicesKey() string {
	return KeyAllServices
}
