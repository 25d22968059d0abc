package registry

import "time"

// File is the top-level structure of the registry YAML file.
//
//	services:
//	  sync:
//	    terms_of_service: https://example.com/tos
//	    patterns: ["{node}/1.1/{uid}"]
//	    nodes:
//	      - node: https://phx12.example.com
//	        capacity: 100
type File struct {
	Services map[string]ServiceProps `yaml:"services"`
}

// ServiceProps describes one service of the registry file
type ServiceProps struct {
	TermsOfService string      `yaml:"terms_of_service,omitempty"`
	Patterns       []string    `yaml:"patterns,omitempty"`
	Nodes          []NodeProps `yaml:"nodes,omitempty"`
}

// NodeProps contains the reported state of a node
type NodeProps struct {
	Node      string     `yaml:"node"`
	Capacity  int        `yaml:"capacity"`
	Available *int       `yaml:"available,omitempty"` // defaults to capacity
	Downed    bool       `yaml:"downed,omitempty"`
	Backoff   *time.Time `yaml:"backoff,omitempty"`
}
