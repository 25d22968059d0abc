package deps

import (
	"time"

	"github.com/MrSnakeDoc/nodekeeper/internal/logger"
	"github.com/MrSnakeDoc/nodekeeper/internal/nodeassign"
	"github.com/MrSnakeDoc/nodekeeper/internal/scheduler"
)

type Deps struct {
	Logger          logger.Logger
	StartTime       time.Time
	Version         string
	Commit          string
	BuildDate       string
	GoVersion       string
	TimeNow         func() time.Time            // for testing, defaults to time.Now
	AllowedHosts    []string                    // Host headers allowed to access the server
	AllowedCIDRS    []string                    // IPs allowed to access admin and health endpoints
	TrustProxy      bool                        // true if running behind a trusted reverse proxy (e.g., cloudflared)
	Nodes           *nodeassign.Service         // node assignment facade over the selected backend
	Registry        *scheduler.RegistryReloader // nil when no registry file is configured
	ReloadTrigger   chan struct{}               // Channel to trigger manual registry reload (nil without registry)
	RateLimitBurst  int                         // allocation requests per client IP before throttling
	RateLimitPerMin int                         // allocation tokens refilled per client IP per minute
}
