package common

import "time"

// AuthorizationHeaderName carries the bearer access token on API requests.
const AuthorizationHeaderName = "Authorization"

// Resource types addressed by the sync API.
const (
	ResourcePNR         = "pnr"
	ResourcePreferences = "preferences"
)

// DefaultPNRTTL is how long a tracked PNR snapshot stays valid locally.
const DefaultPNRTTL = 24 * time.Hour
