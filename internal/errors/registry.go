package errors

import "sort"

// ErrorTemplate defines a registered error type.
type ErrorTemplate struct {
	Category Category
	Message  string
	Detail   string
	DocURL   string
}

const docBase = "https://reactor.vango.dev/docs/errors/"

var registry = map[string]ErrorTemplate{
	// Runtime (R001-R019)

	"R001": {
		Category: CategoryRuntime,
		Message:  "Signing key not set",
		Detail:   "Component state is signed so that clients cannot forge it. Set signing.key in the config file or the REACTOR_SIGNING_KEY environment variable.",
	},
	"R002": {
		Category: CategoryRuntime,
		Message:  "Signing key too short",
		Detail:   "The signing key must be at least 32 bytes.",
	},
	"R003": {
		Category: CategoryRuntime,
		Message:  "Database unavailable",
		Detail:   "The todo database could not be opened or migrated.",
	},
	"R004": {
		Category: CategoryRuntime,
		Message:  "Listen failed",
		Detail:   "The HTTP server could not bind its address. Another process may be using the port.",
	},
	"R005": {
		Category: CategoryRuntime,
		Message:  "Template error",
		Detail:   "The component templates could not be parsed.",
	},

	// Config (R100-R139)

	"R100": {
		Category: CategoryConfig,
		Message:  "Config file not found",
		Detail:   "The config file given on the command line does not exist.",
	},
	"R101": {
		Category: CategoryConfig,
		Message:  "Invalid config file",
		Detail:   "The config file could not be parsed as YAML or JSON.",
	},
	"R102": {
		Category: CategoryConfig,
		Message:  "Invalid address",
		Detail:   "server.address must be a host:port pair such as :8080.",
	},
	"R103": {
		Category: CategoryConfig,
		Message:  "Invalid websocket path",
		Detail:   "server.websocket_path must start with a slash.",
	},
	"R104": {
		Category: CategoryConfig,
		Message:  "Invalid duration",
		Detail:   "Durations are written as Go duration strings such as 30s or 1m30s.",
	},
	"R105": {
		Category: CategoryConfig,
		Message:  "Invalid limit",
		Detail:   "Queue sizes, message sizes and session limits must not be negative.",
	},
	"R106": {
		Category: CategoryConfig,
		Message:  "Unknown signing algorithm",
		Detail:   "signing.algorithm must be hmac-sha256 or blake3.",
	},
	"R107": {
		Category: CategoryConfig,
		Message:  "Heartbeat too slow",
		Detail:   "session.heartbeat_interval must be shorter than session.read_timeout, otherwise idle connections time out between pings.",
	},
	"R108": {
		Category: CategoryConfig,
		Message:  "Invalid log level",
		Detail:   "log.level must be debug, info, warn or error.",
	},

	// CLI (R140-R159)

	"R140": {
		Category: CategoryCLI,
		Message:  "Invalid flag",
		Detail:   "A command line flag has an invalid value.",
	},
}

func init() {
	for code, t := range registry {
		if t.DocURL == "" {
			t.DocURL = docBase + code
			registry[code] = t
		}
	}
}

// GetAllCodes returns all registered error codes, sorted.
func GetAllCodes() []string {
	codes := make([]string, 0, len(registry))
	for code := range registry {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// GetTemplate returns the template for an error code.
func GetTemplate(code string) (ErrorTemplate, bool) {
	t, ok := registry[code]
	return t, ok
}
