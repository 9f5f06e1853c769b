package instance

import "os"

// GetID identifies the running process in logs and lock ownership. It checks
// TRUSTLEND_INSTANCE_ID, then the platform DYNO name, then the hostname.
func GetID() string {
	for _, key := range []string{"TRUSTLEND_INSTANCE_ID", "DYNO"} {
		if id := os.Getenv(key); id != "" {
			return id
		}
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "local"
}
