package instance

import (
	"os"
	"strings"
)

// ID names the running replica in logs. PRINTLAB_INSTANCE_ID wins over the
// container hostname.
func ID() string {
	for _, key := range []string{"PRINTLAB_INSTANCE_ID", "HOSTNAME"} {
		if id := strings.TrimSpace(os.Getenv(key)); id != "" {
			return id
		}
	}
	return "local"
}
