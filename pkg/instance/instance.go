// Package instance names the running process for logs and lock ownership.
package instance

import (
	"cmp"
	"os"
)

// GetID prefers KDS_INSTANCE_ID, then the container hostname.
func GetID() string {
	return cmp.Or(os.Getenv("KDS_INSTANCE_ID"), os.Getenv("HOSTNAME"), "local")
}
