package xid

import (
	"fmt"

	"github.com/google/uuid"
)

// New returns a random identifier such as "sale-1b9d6bcd-bbfd-4b2d-9b5d-ab8dfbbd4bed".
func New(prefix string) string {
	if prefix == "" {
		return uuid.NewString()
	}
	return fmt.Sprintf("%s-%s", prefix, uuid.NewString())
}
