package types

import (
	"crypto/rand"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

const (
	UUID_PREFIX_FEATURE              = "feat"
	UUID_PREFIX_ENTITLEMENT          = "ent"
	UUID_PREFIX_CUSTOMER_ENTITLEMENT = "cus_ent"
	UUID_PREFIX_ROLLOVER             = "roll"
	UUID_PREFIX_REPLACEABLE          = "rep"
	UUID_PREFIX_EVENT                = "event"
	UUID_PREFIX_SETTING              = "setting"
	UUID_PREFIX_REQUEST              = "req"
)

// GenerateUUID returns a lowercase ULID, sortable by creation time.
func GenerateUUID() string {
	return strings.ToLower(ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String())
}

// GenerateUUIDWithPrefix returns prefix_<ulid>.
func GenerateUUIDWithPrefix(prefix string) string {
	if prefix == "" {
		return GenerateUUID()
	}
	return fmt.Sprintf("%s_%s", prefix, GenerateUUID())
}
