package workspace

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const idPrefix = "sess-"

// NewSessionID generates a session id of the form
// sess-<unix-millis>-<8 hex chars>. The embedded timestamp gives ids a
// total creation order; the random suffix breaks millisecond collisions.
func NewSessionID() string {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		// math-free fallback, still unique enough within one process
		return fmt.Sprintf("%s%d-%08x", idPrefix, time.Now().UnixMilli(), time.Now().UnixNano()&0xffffffff)
	}
	return fmt.Sprintf("%s%d-%s", idPrefix, time.Now().UnixMilli(), hex.EncodeToString(buf))
}

// IsSessionID reports whether a directory name follows the session-id
// naming convention.
func IsSessionID(name string) bool {
	_, err := SessionTime(name)
	return err == nil
}

// SessionTime extracts the creation timestamp embedded in a session id.
func SessionTime(id string) (time.Time, error) {
	rest, ok := strings.CutPrefix(id, idPrefix)
	if !ok {
		return time.Time{}, fmt.Errorf("not a session id: %s", id)
	}

	millisPart, suffix, ok := strings.Cut(rest, "-")
	if !ok || suffix == "" {
		return time.Time{}, fmt.Errorf("malformed session id: %s", id)
	}

	millis, err := strconv.ParseInt(millisPart, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("malformed session id timestamp: %s", id)
	}

	return time.UnixMilli(millis), nil
}
