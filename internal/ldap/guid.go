package ldap

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// GUIDHandler provides GUID operations for Active Directory.
// Active Directory stores GUIDs in a mixed-endian format that differs from standard UUID byte ordering.
type GUIDHandler struct{}

// NewGUIDHandler creates a new GUID handler instance.
func NewGUIDHandler() *GUIDHandler {
	return &GUIDHandler{}
}

var (
	// Hyphenated GUID format: 12345678-1234-1234-1234-123456789012
	hyphenatedGUIDRegex = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

	// Compact GUID format, as produced by the hex attribute coercion
	compactGUIDRegex = regexp.MustCompile(`^[0-9a-fA-F]{32}$`)
)

// GUIDBytesLength is the size of an objectGUID value.
const GUIDBytesLength = 16

// IsValidGUID checks if a string is a valid GUID format (hyphenated or compact).
func (g *GUIDHandler) IsValidGUID(guidString string) bool {
	return hyphenatedGUIDRegex.MatchString(guidString) || compactGUIDRegex.MatchString(guidString)
}

// GUIDBytesToUUID converts Active Directory GUID bytes to a UUID.
//
// Active Directory uses mixed-endian encoding:
//   - First 4 bytes (Data1): little-endian
//   - Next 2 bytes (Data2): little-endian
//   - Next 2 bytes (Data3): little-endian
//   - Last 8 bytes (Data4): big-endian
func (g *GUIDHandler) GUIDBytesToUUID(guidBytes []byte) (uuid.UUID, error) {
	if len(guidBytes) != GUIDBytesLength {
		return uuid.Nil, fmt.Errorf("invalid GUID byte length: expected %d, got %d", GUIDBytesLength, len(guidBytes))
	}

	var u uuid.UUID

	u[0], u[1], u[2], u[3] = guidBytes[3], guidBytes[2], guidBytes[1], guidBytes[0]
	u[4], u[5] = guidBytes[5], guidBytes[4]
	u[6], u[7] = guidBytes[7], guidBytes[6]
	copy(u[8:], guidBytes[8:])

	return u, nil
}

// GUIDBytesToString converts Active Directory GUID bytes to standard string format.
func (g *GUIDHandler) GUIDBytesToString(guidBytes []byte) (string, error) {
	u, err := g.GUIDBytesToUUID(guidBytes)
	if err != nil {
		return "", err
	}
	return u.String(), nil
}

// NormalizeGUID converts a GUID string to lower-case hyphenated format.
func (g *GUIDHandler) NormalizeGUID(guidString string) (string, error) {
	guidString = strings.TrimSpace(guidString)
	if guidString == "" {
		return "", fmt.Errorf("GUID string cannot be empty")
	}

	if !g.IsValidGUID(guidString) {
		return "", fmt.Errorf("invalid GUID format: %s", guidString)
	}

	u, err := uuid.Parse(guidString)
	if err != nil {
		return "", fmt.Errorf("invalid GUID format: %w", err)
	}
	return u.String(), nil
}
