package ldap

import (
	"fmt"
	"strings"

	"github.com/bwmarrin/go-objectsid"
)

// SIDHandler provides SID operations for Active Directory.
// Active Directory stores SIDs in binary format that needs to be converted to human-readable strings.
type SIDHandler struct{}

// NewSIDHandler creates a new SID handler instance.
func NewSIDHandler() *SIDHandler {
	return &SIDHandler{}
}

// minSIDLength is revision, sub-authority count and the 6-byte identifier authority.
const minSIDLength = 8

// ConvertBinarySIDToString converts a binary SID to its S-1-5-21-... representation.
func (s *SIDHandler) ConvertBinarySIDToString(binarySID []byte) (string, error) {
	if len(binarySID) < minSIDLength {
		return "", fmt.Errorf("binary SID too short: %d bytes", len(binarySID))
	}

	subAuthorities := int(binarySID[1])
	if want := minSIDLength + 4*subAuthorities; len(binarySID) < want {
		return "", fmt.Errorf("binary SID truncated: expected %d bytes, got %d", want, len(binarySID))
	}

	sid := objectsid.Decode(binarySID)
	return sid.String(), nil
}

// ConvertBinarySIDToStringSafe converts a binary SID to string, returning empty string if conversion fails.
func (s *SIDHandler) ConvertBinarySIDToStringSafe(binarySID []byte) string {
	sidString, err := s.ConvertBinarySIDToString(binarySID)
	if err != nil {
		return ""
	}
	return sidString
}

// ValidateSIDString validates that a string is a properly formatted SID.
func (s *SIDHandler) ValidateSIDString(sidString string) error {
	if len(sidString) < 5 || !strings.HasPrefix(sidString, "S-") {
		return fmt.Errorf("invalid SID format: must start with 'S-'")
	}
	return nil
}
