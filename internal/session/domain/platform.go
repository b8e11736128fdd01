package domain

// PlatformType classifies where a login came from. Drives the is_mobile
// stamp on sessions and the pft claim on derived tokens.
type PlatformType string

const (
	PlatformMobile  PlatformType = "mobile"
	PlatformDesktop PlatformType = "desktop"
	PlatformWeb     PlatformType = "web"
	PlatformOther   PlatformType = "other"
)

// Platform describes the client platform a session belongs to. SubID is the
// audience value stamped into tokens issued for this platform.
type Platform struct {
	ID    string
	SubID string
	Type  PlatformType
}

// IsMobile reports whether this platform's classification is mobile.
func (p Platform) IsMobile() bool { return p.Type == PlatformMobile }

// ParsePlatformType maps arbitrary input onto a known classification,
// defaulting to other.
func ParsePlatformType(s string) PlatformType {
	switch PlatformType(s) {
	case PlatformMobile, PlatformDesktop, PlatformWeb:
		return PlatformType(s)
	default:
		return PlatformOther
	}
}
