package mapping

import "strings"

// Reserved path tokens.
const (
	TokenIdentity    = "_IDENTITY_"
	TokenTopicLevel  = "_TOPIC_LEVEL_"
	TokenContextData = "_CONTEXT_DATA_"
	TimePath         = "time"

	IdentityExternalID = TokenIdentity + ".externalId"
	IdentityC8YSource  = TokenIdentity + ".c8ySourceId"

	ContextDeviceName = TokenContextData + ".deviceName"
	ContextDeviceType = TokenContextData + ".deviceType"
)

// GenericDeviceIdentifier returns the reserved path that carries the device identity.
func GenericDeviceIdentifier(m *Mapping) string {
	if m.UseExternalID && m.ExternalIDType != "" {
		return IdentityExternalID
	}
	return IdentityC8YSource
}

// DefinesDeviceIdentifier reports whether sub addresses the device identity:
// by its target path for INBOUND mappings, by its source path for OUTBOUND.
func DefinesDeviceIdentifier(m *Mapping, sub Substitution) bool {
	generic := GenericDeviceIdentifier(m)
	if m.Direction == Outbound {
		return strings.TrimPrefix(sub.PathSource, "$.") == generic
	}
	return strings.TrimPrefix(sub.PathTarget, "$.") == generic
}

// CountDeviceIdentifiers counts the substitutions defining the device identity.
func CountDeviceIdentifiers(m *Mapping) int {
	n := 0
	for _, sub := range m.Substitutions {
		if DefinesDeviceIdentifier(m, sub) {
			n++
		}
	}
	return n
}

// IsSubstitutionValid checks identifier cardinality: exactly one for INBOUND,
// at least one for OUTBOUND.
func IsSubstitutionValid(m *Mapping) bool {
	n := CountDeviceIdentifiers(m)
	if m.Direction == Outbound {
		return n >= 1
	}
	return n == 1
}

// TransformGenericPathToAPIPath maps the generic identity path onto the identifier
// field of the mapping's target API. Other paths are returned unchanged.
func TransformGenericPathToAPIPath(m *Mapping, path string) string {
	if strings.TrimPrefix(path, "$.") == GenericDeviceIdentifier(m) {
		return m.TargetAPI.Identifier()
	}
	return path
}

// IsReservedPath reports whether path lives under one of the reserved fragments
// that never reach the platform.
func IsReservedPath(path string) bool {
	path = strings.TrimPrefix(path, "$.")
	for _, tok := range []string{TokenIdentity, TokenTopicLevel, TokenContextData} {
		if path == tok || strings.HasPrefix(path, tok+".") || strings.HasPrefix(path, tok+"[") {
			return true
		}
	}
	return false
}
