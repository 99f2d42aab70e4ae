package mapping

import "time"

// ServiceConfiguration holds runtime settings shared by every mapping run.
type ServiceConfiguration struct {
	LogPayload                 bool `json:"logPayload" yaml:"logPayload"`
	LogSubstitution            bool `json:"logSubstitution" yaml:"logSubstitution"`
	OutboundMappingEnabled     bool `json:"outboundMappingEnabled" yaml:"outboundMappingEnabled"`
	InboundExternalIDCacheSize int  `json:"inboundExternalIdCacheSize" yaml:"inboundExternalIdCacheSize"`
	InventoryCacheSize         int  `json:"inventoryCacheSize" yaml:"inventoryCacheSize"`
	MaxCPUTimeMS               int  `json:"maxCPUTimeMS" yaml:"maxCPUTimeMS"`
}

// DefaultServiceConfiguration returns the settings used when none are stored.
func DefaultServiceConfiguration() ServiceConfiguration {
	return ServiceConfiguration{
		OutboundMappingEnabled:     true,
		InboundExternalIDCacheSize: 1000,
		InventoryCacheSize:         1000,
		MaxCPUTimeMS:               5000,
	}
}

// Budget returns the per-call time budget. Zero means unbounded.
func (c ServiceConfiguration) Budget() time.Duration {
	if c.MaxCPUTimeMS <= 0 {
		return 0
	}
	return time.Duration(c.MaxCPUTimeMS) * time.Millisecond
}

// TemplateType classifies code templates.
type TemplateType string

const (
	TemplateInbound  TemplateType = "INBOUND"
	TemplateOutbound TemplateType = "OUTBOUND"
	TemplateShared   TemplateType = "SHARED"
	TemplateSystem   TemplateType = "SYSTEM"
)

// CodeTemplate is a reusable program for code based mappings. Code is base64 encoded.
type CodeTemplate struct {
	ID           string       `json:"id" yaml:"id"`
	Name         string       `json:"name" yaml:"name"`
	Description  string       `json:"description,omitempty" yaml:"description,omitempty"`
	TemplateType TemplateType `json:"templateType" yaml:"templateType"`
	Code         string       `json:"code" yaml:"code"`
	Internal     bool         `json:"internal" yaml:"internal"`
	Readonly     bool         `json:"readonly" yaml:"readonly"`
}
