package models

import "gorm.io/datatypes"

// Asset providers.
const (
	ProviderLocal = "local"
	ProviderMinIO = "minio"
)

// AssetRef points at one stored image. Provider plus Key is enough to
// retrieve or delete the asset later; URL is the absolute address at store time.
type AssetRef struct {
	Provider    string            `gorm:"size:16;not null" json:"provider"`
	Key         string            `gorm:"size:512;not null;uniqueIndex" json:"key"`
	URL         string            `gorm:"type:text;not null" json:"url"`
	ContentType string            `gorm:"size:64" json:"content_type"`
	Format      string            `gorm:"size:16" json:"format"`
	Width       int               `json:"width"`
	Height      int               `json:"height"`
	Bytes       int64             `json:"bytes"`
	Attributes  datatypes.JSONMap `gorm:"type:jsonb" json:"attributes,omitempty"`
}

// IsZero reports whether the reference is unset.
func (a AssetRef) IsZero() bool {
	return a.Key == ""
}
