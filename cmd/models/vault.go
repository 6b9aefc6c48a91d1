package models

import (
	"time"

	"github.com/lib/pq"
	"gorm.io/gorm"
)

const (
	TierBronze = "Bronze"
	TierSilver = "Silver"
	TierGold   = "Gold"
)

// MediaAsset is a knowledge-vault entry gated by subscription tier.
type MediaAsset struct {
	gorm.Model
	Title        string         `gorm:"column:title;size:255;not null" json:"title"`
	Description  string         `gorm:"column:description;type:text" json:"description"`
	Type         string         `gorm:"column:type;size:20;not null" json:"type"` // Blog, Video, Audio, Interview
	Tags         pq.StringArray `gorm:"column:tags;type:text[]" json:"tags"`
	ThumbnailURL string         `gorm:"column:thumbnail_url;size:500" json:"thumbnail_url"`
	MediaURL     string         `gorm:"column:media_url;size:500" json:"media_url"`
	RequiredTier string         `gorm:"column:required_tier;size:20;not null;default:'Bronze'" json:"required_tier"`
	PublishedAt  time.Time      `gorm:"column:published_at" json:"published_at"`
}

// TierUnlocks reports whether a user on userTier may open content that
// requires requiredTier. Bronze content is free for everyone; Gold content
// is Gold-only.
func TierUnlocks(userTier, requiredTier string) bool {
	switch requiredTier {
	case TierBronze:
		return true
	case TierSilver:
		return userTier == TierSilver || userTier == TierGold
	case TierGold:
		return userTier == TierGold
	}
	return false
}
