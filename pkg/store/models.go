package store

import "time"

// Kind is the payload variant of an item
type Kind string

const (
	KindVideo    Kind = "video"
	KindCarousel Kind = "photo"
)

// Item is one cached piece of platform content
type Item struct {
	ID          uint   `gorm:"primaryKey"`
	ContentID   string `gorm:"uniqueIndex;not null"`
	Kind        Kind   `gorm:"not null"`
	Description string
	OriginalURL string
	AuthorID    uint
	Author      Author    `gorm:"foreignKey:AuthorID"`
	Video       *Video    `gorm:"constraint:OnDelete:CASCADE"`
	Carousel    *Carousel `gorm:"constraint:OnDelete:CASCADE"`
	// Deleted marks a tombstoned item: files are gone, metadata is kept for restore
	Deleted bool `gorm:"index;not null;default:false"`
	// CreatedAt is bumped on restore so eviction treats restored items as newest
	CreatedAt time.Time `gorm:"index"`
}

type Author struct {
	ID         uint   `gorm:"primaryKey"`
	PlatformID string `gorm:"uniqueIndex;not null"`
	Name       string
	Handle     string
	AvatarPath string
	CreatedAt  time.Time
}

type Video struct {
	ID                 uint `gorm:"primaryKey"`
	ItemID             uint `gorm:"uniqueIndex"`
	MP4Path            string
	ThumbnailPath      string
	StreamManifestPath string
}

type Carousel struct {
	ID        uint     `gorm:"primaryKey"`
	ItemID    uint     `gorm:"uniqueIndex"`
	Images    []string `gorm:"serializer:json"`
	AudioPath string
}

// Session tracks which content IDs a client has already been shown
type Session struct {
	ID        uint     `gorm:"primaryKey"`
	Token     string   `gorm:"uniqueIndex;not null"`
	Watched   []string `gorm:"serializer:json"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// WatchedSet returns the watched IDs as a set
func (s *Session) WatchedSet() map[string]struct{} {
	set := make(map[string]struct{}, len(s.Watched))
	for _, id := range s.Watched {
		set[id] = struct{}{}
	}
	return set
}
