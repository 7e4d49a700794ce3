// Package store is the durable metadata index of items, authors and sessions.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrNotFound is returned when a lookup matches no row
var ErrNotFound = errors.New("record not found")

// Store is the metadata contract the pipeline and evictor depend on
type Store interface {
	FindByContentID(ctx context.Context, contentID string) (*Item, error)
	FindByID(ctx context.Context, id uint) (*Item, error)
	Create(ctx context.Context, item *Item) error
	Tombstone(ctx context.Context, id uint) error
	Restore(ctx context.Context, id uint, video *Video, carousel *Carousel) error
	OldestActive(ctx context.Context) (*Item, error)
	Newest(ctx context.Context) (*Item, error)

	FindAuthor(ctx context.Context, platformID string) (*Author, error)
	CreateAuthor(ctx context.Context, author *Author) error
	SetAuthorAvatar(ctx context.Context, id uint, avatarPath string) error

	GetSession(ctx context.Context, token string) (*Session, error)
	CreateSession(ctx context.Context, token string) (*Session, error)
	AddWatched(ctx context.Context, token string, contentIDs ...string) error
}

// GormStore implements Store on top of gorm
type GormStore struct {
	db  *gorm.DB
	now func() time.Time
}

// Option customises a GormStore
type Option func(*GormStore)

// WithClock overrides the time source used for creation and restore timestamps
func WithClock(now func() time.Time) Option {
	return func(s *GormStore) { s.now = now }
}

func New(db *gorm.DB, opts ...Option) *GormStore {
	s := &GormStore{db: db, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

func (s *GormStore) items(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx).Preload("Author").Preload("Video").Preload("Carousel")
}

func (s *GormStore) FindByContentID(ctx context.Context, contentID string) (*Item, error) {
	var item Item
	if err := s.items(ctx).Where("content_id = ?", contentID).First(&item).Error; err != nil {
		return nil, notFound(err)
	}
	return &item, nil
}

func (s *GormStore) FindByID(ctx context.Context, id uint) (*Item, error) {
	var item Item
	if err := s.items(ctx).First(&item, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &item, nil
}

// Create persists an item together with its media variant. The author must
// already exist; item.AuthorID references it.
func (s *GormStore) Create(ctx context.Context, item *Item) error {
	if item.AuthorID == 0 {
		return fmt.Errorf("item %s has no author", item.ContentID)
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = s.now()
	}
	if err := s.db.WithContext(ctx).Omit("Author").Create(item).Error; err != nil {
		return fmt.Errorf("failed to create item %s: %w", item.ContentID, err)
	}
	return nil
}

func (s *GormStore) Tombstone(ctx context.Context, id uint) error {
	res := s.db.WithContext(ctx).Model(&Item{}).Where("id = ?", id).Update("deleted", true)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Restore clears the tombstone and moves the item's timestamp strictly forward.
// A non-nil video or carousel replaces the stored asset paths.
func (s *GormStore) Restore(ctx context.Context, id uint, video *Video, carousel *Carousel) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var item Item
		if err := tx.Select("id", "created_at").First(&item, id).Error; err != nil {
			return notFound(err)
		}
		// the fresh download replaces the asset paths wholesale, empty ones included
		if video != nil {
			row := Video{ItemID: id, MP4Path: video.MP4Path, ThumbnailPath: video.ThumbnailPath,
				StreamManifestPath: video.StreamManifestPath}
			if err := tx.Where("item_id = ?", id).Delete(&Video{}).Error; err != nil {
				return err
			}
			if err := tx.Create(&row).Error; err != nil {
				return fmt.Errorf("failed to store video paths: %w", err)
			}
		}
		if carousel != nil {
			row := Carousel{ItemID: id, Images: carousel.Images, AudioPath: carousel.AudioPath}
			if err := tx.Where("item_id = ?", id).Delete(&Carousel{}).Error; err != nil {
				return err
			}
			if err := tx.Create(&row).Error; err != nil {
				return fmt.Errorf("failed to store carousel paths: %w", err)
			}
		}
		ts := s.now()
		if !ts.After(item.CreatedAt) {
			ts = item.CreatedAt.Add(time.Microsecond)
		}
		return tx.Model(&Item{}).Where("id = ?", id).
			Updates(map[string]interface{}{"deleted": false, "created_at": ts}).Error
	})
}

// OldestActive returns the non-tombstoned item with the oldest timestamp
func (s *GormStore) OldestActive(ctx context.Context) (*Item, error) {
	var item Item
	err := s.items(ctx).Where("deleted = ?", false).Order("created_at ASC, id ASC").First(&item).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &item, nil
}

// Newest returns the most recently created or restored non-tombstoned item
func (s *GormStore) Newest(ctx context.Context) (*Item, error) {
	var item Item
	err := s.items(ctx).Where("deleted = ?", false).Order("created_at DESC, id DESC").First(&item).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &item, nil
}

func (s *GormStore) FindAuthor(ctx context.Context, platformID string) (*Author, error) {
	var author Author
	if err := s.db.WithContext(ctx).Where("platform_id = ?", platformID).First(&author).Error; err != nil {
		return nil, notFound(err)
	}
	return &author, nil
}

// CreateAuthor inserts the author, or loads the existing row when another
// request created the same platform author first.
func (s *GormStore) CreateAuthor(ctx context.Context, author *Author) error {
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "platform_id"}}, DoNothing: true}).
		Create(author).Error
	if err != nil {
		return fmt.Errorf("failed to create author %s: %w", author.PlatformID, err)
	}
	stored, err := s.FindAuthor(ctx, author.PlatformID)
	if err != nil {
		return err
	}
	*author = *stored
	return nil
}

func (s *GormStore) SetAuthorAvatar(ctx context.Context, id uint, avatarPath string) error {
	res := s.db.WithContext(ctx).Model(&Author{}).Where("id = ?", id).Update("avatar_path", avatarPath)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) GetSession(ctx context.Context, token string) (*Session, error) {
	var session Session
	if err := s.db.WithContext(ctx).Where("token = ?", token).First(&session).Error; err != nil {
		return nil, notFound(err)
	}
	return &session, nil
}

// CreateSession creates the session if absent and returns it either way
func (s *GormStore) CreateSession(ctx context.Context, token string) (*Session, error) {
	session := Session{Token: token, Watched: []string{}}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "token"}}, DoNothing: true}).
		Create(&session).Error
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return s.GetSession(ctx, token)
}

// AddWatched merges contentIDs into the session's watched set
func (s *GormStore) AddWatched(ctx context.Context, token string, contentIDs ...string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var session Session
		if err := tx.Where("token = ?", token).First(&session).Error; err != nil {
			return notFound(err)
		}
		seen := session.WatchedSet()
		changed := false
		for _, id := range contentIDs {
			if _, ok := seen[id]; ok || id == "" {
				continue
			}
			seen[id] = struct{}{}
			session.Watched = append(session.Watched, id)
			changed = true
		}
		if !changed {
			return nil
		}
		return tx.Save(&session).Error
	})
}
