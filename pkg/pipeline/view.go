package pipeline

import (
	"time"

	"sharetok/pkg/store"
)

// ItemView is the JSON shape of an item returned to callers
type ItemView struct {
	ID          uint          `json:"id"`
	ContentID   string        `json:"contentId"`
	Kind        store.Kind    `json:"kind"`
	Description string        `json:"description"`
	OriginalURL string        `json:"originalUrl"`
	CreatedAt   time.Time     `json:"createdAt"`
	Author      AuthorView    `json:"author"`
	Video       *VideoView    `json:"video,omitempty"`
	Carousel    *CarouselView `json:"carousel,omitempty"`
}

type AuthorView struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Handle string `json:"handle"`
	Image  string `json:"image,omitempty"`
}

type VideoView struct {
	MP4            string `json:"mp4"`
	Thumbnail      string `json:"thumbnail,omitempty"`
	StreamManifest string `json:"streamManifest,omitempty"`
}

type CarouselView struct {
	Images []string `json:"images"`
	Audio  string   `json:"audio,omitempty"`
}

func NewItemView(item *store.Item) ItemView {
	v := ItemView{
		ID:          item.ID,
		ContentID:   item.ContentID,
		Kind:        item.Kind,
		Description: item.Description,
		OriginalURL: item.OriginalURL,
		CreatedAt:   item.CreatedAt,
		Author: AuthorView{
			ID:     item.Author.PlatformID,
			Name:   item.Author.Name,
			Handle: item.Author.Handle,
			Image:  item.Author.AvatarPath,
		},
	}
	if item.Video != nil {
		v.Video = &VideoView{
			MP4:            item.Video.MP4Path,
			Thumbnail:      item.Video.ThumbnailPath,
			StreamManifest: item.Video.StreamManifestPath,
		}
	}
	if item.Carousel != nil {
		v.Carousel = &CarouselView{Images: item.Carousel.Images, Audio: item.Carousel.AudioPath}
	}
	return v
}
