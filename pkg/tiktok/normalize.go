package tiktok

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/tidwall/gjson"
	errs "sharetok/pkg/errors"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterStructValidation(variantExclusive, Record{})
	return v
}

// variantExclusive rejects records carrying both or neither payload variant
func variantExclusive(sl validator.StructLevel) {
	rec := sl.Current().Interface().(Record)
	if (rec.Video == nil) == (rec.Carousel == nil) {
		sl.ReportError(rec.Video, "Video", "Video", "variant", "")
	}
}

// Record is the canonical shape of one content item. Exactly one of Video
// and Carousel is set.
type Record struct {
	ContentID   string `validate:"required"`
	Description string
	Author      AuthorRecord
	Video       *VideoRecord
	Carousel    *CarouselRecord
}

type AuthorRecord struct {
	ID        string `validate:"required"`
	Handle    string `validate:"required"`
	Name      string
	AvatarURL string `validate:"omitempty,url"`
}

type VideoRecord struct {
	URL      string `validate:"required,url"`
	CoverURL string `validate:"omitempty,url"`
}

type CarouselRecord struct {
	ImageURLs []string `validate:"min=1,dive,required,url"`
	AudioURL  string   `validate:"omitempty,url"`
}

// IsVideo reports whether the record carries the video variant
func (r *Record) IsVideo() bool {
	return r.Video != nil
}

// Normalize turns a raw API body into a canonical record. In related mode
// the first item not present in watched is chosen, keeping the platform's
// list order.
func Normalize(raw []byte, mode Mode, watched map[string]struct{}) (*Record, error) {
	var node *ItemNode

	switch mode {
	case ModeDetail:
		var resp DetailResponse
		if err := json.Unmarshal(raw, &resp); err != nil {
			return nil, errs.SchemaValidation(err, "malformed detail payload")
		}
		if resp.ItemInfo.ItemStruct == nil {
			return nil, errs.SchemaValidation(nil, "detail payload has no item")
		}
		node = resp.ItemInfo.ItemStruct

	case ModeRelated:
		var resp RelatedResponse
		if err := json.Unmarshal(raw, &resp); err != nil {
			return nil, errs.SchemaValidation(err, "malformed related payload")
		}
		if len(resp.ItemList) == 0 {
			return nil, errs.SchemaValidation(nil, "related list empty")
		}
		for _, item := range resp.ItemList {
			if _, seen := watched[gjson.GetBytes(item, "id").String()]; seen {
				continue
			}
			node = new(ItemNode)
			if err := json.Unmarshal(item, node); err != nil {
				return nil, errs.SchemaValidation(err, "malformed related item")
			}
			break
		}
		if node == nil {
			return nil, errs.NoUnseenItem()
		}

	default:
		return nil, errs.SchemaValidation(nil, fmt.Sprintf("unsupported mode %d", mode))
	}

	return FromNode(node)
}

// FromNode builds and validates a record from one item node
func FromNode(node *ItemNode) (*Record, error) {
	if node.Author == nil {
		return nil, errs.SchemaValidation(nil, "item has no author")
	}

	rec := &Record{
		ContentID:   node.ID,
		Description: node.Desc,
		Author: AuthorRecord{
			ID:        node.Author.ID,
			Handle:    node.Author.UniqueID,
			Name:      node.Author.Nickname,
			AvatarURL: node.Author.AvatarLarger,
		},
	}

	switch {
	case node.ImagePost != nil:
		carousel := &CarouselRecord{ImageURLs: imageURLs(node.ImagePost.Images)}
		if node.Music != nil {
			carousel.AudioURL = node.Music.PlayURL
		}
		if title := strings.TrimSpace(node.ImagePost.Title); title != "" {
			rec.Description = title + " | " + node.Desc
		}
		rec.Carousel = carousel
	case node.Video != nil && node.Video.PlayAddr != "":
		rec.Video = &VideoRecord{URL: node.Video.PlayAddr, CoverURL: node.Video.Cover}
	default:
		return nil, errs.SchemaValidation(nil, fmt.Sprintf("item %s has neither video nor images", node.ID))
	}

	if err := validate.Struct(rec); err != nil {
		return nil, errs.SchemaValidation(err, describeValidation(err))
	}
	return rec, nil
}

// imageURLs takes the first usable mirror of every image, skipping images
// whose mirrors are all null or empty
func imageURLs(images []ImageNode) []string {
	out := make([]string, 0, len(images))
	for _, img := range images {
		for _, u := range img.ImageURL.URLList {
			if u != nil && *u != "" {
				out = append(out, *u)
				break
			}
		}
	}
	return out
}

func describeValidation(err error) string {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return "invalid record"
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fe.Namespace()+":"+fe.Tag())
	}
	return "invalid record fields " + strings.Join(fields, ", ")
}
