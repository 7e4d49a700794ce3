package pipeline

import (
	"context"
	"errors"

	"sharetok/internal/downloader"
	errs "sharetok/pkg/errors"
	"sharetok/pkg/storage"
	"sharetok/pkg/store"
	"sharetok/pkg/tiktok"
)

// retrieve runs bootstrap extraction, the signed call and normalization
// against an already resolved page
func (s *Service) retrieve(ctx context.Context, res *tiktok.Resolution, mode tiktok.Mode, watched map[string]struct{}) (*tiktok.Record, error) {
	boot, err := tiktok.ExtractBootstrap(res.Body)
	if err != nil {
		return nil, err
	}
	for _, c := range res.Cookies {
		if c.Name == "msToken" {
			boot.MsToken = c.Value
		}
	}

	raw, err := s.api.Fetch(ctx, tiktok.Call{
		Mode:      mode,
		ContentID: res.ContentID,
		Bootstrap: boot,
		Cookies:   res.Cookies,
		Referer:   res.FinalURL.String(),
	})
	if err != nil {
		return nil, err
	}
	return tiktok.Normalize(raw, mode, watched)
}

// media is where an item's assets landed; empty paths are assets that failed or were absent
type media struct {
	video     *store.Video
	carousel  *store.Carousel
	avatar    string
	avatarURL string
}

// download fetches every asset of rec. A primary failure removes whatever
// the item already wrote and is returned; secondary failures leave an empty path.
func (s *Service) download(ctx context.Context, rec *tiktok.Record, withAvatar bool) (*media, error) {
	id := rec.ContentID
	var jobs []downloader.Job
	add := func(url, public string, role downloader.Role, owner string) {
		if url != "" {
			jobs = append(jobs, downloader.Job{OwnerID: owner, URL: url, Public: public, Role: role})
		}
	}

	if rec.IsVideo() {
		add(rec.Video.URL, storage.VideoPath(id), downloader.RoleVideo, id)
		add(rec.Video.CoverURL, storage.ThumbnailPath(id), downloader.RoleCover, id)
	} else {
		for i, u := range rec.Carousel.ImageURLs {
			add(u, storage.ImagePath(id, i), downloader.RoleImage, id)
		}
		add(rec.Carousel.AudioURL, storage.AudioPath(id), downloader.RoleAudio, id)
	}
	if withAvatar {
		add(rec.Author.AvatarURL, storage.AvatarPath(rec.Author.ID), downloader.RoleAvatar, rec.Author.ID)
	}

	results, err := s.downloads.Run(ctx, jobs)
	if err != nil {
		s.discard(rec)
		if errs.TypeOf(err) == errs.ErrorTypeUnknown {
			err = errs.AssetDownload(err, "primary asset of "+id)
		}
		return nil, err
	}

	ok := make(map[string]bool, len(results))
	for _, r := range results {
		ok[r.Job.Public] = r.OK()
	}
	path := func(public string) string {
		if ok[public] {
			return public
		}
		return ""
	}

	m := &media{avatar: path(storage.AvatarPath(rec.Author.ID))}
	if rec.IsVideo() {
		m.video = &store.Video{
			MP4Path:       storage.VideoPath(id),
			ThumbnailPath: path(storage.ThumbnailPath(id)),
		}
	} else {
		images := make([]string, len(rec.Carousel.ImageURLs))
		for i := range images {
			images[i] = storage.ImagePath(id, i)
		}
		m.carousel = &store.Carousel{Images: images, AudioPath: path(storage.AudioPath(id))}
	}
	return m, nil
}

func (s *Service) discard(rec *tiktok.Record) {
	var err error
	if rec.IsVideo() {
		_, err = s.storage.RemoveVideo(rec.ContentID)
	} else {
		_, err = s.storage.RemoveCarousel(rec.ContentID)
	}
	if err != nil {
		s.logger.WithError(err).WithField("content_id", rec.ContentID).Warn("Failed to clean up partial item")
	}
}

// persist downloads the assets of a new item, then writes author and item
func (s *Service) persist(ctx context.Context, rec *tiktok.Record, originalURL string) (*store.Item, error) {
	author, err := s.store.FindAuthor(ctx, rec.Author.ID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	newAuthor := author == nil

	m, err := s.download(ctx, rec, newAuthor)
	if err != nil {
		return nil, err
	}

	if newAuthor {
		author = &store.Author{
			PlatformID: rec.Author.ID,
			Name:       rec.Author.Name,
			Handle:     rec.Author.Handle,
			AvatarPath: m.avatar,
		}
		if err := s.store.CreateAuthor(ctx, author); err != nil {
			return nil, err
		}
	}

	item := &store.Item{
		ContentID:   rec.ContentID,
		Kind:        store.KindVideo,
		Description: rec.Description,
		OriginalURL: originalURL,
		AuthorID:    author.ID,
		Video:       m.video,
		Carousel:    m.carousel,
	}
	if !rec.IsVideo() {
		item.Kind = store.KindCarousel
	}
	if err := s.store.Create(ctx, item); err != nil {
		// another process may have written the same content ID first
		if existing, ferr := s.store.FindByContentID(ctx, rec.ContentID); ferr == nil {
			return existing, nil
		}
		return nil, err
	}
	item.Author = *author

	s.logger.InfoWithFields("Item cached", map[string]interface{}{
		"content_id": item.ContentID,
		"kind":       string(item.Kind),
		"author":     author.Handle,
	})
	return item, nil
}

// restore re-runs retrieval for a tombstoned item from its stored URL (or
// the caller's when none was stored). On failure the item stays tombstoned.
func (s *Service) restore(ctx context.Context, item *store.Item, callerURL string) (*store.Item, error) {
	source := item.OriginalURL
	if source == "" {
		source = callerURL
	}
	if source == "" {
		return nil, errs.NotFound("item " + item.ContentID + " has no source URL to restore from")
	}

	res, err := s.resolver.Resolve(ctx, source)
	if err != nil {
		return nil, err
	}
	rec, err := s.retrieve(ctx, res, tiktok.ModeDetail, nil)
	if err != nil {
		return nil, err
	}
	if rec.IsVideo() != (item.Kind == store.KindVideo) {
		return nil, errs.SchemaValidation(nil, "item "+item.ContentID+" changed kind")
	}

	needAvatar := item.Author.AvatarPath == "" || !s.storage.Exists(item.Author.AvatarPath)
	m, err := s.download(ctx, rec, needAvatar)
	if err != nil {
		return nil, err
	}
	if err := s.store.Restore(ctx, item.ID, m.video, m.carousel); err != nil {
		return nil, err
	}
	if needAvatar && m.avatar != item.Author.AvatarPath {
		if err := s.store.SetAuthorAvatar(ctx, item.AuthorID, m.avatar); err != nil {
			s.logger.WithError(err).WithField("author", item.Author.Handle).Warn("Failed to update author avatar")
		}
	}

	s.logger.InfoWithFields("Item restored", map[string]interface{}{
		"content_id": item.ContentID,
		"source":     source,
	})
	return s.store.FindByID(ctx, item.ID)
}
