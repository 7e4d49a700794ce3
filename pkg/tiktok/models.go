package tiktok

import "encoding/json"

// DetailResponse is the body of the single-item endpoint
type DetailResponse struct {
	StatusCode int      `json:"statusCode"`
	ItemInfo   ItemInfo `json:"itemInfo"`
}

type ItemInfo struct {
	ItemStruct *ItemNode `json:"itemStruct"`
}

// RelatedResponse is the body of the related-items endpoint. Items stay raw
// until one is picked, so a bad field in a skipped item cannot fail the call.
type RelatedResponse struct {
	StatusCode int               `json:"statusCode"`
	ItemList   []json.RawMessage `json:"itemList"`
}

// ItemNode is one content item as the platform returns it. Video and
// ImagePost are mutually exclusive in well-formed payloads.
type ItemNode struct {
	ID        string         `json:"id"`
	Desc      string         `json:"desc"`
	Video     *VideoNode     `json:"video"`
	ImagePost *ImagePostNode `json:"imagePost"`
	Author    *AuthorNode    `json:"author"`
	Music     *MusicNode     `json:"music"`
}

type VideoNode struct {
	PlayAddr     string `json:"playAddr"`
	DownloadAddr string `json:"downloadAddr"`
	Cover        string `json:"cover"`
}

type ImagePostNode struct {
	Title  string      `json:"title"`
	Images []ImageNode `json:"images"`
}

type ImageNode struct {
	ImageURL URLList `json:"imageURL"`
}

// URLList holds CDN mirrors for one image; entries may be null
type URLList struct {
	URLList []*string `json:"urlList"`
}

type AuthorNode struct {
	ID           string `json:"id"`
	UniqueID     string `json:"uniqueId"`
	Nickname     string `json:"nickname"`
	AvatarLarger string `json:"avatarLarger"`
}

type MusicNode struct {
	PlayURL string `json:"playUrl"`
}
