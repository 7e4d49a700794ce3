// Package storage owns the on-disk layout of cached assets.
//
// Every asset path is derived deterministically from a content or author ID
// and the asset's role:
//
//	{root}/authors/{authorId}.jpg
//	{root}/videos/{contentId}.mp4
//	{root}/thumbnails/{contentId}.jpg
//	{root}/hls/{contentId}/            (stream manifest directory, legacy)
//	{root}/images/{contentId}/{i}.jpg
//	{root}/audio/{contentId}.mp4
//
// The same layout is exposed to HTTP clients as public paths ("/videos/1.mp4"),
// which is what the metadata store records. Manager translates between the two,
// measures the total footprint and removes an item's files on eviction.
//
// Writes are atomic: data is streamed into a ".part" sibling and renamed into
// place only after the caller has verified it.
package storage
