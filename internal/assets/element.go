// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package assets

import (
	"net/url"
	"path"
	"strings"
	"time"
)

// Kind selects how an asset payload is realised.
type Kind string

const (
	KindImage Kind = "image"
	KindVideo Kind = "video"
)

var videoExtensions = map[string]struct{}{
	".mp4":  {},
	".webm": {},
	".mov":  {},
	".m4v":  {},
	".mkv":  {},
	".ogv":  {},
}

// KindForURL sniffs the path extension. Query and fragment are ignored and
// the comparison is case-insensitive. Anything that is not a known video
// container is treated as an image.
func KindForURL(raw string) Kind {
	p := raw
	if u, err := url.Parse(raw); err == nil {
		p = u.Path
	} else if i := strings.IndexAny(raw, "?#"); i >= 0 {
		p = raw[:i]
	}
	if _, ok := videoExtensions[strings.ToLower(path.Ext(p))]; ok {
		return KindVideo
	}
	return KindImage
}

// Playback carries the display hints a video element is created with.
type Playback struct {
	Muted    bool `json:"muted"`
	Inline   bool `json:"inline"`
	Loop     bool `json:"loop"`
	Autoplay bool `json:"autoplay"`
}

// VideoPlayback is silent, inline, looping autoplay: ready to show on a cache hit.
var VideoPlayback = Playback{Muted: true, Inline: true, Loop: true, Autoplay: true}

// Element is a realised asset. Elements held by the cache are shared;
// callers must Clone before mutating.
type Element struct {
	URL         string    `json:"url"`
	Kind        Kind      `json:"kind"`
	ContentType string    `json:"content_type"`
	Data        []byte    `json:"-"`
	Playback    Playback  `json:"playback"`
	LoadedAt    time.Time `json:"loaded_at"`
}

// Size returns the payload length in bytes.
func (e *Element) Size() int {
	if e == nil {
		return 0
	}
	return len(e.Data)
}

// Clone returns a deep copy.
func (e *Element) Clone() *Element {
	if e == nil {
		return nil
	}
	out := *e
	if e.Data != nil {
		out.Data = append([]byte(nil), e.Data...)
	}
	return &out
}

// normalize fills identity fields a fetcher may leave empty and applies
// the playback hints for videos.
func (e *Element) normalize(rawURL string, kind Kind, now time.Time) {
	if e.URL == "" {
		e.URL = rawURL
	}
	if e.Kind == "" {
		e.Kind = kind
	}
	if e.Kind == KindVideo {
		e.Playback = VideoPlayback
	}
	if e.LoadedAt.IsZero() {
		e.LoadedAt = now
	}
}
