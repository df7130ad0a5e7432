package webhook

import (
	"encoding/json"
	"errors"
)

// ErrNoOutputURL means the payload matched none of the known shapes.
var ErrNoOutputURL = errors.New("no output URL in webhook payload")

// OutputKind names the payload shape that produced the output.
type OutputKind int

const (
	OutputVideo OutputKind = iota
	OutputBareURL
	OutputImageArray
	OutputImage
	OutputAudio
)

// Output is the media reference extracted from a webhook payload.
type Output struct {
	Kind         OutputKind
	URL          string
	URLs         []string
	ThumbnailURL string
	ContentType  string
	FileSize     *int64
	Seed         *int64
}

// IsBatch reports whether the output is a multi-image batch.
func (o Output) IsBatch() bool {
	return o.Kind == OutputImageArray
}

type fileRef struct {
	URL         string `json:"url"`
	ContentType string `json:"content_type"`
	FileSize    *int64 `json:"file_size"`
}

// urlOrString decodes either {"url": "..."} or a bare string.
type urlOrString struct {
	URL         string
	ContentType string
	FileSize    *int64
	Preview     *fileRef
	Thumbnail   *fileRef
	isString    bool
}

func (u *urlOrString) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		u.URL = s
		u.isString = true
		return nil
	}
	var obj struct {
		URL         string   `json:"url"`
		ContentType string   `json:"content_type"`
		FileSize    *int64   `json:"file_size"`
		Preview     *fileRef `json:"preview"`
		Thumbnail   *fileRef `json:"thumbnail"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	u.URL = obj.URL
	u.ContentType = obj.ContentType
	u.FileSize = obj.FileSize
	u.Preview = obj.Preview
	u.Thumbnail = obj.Thumbnail
	return nil
}

type payloadShape struct {
	Video      *urlOrString      `json:"video"`
	URL        string            `json:"url"`
	Images     []json.RawMessage `json:"images"`
	Image      *urlOrString      `json:"image"`
	Audio      *urlOrString      `json:"audio"`
	Preview    *fileRef          `json:"preview"`
	Thumbnail  *fileRef          `json:"thumbnail"`
	FirstFrame *fileRef          `json:"first_frame"`
	Seed       *int64            `json:"seed"`
}

// ExtractOutput resolves the output media from a payload. The shapes
// are checked in a fixed priority: video object, video string, bare
// url, image array, image object, image string, audio. Changing the
// order changes which URL wins for payloads carrying several shapes.
func ExtractOutput(payload json.RawMessage) (Output, error) {
	var p payloadShape
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &p); err != nil {
			return Output{}, ErrNoOutputURL
		}
	}

	topThumbnail := func() string {
		if p.Preview != nil && p.Preview.URL != "" {
			return p.Preview.URL
		}
		if p.Thumbnail != nil && p.Thumbnail.URL != "" {
			return p.Thumbnail.URL
		}
		if p.FirstFrame != nil && p.FirstFrame.URL != "" {
			return p.FirstFrame.URL
		}
		return ""
	}

	switch {
	case p.Video != nil && !p.Video.isString && p.Video.URL != "":
		thumb := ""
		if p.Video.Preview != nil && p.Video.Preview.URL != "" {
			thumb = p.Video.Preview.URL
		} else if p.Video.Thumbnail != nil && p.Video.Thumbnail.URL != "" {
			thumb = p.Video.Thumbnail.URL
		} else {
			thumb = topThumbnail()
		}
		return Output{
			Kind:         OutputVideo,
			URL:          p.Video.URL,
			ThumbnailURL: thumb,
			ContentType:  p.Video.ContentType,
			FileSize:     p.Video.FileSize,
			Seed:         p.Seed,
		}, nil

	case p.Video != nil && p.Video.isString && p.Video.URL != "":
		return Output{
			Kind:         OutputVideo,
			URL:          p.Video.URL,
			ThumbnailURL: topThumbnail(),
			Seed:         p.Seed,
		}, nil

	case p.URL != "":
		return Output{
			Kind:         OutputBareURL,
			URL:          p.URL,
			ThumbnailURL: topThumbnail(),
			Seed:         p.Seed,
		}, nil

	case len(p.Images) > 0:
		urls := make([]string, 0, len(p.Images))
		for _, raw := range p.Images {
			var ref urlOrString
			if err := json.Unmarshal(raw, &ref); err != nil || ref.URL == "" {
				continue
			}
			urls = append(urls, ref.URL)
		}
		if len(urls) == 0 {
			return Output{}, ErrNoOutputURL
		}
		return Output{Kind: OutputImageArray, URL: urls[0], URLs: urls, Seed: p.Seed}, nil

	case p.Image != nil && p.Image.URL != "":
		return Output{
			Kind:        OutputImage,
			URL:         p.Image.URL,
			ContentType: p.Image.ContentType,
			Seed:        p.Seed,
		}, nil

	case p.Audio != nil && p.Audio.URL != "":
		return Output{
			Kind:        OutputAudio,
			URL:         p.Audio.URL,
			ContentType: p.Audio.ContentType,
			Seed:        p.Seed,
		}, nil
	}

	return Output{}, ErrNoOutputURL
}
