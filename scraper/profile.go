// Package scraper describes where each record field lives inside a rendered
// feed card. A Profile is plain data so it can be loaded from YAML or sent
// over the API; the extract package turns it into resolver chains.
package scraper

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ErrInvalidProfile is returned when a profile is missing required locators.
var ErrInvalidProfile = errors.New("invalid scraper profile")

// Locator is one strategy for reading a value from a card. Selector is
// evaluated inside Within (or the card itself when Within is empty). An
// empty Attr reads the element's whitespace-normalized text.
type Locator struct {
	Within   string `yaml:"within,omitempty" json:"within,omitempty"`
	Selector string `yaml:"selector" json:"selector"`
	Attr     string `yaml:"attr,omitempty" json:"attr,omitempty"`
}

// Text returns a locator for the text of selector.
func Text(selector string) Locator {
	return Locator{Selector: selector}
}

// Attr returns a locator for attribute attr of selector.
func Attr(selector, attr string) Locator {
	return Locator{Selector: selector, Attr: attr}
}

// CounterConfig locates an interaction counter. When the element's text
// equals Placeholder the count is zero.
type CounterConfig struct {
	Locators    []Locator `yaml:"locators" json:"locators"`
	Placeholder string    `yaml:"placeholder,omitempty" json:"placeholder,omitempty"`
}

// Profile is a complete selector set for one feed layout.
type Profile struct {
	Name             string        `yaml:"name" json:"name"`
	CardSelector     string        `yaml:"card_selector" json:"card_selector"`
	ID               []Locator     `yaml:"id" json:"id"`
	Author           []Locator     `yaml:"author" json:"author"`
	Time             []Locator     `yaml:"time" json:"time"`
	VideoMarker      string        `yaml:"video_marker,omitempty" json:"video_marker,omitempty"`
	Text             []Locator     `yaml:"text" json:"text"`
	VideoDescription []Locator     `yaml:"video_description,omitempty" json:"video_description,omitempty"`
	Likes            CounterConfig `yaml:"likes" json:"likes"`
	Comments         CounterConfig `yaml:"comments" json:"comments"`
	Reposts          CounterConfig `yaml:"reposts" json:"reposts"`
	Images           []Locator     `yaml:"images,omitempty" json:"images,omitempty"`
	Videos           []Locator     `yaml:"videos,omitempty" json:"videos,omitempty"`
}

// Validate checks that the locators the harvest loop cannot work without
// are present.
func (p *Profile) Validate() error {
	if p.CardSelector == "" {
		return fmt.Errorf("%w: card_selector is required", ErrInvalidProfile)
	}
	if len(p.Time) == 0 {
		return fmt.Errorf("%w: at least one time locator is required", ErrInvalidProfile)
	}
	if len(p.ID) == 0 {
		return fmt.Errorf("%w: at least one id locator is required", ErrInvalidProfile)
	}
	for field, chain := range map[string][]Locator{
		"id": p.ID, "author": p.Author, "time": p.Time, "text": p.Text,
		"video_description": p.VideoDescription, "images": p.Images, "videos": p.Videos,
		"likes": p.Likes.Locators, "comments": p.Comments.Locators, "reposts": p.Reposts.Locators,
	} {
		for i, loc := range chain {
			if loc.Selector == "" && loc.Within == "" {
				return fmt.Errorf("%w: %s locator %d has no selector", ErrInvalidProfile, field, i)
			}
		}
	}
	return nil
}

// DefaultProfile returns the selector set for the bilibili space dynamic
// feed.
func DefaultProfile() Profile {
	return Profile{
		Name:         "bilibili-dynamic",
		CardSelector: ".bili-dyn-item__main",
		ID: []Locator{
			Attr(".dyn-card-opus[dyn-id]", "dyn-id"),
			Attr("[dyn-id]", "dyn-id"),
		},
		Author:      []Locator{Text(".bili-dyn-title__text")},
		Time:        []Locator{Text(".bili-dyn-time")},
		VideoMarker: "投稿了视频",
		Text: []Locator{
			{Within: ".bili-dyn-content", Selector: ".bili-rich-text__content"},
		},
		VideoDescription: []Locator{Text(".bili-dyn-card-video__desc")},
		Likes: CounterConfig{
			Locators:    []Locator{Text(".bili-dyn-action.like")},
			Placeholder: "点赞",
		},
		Comments: CounterConfig{
			Locators:    []Locator{Text(".bili-dyn-action.comment")},
			Placeholder: "评论",
		},
		Reposts: CounterConfig{
			Locators:    []Locator{Text(".bili-dyn-action.forward")},
			Placeholder: "转发",
		},
		Images: []Locator{
			Attr("picture.b-img__inner img", "src"),
			Attr(".b-img__inner img", "src"),
			Attr("picture img[src*='hdslb.com']", "src"),
			Attr(".bili-album__preview__picture__img img", "src"),
			Attr(".bili-dyn-card-img img", "src"),
			Attr(".bili-rich-text__content img", "src"),
			Attr(".img-box img", "src"),
			Attr(".album__image img", "src"),
			Attr(".bili-dyn-card__image img", "src"),
			Attr(".dyn-card-opus img", "src"),
			Attr(".bili-dyn-content img", "src"),
			Attr("img[src*='hdslb.com']", "src"),
			Attr("img[src*='i0.hdslb.com']", "src"),
			Attr("img[src*='i1.hdslb.com']", "src"),
			Attr("img[src*='i2.hdslb.com']", "src"),
			Attr("img[src*='bfs/new_dyn']", "src"),
			Attr("img[srcset*='hdslb.com']", "src"),
			Attr("img[srcset*='hdslb.com']", "srcset"),
			Attr("source[srcset*='hdslb.com']", "srcset"),
		},
		Videos: []Locator{
			Attr("video source", "src"),
			Attr(".video-box video", "src"),
			Attr(".media video", "src"),
		},
	}
}

// ParseProfile decodes a YAML profile. Fields left out of the document keep
// the values from DefaultProfile.
func ParseProfile(data []byte) (*Profile, error) {
	profile := DefaultProfile()
	if err := yaml.Unmarshal(data, &profile); err != nil {
		return nil, fmt.Errorf("failed to parse profile: %w", err)
	}
	if err := profile.Validate(); err != nil {
		return nil, err
	}
	return &profile, nil
}

// LoadProfile reads a YAML profile from path. An empty path returns the
// default profile.
func LoadProfile(path string) (*Profile, error) {
	if path == "" {
		profile := DefaultProfile()
		return &profile, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read profile: %w", err)
	}

	return ParseProfile(data)
}
