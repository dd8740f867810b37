package models

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// TagUsage controls how a tag's value routes a finished file
type TagUsage string

const (
	// TagUsageDirectory places the file in a subdirectory named after the tag value
	TagUsageDirectory TagUsage = "directory"
	// TagUsagePrefix prepends the tag value to the filename
	TagUsagePrefix TagUsage = "prefix"
	// TagUsageSuffix appends the tag value to the filename (before the extension)
	TagUsageSuffix TagUsage = "suffix"
)

// ParseTagUsage converts a string to a TagUsage (case-insensitive)
func ParseTagUsage(value string) (TagUsage, error) {
	switch u := TagUsage(strings.ToLower(strings.TrimSpace(value))); u {
	case TagUsageDirectory, TagUsagePrefix, TagUsageSuffix:
		return u, nil
	default:
		return "", fmt.Errorf("unknown tag usage: %q", value)
	}
}

// Tag is a routing/labeling annotation attached to jobs
type Tag struct {
	ID    uint64   `json:"id" badgerhold:"key"`
	Name  string   `json:"name" validate:"required,max=100"`
	Value string   `json:"value" validate:"required,max=100"`
	Usage TagUsage `json:"usage" validate:"required,oneof=directory prefix suffix"`
	Color string   `json:"color,omitempty" validate:"omitempty,hexcolor"`

	// Priority is the secondary scheduling key: 0 is normal, higher runs later
	Priority int `json:"priority" validate:"min=0"`
}

// Validate checks the tag using go-playground/validator
func (t *Tag) Validate() error {
	validate := validator.New()
	return validate.Struct(t)
}

// DefaultTags returns the tags seeded into an empty store
func DefaultTags() []*Tag {
	return []*Tag{
		{
			Name:     "Watch Later",
			Value:    "youtube_later",
			Usage:    TagUsageDirectory,
			Color:    "#f43f5e",
			Priority: 1,
		},
	}
}
