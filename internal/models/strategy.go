package models

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// OptionStrategy describes one way of invoking the downloader.
// Strategies are tried in ascending Priority until one succeeds.
type OptionStrategy struct {
	ID                uint64 `json:"id" yaml:"-" badgerhold:"key"`
	Name              string `json:"name" yaml:"name" validate:"required,max=100"`
	Format            string `json:"format,omitempty" yaml:"format"`
	MergeOutputFormat string `json:"mergeOutputFormat,omitempty" yaml:"merge_output_format" validate:"omitempty,oneof=mp4 mkv webm mov avi flv"`
	EmbedThumbnail    bool   `json:"embedThumbnail" yaml:"embed_thumbnail"`
	ExtractAudio      bool   `json:"extractAudio" yaml:"extract_audio"`
	AudioFormat       string `json:"audioFormat,omitempty" yaml:"audio_format" validate:"omitempty,oneof=best aac alac flac m4a mp3 opus vorbis wav"`
	Priority          int    `json:"priority" yaml:"priority" validate:"min=0"`
	IsEnabled         bool   `json:"isEnabled" yaml:"enabled"`
	IsDefault         bool   `json:"isDefault" yaml:"default"`
}

// Validate checks the strategy using go-playground/validator
func (s *OptionStrategy) Validate() error {
	validate := validator.New()
	if err := validate.Struct(s); err != nil {
		return err
	}
	if s.ExtractAudio && s.AudioFormat == "" {
		return fmt.Errorf("audio format is required when extracting audio")
	}
	return nil
}

// FallbackStrategy is used when no strategy is enabled, so a job is never
// left permanently un-attempted because configuration is empty.
func FallbackStrategy() *OptionStrategy {
	return &OptionStrategy{
		Name:              "built-in default",
		Format:            "bestvideo+bestaudio[ext=m4a]/best",
		MergeOutputFormat: "mp4",
		IsEnabled:         true,
	}
}

const primaryVideoFormat = "bestvideo[height<=1080][height>=720][fps<=30]+bestaudio[ext=m4a][abr<=128]" +
	"/bestvideo[height<=1080][fps<=30]+bestaudio[ext=m4a]" +
	"/best[height<=1080]"

// DefaultStrategies returns the strategy cascade seeded into an empty store
func DefaultStrategies() []*OptionStrategy {
	return []*OptionStrategy{
		{Name: "main", Format: primaryVideoFormat, MergeOutputFormat: "mp4", EmbedThumbnail: true, Priority: 0, IsEnabled: true, IsDefault: true},
		{Name: "primary", Format: primaryVideoFormat, MergeOutputFormat: "mp4", EmbedThumbnail: true, Priority: 1, IsEnabled: true},
		{Name: "flexible merge", Format: "bestvideo[ext=mp4]+bestaudio[ext=m4a]/best", MergeOutputFormat: "mp4", EmbedThumbnail: true, Priority: 2, IsEnabled: true},
		{Name: "without thumbnail", Format: "bestvideo+bestaudio/best", MergeOutputFormat: "mp4", Priority: 3, IsEnabled: true},
		{Name: "auto-merge", MergeOutputFormat: "mp4", Priority: 4, IsEnabled: true},
		{Name: "best pre-merged", Format: "b", Priority: 5, IsEnabled: true},
		{Name: "raw download", Priority: 6, IsEnabled: true},
		{Name: "video-only", Format: "bestvideo[ext=mp4]/best", Priority: 7, IsEnabled: true},
		{Name: "mp3 default", Format: "bestaudio", ExtractAudio: true, AudioFormat: "mp3", Priority: 100, IsEnabled: false},
	}
}
