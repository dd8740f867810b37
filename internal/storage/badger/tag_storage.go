package badger

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/tubeq/internal/interfaces"
	"github.com/ternarybob/tubeq/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

const tagSequence = "tag_seq"

// TagStorage implements the TagStorage interface for Badger
type TagStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewTagStorage creates a new TagStorage instance
func NewTagStorage(db *BadgerDB, logger arbor.ILogger) interfaces.TagStorage {
	return &TagStorage{
		db:     db,
		logger: logger,
	}
}

func (s *TagStorage) CreateTag(ctx context.Context, tag *models.Tag) error {
	id, err := s.db.NextID(tagSequence)
	if err != nil {
		return err
	}
	tag.ID = id

	if err := s.db.Store().Insert(id, tag); err != nil {
		return fmt.Errorf("failed to create tag: %w", err)
	}
	return nil
}

func (s *TagStorage) GetTag(ctx context.Context, id uint64) (*models.Tag, error) {
	var tag models.Tag
	if err := s.db.Store().Get(id, &tag); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, interfaces.ErrTagNotFound
		}
		return nil, fmt.Errorf("failed to get tag: %w", err)
	}
	return &tag, nil
}

func (s *TagStorage) ListTags(ctx context.Context) ([]*models.Tag, error) {
	var tags []models.Tag
	if err := s.db.Store().Find(&tags, nil); err != nil {
		return nil, fmt.Errorf("failed to list tags: %w", err)
	}

	result := make([]*models.Tag, len(tags))
	for i := range tags {
		result[i] = &tags[i]
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (s *TagStorage) UpdateTag(ctx context.Context, tag *models.Tag) error {
	if err := s.db.Store().Update(tag.ID, tag); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return interfaces.ErrTagNotFound
		}
		return fmt.Errorf("failed to update tag: %w", err)
	}
	return nil
}

// DeleteTag removes the tag. Jobs keep their TagID and are placed as untagged.
func (s *TagStorage) DeleteTag(ctx context.Context, id uint64) error {
	if err := s.db.Store().Delete(id, &models.Tag{}); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return interfaces.ErrTagNotFound
		}
		return fmt.Errorf("failed to delete tag: %w", err)
	}
	return nil
}

func (s *TagStorage) CountTags(ctx context.Context) (int, error) {
	count, err := s.db.Store().Count(&models.Tag{}, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to count tags: %w", err)
	}
	return int(count), nil
}
