// Package creatorstats holds the follower and play counters the ledger reads.
// The platform's social and upload services own these numbers; this service
// only increments plays and reads snapshots.
package creatorstats

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

var ErrTrackNotFound = errors.New("track_not_found")

type CreatorProfile struct {
	CreatorID      snowflake.ID `json:"creator_id" gorm:"primaryKey"`
	FollowersCount int          `json:"followers_count" gorm:"not null;default:0"`
	MobileNumber   string       `json:"mobile_number" gorm:"type:text;not null;default:''"`
	UpdatedAt      time.Time    `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (CreatorProfile) TableName() string { return "creator_profiles" }

type Track struct {
	ID        snowflake.ID `json:"id" gorm:"primaryKey"`
	CreatorID snowflake.ID `json:"creator_id" gorm:"not null;index"`
	Title     string       `json:"title" gorm:"type:text;not null"`
	Plays     int64        `json:"plays" gorm:"not null;default:0"`
	ForSale   bool         `json:"for_sale" gorm:"not null;default:false"`
	// Price is in currency minor units; zero for free tracks.
	Price     int64     `json:"price" gorm:"not null;default:0"`
	AudioURL  string    `json:"audio_url" gorm:"type:text;not null;default:''"`
	CreatedAt time.Time `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Track) TableName() string { return "tracks" }

// Source is the read surface the earnings and payment ledgers depend on.
type Source interface {
	CreatorCounts(ctx context.Context, creatorID snowflake.ID) (followers int, tracks int, err error)
	CreatorTracks(ctx context.Context, creatorID snowflake.ID) ([]Track, error)
	TrackByID(ctx context.Context, trackID snowflake.ID) (*Track, error)
	CreatorMobile(ctx context.Context, creatorID snowflake.ID) (string, error)
	AddPlays(ctx context.Context, trackID snowflake.ID, count int64) (creatorID snowflake.ID, err error)
}

type store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) Source {
	return &store{db: db}
}

func (s *store) CreatorCounts(ctx context.Context, creatorID snowflake.ID) (int, int, error) {
	var followers int
	if err := s.db.WithContext(ctx).Raw(
		`SELECT COALESCE(followers_count, 0)
		 FROM creator_profiles
		 WHERE creator_id = ?`,
		creatorID,
	).Scan(&followers).Error; err != nil {
		return 0, 0, err
	}

	var tracks int
	if err := s.db.WithContext(ctx).Raw(
		`SELECT COUNT(*) FROM tracks WHERE creator_id = ?`,
		creatorID,
	).Scan(&tracks).Error; err != nil {
		return 0, 0, err
	}

	return followers, tracks, nil
}

func (s *store) CreatorTracks(ctx context.Context, creatorID snowflake.ID) ([]Track, error) {
	var items []Track
	err := s.db.WithContext(ctx).
		Where("creator_id = ?", creatorID).
		Order("created_at ASC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (s *store) TrackByID(ctx context.Context, trackID snowflake.ID) (*Track, error) {
	var item Track
	err := s.db.WithContext(ctx).Where("id = ?", trackID).Limit(1).Find(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (s *store) CreatorMobile(ctx context.Context, creatorID snowflake.ID) (string, error) {
	var mobile string
	err := s.db.WithContext(ctx).Raw(
		`SELECT COALESCE(mobile_number, '')
		 FROM creator_profiles
		 WHERE creator_id = ?`,
		creatorID,
	).Scan(&mobile).Error
	if err != nil {
		return "", err
	}
	return mobile, nil
}

// AddPlays applies a play-count increment atomically and reports the track owner.
func (s *store) AddPlays(ctx context.Context, trackID snowflake.ID, count int64) (snowflake.ID, error) {
	var creatorID snowflake.ID
	if err := s.db.WithContext(ctx).Raw(
		`SELECT creator_id FROM tracks WHERE id = ?`,
		trackID,
	).Scan(&creatorID).Error; err != nil {
		return 0, err
	}
	if creatorID == 0 {
		return 0, ErrTrackNotFound
	}

	if err := s.db.WithContext(ctx).Exec(
		`UPDATE tracks SET plays = plays + ? WHERE id = ?`,
		count,
		trackID,
	).Error; err != nil {
		return 0, err
	}

	return creatorID, nil
}
