package seed

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/tunevault/tunevault/internal/creatorstats"
	"gorm.io/gorm"
)

const (
	demoCreatorMobile    = "+250780000000"
	demoCreatorFollowers = 1200
)

var demoTracks = []struct {
	Title   string
	Plays   int64
	ForSale bool
	Price   int64
}{
	{Title: "Kigali Nights", Plays: 5400, ForSale: true, Price: 2500},
	{Title: "Nyanza Sunrise", Plays: 1800, ForSale: true, Price: 1500},
	{Title: "Open Road (Demo)", Plays: 300},
}

// EnsureDemoCatalog seeds a demo artist profile and a small track catalog so a
// fresh local install has something to monetize and purchase. It is a no-op
// when any tracks already exist.
func EnsureDemoCatalog(db *gorm.DB) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return err
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.WithContext(ctx).Model(&creatorstats.Track{}).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return nil
		}

		now := time.Now().UTC()
		creator := creatorstats.CreatorProfile{
			CreatorID:      node.Generate(),
			FollowersCount: demoCreatorFollowers,
			MobileNumber:   demoCreatorMobile,
			UpdatedAt:      now,
		}
		if err := tx.WithContext(ctx).Create(&creator).Error; err != nil {
			return err
		}

		for _, t := range demoTracks {
			track := creatorstats.Track{
				ID:        node.Generate(),
				CreatorID: creator.CreatorID,
				Title:     t.Title,
				Plays:     t.Plays,
				ForSale:   t.ForSale,
				Price:     t.Price,
				AudioURL:  "",
				CreatedAt: now,
			}
			if err := tx.WithContext(ctx).Create(&track).Error; err != nil {
				return err
			}
		}
		return nil
	})
}
