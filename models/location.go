package models

import (
	"time"
)

// LocationStatus tracks where a location is in the cleanup lifecycle.
// Transitions are linear and never go backwards:
// unclaimed -> claimed -> cleaned -> verified
type LocationStatus string

const (
	StatusUnclaimed LocationStatus = "unclaimed"
	StatusClaimed   LocationStatus = "claimed"
	// StatusPhotoUploaded is kept for rows seeded by the legacy flow where
	// photo upload and cleanup confirmation were separate steps. New
	// submissions land directly on StatusCleaned. Both are voteable.
	StatusPhotoUploaded LocationStatus = "photo_uploaded"
	StatusCleaned       LocationStatus = "cleaned"
	StatusVerified      LocationStatus = "verified"
)

// RewardState tags the payout sub-lifecycle of a verified location.
// Unlike Status, a failed payout is retryable.
type RewardState string

const (
	RewardStateNone    RewardState = ""
	RewardStatePending RewardState = "pending"
	RewardStatePaid    RewardState = "paid"
	RewardStateFailed  RewardState = "failed"
)

// Location represents a claimable cleanup site. Rows are never deleted —
// verified cleanups are a permanent public record for the gallery.
type Location struct {
	ID             string  `gorm:"primaryKey;type:uuid" json:"id"`
	Name           string  `gorm:"not null" json:"name"`
	Lat            float64 `gorm:"not null" json:"lat"`
	Lng            float64 `gorm:"not null" json:"lng"`
	BeforePhotoURL string  `gorm:"type:text" json:"beforePhotoUrl"`
	RewardTokens   int64   `gorm:"not null" json:"rewardTokens"`

	Status        LocationStatus `gorm:"not null;default:'unclaimed';index" json:"status"`
	ClaimedBy     *string        `gorm:"type:varchar(128);index" json:"claimedBy"`
	CleanedBy     *string        `gorm:"type:varchar(128)" json:"cleanedBy"`
	ClaimedAt     *time.Time     `json:"claimedAt"`
	AfterPhotoURL *string        `gorm:"type:text" json:"afterPhotoUrl"`

	// Payout fields. Rewarded is only ever true with a confirmed RewardTxRef.
	Rewarded    bool        `gorm:"not null;default:false" json:"rewarded"`
	RewardState RewardState `gorm:"type:varchar(16);not null;default:'';index" json:"rewardState"`
	RewardTxRef *string     `gorm:"type:varchar(256)" json:"rewardTxRef,omitempty"`
	RewardError *string     `gorm:"type:text" json:"rewardError,omitempty"`
	RewardedAt  *time.Time  `json:"rewardedAt,omitempty"`

	Votes []Vote `gorm:"foreignKey:LocationID" json:"votes,omitempty"`

	// Derived tallies, recomputed from Votes on every read. Never stored —
	// stored counters and the vote list would have to agree forever.
	Upvotes    int `gorm:"-" json:"upvotes"`
	Downvotes  int `gorm:"-" json:"downvotes"`
	TotalVotes int `gorm:"-" json:"totalVotes"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ComputeTally fills the derived vote counters from the loaded vote list.
func (l *Location) ComputeTally() {
	up, down := 0, 0
	for _, v := range l.Votes {
		if v.VoteType == VoteTypeUp {
			up++
		} else {
			down++
		}
	}
	l.Upvotes = up
	l.Downvotes = down
	l.TotalVotes = len(l.Votes)
}

// Voteable reports whether the location is in a submitted-but-unverified
// state that the community may vote on.
func (l *Location) Voteable() bool {
	return l.Status == StatusCleaned || l.Status == StatusPhotoUploaded
}
