package models

import "time"

// VoteType is a wallet's opinion on a submitted cleanup
type VoteType string

const (
	VoteTypeUp   VoteType = "up"
	VoteTypeDown VoteType = "down"
)

// Vote is one wallet's vote on one location. The composite unique index on
// (location_id, voter_id) is what enforces one-vote-per-wallet — concurrent
// duplicates lose at the database, not in application code. Votes are
// immutable after insert; there is no retraction or re-vote.
type Vote struct {
	ID         string    `gorm:"primaryKey;type:uuid" json:"id"`
	LocationID string    `gorm:"type:uuid;not null;uniqueIndex:idx_votes_location_voter" json:"locationId"`
	VoterID    string    `gorm:"type:varchar(128);not null;uniqueIndex:idx_votes_location_voter" json:"voterId"`
	VoteType   VoteType  `gorm:"type:varchar(8);not null" json:"voteType"`
	CastAt     time.Time `gorm:"not null;autoCreateTime" json:"castAt"`
}
