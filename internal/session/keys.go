package session

import "github.com/google/uuid"

const FeedKey = "voicecards:feed"

// RepliesKey is the cache key for the replies of one card
func RepliesKey(parentID uuid.UUID) string {
	return "voicecards:replies:" + parentID.String()
}
