package common

// FeedOwnerParam is the query parameter that scopes a change-feed
// subscription to one owner.
const FeedOwnerParam = "owner"

// FeedPath is the HTTP path the change feed is served on.
const FeedPath = "/feed"
