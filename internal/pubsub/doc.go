// Package pubsub provides in-process publish-subscribe topics with a bounded
// replay depth.
//
// A Topic fans every published value out to all active subscribers in
// subscription order. Topics created with ReplayLatest remember the most
// recent value and hand it to new subscribers immediately; ReplayNone topics
// deliver only values published after Subscribe returns. Nothing is buffered
// beyond that single value.
//
// Delivery is synchronous on the publishing goroutine. Callers that need
// ordering across publishes must serialise their Publish calls.
package pubsub
