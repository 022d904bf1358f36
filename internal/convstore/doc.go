// Package convstore holds the materialized message lists of conversations.
//
// Each conversation keeps its messages in ascending timestamp order. Messages
// with equal timestamps keep the order in which they arrived, so a bulk load
// preserves the server's order and a live insert lands after every message
// that shares its timestamp.
//
// Messages are unique by id. A create for an id that is already present
// overwrites the content and keeps the position; edit and delete for an id
// that is absent leave the store unchanged and return ErrMessageNotFound.
//
// The day grouping (messages bucketed by UTC calendar date) is derived on
// demand and cached until the conversation changes.
//
// A Store is not safe for concurrent use. The engine owns it and touches it
// only from its event loop.
package convstore
