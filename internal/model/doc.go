// Package model defines the data carried between the sync engine, the REST
// API and the push transport.
//
// # Identity
//
// A conversation is either direct (keyed by the peer user id) or a group
// (keyed by the group id). ConversationRef is the comparable key used by every
// other package; ConversationRef.Key renders it as "direct:<id>" or
// "group:<id>" for logs, caches and maps that need a string.
//
// # Wire Format
//
// PushEvent mirrors the JSON the server emits on the push channel and returns
// from the message endpoints. Server ids may be JSON numbers or strings; both
// decode into ID. Timestamps are accepted with or without a zone; zone-less
// values are UTC.
//
// Action is a closed variant (create, edit, delete). An absent action tag
// decodes to Create; any other unknown tag is a decode error.
package model
