package models

import "errors"

var (
	ErrUnauthenticated  = errors.New("unauthenticated")
	ErrCSRFRejected     = errors.New("invalid csrf token")
	ErrForbidden        = errors.New("forbidden")
	ErrNotFound         = errors.New("not found")
	ErrInvalidParams    = errors.New("invalid parameters")
	ErrInvalidAssertion = errors.New("invalid identity assertion")
	ErrPayloadTooLarge  = errors.New("request body too large")
)

var (
	ErrRedisConnection = errors.New("redis connection error")
	ErrRedisGet        = errors.New("redis get error")
	ErrRedisSet        = errors.New("redis set error")
	ErrRedisDelete     = errors.New("redis delete error")
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionInvalid  = errors.New("session invalid")
	ErrSessionCreating = errors.New("error creating session")
	ErrSessionUpdating = errors.New("error updating session")
	ErrSessionDeleting = errors.New("error deleting session")
)

var (
	ErrDatabaseConnection = errors.New("database connection error")
	ErrDatabaseQuery      = errors.New("database query error")
	ErrDatabaseInsert     = errors.New("database insert error")
	ErrDatabaseUpdate     = errors.New("database update error")
)

var (
	ErrQueuePublish = errors.New("queue publish error")
	ErrQueueConsume = errors.New("queue consume error")
)
