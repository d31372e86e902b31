package assets

import "errors"

var (
	ErrCollectionNotFound = errors.New("assets: collection not found")
	ErrCollectionExists   = errors.New("assets: collection already exists")
	ErrTokenNotFound      = errors.New("assets: token not found")
	ErrTokenExists        = errors.New("assets: token already exists")
	ErrUnauthorized       = errors.New("assets: unauthorized")
	ErrWrongOwner         = errors.New("assets: from is not the owner")
)
