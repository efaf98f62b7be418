package domain

import "errors"

var (
	ErrTemplateFormat      = errors.New("invalid template")
	ErrTaskNotFound        = errors.New("task not found")
	ErrCatalogEmpty        = errors.New("no standard tasks in the catalog")
	ErrInsufficientCatalog = errors.New("not enough standard tasks in the catalog")
	ErrVoteOpen            = errors.New("a vote is already open")
	ErrNoActiveVote        = errors.New("no active vote")
)
