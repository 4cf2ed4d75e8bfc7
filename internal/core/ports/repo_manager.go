package ports

import "github.com/ftso-network/ftso/internal/core/domain"

type RepoManager interface {
	Events() domain.RoundEventRepository
	Rounds() domain.RoundRepository
	Results() domain.ResultRepository
	Claims() domain.ClaimRepository
	Close()
}
