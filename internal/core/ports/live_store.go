package ports

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ftso-network/ftso/internal/core/domain"
)

// LiveStore holds the per-round protocol data collected from the event
// stream. Every store is keyed by round and hands out copies.
type LiveStore interface {
	Commits() CommitsStore
	Reveals() RevealsStore
	OwnReveals() OwnRevealsStore
	Signatures() SignaturesStore
}

type CommitsStore interface {
	Set(round uint64, voter common.Address, commitHash common.Hash) error
	Get(round uint64) (map[common.Address]common.Hash, error)
	Delete(round uint64) error
}

type RevealsStore interface {
	Set(round uint64, reveal domain.Reveal) error
	Get(round uint64) (map[common.Address]domain.Reveal, error)
	Delete(round uint64) error
}

type OwnRevealsStore interface {
	Set(round uint64, reveal domain.OwnReveal) error
	Get(round uint64) (*domain.OwnReveal, error)
	Delete(round uint64) error
}

type SignaturesStore interface {
	Add(round uint64, signature domain.SignatureRecord) error
	Get(round uint64) ([]domain.SignatureRecord, error)
	Delete(round uint64) error
}
