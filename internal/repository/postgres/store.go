package postgres

import (
	"github.com/and161185/clubpay/internal/payment"
	"github.com/and161185/clubpay/internal/repository"
)

// Store bundles the repositories the purchase flow reads and writes.
type Store struct {
	*PaymentRepo
	*CodeRepo
	*TariffRepo
}

var (
	_ payment.Store                       = (*Store)(nil)
	_ payment.AtomicCompletionStore       = (*Store)(nil)
	_ repository.PaymentRepository        = (*PaymentRepo)(nil)
	_ repository.ActivationCodeRepository = (*CodeRepo)(nil)
	_ repository.TariffRepository         = (*TariffRepo)(nil)
	_ repository.UserRepository           = (*UserRepo)(nil)
)

// NewStore constructs a Store over db.
func NewStore(db *DB) *Store {
	return &Store{
		PaymentRepo: NewPaymentRepo(db),
		CodeRepo:    NewCodeRepo(db),
		TariffRepo:  NewTariffRepo(db),
	}
}
