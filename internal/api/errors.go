package api

import (
	"errors"
	"net/http"

	"github.com/atmx/zdte-vault/internal/asset"
	"github.com/atmx/zdte-vault/internal/contract"
	"github.com/atmx/zdte-vault/internal/oracle"
	"github.com/atmx/zdte-vault/internal/payoff"
	"github.com/atmx/zdte-vault/internal/pool"
	"github.com/atmx/zdte-vault/internal/vault"
)

var statusTable = []struct {
	status int
	errs   []error
}{
	{http.StatusBadRequest, []error{
		ErrInvalidHolder,
		vault.ErrInvalidAccount,
		pool.ErrInvalidAmount,
		pool.ErrZeroShares,
		payoff.ErrInvalidTerms,
		payoff.ErrNegativePremium,
		contract.ErrInvalidStrike,
		contract.ErrInvalidLongStrike,
		asset.ErrInvalidAmount,
		oracle.ErrInvalidPrice,
		oracle.ErrInvalidVolatility,
	}},
	{http.StatusPaymentRequired, []error{
		asset.ErrInsufficientBalance,
	}},
	{http.StatusNotFound, []error{
		vault.ErrPositionNotFound,
	}},
	{http.StatusConflict, []error{
		pool.ErrInsufficientLiquidity,
		pool.ErrInsufficientShares,
		pool.ErrPoolInsolvent,
		vault.ErrNotYetExpired,
		vault.ErrAlreadySettled,
		vault.ErrMarketExpired,
		vault.ErrNoLiquidityProviders,
	}},
	{http.StatusServiceUnavailable, []error{
		oracle.ErrNoPrice,
		oracle.ErrStalePrice,
	}},
}

// statusOf maps an operation error to an HTTP status. Unknown errors,
// including vault.ErrSettlementOverrun and store failures, are 500.
func statusOf(err error) int {
	for _, row := range statusTable {
		for _, target := range row.errs {
			if errors.Is(err, target) {
				return row.status
			}
		}
	}
	return http.StatusInternalServerError
}
