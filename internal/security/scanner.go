// Package security vets tokens after pair creation: factory provenance
// and holder concentration, persisted as one report per token.
package security

import (
	"context"
	"fmt"
	"log"
	"strings"

	"zigscan/internal/chain"
	"zigscan/internal/models"
	"zigscan/internal/repository"

	"github.com/shopspring/decimal"
)

const topHolderSample = 10

// Scanner builds token_security reports on demand. The fast-track
// listener calls Scan for the base and any non-native quote of a new
// pair.
type Scanner struct {
	repo        *repository.Repository
	client      *chain.Client
	nativeDenom string
}

func NewScanner(repo *repository.Repository, client *chain.Client, nativeDenom string) *Scanner {
	return &Scanner{repo: repo, client: client, nativeDenom: nativeDenom}
}

// Scan writes a fresh report for denom. The native token and IBC vouchers
// carry no factory or concentration signal and are skipped.
func (s *Scanner) Scan(ctx context.Context, denom string) error {
	if denom == s.nativeDenom || strings.HasPrefix(denom, "ibc/") {
		return nil
	}
	token, err := s.repo.GetTokenByDenom(ctx, denom)
	if err != nil {
		return err
	}
	if token == nil {
		return fmt.Errorf("scan %s: token not indexed", denom)
	}

	report := models.TokenSecurity{TokenID: token.ID}

	fd, err := s.client.GetFactoryDenom(ctx, denom)
	if err != nil {
		log.Printf("[Security] factory denom %s: %v", denom, err)
	} else if fd != nil {
		if fd.Creator != "" {
			creator := fd.Creator
			report.Creator = &creator
		}
		report.Mintable = mintable(fd)
	}

	count, err := s.repo.CountPositiveHolders(ctx, token.ID)
	if err != nil {
		return err
	}
	report.HoldersCount = count

	top, total, err := s.repo.TopHolderBalances(ctx, token.ID, topHolderSample)
	if err != nil {
		return err
	}
	report.TopHolderShare, report.Top10Share = concentration(top, total)

	if err := s.repo.UpsertTokenSecurity(ctx, report); err != nil {
		return err
	}
	log.Printf("[Security] scanned %s: holders=%d mintable=%v", denom, count, report.Mintable)
	return nil
}

// mintable reports whether supply can still grow: the cap is movable, or
// minted supply sits below it. Nil when the factory record is unreadable.
func mintable(fd *chain.FactoryDenom) *bool {
	if fd.CanChangeMintingCap {
		t := true
		return &t
	}
	minted, errM := decimal.NewFromString(fd.TotalMinted)
	max, errX := decimal.NewFromString(fd.MaxSupply)
	if errM != nil || errX != nil {
		return nil
	}
	v := minted.LessThan(max)
	return &v
}

// concentration is (largest, top-sample sum) as shares of the total
// positive balance, 9 decimal places. Nil shares when nothing is held.
func concentration(top []decimal.Decimal, total decimal.Decimal) (*decimal.Decimal, *decimal.Decimal) {
	if len(top) == 0 || total.Sign() <= 0 {
		return nil, nil
	}
	topShare := top[0].DivRound(total, 9)
	sum := decimal.Zero
	for _, b := range top {
		sum = sum.Add(b)
	}
	topN := sum.DivRound(total, 9)
	return &topShare, &topN
}
