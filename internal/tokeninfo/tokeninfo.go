// Package tokeninfo inspects SPL token mints: decimals, authority risk,
// on-chain metadata, and current price. Results are cached since the
// same mint is typically inspected many times in quick succession when
// a signal fans out.
package tokeninfo

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"solana-trade-bot/internal/domain"
	"solana-trade-bot/internal/solana"
	"solana-trade-bot/internal/txbuild"
)

// ErrNotAToken indicates the address does not hold a token mint.
var ErrNotAToken = errors.New("account is not a token mint")

// MetadataProgramID is the Metaplex token metadata program.
const MetadataProgramID = "metaqbxxUerdq28cj1RbAWkYQm3ybzjb6a8bt518x1s"

const (
	cacheTTL     = 5 * time.Minute
	cacheCleanup = 10 * time.Minute
)

// Mint account layout offsets.
const (
	mintAuthorityOptionOffset = 0
	mintDecimalsOffset        = 44
	mintFreezeAuthorityOption = 46
	mintAccountSize           = 82
	authorityOptionSome       = 1
)

// AccountReader fetches raw account data.
type AccountReader interface {
	GetAccountInfo(ctx context.Context, pubkey string) (*solana.AccountInfo, error)
}

// PriceSource quotes a mint's current price in USD.
type PriceSource interface {
	GetPrice(ctx context.Context, mint string) (float64, error)
}

// Service inspects token mints.
type Service struct {
	rpc   AccountReader
	price PriceSource
	cache *gocache.Cache
	log   *log.Logger
}

// NewService creates a token inspection service.
func NewService(rpc AccountReader, price PriceSource, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Default()
	}
	return &Service{
		rpc:   rpc,
		price: price,
		cache: gocache.New(cacheTTL, cacheCleanup),
		log:   logger,
	}
}

// Describe inspects a mint and returns its descriptor. The descriptor
// is cached; price is refreshed on every call since it moves faster
// than mint structure.
func (s *Service) Describe(ctx context.Context, mint string) (*domain.TokenDescriptor, error) {
	if cached, ok := s.cache.Get(mint); ok {
		desc := cached.(domain.TokenDescriptor)
		s.refreshPrice(ctx, &desc)
		return &desc, nil
	}

	info, err := s.rpc.GetAccountInfo(ctx, mint)
	if err != nil {
		return nil, fmt.Errorf("get mint account: %w", err)
	}
	if info == nil {
		return nil, fmt.Errorf("%w: account %s not found", ErrNotAToken, mint)
	}
	if info.Owner != txbuild.TokenProgramID && info.Owner != txbuild.Token2022ProgramID {
		return nil, fmt.Errorf("%w: owner %s", ErrNotAToken, info.Owner)
	}
	if len(info.Data) < mintAccountSize {
		return nil, fmt.Errorf("%w: mint data truncated", ErrNotAToken)
	}

	desc := domain.TokenDescriptor{
		Mint:     mint,
		Decimals: info.Data[mintDecimalsOffset],
		Risk:     riskScore(info.Data),
	}

	name, symbol := s.fetchMetadata(ctx, mint)
	desc.Name = name
	desc.Symbol = symbol

	s.refreshPrice(ctx, &desc)
	s.cache.Set(mint, desc, gocache.DefaultExpiration)
	return &desc, nil
}

// riskScore grades a mint by its retained authorities. A freeze
// authority can lock holder accounts outright; a mint authority can
// dilute holders.
func riskScore(data []byte) int {
	if binary.LittleEndian.Uint32(data[mintFreezeAuthorityOption:]) == authorityOptionSome {
		return domain.RiskFreezeAuthority
	}
	if binary.LittleEndian.Uint32(data[mintAuthorityOptionOffset:]) == authorityOptionSome {
		return domain.RiskMintAuthority
	}
	return domain.RiskNone
}

// Metadata account layout: key u8, update authority 32, mint 32, then
// borsh strings for name and symbol.
const metadataNameOffset = 65

// fetchMetadata reads the mint's Metaplex metadata account. Missing or
// malformed metadata degrades to empty fields; many fresh mints have
// none yet.
func (s *Service) fetchMetadata(ctx context.Context, mint string) (name, symbol string) {
	pda, err := metadataAddress(mint)
	if err != nil {
		s.log.Printf("metadata pda for %s: %v", mint, err)
		return "", ""
	}

	info, err := s.rpc.GetAccountInfo(ctx, pda)
	if err != nil || info == nil {
		return "", ""
	}

	data := info.Data
	name, next, ok := readBorshString(data, metadataNameOffset)
	if !ok {
		return "", ""
	}
	symbol, _, ok = readBorshString(data, next)
	if !ok {
		return name, ""
	}
	return name, symbol
}

// metadataAddress derives the Metaplex metadata PDA for a mint.
func metadataAddress(mint string) (string, error) {
	program, err := txbuild.PublicKeyFromBase58(MetadataProgramID)
	if err != nil {
		return "", err
	}
	mintKey, err := txbuild.PublicKeyFromBase58(mint)
	if err != nil {
		return "", err
	}
	seeds := [][]byte{
		[]byte("metadata"),
		program[:],
		mintKey[:],
	}
	pda, _, err := txbuild.FindProgramAddress(seeds, program)
	if err != nil {
		return "", err
	}
	return pda.String(), nil
}

// readBorshString reads a u32-length-prefixed string. Metadata strings
// are padded with NULs to a fixed width.
func readBorshString(data []byte, offset int) (string, int, bool) {
	if offset+4 > len(data) {
		return "", 0, false
	}
	n := int(binary.LittleEndian.Uint32(data[offset:]))
	start := offset + 4
	if n < 0 || start+n > len(data) {
		return "", 0, false
	}
	s := strings.TrimRight(string(data[start:start+n]), "\x00")
	return s, start + n, true
}

// refreshPrice updates the descriptor's price in place. Price lookups
// are advisory; failures leave the last known value.
func (s *Service) refreshPrice(ctx context.Context, desc *domain.TokenDescriptor) {
	if s.price == nil {
		return
	}
	price, err := s.price.GetPrice(ctx, desc.Mint)
	if err != nil {
		s.log.Printf("price for %s: %v", desc.Mint, err)
		return
	}
	desc.Price = price
	s.cache.Set(desc.Mint, *desc, gocache.DefaultExpiration)
}
