package usecase

import (
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/iho/chainledger/internal/domain"
)

// Classification is a hint-table row: what a semantic hint means in the
// canonical vocabulary.
type Classification struct {
	Type domain.TxType
	Tag  domain.TaxTag
	Note string
}

// HintTable maps lower-cased source hints to classifications within one
// semantic domain.
type HintTable map[string]Classification

// TableSet groups the per-domain hint tables. Cross-chain variation lives
// here as data; adding a source means adding rows, not code.
type TableSet struct {
	Staking HintTable
	Perps   HintTable
	DEX     HintTable
	NFT     HintTable
}

// lookupOrder fixes the resolution order when the same hint appears in more
// than one domain table.
func (s TableSet) lookupOrder() []HintTable {
	return []HintTable{s.Staking, s.Perps, s.DEX, s.NFT}
}

// Lookup resolves hint case-insensitively across the domain tables.
func (s TableSet) Lookup(hint string) (Classification, bool) {
	key := strings.ToLower(strings.TrimSpace(hint))
	if key == "" {
		return Classification{}, false
	}

	for _, table := range s.lookupOrder() {
		if c, ok := table[key]; ok {
			return c, true
		}
	}
	return Classification{}, false
}

// DefaultTables returns the built-in hint tables covering the staking,
// perpetual-futures, DEX and NFT-marketplace domains.
func DefaultTables() TableSet {
	return TableSet{
		Staking: HintTable{
			"validatorstake":   {Type: domain.TxStake, Tag: domain.TagStakingDeposit},
			"stake":            {Type: domain.TxStake, Tag: domain.TagStakingDeposit},
			"delegate":         {Type: domain.TxStake, Tag: domain.TagStakingDeposit},
			"unstake":          {Type: domain.TxUnstake, Tag: domain.TagUnstakingWithdraw},
			"undelegate":       {Type: domain.TxUnstake, Tag: domain.TagUnstakingWithdraw},
			"bond":             {Type: domain.TxBond, Tag: domain.TagStakingDeposit},
			"bondextra":        {Type: domain.TxBond, Tag: domain.TagStakingDeposit},
			"unbond":           {Type: domain.TxUnbond, Tag: domain.TagUnstakingWithdraw},
			"withdrawunbonded": {Type: domain.TxUnbond, Tag: domain.TagUnstakingWithdraw},
			"payoutstakers":    {Type: domain.TxEmissionReward, Tag: domain.TagClaimRewards},
			"reward":           {Type: domain.TxEmissionReward, Tag: domain.TagClaimRewards},
			"claimrewards":     {Type: domain.TxEmissionReward, Tag: domain.TagClaimRewards},
			"slash":            {Type: domain.TxSlash, Tag: domain.TagLost},
			"slashed":          {Type: domain.TxSlash, Tag: domain.TagLost},
			"contribute":       {Type: domain.TxBond, Tag: domain.TagStakingDeposit, Note: "crowdloan contribution"},
		},
		Perps: HintTable{
			"positionliquidated": {Type: domain.TxSwap, Tag: domain.TagClosePosition, Note: "liquidation"},
			"deleverage":         {Type: domain.TxSwap, Tag: domain.TagClosePosition, Note: "forced deleverage"},
			"claimfunding":       {Type: domain.TxTransferReceived, Tag: domain.TagClaimRewards, Note: "funding payment"},
			"payfunding":         {Type: domain.TxTransferSent, Tag: domain.TagPayment, Note: "funding payment"},
		},
		DEX: HintTable{
			"swap":             {Type: domain.TxSwap, Tag: domain.TagTrade},
			"swapexacttokens":  {Type: domain.TxSwap, Tag: domain.TagTrade},
			"addliquidity":     {Type: domain.TxLiquidityAdd, Tag: domain.TagTrade},
			"removeliquidity":  {Type: domain.TxLiquidityRemove, Tag: domain.TagTrade},
			"airdrop":          {Type: domain.TxAirdrop, Tag: domain.TagReceive},
			"mint":             {Type: domain.TxMint, Tag: domain.TagReceive},
			"burn":             {Type: domain.TxBurn, Tag: domain.TagPayment},
			"approve":          {Type: domain.TxApprove, Tag: domain.TagPayment},
			"tokentransferin":  {Type: domain.TxTokenReceived, Tag: domain.TagReceive},
			"tokentransferout": {Type: domain.TxTokenSent, Tag: domain.TagPayment},
		},
		NFT: HintTable{
			"nftbuy":         {Type: domain.TxNFTPurchase, Tag: domain.TagTrade},
			"nftsell":        {Type: domain.TxNFTSale, Tag: domain.TagTrade},
			"nftmint":        {Type: domain.TxMint, Tag: domain.TagReceive, Note: "nft mint"},
			"nfttransferin":  {Type: domain.TxNFTReceived, Tag: domain.TagGiftReceived},
			"nfttransferout": {Type: domain.TxNFTSent, Tag: domain.TagGiftSent},
		},
	}
}

// tableFile is the YAML overlay shape:
//
//	staking:
//	  PayoutStakers: {type: emission_reward, tag: claim_rewards}
type tableFile map[string]map[string]struct {
	Type string `yaml:"type"`
	Tag  string `yaml:"tag"`
	Note string `yaml:"note"`
}

// LoadTables reads a YAML hint-table overlay and merges it over the
// defaults. Overlay rows win; unknown types or tags are rejected so a typo
// in a table file cannot leak an open-vocabulary value into the ledger.
func LoadTables(r io.Reader) (TableSet, error) {
	set := DefaultTables()

	raw, err := io.ReadAll(r)
	if err != nil {
		return set, fmt.Errorf("read tables: %w", err)
	}

	var file tableFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return set, fmt.Errorf("parse tables: %w", err)
	}

	for name, rows := range file {
		table, err := set.tableByName(name)
		if err != nil {
			return set, err
		}
		for hint, row := range rows {
			c := Classification{Type: domain.TxType(row.Type), Tag: domain.TaxTag(row.Tag), Note: row.Note}
			if !domain.ValidTxType(c.Type) {
				return set, fmt.Errorf("table %s hint %q: unknown type %q", name, hint, row.Type)
			}
			if !domain.ValidTaxTag(c.Tag) {
				return set, fmt.Errorf("table %s hint %q: unknown tag %q", name, hint, row.Tag)
			}
			table[strings.ToLower(strings.TrimSpace(hint))] = c
		}
	}

	return set, nil
}

// LoadTablesFile is LoadTables over a file path.
func LoadTablesFile(path string) (TableSet, error) {
	f, err := os.Open(path)
	if err != nil {
		return DefaultTables(), fmt.Errorf("open tables: %w", err)
	}
	defer f.Close()

	return LoadTables(f)
}

func (s TableSet) tableByName(name string) (HintTable, error) {
	switch strings.ToLower(name) {
	case "staking":
		return s.Staking, nil
	case "perps", "perpetuals":
		return s.Perps, nil
	case "dex":
		return s.DEX, nil
	case "nft":
		return s.NFT, nil
	default:
		return nil, fmt.Errorf("unknown hint table %q", name)
	}
}
