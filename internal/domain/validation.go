package domain

// Closed enumerations. The classifier, the YAML table loader and the
// persistence layer all validate against these sets so an unknown type can
// never reach the ledger.
var validTxTypes = map[TxType]bool{
	TxTransferSent: true, TxTransferReceived: true,
	TxTokenSent: true, TxTokenReceived: true,
	TxNFTSent: true, TxNFTReceived: true,
	TxNFTPurchase: true, TxNFTSale: true,
	TxStake: true, TxUnstake: true,
	TxBond: true, TxUnbond: true,
	TxEmissionReward: true, TxSlash: true,
	TxSwap: true, TxLiquidityAdd: true, TxLiquidityRemove: true,
	TxAirdrop: true, TxMint: true, TxBurn: true,
	TxApprove: true,
}

var validTaxTags = map[TaxTag]bool{
	TagPayment: true, TagReceive: true,
	TagStakingDeposit: true, TagUnstakingWithdraw: true,
	TagClaimRewards: true, TagTrade: true,
	TagLost: true, TagGiftSent: true, TagGiftReceived: true,
	TagOpenPosition: true, TagClosePosition: true,
}

// ValidTxType reports whether t belongs to the closed type enumeration.
func ValidTxType(t TxType) bool { return validTxTypes[t] }

// ValidTaxTag reports whether t belongs to the closed tag enumeration.
func ValidTaxTag(t TaxTag) bool { return validTaxTags[t] }

// ValidatePagination validates and limits pagination parameters.
func ValidatePagination(limit, offset int) (int, int) {
	const maxPageSize = 1000
	const defaultPageSize = 50

	if limit <= 0 {
		limit = defaultPageSize
	}

	if limit > maxPageSize {
		limit = maxPageSize
	}

	if offset < 0 {
		offset = 0
	}

	return limit, offset
}
