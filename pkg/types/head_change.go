package types

// HeadChangeType distinguishes the kinds of head change events.
type HeadChangeType = string

const (
	HCRevert  HeadChangeType = "revert"
	HCApply   HeadChangeType = "apply"
	HCCurrent HeadChangeType = "current"
)

// HeadChange is published whenever the heaviest tipset changes.
type HeadChange struct {
	Type HeadChangeType
	Val  *TipSet
}
