package config

import (
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/network"
)

// NetworkParamsConfig describes the network the chain belongs to.
type NetworkParamsConfig struct {
	NetworkType      string             `toml:"networkType"`
	ChainFinality    abi.ChainEpoch     `toml:"chainFinality"`
	ForkUpgradeParam *ForkUpgradeConfig `toml:"forkUpgradeParam"`
	// FixedNetworkPower is the quality adjusted power, in bytes, the EC weight
	// assumes when no power actor reader is wired in.
	FixedNetworkPower int64 `toml:"fixedNetworkPower"`
}

// ForkUpgradeConfig lists the epoch after which each network version applies.
// A negative height means the upgrade is active from genesis.
type ForkUpgradeConfig struct {
	UpgradeBreezeHeight     abi.ChainEpoch `toml:"upgradeBreezeHeight"`
	UpgradeSmokeHeight      abi.ChainEpoch `toml:"upgradeSmokeHeight"`
	UpgradeIgnitionHeight   abi.ChainEpoch `toml:"upgradeIgnitionHeight"`
	UpgradeAssemblyHeight   abi.ChainEpoch `toml:"upgradeAssemblyHeight"`
	UpgradeTapeHeight       abi.ChainEpoch `toml:"upgradeTapeHeight"`
	UpgradeKumquatHeight    abi.ChainEpoch `toml:"upgradeKumquatHeight"`
	UpgradeCalicoHeight     abi.ChainEpoch `toml:"upgradeCalicoHeight"`
	UpgradePersianHeight    abi.ChainEpoch `toml:"upgradePersianHeight"`
	UpgradeOrangeHeight     abi.ChainEpoch `toml:"upgradeOrangeHeight"`
	UpgradeTrustHeight      abi.ChainEpoch `toml:"upgradeTrustHeight"`
	UpgradeNorwegianHeight  abi.ChainEpoch `toml:"upgradeNorwegianHeight"`
	UpgradeTurboHeight      abi.ChainEpoch `toml:"upgradeTurboHeight"`
	UpgradeHyperdriveHeight abi.ChainEpoch `toml:"upgradeHyperdriveHeight"`
	UpgradeChocolateHeight  abi.ChainEpoch `toml:"upgradeChocolateHeight"`
	UpgradeOhSnapHeight     abi.ChainEpoch `toml:"upgradeOhSnapHeight"`
	UpgradeSkyrHeight       abi.ChainEpoch `toml:"upgradeSkyrHeight"`
	UpgradeSharkHeight      abi.ChainEpoch `toml:"upgradeSharkHeight"`
	UpgradeHyggeHeight      abi.ChainEpoch `toml:"upgradeHyggeHeight"`
}

// MainnetForkUpgrade is the mainnet upgrade schedule.
var MainnetForkUpgrade = ForkUpgradeConfig{
	UpgradeBreezeHeight:     41280,
	UpgradeSmokeHeight:      51000,
	UpgradeIgnitionHeight:   94000,
	UpgradeAssemblyHeight:   138720,
	UpgradeTapeHeight:       140760,
	UpgradeKumquatHeight:    170000,
	UpgradeCalicoHeight:     265200,
	UpgradePersianHeight:    272400,
	UpgradeOrangeHeight:     336458,
	UpgradeTrustHeight:      550321,
	UpgradeNorwegianHeight:  665280,
	UpgradeTurboHeight:      712320,
	UpgradeHyperdriveHeight: 892800,
	UpgradeChocolateHeight:  1231620,
	UpgradeOhSnapHeight:     1594680,
	UpgradeSkyrHeight:       1960320,
	UpgradeSharkHeight:      2383680,
	UpgradeHyggeHeight:      2683348,
}

// DevnetForkUpgrade activates every upgrade at genesis.
var DevnetForkUpgrade = ForkUpgradeConfig{
	UpgradeBreezeHeight:     -1,
	UpgradeSmokeHeight:      -2,
	UpgradeIgnitionHeight:   -3,
	UpgradeAssemblyHeight:   -4,
	UpgradeTapeHeight:       -5,
	UpgradeKumquatHeight:    -6,
	UpgradeCalicoHeight:     -7,
	UpgradePersianHeight:    -8,
	UpgradeOrangeHeight:     -9,
	UpgradeTrustHeight:      -10,
	UpgradeNorwegianHeight:  -11,
	UpgradeTurboHeight:      -12,
	UpgradeHyperdriveHeight: -13,
	UpgradeChocolateHeight:  -14,
	UpgradeOhSnapHeight:     -15,
	UpgradeSkyrHeight:       -16,
	UpgradeSharkHeight:      -17,
	UpgradeHyggeHeight:      -18,
}

func newDefaultNetworkParamsConfig() *NetworkParamsConfig {
	upgrades := MainnetForkUpgrade
	return &NetworkParamsConfig{
		NetworkType:       "mainnet",
		ChainFinality:     900,
		ForkUpgradeParam:  &upgrades,
		FixedNetworkPower: 1 << 60,
	}
}

type versionSpec struct {
	height  abi.ChainEpoch
	version network.Version
}

func (f *ForkUpgradeConfig) schedule() []versionSpec {
	return []versionSpec{
		{f.UpgradeBreezeHeight, network.Version1},
		{f.UpgradeSmokeHeight, network.Version2},
		{f.UpgradeIgnitionHeight, network.Version3},
		{f.UpgradeAssemblyHeight, network.Version4},
		{f.UpgradeTapeHeight, network.Version5},
		{f.UpgradeKumquatHeight, network.Version6},
		{f.UpgradeCalicoHeight, network.Version7},
		{f.UpgradePersianHeight, network.Version8},
		{f.UpgradeOrangeHeight, network.Version9},
		{f.UpgradeTrustHeight, network.Version10},
		{f.UpgradeNorwegianHeight, network.Version11},
		{f.UpgradeTurboHeight, network.Version12},
		{f.UpgradeHyperdriveHeight, network.Version13},
		{f.UpgradeChocolateHeight, network.Version14},
		{f.UpgradeOhSnapHeight, network.Version15},
		{f.UpgradeSkyrHeight, network.Version16},
		{f.UpgradeSharkHeight, network.Version17},
		{f.UpgradeHyggeHeight, network.Version18},
	}
}

// NetworkVersion returns the network version in force at height. An upgrade
// at height H takes effect from H+1.
func (p *NetworkParamsConfig) NetworkVersion(height abi.ChainEpoch) network.Version {
	if p.ForkUpgradeParam == nil {
		return network.Version0
	}

	version := network.Version0
	for _, upgrade := range p.ForkUpgradeParam.schedule() {
		if height > upgrade.height && upgrade.version > version {
			version = upgrade.version
		}
	}
	return version
}
