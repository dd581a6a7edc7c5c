package constants

import "os"

// FevmEnableEthRPC enables storing a mapping of eth transaction hashes to filecoin message Cids.
var FevmEnableEthRPC = os.Getenv("VENUS_FEVM_ENABLEETHRPC") == "1"

// ChainIndexCacheEnv overrides the size of the chain index tipset cache.
const ChainIndexCacheEnv = "CHAIN_INDEX_CACHE"
