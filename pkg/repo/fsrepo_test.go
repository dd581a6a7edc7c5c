package repo

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	blocks "github.com/ipfs/go-block-format"
	"github.com/ipfs/go-datastore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/filecoin-project/venus-chain/pkg/config"
	tf "github.com/filecoin-project/venus-chain/pkg/testhelpers/testflags"
	"github.com/filecoin-project/venus-chain/pkg/util/blockstoreutil"
)

func TestFSRepoInit(t *testing.T) {
	tf.UnitTest(t)

	dir := t.TempDir()
	require.NoError(t, InitFSRepo(dir, LatestVersion, config.NewDefaultConfig()))

	content, err := os.ReadFile(filepath.Join(dir, configFilename))
	require.NoError(t, err)
	assert.Contains(t, string(content), "[cache]")

	version, err := ReadVersion(dir)
	require.NoError(t, err)
	assert.Equal(t, "1", version)

	// A second init into the same directory must fail.
	assert.Error(t, InitFSRepo(dir, LatestVersion, config.NewDefaultConfig()))
}

func TestFSRepoOpen(t *testing.T) {
	tf.IntegrationTest(t)

	t.Run("no repo", func(t *testing.T) {
		_, err := OpenFSRepo(t.TempDir(), LatestVersion)
		assert.IsType(t, &NoRepoError{}, err)
	})

	t.Run("wrong version", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, InitFSRepo(dir, LatestVersion, config.NewDefaultConfig()))
		_, err := OpenFSRepo(dir, LatestVersion+1)
		assert.Error(t, err)
	})

	t.Run("open and use", func(t *testing.T) {
		ctx := context.Background()
		dir := t.TempDir()
		cfg := config.NewDefaultConfig()
		cfg.Datastore.CacheBlocks = true
		require.NoError(t, InitFSRepo(dir, LatestVersion, cfg))

		r, err := OpenFSRepo(dir, LatestVersion)
		require.NoError(t, err)

		_, cached := r.Blockstore().(*blockstoreutil.CacheBlockStore)
		assert.True(t, cached)

		blk := blocks.NewBlock([]byte("stuff"))
		require.NoError(t, r.Blockstore().Put(ctx, blk))

		key := datastore.NewKey("/chain/heaviestTipSet")
		require.NoError(t, r.ChainDatastore().Put(ctx, key, []byte("head")))
		require.NoError(t, r.Close())

		r, err = OpenFSRepo(dir, LatestVersion)
		require.NoError(t, err)
		defer r.Close() // nolint: errcheck

		has, err := r.Blockstore().Has(ctx, blk.Cid())
		require.NoError(t, err)
		assert.True(t, has)

		val, err := r.ChainDatastore().Get(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, []byte("head"), val)
	})
}

func TestFSRepoReplaceConfig(t *testing.T) {
	tf.IntegrationTest(t)

	dir := t.TempDir()
	require.NoError(t, InitFSRepo(dir, LatestVersion, config.NewDefaultConfig()))

	r, err := OpenFSRepo(dir, LatestVersion)
	require.NoError(t, err)

	newCfg := config.NewDefaultConfig()
	newCfg.Cache.MsgsInTipsetCacheSize = 12
	require.NoError(t, r.ReplaceConfig(newCfg))
	require.NoError(t, r.Close())

	r, err = OpenFSRepo(dir, LatestVersion)
	require.NoError(t, err)
	defer r.Close() // nolint: errcheck
	assert.Equal(t, 12, r.Config().Cache.MsgsInTipsetCacheSize)
}

func TestMemRepo(t *testing.T) {
	tf.UnitTest(t)

	r := NewMemRepo()
	assert.Equal(t, LatestVersion, r.Version())
	assert.Equal(t, 100, r.Config().Cache.MsgsInTipsetCacheSize)

	cfg := config.NewDefaultConfig()
	cfg.Eth.ChainID = 1
	require.NoError(t, r.ReplaceConfig(cfg))
	assert.Equal(t, uint64(1), r.Config().Eth.ChainID)
	assert.NoError(t, r.Close())
}
