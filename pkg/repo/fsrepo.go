package repo

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	badgerds "github.com/ipfs/go-ds-badger2"
	logging "github.com/ipfs/go-log/v2"
	"github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"

	"github.com/filecoin-project/venus-chain/pkg/config"
	"github.com/filecoin-project/venus-chain/pkg/util/blockstoreutil"
)

const (
	configFilename  = "config.toml"
	versionFilename = "version"

	chainDir = "chain"
	metaDir  = "metadata"
)

var log = logging.Logger("repo")

// NoRepoError is returned when trying to open a repo where one does not exist
type NoRepoError struct {
	Path string
}

func (err NoRepoError) Error() string {
	return fmt.Sprintf("no repo found in %s", err.Path)
}

// FSRepo keeps the config file, the version file and three badger stores
// under one directory: the blockstore, the chain metadata and the eth index.
type FSRepo struct {
	path    string
	version uint

	cfgLk sync.RWMutex
	cfg   *config.Config

	// opened holds every badger instance in open order, for Close.
	opened []Datastore

	bs    blockstoreutil.Blockstore
	chain Datastore
	meta  Datastore
}

var _ Repo = (*FSRepo)(nil)

// InitFSRepo writes the version and config files into targetPath, which must
// be missing or an empty writable directory. No store is created until open.
func InitFSRepo(targetPath string, version uint, cfg *config.Config) error {
	dir, err := homedir.Expand(targetPath)
	if err != nil {
		return err
	}

	if err := prepareEmptyDir(dir); err != nil {
		return err
	}

	if err := WriteVersion(dir, version); err != nil {
		return errors.Wrap(err, "initializing repo version failed")
	}
	if err := cfg.WriteFile(filepath.Join(dir, configFilename)); err != nil {
		return errors.Wrap(err, "initializing config file failed")
	}
	return nil
}

// OpenFSRepo opens a repo made by InitFSRepo. The on-disk version must equal version.
func OpenFSRepo(repoPath string, version uint) (*FSRepo, error) {
	dir, err := homedir.Expand(repoPath)
	if err != nil {
		return nil, err
	}

	if _, err := os.Stat(filepath.Join(dir, configFilename)); err != nil {
		if os.IsNotExist(err) {
			return nil, &NoRepoError{Path: dir}
		}
		return nil, errors.Wrap(err, "failed to check for repo config")
	}

	r := &FSRepo{path: dir, version: version}
	if err := r.open(); err != nil {
		_ = r.Close()
		return nil, err
	}
	return r, nil
}

func (r *FSRepo) open() error {
	onDisk, err := ReadVersion(r.path)
	if err != nil {
		return errors.Wrap(err, "failed to read version")
	}
	if onDisk != strconv.FormatUint(uint64(r.version), 10) {
		return fmt.Errorf("invalid repo version, got %s expected %d", onDisk, r.version)
	}

	cfgFile := filepath.Join(r.path, configFilename)
	if r.cfg, err = config.ReadFile(cfgFile); err != nil {
		return errors.Wrapf(err, "failed to read config file at %q", cfgFile)
	}

	dsCfg := r.cfg.Datastore
	if dsCfg.Type != "badgerds" {
		return fmt.Errorf("unknown datastore type in config: %s", dsCfg.Type)
	}

	blocksDs, err := r.openBadger(dsCfg.Path)
	if err != nil {
		return errors.Wrap(err, "failed to open datastore")
	}
	r.bs = blockstoreutil.NewBlockstore(blocksDs)
	if dsCfg.CacheBlocks {
		log.Infof("caching up to %d blocks, lru: %t", dsCfg.BlockCacheSize, dsCfg.BlockCacheLru)
		r.bs = blockstoreutil.NewCacheBlockStore(r.bs, dsCfg.BlockCacheLru, dsCfg.BlockCacheSize)
	}

	if r.chain, err = r.openBadger(chainDir); err != nil {
		return errors.Wrap(err, "failed to open chain datastore")
	}
	if r.meta, err = r.openBadger(metaDir); err != nil {
		return errors.Wrap(err, "failed to open meta datastore")
	}
	return nil
}

func (r *FSRepo) openBadger(dir string) (Datastore, error) {
	opts := badgerds.DefaultOptions
	opts.Truncate = true

	ds, err := badgerds.NewDatastore(filepath.Join(r.path, dir), &opts)
	if err != nil {
		return nil, err
	}
	r.opened = append(r.opened, ds)
	return ds, nil
}

// Config returns the configuration object.
func (r *FSRepo) Config() *config.Config {
	r.cfgLk.RLock()
	defer r.cfgLk.RUnlock()
	return r.cfg
}

// ReplaceConfig swaps in cfg and rewrites the config file through a temp
// file so a crash never leaves a half written config behind.
func (r *FSRepo) ReplaceConfig(cfg *config.Config) error {
	r.cfgLk.Lock()
	defer r.cfgLk.Unlock()

	tmp := filepath.Join(r.path, "."+configFilename+".temp")
	if err := cfg.WriteFile(tmp); err != nil {
		return err
	}
	if err := os.Rename(tmp, filepath.Join(r.path, configFilename)); err != nil {
		return err
	}
	r.cfg = cfg
	return nil
}

// Blockstore returns the blockstore, wrapped in a read cache when configured.
func (r *FSRepo) Blockstore() blockstoreutil.Blockstore {
	return r.bs
}

func (r *FSRepo) ChainDatastore() Datastore {
	return r.chain
}

func (r *FSRepo) MetaDatastore() Datastore {
	return r.meta
}

func (r *FSRepo) Version() uint {
	return r.version
}

func (r *FSRepo) Path() (string, error) {
	return r.path, nil
}

// Close closes every store opened so far, newest first.
func (r *FSRepo) Close() error {
	for i := len(r.opened) - 1; i >= 0; i-- {
		if err := r.opened[i].Close(); err != nil {
			return errors.Wrap(err, "failed to close datastore")
		}
	}
	r.opened = nil
	return nil
}

// WriteVersion writes the given version to the repo version file.
func WriteVersion(p string, version uint) error {
	return os.WriteFile(filepath.Join(p, versionFilename), []byte(strconv.FormatUint(uint64(version), 10)), 0644)
}

// ReadVersion returns the unparsed content of the version file in repoPath.
func ReadVersion(repoPath string) (string, error) {
	file, err := os.ReadFile(filepath.Join(repoPath, versionFilename))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(file)), nil
}

// prepareEmptyDir creates dir, or checks that an existing dir is an empty
// directory the process may write to.
func prepareEmptyDir(dir string) error {
	err := os.Mkdir(dir, 0775)
	if err == nil {
		return nil
	}
	if !os.IsExist(err) {
		return errors.Wrapf(err, "failed to create directory %s", dir)
	}

	stat, err := os.Stat(dir)
	if err != nil {
		return errors.Wrapf(err, "failed to stat path %q", dir)
	}
	if !stat.IsDir() {
		return errors.Errorf("%s is not a directory", dir)
	}
	if stat.Mode()&0600 != 0600 {
		return errors.Errorf("insufficient permissions for path %s, got %04o need %04o", dir, stat.Mode(), 0600)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return errors.Wrapf(err, "failed to list repo directory %s", dir)
	}
	if len(entries) > 0 {
		return fmt.Errorf("refusing to initialize repo in non-empty directory %s", dir)
	}
	return nil
}
