package confdesk

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/MixyLabs/confdesk/pkg/confdesk/util"
)

const knownDevicesConfigType = "json"

// ErrNeverPersisted is returned by Store.Load when nothing was ever saved
var ErrNeverPersisted = errors.New("known devices were never persisted")

// Store loads and saves the known devices registry
type Store interface {
	Load() (RegistrySnapshot, error)
	Save(snapshot RegistrySnapshot) error
}

// FileStore keeps the registry in a JSON file
type FileStore struct {
	logger *zap.SugaredLogger
	path   string
}

func NewFileStore(logger *zap.SugaredLogger, path string) *FileStore {
	fs := &FileStore{
		logger: logger.Named("store"),
		path:   path,
	}

	fs.logger.Debugw("Created file store instance", "path", path)

	return fs
}

func (fs *FileStore) Path() string {
	return fs.path
}

func (fs *FileStore) newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigFile(fs.path)
	v.SetConfigType(knownDevicesConfigType)

	return v
}

func (fs *FileStore) Load() (RegistrySnapshot, error) {
	var snapshot RegistrySnapshot

	if !util.FileExists(fs.path) {
		return snapshot, fmt.Errorf("%w: %s", ErrNeverPersisted, fs.path)
	}

	v := fs.newViper()
	if err := v.ReadInConfig(); err != nil {
		fs.logger.Warnw("Viper failed to read known devices", "error", err)
		return snapshot, fmt.Errorf("read known devices: %w", err)
	}

	err := v.Unmarshal(&snapshot, func(dConf *mapstructure.DecoderConfig) {
		dConf.WeaklyTypedInput = false
	})
	if err != nil {
		fs.logger.Warnw("Failed to decode known devices", "error", err)
		return RegistrySnapshot{}, fmt.Errorf("decode known devices: %w", err)
	}

	fs.logger.Debugw("Loaded known devices", "devices", len(snapshot.KnownDevices))

	return snapshot, nil
}

func (fs *FileStore) Save(snapshot RegistrySnapshot) error {
	encoded := map[string]interface{}{}
	if err := mapstructure.Decode(snapshot, &encoded); err != nil {
		fs.logger.Warnw("Failed to encode known devices", "error", err)
		return fmt.Errorf("encode known devices: %w", err)
	}

	if err := util.EnsureDirExists(filepath.Dir(fs.path)); err != nil {
		return fmt.Errorf("ensure known devices dir exists: %w", err)
	}

	v := fs.newViper()
	for key, value := range encoded {
		v.Set(key, value)
	}

	if err := v.WriteConfigAs(fs.path); err != nil {
		fs.logger.Warnw("Viper failed to write known devices", "error", err)
		return fmt.Errorf("write known devices: %w", err)
	}

	fs.logger.Debugw("Saved known devices", "devices", len(snapshot.KnownDevices))

	return nil
}
