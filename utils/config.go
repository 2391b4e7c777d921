package utils

import (
	"bytes"
	"io"
	"os"

	"sao-files/types"

	"github.com/BurntSushi/toml"
	"github.com/kelseyhightower/envconfig"
	"github.com/mitchellh/go-homedir"
)

// NodeBytes serializes a config struct to toml.
func NodeBytes(cfg interface{}) ([]byte, error) {
	buf := new(bytes.Buffer)
	e := toml.NewEncoder(buf)
	if err := e.Encode(cfg); err != nil {
		return nil, types.Wrap(types.ErrEncodeConfigFailed, err)
	}

	return buf.Bytes(), nil
}

// FromFile loads a toml config from path into def, which also carries the
// defaults for fields the file leaves out.
func FromFile(path string, def interface{}) (interface{}, error) {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(expanded)
	if err != nil {
		return nil, err
	}
	defer file.Close() //nolint:errcheck

	return FromReader(file, def)
}

// FromReader loads a toml config from reader into def. Environment
// variables prefixed with SAOFILES override file values.
func FromReader(reader io.Reader, def interface{}) (interface{}, error) {
	cfg := def
	_, err := toml.NewDecoder(reader).Decode(cfg)
	if err != nil {
		return nil, types.Wrap(types.ErrDecodeConfigFailed, err)
	}

	err = envconfig.Process("SAOFILES", cfg)
	if err != nil {
		return nil, types.Wrap(types.ErrDecodeConfigFailed, err)
	}

	return cfg, nil
}
