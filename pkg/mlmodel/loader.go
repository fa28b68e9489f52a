package mlmodel

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"plugin"
	"strings"

	"github.com/solarops/sunforecast/pkg/modelmanager"
)

// envelopeName is the archive entry holding the estimator envelope when the
// artifact is a zip bundle.
const envelopeName = "estimator.json"

// pluginSymbol is the constructor a bundled plugin must export:
//
//	func NewEstimator(raw []byte) (mlmodel.Estimator, error)
const pluginSymbol = "NewEstimator"

// UnsupportedFileTypeError is returned when the registry reports a file type
// this service has no decoder for.
type UnsupportedFileTypeError struct {
	FileType string
}

func (e *UnsupportedFileTypeError) Error() string {
	return fmt.Sprintf("unsupported artifact file type %q", e.FileType)
}

// envelope is the common header of every serialized estimator.
type envelope struct {
	Estimator string `json:"estimator"`
}

// Decode turns raw artifact bytes into a runnable model. The file type from
// the metadata selects the decoder: joblib, pkl and pickle all carry a JSON
// estimator envelope; zip carries an envelope plus a compiled plugin.
func Decode(meta modelmanager.ModelMetadata, raw []byte) (*Model, error) {
	var (
		est Estimator
		err error
	)
	switch strings.ToLower(meta.FileType) {
	case "joblib", "pkl", "pickle":
		est, err = decodeEnvelope(raw)
	case "zip":
		est, err = decodeBundle(raw)
	default:
		return nil, &UnsupportedFileTypeError{FileType: meta.FileType}
	}
	if err != nil {
		return nil, fmt.Errorf("decode model %d (%s): %w", meta.ID, meta.FileType, err)
	}
	return &Model{Meta: meta, est: est}, nil
}

// decodeEnvelope parses a JSON estimator envelope into the matching
// estimator implementation.
func decodeEnvelope(raw []byte) (Estimator, error) {
	var head envelope
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, fmt.Errorf("parse estimator envelope: %w", err)
	}
	switch head.Estimator {
	case "linear":
		var est LinearEstimator
		if err := json.Unmarshal(raw, &est); err != nil {
			return nil, fmt.Errorf("parse linear estimator: %w", err)
		}
		if len(est.Weights) == 0 {
			return nil, fmt.Errorf("linear estimator has no weights")
		}
		return &est, nil
	case "forest":
		var est ForestEstimator
		if err := json.Unmarshal(raw, &est); err != nil {
			return nil, fmt.Errorf("parse forest estimator: %w", err)
		}
		if err := est.validate(); err != nil {
			return nil, err
		}
		return &est, nil
	default:
		return nil, fmt.Errorf("unknown estimator kind %q", head.Estimator)
	}
}

// decodeBundle extracts a zip artifact containing an estimator envelope and
// a compiled plugin, loads the plugin and hands it the envelope bytes.
//
// plugin.Open only accepts a filesystem path, so the shared object is
// written to a temp file first. The file is removed after loading; the
// runtime keeps loaded plugins mapped for the life of the process.
func decodeBundle(raw []byte) (Estimator, error) {
	zr, err := zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return nil, fmt.Errorf("open artifact bundle: %w", err)
	}

	var envBytes []byte
	var soFile *zip.File
	for _, f := range zr.File {
		switch {
		case filepath.Base(f.Name) == envelopeName:
			rc, err := f.Open()
			if err != nil {
				return nil, fmt.Errorf("open %s: %w", f.Name, err)
			}
			envBytes, err = io.ReadAll(rc)
			rc.Close()
			if err != nil {
				return nil, fmt.Errorf("read %s: %w", f.Name, err)
			}
		case strings.HasSuffix(f.Name, ".so"):
			soFile = f
		}
	}
	if envBytes == nil {
		return nil, fmt.Errorf("bundle is missing %s", envelopeName)
	}
	if soFile == nil {
		return nil, fmt.Errorf("bundle contains no plugin")
	}

	p, err := loadPlugin(soFile)
	if err != nil {
		return nil, err
	}

	sym, err := p.Lookup(pluginSymbol)
	if err != nil {
		return nil, fmt.Errorf("plugin is missing %s: %w", pluginSymbol, err)
	}
	ctor, ok := sym.(func([]byte) (Estimator, error))
	if !ok {
		return nil, fmt.Errorf("plugin symbol %s has wrong type %T", pluginSymbol, sym)
	}

	est, err := ctor(envBytes)
	if err != nil {
		return nil, fmt.Errorf("plugin constructor: %w", err)
	}
	return est, nil
}

func loadPlugin(f *zip.File) (*plugin.Plugin, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("open plugin %s: %w", f.Name, err)
	}
	defer rc.Close()

	tmp, err := os.CreateTemp("", "estimator-*.so")
	if err != nil {
		return nil, fmt.Errorf("stage plugin: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, rc); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("stage plugin: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("stage plugin: %w", err)
	}

	p, err := plugin.Open(tmp.Name())
	if err != nil {
		return nil, fmt.Errorf("load plugin %s: %w", f.Name, err)
	}
	return p, nil
}
