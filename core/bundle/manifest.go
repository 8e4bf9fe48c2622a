package bundle

import (
	"encoding/json"
	"time"

	"github.com/FocuswithJustin/standoffconverter/core/cas"
	"github.com/FocuswithJustin/standoffconverter/core/errors"
	"github.com/FocuswithJustin/standoffconverter/core/standoff"
)

// Version is the current bundle format version.
const Version = "1.0.0"

// Manifest describes a bundle (manifest.json).
type Manifest struct {
	BundleVersion string                    `json:"bundle_version"`
	ID            string                    `json:"id"`
	CreatedAt     string                    `json:"created_at"`
	Compression   Compression               `json:"compression"`
	Annotations   int                       `json:"annotations"`
	Chars         int                       `json:"chars"`
	Plain         cas.HashResult            `json:"plain"`
	Members       map[string]cas.HashResult `json:"members"`
}

func newManifest(s *standoff.Store, compression Compression, members map[string][]byte) *Manifest {
	if compression == "" {
		compression = CompressionXZ
	}
	m := &Manifest{
		BundleVersion: Version,
		ID:            newID(),
		CreatedAt:     timeNow().UTC().Format(time.RFC3339),
		Compression:   compression,
		Annotations:   len(s.Annotations()),
		Chars:         s.Len(),
		Plain:         s.Fingerprint(),
		Members:       make(map[string]cas.HashResult, len(members)),
	}
	for name, data := range members {
		m.Members[name] = cas.Sum(data)
	}
	return m
}

// ToJSON serializes the manifest to indented JSON.
func (m *Manifest) ToJSON() ([]byte, error) {
	return json.MarshalIndent(m, "", "  ")
}

// ParseManifest parses and checks a manifest.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, errors.NewParse("JSON", ManifestFile, err.Error())
	}
	if m.BundleVersion == "" {
		return nil, errors.NewValidation("bundle_version", "missing")
	}
	if m.BundleVersion != Version {
		return nil, errors.NewUnsupported("bundle version", m.BundleVersion)
	}
	if m.ID == "" {
		return nil, errors.NewValidation("id", "missing")
	}
	return &m, nil
}
