package nifti

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"

	"lungseg/internal/models"
)

// Extension is a raw NIfTI header extension
type Extension struct {
	Code int32
	Data []byte
}

// metadataDocument is the YAML payload of the metadata extension
type metadataDocument struct {
	SpatialMetadata *models.SpatialMetadata `yaml:"spatialMetadata"`
	Attributes      map[string]string       `yaml:"attributes,omitempty"`
}

func metadataExtension(meta models.SpatialMetadata, attrs map[string]string) (Extension, error) {
	data, err := yaml.Marshal(metadataDocument{SpatialMetadata: &meta, Attributes: attrs})
	if err != nil {
		return Extension{}, fmt.Errorf("error marshaling metadata extension: %w", err)
	}
	return Extension{Code: ExtensionComment, Data: data}, nil
}

// parseMetadataExtension returns the embedded document, or nil when ext
// does not carry one
func parseMetadataExtension(ext Extension) *metadataDocument {
	if ext.Code != ExtensionComment {
		return nil
	}

	var doc metadataDocument
	if err := yaml.Unmarshal(bytes.TrimRight(ext.Data, "\x00"), &doc); err != nil {
		return nil
	}
	if doc.SpatialMetadata == nil {
		return nil
	}
	return &doc
}

// paddedSize returns the on-disk size of ext including its 8 byte header
func (ext Extension) paddedSize() int {
	n := 8 + len(ext.Data)
	if rem := n % 16; rem != 0 {
		n += 16 - rem
	}
	return n
}
