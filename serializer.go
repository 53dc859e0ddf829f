package encrypteddata

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"

	"gopkg.in/yaml.v3"
)

// Serializer converts values to and from the plaintext stored inside each
// encrypted data file.
type Serializer interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, target any) error
}

// JSONSerializer is the default Serializer. Numbers decoded into an untyped
// target are kept as json.Number so that large integers survive intact.
type JSONSerializer struct{}

// Marshal implements Serializer
func (JSONSerializer) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

// Unmarshal implements Serializer. Trailing data after the first value is an
// error.
func (JSONSerializer) Unmarshal(data []byte, target any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(target); err != nil {
		return err
	}
	if _, err := dec.Token(); err != io.EOF {
		return errors.New("unexpected data after top-level value")
	}
	return nil
}

// YAMLSerializer stores values as YAML documents
type YAMLSerializer struct{}

// Marshal implements Serializer
func (YAMLSerializer) Marshal(v any) ([]byte, error) {
	return yaml.Marshal(v)
}

// Unmarshal implements Serializer. An empty document is an error rather than
// a silent zero value.
func (YAMLSerializer) Unmarshal(data []byte, target any) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return errors.New("empty yaml document")
	}
	return yaml.Unmarshal(data, target)
}

// LookupSerializer resolves "json" (default) or "yaml"
func LookupSerializer(name string) (Serializer, error) {
	switch name {
	case "", "json":
		return JSONSerializer{}, nil
	case "yaml", "yml":
		return YAMLSerializer{}, nil
	default:
		return nil, NewValidationError("serializer", name, "unknown serializer")
	}
}
