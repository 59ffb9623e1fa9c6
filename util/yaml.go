package util

import (
	"bytes"
	"io"
	"os"

	"github.com/pkg/errors"
	yamlv2 "gopkg.in/yaml.v2"
	"gopkg.in/yaml.v3"
)

// ReadYAMLInto reads data from the given io.ReadCloser - until it hits
// an error or reaches EOF - and attempts to unmarshal the data read
// into the given interface.
func ReadYAMLInto(r io.ReadCloser, data interface{}) error {
	defer r.Close()
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(b, data)
}

// ReadFromYAMLFile unmarshals the contents of the named file into the
// given interface.
func ReadFromYAMLFile(fn string, data interface{}) error {
	if _, err := os.Stat(fn); os.IsNotExist(err) {
		return errors.Errorf("file '%s' does not exist", fn)
	}

	file, err := os.Open(fn)
	if err != nil {
		return errors.Wrapf(err, "opening file '%s'", fn)
	}
	defer file.Close()

	b, err := io.ReadAll(file)
	if err != nil {
		return err
	}

	return errors.Wrap(yaml.Unmarshal(b, data), "unmarshalling yaml")
}

// UnmarshalStrict unmarshals YAML in strict mode, rejecting documents
// containing fields that do not appear in the target structure.
func UnmarshalStrict(in []byte, data interface{}) error {
	dec := yaml.NewDecoder(bytes.NewReader(in))
	dec.KnownFields(true)
	if err := dec.Decode(data); err != nil && err != io.EOF {
		return err
	}
	return nil
}

// UnmarshalYAMLWithFallback attempts to unmarshal with yaml v3 and
// falls back to yaml v2, for documents depending on v2's more lenient
// handling of duplicated fields.
func UnmarshalYAMLWithFallback(in []byte, data interface{}) error {
	if err := yaml.Unmarshal(in, data); err != nil {
		// try the older version of yaml
		return yamlv2.Unmarshal(in, data)
	}

	return nil
}

// UnmarshalYAMLStrictWithFallback attempts to strictly unmarshal with
// yaml v3 and falls back to yaml v2. If both attempts fail, the v3
// error is returned.
func UnmarshalYAMLStrictWithFallback(in []byte, data interface{}) error {
	if err := UnmarshalStrict(in, data); err != nil {
		yamlErr := err
		if err := yamlv2.UnmarshalStrict(in, data); err != nil {
			return yamlErr
		}
	}

	return nil
}

// WriteToYAMLFile marshals the given interface and writes it to the
// named file, creating it with 0644 permissions if necessary.
func WriteToYAMLFile(fn string, data interface{}) error {
	out, err := yaml.Marshal(data)
	if err != nil {
		return errors.Wrap(err, "marshalling yaml")
	}

	return errors.Wrapf(os.WriteFile(fn, out, 0644), "writing file '%s'", fn)
}
