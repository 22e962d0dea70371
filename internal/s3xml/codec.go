package s3xml

import (
	"encoding/xml"
	"fmt"
	"io"
)

// Encode writes v as an XML document with the standard S3 prolog to w.
func Encode(w io.Writer, v any) error {
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	return xml.NewEncoder(w).Encode(v)
}

// Decode reads an XML document into v, wrapping any parse failure as a
// MalformedXML-flavored error message the caller can attach an S3 error
// code to.
func Decode(r io.Reader, v any) error {
	if err := xml.NewDecoder(r).Decode(v); err != nil {
		return fmt.Errorf("malformed xml body: %w", err)
	}
	return nil
}
