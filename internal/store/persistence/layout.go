// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package persistence

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/ffutop/co2e-gateway/internal/store/model"
)

// File layout:
//
//	<Configuration>
//	  <Requests>
//	    <APIRequest id="..." quantity_name="energy">
//	      <Endpoint>https://...</Endpoint>
//	      <Parameters><energy>100</energy>...</Parameters>
//	      <Emission_factor><id>...</id>...</Emission_factor>
//	    </APIRequest>
//	    <Default id="...">2.5</Default>
//	  </Requests>
//	</Configuration>
//
// A missing Requests section reads as an empty document.

type xmlConfiguration struct {
	XMLName  xml.Name     `xml:"Configuration"`
	Requests *xmlRequests `xml:"Requests"`
}

type xmlRequests struct {
	APIRequests []xmlAPIRequest `xml:"APIRequest"`
	Defaults    []xmlDefault    `xml:"Default"`
}

type xmlAPIRequest struct {
	ID           string    `xml:"id,attr"`
	QuantityName string    `xml:"quantity_name,attr"`
	Endpoint     string    `xml:"Endpoint"`
	Parameters   xmlFields `xml:"Parameters"`
	Factors      xmlFields `xml:"Emission_factor"`
}

type xmlDefault struct {
	ID    string `xml:"id,attr"`
	Value string `xml:",chardata"`
}

// xmlFields is a group of named text nodes, e.g. <energy>100</energy>.
type xmlFields map[string]string

func (f xmlFields) MarshalXML(e *xml.Encoder, start xml.StartElement) error {
	if err := e.EncodeToken(start); err != nil {
		return err
	}
	names := make([]string, 0, len(f))
	for name := range f {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := e.EncodeElement(f[name], xml.StartElement{Name: xml.Name{Local: name}}); err != nil {
			return err
		}
	}
	return e.EncodeToken(start.End())
}

func (f *xmlFields) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	fields := xmlFields{}
	for {
		tok, err := d.Token()
		if err != nil {
			return err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			var value string
			if err := d.DecodeElement(&value, &t); err != nil {
				return err
			}
			fields[t.Name.Local] = value
		case xml.EndElement:
			*f = fields
			return nil
		}
	}
}

// decodeDocument parses the XML layout into a Document.
// Empty input reads as an empty document.
func decodeDocument(data []byte) (*model.Document, error) {
	doc := model.NewDocument()
	if len(bytes.TrimSpace(data)) == 0 {
		return doc, nil
	}

	var root xmlConfiguration
	if err := xml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}
	if root.Requests == nil {
		return doc, nil
	}

	for _, r := range root.Requests.APIRequests {
		doc.Templates = append(doc.Templates, model.RequestTemplate{
			ID:             r.ID,
			Endpoint:       strings.TrimSpace(r.Endpoint),
			QuantityField:  r.QuantityName,
			Parameters:     map[string]string(r.Parameters),
			FactorSelector: map[string]string(r.Factors),
		}.Clone())
	}
	for _, d := range root.Requests.Defaults {
		factor, err := strconv.ParseFloat(strings.TrimSpace(d.Value), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid factor for default %q: %w", d.ID, err)
		}
		doc.Defaults = append(doc.Defaults, model.DefaultEntry{ID: d.ID, Factor: factor})
	}
	return doc, nil
}

// encodeDocument renders a Document in the XML layout.
func encodeDocument(doc *model.Document) ([]byte, error) {
	root := xmlConfiguration{Requests: &xmlRequests{}}
	for _, t := range doc.Templates {
		root.Requests.APIRequests = append(root.Requests.APIRequests, xmlAPIRequest{
			ID:           t.ID,
			QuantityName: t.QuantityField,
			Endpoint:     t.Endpoint,
			Parameters:   xmlFields(t.Parameters),
			Factors:      xmlFields(t.FactorSelector),
		})
	}
	for _, d := range doc.Defaults {
		root.Requests.Defaults = append(root.Requests.Defaults, xmlDefault{
			ID:    d.ID,
			Value: strconv.FormatFloat(d.Factor, 'g', -1, 64),
		})
	}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(root); err != nil {
		return nil, fmt.Errorf("failed to encode configuration: %w", err)
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}
