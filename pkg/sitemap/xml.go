package sitemap

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/tdewolff/minify/v2"
	xmlmin "github.com/tdewolff/minify/v2/xml"

	"github.com/Sriram-PR/sitemap-builder/pkg/utils"
)

const (
	SitemapNamespace = "http://www.sitemaps.org/schemas/sitemap/0.9"
	XHTMLNamespace   = "http://www.w3.org/1999/xhtml"
	xmlMediaType     = "text/xml"
)

// --- XML Structs for Sitemap Rendering ---

// XMLLink represents an <xhtml:link rel="alternate"> element
type XMLLink struct {
	Rel      string `xml:"rel,attr"`
	Hreflang string `xml:"hreflang,attr"`
	Href     string `xml:"href,attr"`
}

// XMLURL represents a <url> element in a url set
type XMLURL struct {
	Loc        string    `xml:"loc"`
	Alternates []XMLLink `xml:"xhtml:link"`
	LastMod    string    `xml:"lastmod,omitempty"`
	ChangeFreq string    `xml:"changefreq,omitempty"`
	Priority   string    `xml:"priority,omitempty"`
}

// XMLURLSet represents a <urlset> element
type XMLURLSet struct {
	XMLName    xml.Name `xml:"urlset"`
	Xmlns      string   `xml:"xmlns,attr"`
	XmlnsXHTML string   `xml:"xmlns:xhtml,attr"`
	URLs       []XMLURL `xml:"url"`
}

// XMLSitemap represents a <sitemap> element in a sitemap index file
type XMLSitemap struct {
	Loc     string `xml:"loc"`
	LastMod string `xml:"lastmod,omitempty"`
}

// XMLSitemapIndex represents a <sitemapindex> element
type XMLSitemapIndex struct {
	XMLName  xml.Name     `xml:"sitemapindex"`
	Xmlns    string       `xml:"xmlns,attr"`
	Sitemaps []XMLSitemap `xml:"sitemap"`
}

// --- Encoding ---

// encoder turns the XML structs into file bytes, applying minification and compression when enabled
type encoder struct {
	minifier *minify.M
	compress bool
}

func newEncoder(opts Options) *encoder {
	enc := &encoder{compress: opts.Compress}
	if opts.Minify {
		enc.minifier = minify.New()
		enc.minifier.AddFunc(xmlMediaType, xmlmin.Minify)
	}
	return enc
}

// urlSetDocument builds the <urlset> for one planned file.
// Metadata comes from the first contributing route; routes without a language code add no alternate.
func urlSetDocument(fd FileDescriptor) XMLURLSet {
	doc := XMLURLSet{
		Xmlns:      SitemapNamespace,
		XmlnsXHTML: XHTMLNamespace,
		URLs:       make([]XMLURL, 0, len(fd.CanonicalURLs)),
	}
	for _, canonical := range fd.CanonicalURLs {
		routes := fd.Entries[canonical]
		first := routes[0]

		entry := XMLURL{
			Loc:        canonical,
			ChangeFreq: string(first.ChangeFrequency),
			Priority:   FormatPriority(first.CrawlPriority),
		}
		for _, r := range routes {
			if r.LanguageCode == "" {
				continue
			}
			entry.Alternates = append(entry.Alternates, XMLLink{Rel: "alternate", Hreflang: r.LanguageCode, Href: r.URL()})
		}
		if !first.ModificationDate.IsZero() {
			entry.LastMod = first.ModificationDate.Format(time.RFC3339)
		}
		doc.URLs = append(doc.URLs, entry)
	}
	return doc
}

// indexDocument builds the root <sitemapindex> listing files in generation order
func (s *Sitemap) indexDocument(files []FileDescriptor) XMLSitemapIndex {
	doc := XMLSitemapIndex{
		Xmlns:    SitemapNamespace,
		Sitemaps: make([]XMLSitemap, 0, len(files)),
	}
	for _, fd := range files {
		entry := XMLSitemap{Loc: s.FileURL(fd)}
		if mod := fd.LastModified(); !mod.IsZero() {
			entry.LastMod = mod.Format(time.RFC3339)
		}
		doc.Sitemaps = append(doc.Sitemaps, entry)
	}
	return doc
}

// encode marshals v with the XML header and two-space indentation
func (e *encoder) encode(v any) ([]byte, error) {
	body, err := xml.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("%w: XML encoding failed: %w", utils.ErrParsing, err)
	}

	var buf bytes.Buffer
	buf.Grow(len(xml.Header) + len(body) + 1)
	buf.WriteString(xml.Header)
	buf.Write(body)
	buf.WriteByte('\n')
	data := buf.Bytes()

	if e.minifier != nil {
		data, err = e.minifier.Bytes(xmlMediaType, data)
		if err != nil {
			return nil, fmt.Errorf("%w: XML minification failed: %w", utils.ErrParsing, err)
		}
	}
	if e.compress {
		return gzipBytes(data)
	}
	return data, nil
}

// gzipBytes compresses data with a zero header timestamp so identical input gives identical output
func gzipBytes(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	gw, err := gzip.NewWriterLevel(&buf, gzip.BestCompression)
	if err != nil {
		return nil, err
	}
	if _, err := gw.Write(data); err != nil {
		return nil, err
	}
	if err := gw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
