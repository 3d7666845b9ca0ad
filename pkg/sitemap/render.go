package sitemap

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

const (
	fileBaseName = "sitemap"
	xmlExt       = ".xml"
	gzipExt      = ".xml.gz"
)

// FileDescriptor is one planned url-set file
type FileDescriptor struct {
	SubFolderPath string
	FileName      string
	CanonicalURLs []string            // Sorted, one <url> each
	Entries       map[string][]*Route // Canonical URL -> contributing routes, in alternate order
}

// LastModified returns the newest <lastmod> among the file's entries, or the zero time
func (fd FileDescriptor) LastModified() time.Time {
	var newest time.Time
	for _, canonical := range fd.CanonicalURLs {
		routes := fd.Entries[canonical]
		if len(routes) == 0 {
			continue
		}
		if mod := routes[0].ModificationDate; mod.After(newest) {
			newest = mod
		}
	}
	return newest
}

// newComparator orders strings the way a reader expects: "page2" before "page10", case and accents ignored.
// Ties fall back to byte order so the result is a total order. Collators are not safe for concurrent use.
func newComparator() func(a, b string) int {
	col := collate.New(language.Und, collate.Numeric, collate.IgnoreCase, collate.IgnoreDiacritics)
	return func(a, b string) int {
		if r := col.CompareString(a, b); r != 0 {
			return r
		}
		return strings.Compare(a, b)
	}
}

// Plan groups the registered routes by sub-folder, merges language alternates under their canonical URL
// and paginates each group. Groups appear in collation order of their sub-folder paths.
func (s *Sitemap) Plan() []FileDescriptor {
	routes := s.Routes()
	compare := newComparator()

	groups := make(map[string][]*Route)
	var folders []string
	for _, r := range routes {
		if _, ok := groups[r.SubFolderPath]; !ok {
			folders = append(folders, r.SubFolderPath)
		}
		groups[r.SubFolderPath] = append(groups[r.SubFolderPath], r)
	}
	slices.SortFunc(folders, compare)

	var files []FileDescriptor
	for _, folder := range folders {
		files = append(files, s.planGroup(folder, groups[folder], compare)...)
	}
	return files
}

type keyedRoute struct {
	canonical string
	route     *Route
}

func (s *Sitemap) planGroup(folder string, routes []*Route, compare func(a, b string) int) []FileDescriptor {
	keyed := make([]keyedRoute, len(routes))
	for i, r := range routes {
		keyed[i] = keyedRoute{canonical: r.CanonicalURL(), route: r}
	}
	// Stable, so alternates of one canonical URL keep registration order
	slices.SortStableFunc(keyed, func(a, b keyedRoute) int {
		return compare(a.canonical, b.canonical)
	})

	entries := make(map[string][]*Route)
	var canonicals []string // Already in collation order after the sort above
	for _, k := range keyed {
		if _, ok := entries[k.canonical]; !ok {
			canonicals = append(canonicals, k.canonical)
		}
		entries[k.canonical] = append(entries[k.canonical], k.route)
	}

	maxPerFile := s.opts.MaximumURLCountPerFile
	var files []FileDescriptor
	for start := 0; start < len(canonicals); start += maxPerFile {
		end := min(start+maxPerFile, len(canonicals))
		chunk := canonicals[start:end]

		chunkEntries := make(map[string][]*Route, len(chunk))
		for _, c := range chunk {
			chunkEntries[c] = entries[c]
		}
		files = append(files, FileDescriptor{
			SubFolderPath: folder,
			FileName:      s.fileName(len(files)),
			CanonicalURLs: chunk,
			Entries:       chunkEntries,
		})
	}
	return files
}

// fileName returns sitemap.xml for page 0 and sitemap_{n+1}.xml after that
func (s *Sitemap) fileName(page int) string {
	ext := xmlExt
	if s.opts.Compress {
		ext = gzipExt
	}
	if page == 0 {
		return fileBaseName + ext
	}
	return fmt.Sprintf("%s_%d%s", fileBaseName, page+1, ext)
}

// IndexPath is where the root index is written
func (s *Sitemap) IndexPath() string {
	return s.opts.RootFolderPath + s.fileName(0)
}

// IndexURL is the public URL of the root index
func (s *Sitemap) IndexURL() string {
	return s.opts.WebsiteURL + s.IndexPath()
}

// FilePath is where fd is written, relative to the filesystem root
func (s *Sitemap) FilePath(fd FileDescriptor) string {
	return s.opts.RootFolderPath + fd.SubFolderPath + fd.FileName
}

// FileURL is the public URL of fd as listed in the index
func (s *Sitemap) FileURL(fd FileDescriptor) string {
	return s.opts.WebsiteURL + s.FilePath(fd)
}
