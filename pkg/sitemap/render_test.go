package sitemap

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func canonicalsOf(files []FileDescriptor) [][]string {
	out := make([][]string, len(files))
	for i, fd := range files {
		out[i] = fd.CanonicalURLs
	}
	return out
}

func TestPlan_Pagination(t *testing.T) {
	tests := []struct {
		urls      int
		max       int
		wantFiles []string
		wantSizes []int
	}{
		{urls: 1, max: 3, wantFiles: []string{"sitemap.xml"}, wantSizes: []int{1}},
		{urls: 3, max: 3, wantFiles: []string{"sitemap.xml"}, wantSizes: []int{3}},
		{urls: 4, max: 3, wantFiles: []string{"sitemap.xml", "sitemap_2.xml"}, wantSizes: []int{3, 1}},
		{urls: 7, max: 3, wantFiles: []string{"sitemap.xml", "sitemap_2.xml", "sitemap_3.xml"}, wantSizes: []int{3, 3, 1}},
		{urls: 10, max: 3, wantFiles: []string{"sitemap.xml", "sitemap_2.xml", "sitemap_3.xml", "sitemap_4.xml"}, wantSizes: []int{3, 3, 3, 1}},
		{urls: 5, max: 1, wantFiles: []string{"sitemap.xml", "sitemap_2.xml", "sitemap_3.xml", "sitemap_4.xml", "sitemap_5.xml"}, wantSizes: []int{1, 1, 1, 1, 1}},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d urls max %d", tt.urls, tt.max), func(t *testing.T) {
			sm := newTestSitemap(t, func(o *Options) { o.MaximumURLCountPerFile = tt.max })
			for i := range tt.urls {
				_, err := sm.AddRoute("item/{n}", map[string]any{"n": i}, "items/", "")
				require.NoError(t, err)
			}

			files := sm.Plan()
			require.Len(t, files, (tt.urls+tt.max-1)/tt.max)
			for i, fd := range files {
				assert.Equal(t, "items/", fd.SubFolderPath)
				assert.Equal(t, tt.wantFiles[i], fd.FileName)
				assert.Len(t, fd.CanonicalURLs, tt.wantSizes[i])
				assert.LessOrEqual(t, len(fd.CanonicalURLs), tt.max)
			}
		})
	}
}

func TestPlan_Empty(t *testing.T) {
	sm := newTestSitemap(t, nil)
	assert.Empty(t, sm.Plan())
}

func TestPlan_OrderingNumericCaseInsensitive(t *testing.T) {
	sm := newTestSitemap(t, nil)
	for _, p := range []string{"page10", "Page3", "page2", "page1", "page21"} {
		_, err := sm.AddPath(p, "pages/")
		require.NoError(t, err)
	}

	files := sm.Plan()
	require.Len(t, files, 1)
	assert.Equal(t, []string{
		"https://example.com/page1",
		"https://example.com/page2",
		"https://example.com/Page3",
		"https://example.com/page10",
		"https://example.com/page21",
	}, files[0].CanonicalURLs)
}

func TestPlan_OrderingIgnoresDiacritics(t *testing.T) {
	sm := newTestSitemap(t, nil)
	for _, p := range []string{"resume-b", "résumé-a", "resume-c"} {
		_, err := sm.AddPath(p, "pages/")
		require.NoError(t, err)
	}

	files := sm.Plan()
	require.Len(t, files, 1)
	assert.Equal(t, []string{
		"https://example.com/résumé-a",
		"https://example.com/resume-b",
		"https://example.com/resume-c",
	}, files[0].CanonicalURLs)
}

func TestPlan_CollationTiesUseByteOrder(t *testing.T) {
	// Differ only by case, so the collator considers them equal
	for _, order := range [][]string{{"about", "About"}, {"About", "about"}} {
		sm := newTestSitemap(t, nil)
		for _, p := range order {
			_, err := sm.AddPath(p, "pages/")
			require.NoError(t, err)
		}
		files := sm.Plan()
		require.Len(t, files, 1)
		assert.Equal(t, []string{"https://example.com/About", "https://example.com/about"}, files[0].CanonicalURLs)
	}
}

func TestPlan_GroupOrderIsAlphabetical(t *testing.T) {
	sm := newTestSitemap(t, nil)
	for _, folder := range []string{"main/", "city/", "landmark/", "district/"} {
		_, err := sm.AddPath(folder+"x", folder)
		require.NoError(t, err)
	}

	var got []string
	for _, fd := range sm.Plan() {
		got = append(got, fd.SubFolderPath)
	}
	assert.Equal(t, []string{"city/", "district/", "landmark/", "main/"}, got)
}

func TestPlan_AlternatesKeepRegistrationOrder(t *testing.T) {
	sm := newTestSitemap(t, nil)
	for _, lang := range []string{"fr", "en", "de"} {
		_, err := sm.AddRoute("{languageCode}/about", map[string]any{"languageCode": lang}, "main/", lang)
		require.NoError(t, err)
	}

	files := sm.Plan()
	require.Len(t, files, 1)
	require.Equal(t, []string{"https://example.com/about"}, files[0].CanonicalURLs)

	var langs []string
	for _, r := range files[0].Entries["https://example.com/about"] {
		langs = append(langs, r.LanguageCode)
	}
	assert.Equal(t, []string{"fr", "en", "de"}, langs)
}

func TestPlan_PaginationNeverSplitsAlternates(t *testing.T) {
	sm := newTestSitemap(t, func(o *Options) { o.MaximumURLCountPerFile = 1 })
	for _, page := range []string{"a", "b"} {
		for _, lang := range []string{"en", "fr", "de"} {
			_, err := sm.AddPath(lang+"/"+page, "pages/", WithLanguage(lang))
			require.NoError(t, err)
		}
	}

	files := sm.Plan()
	require.Len(t, files, 2)
	assert.Equal(t, [][]string{{"https://example.com/a"}, {"https://example.com/b"}}, canonicalsOf(files))
	for _, fd := range files {
		require.Len(t, fd.Entries, 1)
		assert.Len(t, fd.Entries[fd.CanonicalURLs[0]], 3)
	}
}

func TestPlan_CompressedFileNames(t *testing.T) {
	sm := newTestSitemap(t, func(o *Options) {
		o.Compress = true
		o.MaximumURLCountPerFile = 1
		o.RootFolderPath = "sitemap/"
	})
	for _, p := range []string{"a", "b"} {
		_, err := sm.AddPath(p, "pages/")
		require.NoError(t, err)
	}

	files := sm.Plan()
	require.Len(t, files, 2)
	assert.Equal(t, "sitemap.xml.gz", files[0].FileName)
	assert.Equal(t, "sitemap_2.xml.gz", files[1].FileName)
	assert.Equal(t, "sitemap/sitemap.xml.gz", sm.IndexPath())
	assert.Equal(t, "sitemap/pages/sitemap_2.xml.gz", sm.FilePath(files[1]))
	assert.Equal(t, "https://example.com/sitemap/pages/sitemap_2.xml.gz", sm.FileURL(files[1]))
}

func TestFileDescriptor_LastModified(t *testing.T) {
	older := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	newer := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	ignored := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)

	sm := newTestSitemap(t, nil)
	_, err := sm.AddPath("en/a", "pages/", WithLanguage("en"), WithModificationDate(older))
	require.NoError(t, err)
	// Later alternates do not contribute metadata
	_, err = sm.AddPath("fr/a", "pages/", WithLanguage("fr"), WithModificationDate(ignored))
	require.NoError(t, err)
	_, err = sm.AddPath("b", "pages/", WithModificationDate(newer))
	require.NoError(t, err)
	_, err = sm.AddPath("c", "pages/")
	require.NoError(t, err)

	files := sm.Plan()
	require.Len(t, files, 1)
	assert.True(t, newer.Equal(files[0].LastModified()))

	empty := FileDescriptor{}
	assert.True(t, empty.LastModified().IsZero())
}
