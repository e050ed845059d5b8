package resolve

import (
	"sort"
	"strings"

	"github.com/gorewood/coursemd/internal/staging"
)

// Asset catalog buckets, in rendering order.
const (
	BucketImages    = "Images"
	BucketDocuments = "Documents"
	BucketCode      = "Code"
	BucketOther     = "Other"
)

var bucketOrder = []string{BucketImages, BucketDocuments, BucketCode, BucketOther}

var contentTypeBuckets = map[string]string{
	"image/png":     BucketImages,
	"image/jpeg":    BucketImages,
	"image/gif":     BucketImages,
	"image/svg+xml": BucketImages,
	"image/webp":    BucketImages,

	"application/pdf":    BucketDocuments,
	"application/msword": BucketDocuments,
	"text/plain":         BucketDocuments,

	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": BucketDocuments,

	"application/javascript": BucketCode,
	"text/javascript":        BucketCode,
	"text/html":              BucketCode,
	"text/css":               BucketCode,
	"application/json":       BucketCode,
}

// Bucket classifies a content type. Parameters such as "; charset=" are
// ignored; unknown types fall into Other.
func Bucket(contentType string) string {
	mediaType, _, _ := strings.Cut(contentType, ";")
	if b, ok := contentTypeBuckets[strings.ToLower(strings.TrimSpace(mediaType))]; ok {
		return b
	}
	return BucketOther
}

type assetManifestEntry struct {
	DisplayName string `json:"displayname"`
	ContentType string `json:"contentType"`
	Filename    string `json:"filename"`
}

type assetCatalog struct {
	tree *staging.Tree
}

// AssetCatalog resolves "assets:<manifest path>" to a Markdown listing of
// the course assets grouped by kind.
func AssetCatalog(tree *staging.Tree) Resolver {
	return assetCatalog{tree: tree}
}

func (assetCatalog) Prefix() string { return SchemeAssets }

func (r assetCatalog) Resolve(payload string) Result {
	var manifest map[string]assetManifestEntry
	if err := readJSON(r.tree, payload, &manifest); err != nil || len(manifest) == 0 {
		return empty()
	}
	return found(textFragment(renderCatalog(manifest)))
}

// renderCatalog renders a "#### <bucket>" section with a bullet list of
// display names for every non-empty bucket.
func renderCatalog(manifest map[string]assetManifestEntry) string {
	buckets := make(map[string][]string)
	for key, entry := range manifest {
		name := entry.DisplayName
		if name == "" {
			name = key
		}
		b := Bucket(entry.ContentType)
		buckets[b] = append(buckets[b], name)
	}

	var sb strings.Builder
	for _, b := range bucketOrder {
		names := buckets[b]
		if len(names) == 0 {
			continue
		}
		sort.Strings(names)
		sb.WriteString("\n\n#### ")
		sb.WriteString(b)
		for _, name := range names {
			sb.WriteString("\n* ")
			sb.WriteString(name)
		}
	}
	return sb.String()
}

type assetURL struct {
	tree *staging.Tree
}

// AssetURL resolves "asseturl:/static/<key>" to the public filename recorded
// for that asset in the staged asset manifest.
func AssetURL(tree *staging.Tree) Resolver {
	return assetURL{tree: tree}
}

func (assetURL) Prefix() string { return SchemeAssetURL }

func (r assetURL) Resolve(payload string) Result {
	key := strings.TrimPrefix(payload, "/")
	key = strings.TrimPrefix(key, staging.StaticDir+"/")
	if key == "" {
		return empty()
	}
	var manifest map[string]assetManifestEntry
	if err := readJSON(r.tree, staging.AssetsManifest, &manifest); err != nil {
		return empty()
	}
	entry, ok := manifest[key]
	if !ok || entry.Filename == "" {
		return empty()
	}
	return found(textFragment(entry.Filename))
}
