package offline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path/filepath"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"golang.org/x/sync/errgroup"

	"github.com/yourusername/offline-mirror-go/internal/domain"
)

const defaultConcurrency = 6

// assetAttrs lists the embeddable URL attributes per element
var assetAttrs = map[atom.Atom][]string{
	atom.Img:    {"src"},
	atom.Source: {"src"},
	atom.Video:  {"src", "poster"},
	atom.Audio:  {"src"},
	atom.Track:  {"src"},
	atom.Embed:  {"src"},
	atom.Object: {"data"},
}

type refKind int

const (
	kindAsset refKind = iota
	kindFile
)

// assetGroup collects every occurrence of one distinct remote URL
type assetGroup struct {
	url         *url.URL
	kind        refKind
	name        string // local file name for assets, unique within the page
	replacement string
}

// attrSpan locates one attribute value in the source HTML
type attrSpan struct {
	key        string
	val        string // unescaped value
	start, end int    // byte offsets of the raw value, quotes excluded
	quoted     bool
	hasValue   bool
}

// edit replaces one attribute value. The value comes from group once
// downloads finish, or from literal when group is nil.
type edit struct {
	span    attrSpan
	group   *assetGroup
	literal string
}

// RewriteResult describes a finished rewrite
type RewriteResult struct {
	HTML         string
	BodyPath     string // on-disk location of body.html
	AssetsTotal  int
	AssetsFailed int
}

// HTMLRewriter replaces remote asset references in an HTML fragment with
// local offline paths and persists the result as the resource body. Only
// the rewritten attribute values change; all other markup is kept as is.
type HTMLRewriter struct {
	fetcher     *ContentFetcher
	concurrency int
	logger      *zap.Logger
}

// NewHTMLRewriter creates a new HTML rewriter
func NewHTMLRewriter(fetcher *ContentFetcher, concurrency int, logger *zap.Logger) *HTMLRewriter {
	if concurrency < 1 {
		concurrency = defaultConcurrency
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTMLRewriter{
		fetcher:     fetcher,
		concurrency: concurrency,
		logger:      logger,
	}
}

// Parse rewrites req.HTMLContent, saves it as body.html and returns it
func (r *HTMLRewriter) Parse(ctx context.Context, req domain.RewriteRequest) (string, error) {
	result, err := r.Rewrite(ctx, req)
	if err != nil {
		return "", err
	}
	return result.HTML, nil
}

// Rewrite is Parse with download statistics
func (r *HTMLRewriter) Rewrite(ctx context.Context, req domain.RewriteRequest) (*RewriteResult, error) {
	if err := checkIDs(req.CourseID, req.ResourceID); err != nil {
		return nil, fmt.Errorf("could not save offline content for resource %s: %w", req.ResourceID, err)
	}

	folder := r.fetcher.ResourceFolder(req.CourseID, req.ResourceID, r.fetcher.DocumentsDir())
	result := &RewriteResult{HTML: req.HTMLContent}

	edits, groups, err := r.collect(req.HTMLContent, req.BaseURL)
	if err != nil {
		r.logger.Warn("Cannot tokenize HTML, saving it unchanged",
			zap.String("course_id", req.CourseID),
			zap.String("resource_id", req.ResourceID),
			zap.Error(err))
		return r.persist(ctx, req, folder, result)
	}
	if len(edits) == 0 {
		return r.persist(ctx, req, folder, result)
	}

	assignNames(groups)

	failed, err := r.fetchAll(ctx, req, groups)
	if err != nil {
		return nil, err
	}

	result.HTML = splice(req.HTMLContent, edits)
	result.AssetsTotal = len(groups)
	result.AssetsFailed = failed
	return r.persist(ctx, req, folder, result)
}

func (r *HTMLRewriter) persist(ctx context.Context, req domain.RewriteRequest, folder string, result *RewriteResult) (*RewriteResult, error) {
	if _, err := r.fetcher.SaveBaseContent(ctx, result.HTML, folder); err != nil {
		return nil, fmt.Errorf("could not save offline content for resource %s: %w", req.ResourceID, err)
	}
	result.BodyPath = filepath.Join(folder, domain.BodyFileName)

	r.logger.Info("Resource mirrored",
		zap.String("course_id", req.CourseID),
		zap.String("resource_id", req.ResourceID),
		zap.String("section", string(r.fetcher.Section())),
		zap.Int("assets", result.AssetsTotal),
		zap.Int("failed", result.AssetsFailed))

	return result, nil
}

// collect tokenizes content and returns the attribute edits in document
// order, plus the distinct downloadable URLs they refer to. Plain relative
// anchors become literal edits with their absolute URL.
func (r *HTMLRewriter) collect(content string, base *url.URL) ([]edit, []*assetGroup, error) {
	byURL := make(map[string]*assetGroup)
	var (
		groups []*assetGroup
		edits  []edit
	)

	add := func(span attrSpan, u *url.URL, kind refKind) {
		key := u.String()
		g, ok := byURL[key]
		if !ok {
			g = &assetGroup{url: u, kind: kind, replacement: key}
			byURL[key] = g
			groups = append(groups, g)
		}
		if kind == kindFile {
			g.kind = kindFile
		}
		edits = append(edits, edit{span: span, group: g})
	}

	z := html.NewTokenizer(strings.NewReader(content))
	offset := 0
	for {
		tt := z.Next()
		raw := z.Raw()
		start := offset
		offset += len(raw)

		switch tt {
		case html.ErrorToken:
			if err := z.Err(); !errors.Is(err, io.EOF) {
				return nil, nil, err
			}
			return edits, groups, nil

		case html.StartTagToken, html.SelfClosingTagToken:
			// TagName lowercases the buffer Raw points into
			attrs := scanAttrs(raw, start)
			name, _ := z.TagName()
			tag := atom.Lookup(name)

			if tag == atom.A {
				href, ok := findAttr(attrs, "href")
				if !ok {
					continue
				}
				u, ok := resolveReference(href.val, base)
				if !ok {
					continue
				}
				if hasClass(attrs, domain.FileLinkClass) && isRemote(u) {
					add(href, u, kindFile)
				} else if !isAbsoluteRef(href.val) && u.IsAbs() {
					edits = append(edits, edit{span: href, literal: u.String()})
				}
				continue
			}

			keys, ok := assetAttrs[tag]
			if !ok {
				continue
			}
			for _, key := range keys {
				a, ok := findAttr(attrs, key)
				if !ok {
					continue
				}
				u, ok := resolveReference(a.val, base)
				if !ok || !isRemote(u) {
					continue
				}
				kind := kindAsset
				if domain.IsFileURL(u) {
					kind = kindFile
				}
				add(a, u, kind)
			}
		}
	}
}

// assignNames gives every asset a local name. The first URL to claim a file
// name keeps it; later URLs with the same name get a hashed subfolder.
func assignNames(groups []*assetGroup) {
	used := map[string]bool{strings.ToLower(domain.BodyFileName): true}
	for _, g := range groups {
		if g.kind != kindAsset {
			continue
		}
		name := FileNameFromURL(g.url)
		key := strings.ToLower(name)
		if used[key] {
			name = hashedName(g.url, name)
		} else {
			used[key] = true
		}
		g.name = name
	}
}

// fetchAll downloads every group concurrently and waits for all of them.
// Per-asset failures leave the remote URL in place; only cancellation of
// ctx aborts the rewrite.
func (r *HTMLRewriter) fetchAll(ctx context.Context, req domain.RewriteRequest, groups []*assetGroup) (int, error) {
	var failed atomic.Int32

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)

	for _, group := range groups {
		group := group
		g.Go(func() error {
			var (
				localPath string
				err       error
			)
			switch group.kind {
			case kindFile:
				localPath, err = r.fetcher.downloadFile(gctx, group.url.String(), req.CourseID, req.ResourceID)
			default:
				localPath, err = r.fetcher.downloadAs(gctx, group.url, group.name, req.CourseID, req.ResourceID, r.fetcher.DocumentsDir())
			}

			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return ctxErr
				}
				failed.Add(1)
				r.logger.Warn("Asset download failed, keeping remote URL",
					zap.String("url", group.url.String()),
					zap.String("course_id", req.CourseID),
					zap.String("resource_id", req.ResourceID),
					zap.Error(err))
				return nil
			}

			group.replacement = localPath
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return 0, err
	}
	// cancellation racing the last download still aborts before body.html is written
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return int(failed.Load()), nil
}

// splice copies content, substituting the value of every edited attribute
func splice(content string, edits []edit) string {
	var b strings.Builder
	b.Grow(len(content))

	last := 0
	for _, e := range edits {
		value := e.literal
		if e.group != nil {
			value = e.group.replacement
		}
		if value == e.span.val {
			continue
		}

		b.WriteString(content[last:e.span.start])
		escaped := html.EscapeString(value)
		if e.span.quoted {
			b.WriteString(escaped)
		} else {
			b.WriteString(`"` + escaped + `"`)
		}
		last = e.span.end
	}
	b.WriteString(content[last:])
	return b.String()
}

// scanAttrs finds the attributes of the start tag in raw, which begins at
// offset in the document. Later duplicates of a key are dropped, as the
// HTML parser does.
func scanAttrs(raw []byte, offset int) []attrSpan {
	n := len(raw)
	i := 1
	for i < n && !isHTMLSpace(raw[i]) && raw[i] != '/' && raw[i] != '>' {
		i++
	}

	var attrs []attrSpan
	seen := make(map[string]bool)
	for {
		for i < n && (isHTMLSpace(raw[i]) || raw[i] == '/') {
			i++
		}
		if i >= n || raw[i] == '>' {
			return attrs
		}

		// the first byte belongs to the name even when it is '='
		keyStart := i
		i++
		for i < n && !isHTMLSpace(raw[i]) && raw[i] != '/' && raw[i] != '>' && raw[i] != '=' {
			i++
		}
		a := attrSpan{key: strings.ToLower(string(raw[keyStart:i]))}

		j := i
		for j < n && isHTMLSpace(raw[j]) {
			j++
		}
		if j < n && raw[j] == '=' {
			i = j + 1
			for i < n && isHTMLSpace(raw[i]) {
				i++
			}
			var vs, ve int
			if i < n && (raw[i] == '"' || raw[i] == '\'') {
				quote := raw[i]
				i++
				vs = i
				for i < n && raw[i] != quote {
					i++
				}
				ve = i
				if i < n {
					i++
				}
				a.quoted = true
			} else {
				vs = i
				for i < n && !isHTMLSpace(raw[i]) && raw[i] != '>' {
					i++
				}
				ve = i
			}
			a.val = html.UnescapeString(string(raw[vs:ve]))
			a.start, a.end = offset+vs, offset+ve
			a.hasValue = true
		}

		if !seen[a.key] {
			seen[a.key] = true
			attrs = append(attrs, a)
		}
	}
}

func isHTMLSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f'
}

func findAttr(attrs []attrSpan, key string) (attrSpan, bool) {
	for _, a := range attrs {
		if a.key == key {
			return a, a.hasValue
		}
	}
	return attrSpan{}, false
}

// resolveReference parses raw and resolves it against base. Empty values,
// fragments and non-navigational schemes are rejected.
func resolveReference(raw string, base *url.URL) (*url.URL, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.HasPrefix(raw, "#") {
		return nil, false
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, false
	}

	switch strings.ToLower(u.Scheme) {
	case "", "http", "https":
	default:
		return nil, false
	}

	if !u.IsAbs() && base != nil {
		u = base.ResolveReference(u)
	}
	return u, true
}

func isRemote(u *url.URL) bool {
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func isAbsoluteRef(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	return err == nil && u.IsAbs()
}

func hasClass(attrs []attrSpan, class string) bool {
	a, ok := findAttr(attrs, "class")
	if !ok {
		return false
	}
	for _, c := range strings.Fields(a.val) {
		if c == class {
			return true
		}
	}
	return false
}
