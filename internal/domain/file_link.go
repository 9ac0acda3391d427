package domain

import (
	"net/url"
	"regexp"
)

// FileLinkClass marks anchors that point at course files
const FileLinkClass = "instructure_file_link"

// fileEndpointRe matches /files/<id>, /courses/<c>/files/<id>/..., /users/<u>/files/<id>, /api/v1/files/<id>
var fileEndpointRe = regexp.MustCompile(`^/(?:api/v1/)?(?:(?:courses|users|groups)/[^/]+/)?files/(\d+)(?:/|$)`)

// FileIDFromURL extracts the file ID from a file endpoint URL
func FileIDFromURL(u *url.URL) (string, bool) {
	if u == nil {
		return "", false
	}
	m := fileEndpointRe.FindStringSubmatch(u.Path)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// IsFileURL reports whether u points at a file-serving endpoint
func IsFileURL(u *url.URL) bool {
	_, ok := FileIDFromURL(u)
	return ok
}
