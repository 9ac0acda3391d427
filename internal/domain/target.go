package domain

import (
	"fmt"
	"net/url"
	"path"
	"regexp"
)

// pathIDPattern matches IDs that are safe as a single folder name
var pathIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]*$`)

// Section groups resources in the offline folder layout
type Section string

const (
	SectionPages         Section = "pages"
	SectionDiscussions   Section = "discussions"
	SectionAnnouncements Section = "announcements"
	SectionFiles         Section = "files"
	SectionAssignments   Section = "assignments"
	SectionQuizzes       Section = "quizzes"
	SectionSyllabus      Section = "syllabus"
)

const (
	// OfflineDirName is the fixed directory between the session and course folders
	OfflineDirName = "Offline"

	// BodyFileName is the name of the rewritten page body inside a resource folder
	BodyFileName = "body.html"
)

// ValidatePathID reports whether id can be used as one component of a
// resource folder. Separators, "." and ".." are rejected.
func ValidatePathID(id string) bool {
	return pathIDPattern.MatchString(id)
}

// ValidateSection checks if a section name is known
func ValidateSection(section Section) bool {
	switch section {
	case SectionPages, SectionDiscussions, SectionAnnouncements, SectionFiles,
		SectionAssignments, SectionQuizzes, SectionSyllabus:
		return true
	}
	return false
}

// FolderPath returns the resource folder relative to the documents root:
//
//	<sessionID>/Offline/course-<courseID>/<section>/<section>-<resourceID>
//
// The result only depends on its arguments and always uses forward slashes.
func FolderPath(sessionID, courseID string, section Section, resourceID string) string {
	return path.Join(
		sessionID,
		OfflineDirName,
		"course-"+courseID,
		string(section),
		fmt.Sprintf("%s-%s", section, resourceID),
	)
}

// DownloadTarget identifies what to fetch and where it belongs
type DownloadTarget struct {
	RemoteURL  *url.URL
	CourseID   string
	ResourceID string
	Section    Section
	SessionID  string
}

// NewDownloadTarget creates a download target
func NewDownloadTarget(remoteURL *url.URL, sessionID, courseID string, section Section, resourceID string) DownloadTarget {
	return DownloadTarget{
		RemoteURL:  remoteURL,
		CourseID:   courseID,
		ResourceID: resourceID,
		Section:    section,
		SessionID:  sessionID,
	}
}

// Folder returns the resource folder relative to the documents root
func (t DownloadTarget) Folder() string {
	return FolderPath(t.SessionID, t.CourseID, t.Section, t.ResourceID)
}

// Path returns the location of filename inside the resource folder
func (t DownloadTarget) Path(filename string) string {
	return path.Join(t.Folder(), filename)
}

// RewriteRequest is the input of one HTML rewrite
type RewriteRequest struct {
	HTMLContent string
	ResourceID  string
	CourseID    string
	BaseURL     *url.URL // may be nil; relative references are then left untouched
}
