package halo

import "encoding/json"

// API versions and kinds sent with every created resource.
const (
	ContentAPIVersion = "content.halo.run/v1alpha1"

	KindTag      = "Tag"
	KindCategory = "Category"
	KindPost     = "Post"
)

// Post visibility values.
const (
	VisiblePublic   = "PUBLIC"
	VisibleInternal = "INTERNAL"
	VisiblePrivate  = "PRIVATE"
)

// Metadata is the extension metadata shared by every Halo resource. Name is
// assigned by the server (or by the client for posts) and never changes.
type Metadata struct {
	Name              string            `json:"name"`
	GenerateName      string            `json:"generateName,omitempty"`
	Labels            map[string]string `json:"labels,omitempty"`
	Annotations       map[string]string `json:"annotations,omitempty"`
	Version           *int64            `json:"version,omitempty"`
	CreationTimestamp string            `json:"creationTimestamp,omitempty"`
	DeletionTimestamp string            `json:"deletionTimestamp,omitempty"`
	Finalizers        []string          `json:"finalizers,omitempty"`
}

// TagSpec is the user-editable part of a tag.
type TagSpec struct {
	DisplayName string `json:"displayName"`
	Slug        string `json:"slug"`
	Color       string `json:"color,omitempty"`
	Cover       string `json:"cover"`
}

// Tag is a remote tag.
type Tag struct {
	APIVersion string          `json:"apiVersion"`
	Kind       string          `json:"kind"`
	Metadata   Metadata        `json:"metadata"`
	Spec       TagSpec         `json:"spec"`
	Status     json.RawMessage `json:"status,omitempty"`
}

// CategorySpec is the user-editable part of a category.
type CategorySpec struct {
	DisplayName string   `json:"displayName"`
	Slug        string   `json:"slug"`
	Description string   `json:"description"`
	Cover       string   `json:"cover"`
	Template    string   `json:"template"`
	Priority    int      `json:"priority"`
	Children    []string `json:"children"`
	Color       string   `json:"color,omitempty"`
}

// Category is a remote category.
type Category struct {
	APIVersion string          `json:"apiVersion"`
	Kind       string          `json:"kind"`
	Metadata   Metadata        `json:"metadata"`
	Spec       CategorySpec    `json:"spec"`
	Status     json.RawMessage `json:"status,omitempty"`
}

// Excerpt controls the post summary.
type Excerpt struct {
	AutoGenerate bool   `json:"autoGenerate"`
	Raw          string `json:"raw"`
}

// PostSpec is the user-editable part of a post.
type PostSpec struct {
	Title        string            `json:"title"`
	Slug         string            `json:"slug"`
	Template     string            `json:"template"`
	Cover        string            `json:"cover"`
	Deleted      bool              `json:"deleted"`
	Publish      bool              `json:"publish"`
	PublishTime  *string           `json:"publishTime"`
	Pinned       bool              `json:"pinned"`
	AllowComment bool              `json:"allowComment"`
	Visible      string            `json:"visible"`
	Priority     int               `json:"priority"`
	Excerpt      Excerpt           `json:"excerpt"`
	Categories   []string          `json:"categories"`
	Tags         []string          `json:"tags"`
	HTMLMetas    []json.RawMessage `json:"htmlMetas"`
	BaseSnapshot string            `json:"baseSnapshot,omitempty"`
	HeadSnapshot string            `json:"headSnapshot,omitempty"`
	ReleaseSnap  string            `json:"releaseSnapshot,omitempty"`
	Owner        string            `json:"owner,omitempty"`
}

// Post is a remote post. Status is carried through untouched on update.
type Post struct {
	APIVersion string          `json:"apiVersion"`
	Kind       string          `json:"kind"`
	Metadata   Metadata        `json:"metadata"`
	Spec       PostSpec        `json:"spec"`
	Status     json.RawMessage `json:"status,omitempty"`
}

// Content is the raw and rendered body of a post.
type Content struct {
	Raw     string `json:"raw"`
	Content string `json:"content"`
	RawType string `json:"rawType"`
}

// ListedPost is one item of the console post listing.
type ListedPost struct {
	Post       Post       `json:"post"`
	Categories []Category `json:"categories,omitempty"`
	Tags       []Tag      `json:"tags,omitempty"`
}

// PostRequest is the body of a console post creation.
type PostRequest struct {
	Post    Post    `json:"post"`
	Content Content `json:"content"`
}

// TagInput describes a tag to create. Empty Color falls back to the
// client's configured default.
type TagInput struct {
	Name  string
	Color string
	Cover string
}

// CategoryInput describes a category to create.
type CategoryInput struct {
	Name        string
	Color       string
	Cover       string
	Description string
}

// PostPatch lists the fields an update may change. Empty values keep the
// remote value; Pinned is applied only when non-nil.
type PostPatch struct {
	Raw         string
	HTML        string
	Title       string
	Cover       string
	Categories  []string
	Tags        []string
	PublishTime string
	Pinned      *bool
}

type listResult[T any] struct {
	Page    int  `json:"page"`
	Size    int  `json:"size"`
	Total   int  `json:"total"`
	Items   []T  `json:"items"`
	HasNext bool `json:"hasNext"`
}
