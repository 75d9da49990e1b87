package models

import (
	"bytes"
	"encoding/json"
)

// Post represents a blog post.
type Post struct {
	ID          int64  `db:"id" json:"id"`
	Author      string `db:"author" json:"author"`
	Title       string `db:"title" json:"title"`
	Body        string `db:"body" json:"body"`
	LastUpdated int64  `db:"last_updated" json:"lastUpdated"` // unix seconds
}

// AddPostRequest defines the structure for a new post.
type AddPostRequest struct {
	Token string `form:"token" json:"token" validate:"required"`
	Title string `form:"title" json:"title" validate:"required,min=5,max=100"`
	Body  string `form:"body" json:"body" validate:"required,min=10,max=10000"`
}

// UpdatePostRequest defines the structure for an update of an existing post.
type UpdatePostRequest struct {
	Token  string `form:"token" json:"token" validate:"required"`
	PostID PostID `form:"blogId" json:"blogId" validate:"required"`
	Title  string `form:"title" json:"title" validate:"required,min=5,max=100"`
	Body   string `form:"body" json:"body" validate:"required,min=10,max=10000"`
}

// RemovePostRequest defines the structure for a post removal.
type RemovePostRequest struct {
	Token  string `form:"token" json:"token" validate:"required"`
	PostID PostID `form:"blogId" json:"blogId" validate:"required"`
}

// PostID is a post id as sent by clients. JSON bodies may carry it either as
// a number or as a string.
type PostID string

func (id *PostID) UnmarshalJSON(data []byte) error {
	if bytes.HasPrefix(data, []byte(`"`)) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = PostID(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*id = PostID(n.String())
	return nil
}
