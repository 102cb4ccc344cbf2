// Package forms binds submitted post and comment fields and validates them
// before anything is persisted.
package forms

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"yatube/internal/models"
)

const (
	MsgRequired     = "This field is required."
	MsgInvalidGroup = "Select a valid choice. That choice is not one of the available choices."
	MsgInvalidImage = "Upload a valid image. The file you uploaded was either not an image or a corrupted image."
)

var allowedImageTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// Errors maps a field name to its messages.
type Errors map[string][]string

func (e Errors) Add(field, msg string) {
	e[field] = append(e[field], msg)
}

func (e Errors) Valid() bool {
	return len(e) == 0
}

// Upload is an image file received with a post.
type Upload struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Ext is the file extension to store the upload under. It follows the sniffed
// type only; the client file name never decides how the file is served back.
func (u *Upload) Ext() string {
	return allowedImageTypes[u.ContentType]
}

type PostForm struct {
	Text   string
	Group  string
	Image  *Upload
	Errors Errors

	groupID *uint
}

// NewPostForm returns a form filled from an existing post, or an empty one for nil.
func NewPostForm(p *models.Post) *PostForm {
	f := &PostForm{Errors: Errors{}}
	if p != nil {
		f.Text = p.Text
		if p.GroupID != nil {
			f.Group = strconv.FormatUint(uint64(*p.GroupID), 10)
		}
	}
	return f
}

// ParsePostForm reads text, group and image from r. Both urlencoded and multipart
// bodies are accepted; an unreadable or oversized upload becomes an image error.
func ParsePostForm(r *http.Request, maxUpload int64) *PostForm {
	f := &PostForm{Errors: Errors{}}
	if err := r.ParseMultipartForm(maxUpload); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		f.Errors.Add("image", tooLarge(maxUpload))
	}
	f.Text = strings.TrimSpace(r.PostFormValue("text"))
	f.Group = strings.TrimSpace(r.PostFormValue("group"))

	if r.MultipartForm == nil {
		return f
	}
	file, header, err := r.FormFile("image")
	if errors.Is(err, http.ErrMissingFile) {
		return f
	}
	if err != nil {
		f.Errors.Add("image", MsgInvalidImage)
		return f
	}
	defer file.Close()
	up, msg := readUpload(file, header, maxUpload)
	if up == nil {
		f.Errors.Add("image", msg)
		return f
	}
	f.Image = up
	return f
}

func tooLarge(maxUpload int64) string {
	return fmt.Sprintf("Upload a file no larger than %d bytes.", maxUpload)
}

// readUpload returns the upload, or the message explaining why it was rejected.
func readUpload(file multipart.File, header *multipart.FileHeader, maxUpload int64) (*Upload, string) {
	if header.Size > maxUpload {
		return nil, tooLarge(maxUpload)
	}
	data, err := io.ReadAll(io.LimitReader(file, maxUpload+1))
	if err != nil || len(data) == 0 {
		return nil, MsgInvalidImage
	}
	if int64(len(data)) > maxUpload {
		return nil, tooLarge(maxUpload)
	}
	ct := http.DetectContentType(data)
	if _, ok := allowedImageTypes[ct]; !ok {
		return nil, MsgInvalidImage
	}
	return &Upload{Filename: header.Filename, ContentType: ct, Data: data}, ""
}

// Validate checks required fields and resolves the group choice through
// groupExists. It reports whether the form is valid; err is set only when the
// lookup itself fails.
func (f *PostForm) Validate(groupExists func(id uint) (bool, error)) (bool, error) {
	if f.Text == "" {
		f.Errors.Add("text", MsgRequired)
	}
	f.groupID = nil
	if f.Group != "" {
		id, err := strconv.ParseUint(f.Group, 10, 0)
		ok := err == nil && id > 0
		if ok {
			ok, err = groupExists(uint(id))
			if err != nil {
				return false, err
			}
		}
		if ok {
			gid := uint(id)
			f.groupID = &gid
		} else {
			f.Errors.Add("group", MsgInvalidGroup)
		}
	}
	return f.Errors.Valid(), nil
}

// Apply copies the validated text and group onto p. The author and image are
// left for the caller.
func (f *PostForm) Apply(p *models.Post) {
	p.Text = f.Text
	p.GroupID = f.groupID
	p.Group = nil
}

type CommentForm struct {
	Text   string
	Errors Errors
}

func NewCommentForm() *CommentForm {
	return &CommentForm{Errors: Errors{}}
}

func ParseCommentForm(r *http.Request) *CommentForm {
	return &CommentForm{
		Text:   strings.TrimSpace(r.PostFormValue("text")),
		Errors: Errors{},
	}
}

func (f *CommentForm) Validate() bool {
	if f.Text == "" {
		f.Errors.Add("text", MsgRequired)
	}
	return f.Errors.Valid()
}
