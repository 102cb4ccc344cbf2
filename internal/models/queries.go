package models

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrNotFound          = errors.New("record not found")
	ErrDuplicateUsername = errors.New("username already exists")
	ErrDuplicateSlug     = errors.New("group slug already exists")
)

// duplicate reports a unique constraint violation. TranslateError covers both
// dialects; the message check catches drivers that slip past it.
func duplicate(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey) ||
		strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

func CreateUser(db *gorm.DB, username, email, passwordHash string) (*User, error) {
	u := &User{Username: username, Email: email, PasswordHash: passwordHash}
	if err := db.Create(u).Error; err != nil {
		if duplicate(err) {
			return nil, ErrDuplicateUsername
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}

func GetUser(db *gorm.DB, id uint) (*User, error) {
	var u User
	if err := db.First(&u, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

func GetUserByUsername(db *gorm.DB, username string) (*User, error) {
	var u User
	if err := db.Where("username = ?", username).First(&u).Error; err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

func CreateSession(db *gorm.DB, userID uint, sessionID string, expires time.Time) error {
	// revoke existing
	err := db.Model(&Session{}).
		Where("user_id = ? AND revoked_at IS NULL", userID).
		Update("revoked_at", time.Now()).Error
	if err != nil {
		return fmt.Errorf("revoke sessions: %w", err)
	}
	return db.Create(&Session{ID: sessionID, UserID: userID, ExpiresAt: expires}).Error
}

func GetSession(db *gorm.DB, id string) (*Session, error) {
	var s Session
	if err := db.Where("id = ?", id).First(&s).Error; err != nil {
		return nil, notFound(err)
	}
	return &s, nil
}

func RevokeSession(db *gorm.DB, id string) error {
	return db.Model(&Session{}).
		Where("id = ? AND revoked_at IS NULL", id).
		Update("revoked_at", time.Now()).Error
}

func CreateGroup(db *gorm.DB, title, slug, description string) (*Group, error) {
	g := &Group{Title: title, Slug: slug, Description: description}
	if err := db.Create(g).Error; err != nil {
		if duplicate(err) {
			return nil, ErrDuplicateSlug
		}
		return nil, fmt.Errorf("create group: %w", err)
	}
	return g, nil
}

func GetGroup(db *gorm.DB, id uint) (*Group, error) {
	var g Group
	if err := db.First(&g, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &g, nil
}

func GetGroupBySlug(db *gorm.DB, slug string) (*Group, error) {
	var g Group
	if err := db.Where("slug = ?", slug).First(&g).Error; err != nil {
		return nil, notFound(err)
	}
	return &g, nil
}

func ListGroups(db *gorm.DB) ([]Group, error) {
	var gs []Group
	err := db.Order("title").Order("id").Find(&gs).Error
	return gs, err
}

// DeleteGroup removes the group by slug; its posts stay and lose their group.
func DeleteGroup(db *gorm.DB, slug string) error {
	res := db.Where("slug = ?", slug).Delete(&Group{})
	if res.Error != nil {
		return fmt.Errorf("delete group: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// PostFilter narrows a post listing. At most one field is expected to be set;
// the zero value selects every post.
type PostFilter struct {
	GroupID    *uint
	AuthorID   *uint
	FollowerID *uint
}

func (f PostFilter) apply(db *gorm.DB) *gorm.DB {
	q := db.Model(&Post{})
	if f.GroupID != nil {
		q = q.Where("group_id = ?", *f.GroupID)
	}
	if f.AuthorID != nil {
		q = q.Where("author_id = ?", *f.AuthorID)
	}
	if f.FollowerID != nil {
		q = q.Where("author_id IN (?)",
			db.Model(&Follow{}).Select("author_id").Where("user_id = ?", *f.FollowerID))
	}
	return q
}

func CountPosts(db *gorm.DB, f PostFilter) (int64, error) {
	var n int64
	err := f.apply(db).Count(&n).Error
	return n, err
}

func ListPosts(db *gorm.DB, f PostFilter, offset, limit int) ([]Post, error) {
	var posts []Post
	err := f.apply(db).
		Preload("Author").
		Preload("Group").
		Order("created_at DESC").Order("id DESC").
		Offset(offset).Limit(limit).
		Find(&posts).Error
	return posts, err
}

func GetPost(db *gorm.DB, id uint) (*Post, error) {
	var p Post
	if err := db.Preload("Author").Preload("Group").First(&p, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

func CreatePost(db *gorm.DB, p *Post) error {
	if err := db.Omit(clause.Associations).Create(p).Error; err != nil {
		return fmt.Errorf("create post: %w", err)
	}
	return nil
}

// UpdatePost writes the editable fields only; author and creation time never change.
func UpdatePost(db *gorm.DB, p *Post) error {
	err := db.Model(p).
		Select("text", "group_id", "image").
		Updates(map[string]any{"text": p.Text, "group_id": p.GroupID, "image": p.Image}).Error
	if err != nil {
		return fmt.Errorf("update post: %w", err)
	}
	return nil
}

func CreateComment(db *gorm.DB, c *Comment) error {
	if err := db.Omit(clause.Associations).Create(c).Error; err != nil {
		return fmt.Errorf("create comment: %w", err)
	}
	return nil
}

func ListComments(db *gorm.DB, postID uint) ([]Comment, error) {
	var cs []Comment
	err := db.Preload("Author").
		Where("post_id = ?", postID).
		Order("created_at").Order("id").
		Find(&cs).Error
	return cs, err
}

// FollowAuthor subscribes userID to authorID. Following twice leaves a single record.
func FollowAuthor(db *gorm.DB, userID, authorID uint) error {
	err := db.Omit(clause.Associations).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&Follow{UserID: userID, AuthorID: authorID}).Error
	if err != nil {
		return fmt.Errorf("follow: %w", err)
	}
	return nil
}

func UnfollowAuthor(db *gorm.DB, userID, authorID uint) error {
	err := db.Where("user_id = ? AND author_id = ?", userID, authorID).Delete(&Follow{}).Error
	if err != nil {
		return fmt.Errorf("unfollow: %w", err)
	}
	return nil
}

func IsFollowing(db *gorm.DB, userID, authorID uint) (bool, error) {
	var n int64
	err := db.Model(&Follow{}).Where("user_id = ? AND author_id = ?", userID, authorID).Count(&n).Error
	return n > 0, err
}
